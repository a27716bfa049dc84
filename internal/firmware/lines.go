package firmware

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const (
	maxBannerLineBytes = 1024
	maxCmdlineBytes    = 1024
	maxStatusLineBytes = 64 * 1024
)

// readLine returns the first line of reader without its newline, reading
// at most limit bytes. Longer lines are cut at limit.
func readLine(reader io.Reader, limit int64) (string, error) {
	line, err := bufio.NewReader(io.LimitReader(reader, limit)).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// FindRegexLine scans path line by line and returns capture group 1 of the
// first line matching re. re must have at least one group.
func FindRegexLine(path string, re *regexp.Regexp) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxStatusLineBytes)

	for scanner.Scan() {
		if match := re.FindStringSubmatch(scanner.Text()); len(match) > 1 {
			return match[1], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	return "", fmt.Errorf("%w: no line in %s matches %s", ErrFormatMismatch, path, re)
}
