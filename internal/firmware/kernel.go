package firmware

import (
	"fmt"
	"os"
	"strings"
)

// KernelBanner holds the fields of a /proc/version line:
//
//	Linux version <version> (<build-user>) (<toolchain>) #<n> <build>
//
// Each field is parsed on its own; a field that could not be found leaves
// its value empty and records why in the matching error.
type KernelBanner struct {
	Version   string
	BuildUser string
	Toolchain string
	Build     string

	VersionErr   error
	ToolchainErr error
	BuildErr     error
}

func ParseKernelBanner(line string) KernelBanner {
	line = strings.TrimRight(line, "\r\n")

	banner := KernelBanner{}
	banner.Version, banner.VersionErr = kernelVersionToken(line)
	banner.Build, banner.BuildErr = kernelBuildDescriptor(line)

	groups := topLevelParenGroups(line, 2)
	if len(groups) > 0 {
		banner.BuildUser = groups[0]
	}
	if len(groups) < 2 {
		banner.ToolchainErr = fmt.Errorf("%w: found %d parenthesized groups, want 2", ErrFormatMismatch, len(groups))
	} else {
		banner.Toolchain = groups[1]
	}

	return banner
}

// Facts returns the kernel and toolchain facts that parsed.
func (banner KernelBanner) Facts() []Fact {
	var facts []Fact
	if banner.VersionErr == nil && banner.BuildErr == nil {
		facts = append(facts, Fact{Label: LabelKernel, Value: fmt.Sprintf("%s (%s)", banner.Version, banner.Build)})
	}
	if banner.ToolchainErr == nil {
		facts = append(facts, Fact{Label: LabelToolchain, Value: banner.Toolchain})
	}
	return facts
}

// ReadKernelBanner parses the first line of path (normally /proc/version).
func ReadKernelBanner(path string) (KernelBanner, error) {
	line, err := readFirstLine(path, maxBannerLineBytes)
	if err != nil {
		return KernelBanner{}, err
	}
	return ParseKernelBanner(line), nil
}

// kernelVersionToken returns the token between the second and third space,
// skipping the "Linux version" prefix.
func kernelVersionToken(line string) (string, error) {
	tokens := strings.SplitN(line, " ", 4)
	if len(tokens) < 4 {
		return "", fmt.Errorf("%w: banner has %d space-delimited tokens, want at least 4", ErrFormatMismatch, len(tokens))
	}
	return tokens[2], nil
}

func kernelBuildDescriptor(line string) (string, error) {
	pound := strings.IndexByte(line, '#')
	if pound == -1 {
		return "", fmt.Errorf("%w: no build number marker", ErrFormatMismatch)
	}

	space := strings.IndexByte(line[pound:], ' ')
	if space == -1 {
		return "", fmt.Errorf("%w: no build descriptor after build number", ErrFormatMismatch)
	}

	return line[pound+space+1:], nil
}

// topLevelParenGroups returns the inner text of up to limit parenthesized
// groups at depth zero. A ")" with no open group is ignored.
func topLevelParenGroups(line string, limit int) []string {
	var (
		groups []string
		depth  int
		start  int
	)

	for i := 0; i < len(line) && len(groups) < limit; i++ {
		switch line[i] {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				groups = append(groups, line[start:i])
			}
		}
	}

	return groups
}

func readFirstLine(path string, limit int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	line, err := readLine(file, limit)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if line == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrFormatMismatch, path)
	}
	return line, nil
}
