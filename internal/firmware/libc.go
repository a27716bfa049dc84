package firmware

import (
	"fmt"
	"os"
	"strings"
)

const uClibcPrefix = "libuClibc-"

// ParseLibcLink turns the target of the libc symlink into a libc fact
// value. Only uClibc targets are recognised; anything else is a mismatch.
func ParseLibcLink(target string) (string, error) {
	if !strings.HasPrefix(target, uClibcPrefix) {
		return "", fmt.Errorf("%w: libc target %q is not uClibc", ErrFormatMismatch, target)
	}

	version := strings.TrimPrefix(target, uClibcPrefix)
	// Cut the last suffix segment only; a dot at index 0 is kept.
	if dot := strings.LastIndexByte(version, '.'); dot > 0 {
		version = version[:dot]
	}
	if version == "" {
		return "", fmt.Errorf("%w: libc target %q has no version", ErrFormatMismatch, target)
	}

	return "uClibc " + version, nil
}

func ReadLibcFact(link string) (Fact, error) {
	target, err := os.Readlink(link)
	if err != nil {
		return Fact{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	value, err := ParseLibcLink(target)
	if err != nil {
		return Fact{}, err
	}
	return Fact{Label: LabelLibc, Value: value}, nil
}
