package firmware

import (
	"fmt"
	"regexp"
	"strings"
)

var sdkVersionRe = regexp.MustCompile(`Version: \[(.+)\]`)

// ParseSDKVersion formats the bracket capture of a vendor status line.
//
// HiSilicon boards print "Version: [<sdk>], Build Time[<date>]"; the greedy
// capture then holds "<sdk>], Build Time[<date>" and the value becomes
// "<sdk> (<date>)". A capture without inner brackets is echoed as
// "<value> (<value>)".
func ParseSDKVersion(capture string) (string, error) {
	if strings.TrimSpace(capture) == "" {
		return "", fmt.Errorf("%w: empty sdk version", ErrFormatMismatch)
	}

	version, rest, found := strings.Cut(capture, "]")
	if !found {
		return fmt.Sprintf("%s (%s)", capture, capture), nil
	}

	open := strings.IndexByte(rest, '[')
	if open == -1 || strings.TrimSpace(version) == "" {
		return "", fmt.Errorf("%w: unbalanced brackets in sdk version %q", ErrFormatMismatch, capture)
	}

	return fmt.Sprintf("%s (%s)", version, rest[open+1:]), nil
}

func ReadSDKFact(path string) (Fact, error) {
	capture, err := FindRegexLine(path, sdkVersionRe)
	if err != nil {
		return Fact{}, err
	}

	value, err := ParseSDKVersion(capture)
	if err != nil {
		return Fact{}, err
	}
	return Fact{Label: LabelSDK, Value: value}, nil
}
