package firmware

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// InvalidPID marks a sample that does not refer to a live process.
	InvalidPID = -1

	// MaxShortNameBytes bounds ProcessSample.ShortName. Longer names are
	// cut and flagged with NameTruncated.
	MaxShortNameBytes = 255

	maxStatLineBytes = 4096

	// Offsets into the fields following "pid (comm) ", which start at the
	// state field (field 3 of /proc/<pid>/stat).
	statUtimeField = 11
	statStimeField = 12
)

// ProcessSample is one process observed during a scan.
type ProcessSample struct {
	PID           int
	ShortName     string
	CPUTicks      uint64
	NameTruncated bool
}

// ReadProcessStat parses a /proc/<pid>/stat file into the process name and
// its accumulated user plus system ticks. The PID field of the returned
// sample is left to the caller.
func ReadProcessStat(path string) (ProcessSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return ProcessSample{PID: InvalidPID}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	line, err := readLine(file, maxStatLineBytes)
	if err != nil {
		return ProcessSample{PID: InvalidPID}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	return ParseProcessStat(line)
}

// ParseProcessStat parses the first line of a stat file.
func ParseProcessStat(line string) (ProcessSample, error) {
	sample := ProcessSample{PID: InvalidPID}

	line = strings.TrimRight(line, "\n")
	if line == "" {
		return sample, fmt.Errorf("%w: empty stat line", ErrFormatMismatch)
	}

	// comm may contain both parentheses and spaces, so the name ends at the
	// last ") " rather than the first ")".
	nameEnd := strings.LastIndex(line, ") ")
	if nameEnd == -1 {
		return sample, fmt.Errorf("%w: no closing paren after process name", ErrFormatMismatch)
	}
	nameStart := strings.IndexByte(line, '(')
	if nameStart == -1 || nameStart > nameEnd {
		return sample, fmt.Errorf("%w: no opening paren before process name", ErrFormatMismatch)
	}

	sample.ShortName = line[nameStart+1 : nameEnd]
	if len(sample.ShortName) > MaxShortNameBytes {
		sample.ShortName = sample.ShortName[:MaxShortNameBytes]
		sample.NameTruncated = true
	}

	fields := strings.Fields(line[nameEnd+2:])
	if len(fields) <= statStimeField {
		return sample, fmt.Errorf("%w: stat line has %d fields after name", ErrFormatMismatch, len(fields))
	}

	utime, err := strconv.ParseUint(fields[statUtimeField], 10, 64)
	if err != nil {
		return sample, fmt.Errorf("%w: utime: %w", ErrFormatMismatch, err)
	}
	stime, err := strconv.ParseUint(fields[statStimeField], 10, 64)
	if err != nil {
		return sample, fmt.Errorf("%w: stime: %w", ErrFormatMismatch, err)
	}

	sample.CPUTicks = utime + stime
	return sample, nil
}
