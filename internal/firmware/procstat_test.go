package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func statLine(pid int, name string, utime, stime uint64) string {
	return fmt.Sprintf("%d (%s) S 1 1 1 0 -1 4194560 100 0 0 0 %d %d 0 0 20 0 1 0 100 1000 200 18446744073709551615 "+
		"1 1 0 0 0 0 671173123 4096 1260 0 0 0 17 3 0 0 0 0 0 0 0 0 0 0 0 0 0\n", pid, name, utime, stime)
}

func writeProc(t *testing.T, root string, pid int, name string, utime, stime uint64, cmdline string) {
	t.Helper()

	dir := filepath.Join(root, fmt.Sprint(pid))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(statLine(pid, name, utime, stime)), 0o644); err != nil {
		t.Fatalf("write stat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644); err != nil {
		t.Fatalf("write cmdline: %v", err)
	}
}

func TestParseProcessStatNames(t *testing.T) {
	tests := []struct {
		name string
		comm string
	}{
		{name: "plain", comm: "majestic"},
		{name: "spaces", comm: "Web Content"},
		{name: "open paren", comm: "a(b"},
		{name: "close paren", comm: "a)b"},
		{name: "close paren and space", comm: "a) b"},
		{name: "nested parens", comm: "(sd-pam)"},
		{name: "empty", comm: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, err := ParseProcessStat(statLine(42, tt.comm, 120, 30))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sample.ShortName != tt.comm {
				t.Errorf("name = %q, want %q", sample.ShortName, tt.comm)
			}
			if sample.CPUTicks != 150 {
				t.Errorf("cpu ticks = %d, want 150", sample.CPUTicks)
			}
			if sample.NameTruncated {
				t.Errorf("name should not be flagged truncated")
			}
		})
	}
}

func TestParseProcessStatMismatch(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty", line: ""},
		{name: "newline only", line: "\n"},
		{name: "no close paren", line: "42 (init S 1 1 1"},
		{name: "close paren without space", line: "42 (init)S 1 1 1"},
		{name: "too few fields", line: "42 (init) S 1 1 1 0 -1 4194560 100 0 0 0 7"},
		{name: "non numeric utime", line: "42 (init) S 1 1 1 0 -1 4194560 100 0 0 0 x 1 0 0"},
		{name: "negative stime", line: "42 (init) S 1 1 1 0 -1 4194560 100 0 0 0 1 -1 0 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProcessStat(tt.line)
			if !errors.Is(err, ErrFormatMismatch) {
				t.Errorf("error = %v, want ErrFormatMismatch", err)
			}
		})
	}
}

func TestParseProcessStatTruncatesLongName(t *testing.T) {
	long := strings.Repeat("n", MaxShortNameBytes+10)

	sample, err := ParseProcessStat(statLine(7, long, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sample.ShortName) != MaxShortNameBytes {
		t.Errorf("name length = %d, want %d", len(sample.ShortName), MaxShortNameBytes)
	}
	if !sample.NameTruncated {
		t.Errorf("expected NameTruncated")
	}
}

func TestReadProcessStatMissingFile(t *testing.T) {
	_, err := ReadProcessStat(filepath.Join(t.TempDir(), "4242", "stat"))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestReadProcessStatFile(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, 100, "app (worker)", 5000, 250, "/usr/bin/app\x00--flag\x00")

	sample, err := ReadProcessStat(filepath.Join(root, "100", "stat"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample.ShortName != "app (worker)" || sample.CPUTicks != 5250 {
		t.Errorf("sample = %+v", sample)
	}
}
