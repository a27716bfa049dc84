package firmware

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// DominantProcessFinder picks the process treated as the device's main
// application. The choice is a heuristic with no ground truth.
type DominantProcessFinder interface {
	DominantProcess() (ProcessSample, bool)
}

// ProcScanner walks every numeric entry under Root and keeps the process
// with the highest cumulative CPU ticks. Each call is a full O(P) scan over
// a single snapshot; it does not compute rates.
type ProcScanner struct {
	Root string
}

// NewProcScanner returns a scanner over the process directories under root.
func NewProcScanner(root string) *ProcScanner {
	return &ProcScanner{Root: root}
}

func (scanner *ProcScanner) DominantProcess() (ProcessSample, bool) {
	best := ProcessSample{PID: InvalidPID}

	dir, err := os.Open(scanner.Root)
	if err != nil {
		return best, false
	}
	defer dir.Close()

	// File.ReadDir keeps directory order; os.ReadDir would sort by name.
	entries, err := dir.ReadDir(-1)
	if err != nil && len(entries) == 0 {
		return best, false
	}

	var maxTicks uint64
	for _, entry := range entries {
		pid, ok := parsePID(entry.Name())
		if !ok {
			continue
		}

		sample, err := ReadProcessStat(filepath.Join(scanner.Root, entry.Name(), "stat"))
		if err != nil {
			// process exited between enumeration and read
			continue
		}

		if sample.CPUTicks > maxTicks {
			maxTicks = sample.CPUTicks
			sample.PID = pid
			best = sample
		}
	}

	return best, best.PID != InvalidPID
}

// ProcfsScanner applies the same selection rule through prometheus/procfs.
type ProcfsScanner struct {
	MountPoint string
}

func (scanner *ProcfsScanner) DominantProcess() (ProcessSample, bool) {
	best := ProcessSample{PID: InvalidPID}

	fs, err := procfs.NewFS(scanner.MountPoint)
	if err != nil {
		return best, false
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return best, false
	}

	var maxTicks uint64
	for _, proc := range procs {
		stat, err := proc.Stat()
		if err != nil {
			continue
		}

		ticks := uint64(stat.UTime) + uint64(stat.STime)
		if ticks > maxTicks {
			maxTicks = ticks
			best = ProcessSample{PID: proc.PID, ShortName: stat.Comm, CPUTicks: ticks}
			if len(best.ShortName) > MaxShortNameBytes {
				best.ShortName = best.ShortName[:MaxShortNameBytes]
				best.NameTruncated = true
			}
		}
	}

	return best, best.PID != InvalidPID
}

// PIDFileHint trusts a supervisor-written pidfile instead of scanning.
type PIDFileHint struct {
	Path     string
	ProcRoot string
}

func (hint *PIDFileHint) DominantProcess() (ProcessSample, bool) {
	pid, err := readPIDFile(hint.Path)
	if err != nil {
		return ProcessSample{PID: InvalidPID}, false
	}

	sample, err := ReadProcessStat(filepath.Join(hint.ProcRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return ProcessSample{PID: InvalidPID}, false
	}
	sample.PID = pid

	return sample, true
}

func readPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	pid, ok := parsePID(strings.TrimSpace(string(bytes.TrimRight(content, "\x00"))))
	if !ok || pid <= 0 {
		return 0, fmt.Errorf("%w: pidfile %s does not hold a pid", ErrFormatMismatch, path)
	}

	return pid, nil
}

func parsePID(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	pid, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return pid, true
}
