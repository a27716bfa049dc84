package firmware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ProcRoot       string
	LibcLink       string
	SDKStatusPath  string
	Bootloader     BootloaderEnv
	DominantFinder DominantProcessFinder
}

func DefaultConfig() Config {
	return Config{
		ProcRoot:       "/proc",
		LibcLink:       "/lib/libc.so.0",
		SDKStatusPath:  "/proc/umap/sys",
		Bootloader:     &FwPrintenv{Command: "fw_printenv", Timeout: 2 * time.Second, MaxOutputBytes: 4096},
		DominantFinder: NewProcScanner("/proc"),
	}
}

// Builder assembles a Report from the configured sources. Every source is
// optional: a missing or malformed source drops its fact and is logged.
type Builder struct {
	logger *slog.Logger
	config Config
}

func NewBuilder(logger *slog.Logger, config Config) *Builder {
	if config.DominantFinder == nil {
		config.DominantFinder = NewProcScanner(config.ProcRoot)
	}
	return &Builder{logger: logger, config: config}
}

func (builder *Builder) Build(ctx context.Context) *Report {
	report := &Report{}

	if fact, err := ReadBootloaderFact(ctx, builder.config.Bootloader); err != nil {
		builder.skip(LabelUboot, "bootloader.env", err)
	} else {
		builder.set(report, fact, "bootloader.env")
	}

	builder.loadKernel(report)

	if fact, err := ReadLibcFact(builder.config.LibcLink); err != nil {
		builder.skip(LabelLibc, builder.config.LibcLink, err)
	} else {
		builder.set(report, fact, builder.config.LibcLink)
	}

	if fact, err := ReadSDKFact(builder.config.SDKStatusPath); err != nil {
		builder.skip(LabelSDK, builder.config.SDKStatusPath, err)
	} else {
		builder.set(report, fact, builder.config.SDKStatusPath)
	}

	builder.loadMainApp(report)

	return report
}

func (builder *Builder) loadKernel(report *Report) {
	path := filepath.Join(builder.config.ProcRoot, "version")

	banner, err := ReadKernelBanner(path)
	if err != nil {
		builder.skip(LabelKernel, path, err)
		builder.skip(LabelToolchain, path, err)
		return
	}

	if banner.VersionErr != nil {
		builder.skip(LabelKernel, path, banner.VersionErr)
	} else if banner.BuildErr != nil {
		builder.skip(LabelKernel, path, banner.BuildErr)
	}
	if banner.ToolchainErr != nil {
		builder.skip(LabelToolchain, path, banner.ToolchainErr)
	}

	for _, fact := range banner.Facts() {
		builder.set(report, fact, path)
	}
}

func (builder *Builder) loadMainApp(report *Report) {
	sample, ok := builder.config.DominantFinder.DominantProcess()
	if !ok {
		builder.skip(LabelMainApp, "dominant_process", fmt.Errorf("%w: no dominant process", ErrSourceUnavailable))
		return
	}

	cmdline, err := ReadCmdline(builder.config.ProcRoot, sample.PID)
	if err != nil {
		builder.skip(LabelMainApp, "dominant_process", err)
		return
	}

	report.dominant = sample
	report.hasMain = true
	builder.set(report, Fact{Label: LabelMainApp, Value: cmdline}, "dominant_process")
	builder.logger.Debug("Dominant process selected", "pid", sample.PID, "name", sample.ShortName, "cpu_ticks", sample.CPUTicks, "name_truncated", sample.NameTruncated)
}

// ReadCmdline returns the first line of /proc/<pid>/cmdline up to the
// first NUL, which is the program as it was invoked.
func ReadCmdline(procRoot string, pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: invalid pid %d", ErrSourceUnavailable, pid)
	}

	path := filepath.Join(procRoot, strconv.Itoa(pid), "cmdline")
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	line, err := readLine(file, maxCmdlineBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	program, _, _ := strings.Cut(line, "\x00")
	if program == "" {
		// kernel threads have an empty cmdline
		return "", fmt.Errorf("%w: %s is empty", ErrFormatMismatch, path)
	}
	return program, nil
}

func (builder *Builder) set(report *Report, fact Fact, source string) {
	report.add(fact.Label, fact.Value)
	builder.logger.Debug("Firmware fact populated", "fact", fact.Label, "data_source", source)
}

func (builder *Builder) skip(label, source string, err error) {
	builder.logger.Debug("Firmware fact missing in source", "fact", label, "data_source", source, "error", err, "expected", true)
}
