package firmware

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const BootloaderVersionVariable = "ver"

// BootloaderEnv reads a named variable from the boot firmware environment.
type BootloaderEnv interface {
	Getenv(ctx context.Context, name string) (string, error)
}

// BootloaderVersion keeps what follows the first space of the "ver"
// variable, e.g. "SoC-1.0 2022.01" gives "2022.01".
func BootloaderVersion(raw string) (string, error) {
	_, version, found := strings.Cut(raw, " ")
	if !found || version == "" {
		return "", fmt.Errorf("%w: bootloader version %q has no space-separated release", ErrFormatMismatch, raw)
	}
	return version, nil
}

func ReadBootloaderFact(ctx context.Context, env BootloaderEnv) (Fact, error) {
	if env == nil {
		return Fact{}, fmt.Errorf("%w: no bootloader environment configured", ErrSourceUnavailable)
	}

	raw, err := env.Getenv(ctx, BootloaderVersionVariable)
	if err != nil {
		return Fact{}, err
	}

	version, err := BootloaderVersion(raw)
	if err != nil {
		return Fact{}, err
	}
	return Fact{Label: LabelUboot, Value: version}, nil
}

// FwPrintenv queries the environment through the u-boot-tools fw_printenv
// binary.
type FwPrintenv struct {
	Command        string
	Timeout        time.Duration
	MaxOutputBytes int
}

var fwPrintenvAllowlist = map[string]struct{}{
	BootloaderVersionVariable: {},
}

func (env *FwPrintenv) Getenv(parentCtx context.Context, name string) (string, error) {
	if _, ok := fwPrintenvAllowlist[name]; !ok {
		return "", fmt.Errorf("variable not allowed: %s", name)
	}

	ctx, cancel := parentCtx, context.CancelFunc(func() {})
	if env.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, env.Timeout)
	}
	defer cancel()

	command := exec.CommandContext(ctx, env.Command, name)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if err := command.Start(); err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", ErrSourceUnavailable, env.Command, name, err)
	}

	var reader io.Reader = stdout
	if env.MaxOutputBytes > 0 {
		reader = io.LimitReader(stdout, int64(env.MaxOutputBytes))
	}
	output, readErr := io.ReadAll(reader)
	// drain past the cap so the command does not block on a full pipe
	_, _ = io.Copy(io.Discard, stdout)

	if err := command.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %s timed out", ErrSourceUnavailable, env.Command)
		}
		return "", fmt.Errorf("%w: %s %s: %w", ErrSourceUnavailable, env.Command, name, err)
	}
	if readErr != nil {
		return "", fmt.Errorf("%w: reading %s output: %w", ErrSourceUnavailable, env.Command, readErr)
	}

	line, _, _ := strings.Cut(string(output), "\n")
	value, found := strings.CutPrefix(strings.TrimRight(line, "\r"), name+"=")
	if !found {
		return "", fmt.Errorf("%w: unexpected %s output %q", ErrFormatMismatch, env.Command, line)
	}
	return value, nil
}

// EnvFile reads a name=value dump of the environment, as produced by
// "fw_printenv > file" or shipped on the rootfs.
type EnvFile struct {
	Path string
}

func (env *EnvFile) Getenv(_ context.Context, name string) (string, error) {
	values, err := parseSimpleKeyValueFile(env.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	value, ok := values[name]
	if !ok {
		return "", fmt.Errorf("%w: variable %s not set in %s", ErrSourceUnavailable, name, env.Path)
	}
	return value, nil
}

func parseSimpleKeyValueFile(filePath string) (map[string]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	result := map[string]string{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		result[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "'\"")
	}

	if err = scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
