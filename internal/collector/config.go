package collector

import (
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/vinted/firmware-exporter/internal/firmware"
)

const (
	dominantSourceProc    = "proc"
	dominantSourceProcfs  = "procfs"
	dominantSourcePIDFile = "pidfile"
)

type firmwareCollectorConfig struct {
	Enabled         bool          `env:"FIRMWARE_ENABLED" env-default:"true" env-description:"Enable the firmware collector"`
	RefreshInterval time.Duration `env:"FIRMWARE_REFRESH_INTERVAL" env-default:"0s" env-description:"Rebuild interval for the firmware report, 0 builds it once at start"`
	Timeout         time.Duration `env:"FIRMWARE_TIMEOUT" env-default:"4s" env-description:"Deadline for one report build"`

	ProcRoot         string        `env:"FIRMWARE_PROC_ROOT" env-default:"/proc"`
	LibcLink         string        `env:"FIRMWARE_LIBC_LINK" env-default:"/lib/libc.so.0"`
	SDKStatusFile    string        `env:"FIRMWARE_SDK_STATUS_FILE" env-default:"/proc/umap/sys"`
	DominantSource   string        `env:"FIRMWARE_DOMINANT_SOURCE" env-default:"proc" env-description:"Main application lookup: proc, procfs or pidfile"`
	MainPIDFile      string        `env:"FIRMWARE_MAIN_PID_FILE" env-description:"Supervisor pidfile used when FIRMWARE_DOMINANT_SOURCE=pidfile"`
	UbootEnvFile     string        `env:"FIRMWARE_UBOOT_ENV_FILE" env-description:"Read the u-boot environment from this name=value dump instead of fw_printenv"`
	FwPrintenv       string        `env:"FIRMWARE_FW_PRINTENV" env-default:"fw_printenv"`
	CommandTimeout   time.Duration `env:"FIRMWARE_COMMAND_TIMEOUT" env-default:"2s"`
	CommandMaxOutput int           `env:"FIRMWARE_COMMAND_MAX_OUTPUT_BYTES" env-default:"4096"`

	RedisPublish bool   `env:"FIRMWARE_REDIS_PUBLISH" env-default:"false" env-description:"Write the report to redis STATE_DB"`
	RedisKey     string `env:"FIRMWARE_REDIS_KEY" env-default:"FIRMWARE|localhost"`
}

func loadFirmwareCollectorConfig(logger *slog.Logger) firmwareCollectorConfig {
	var config firmwareCollectorConfig
	if err := cleanenv.ReadEnv(&config); err != nil {
		logger.Warn("Invalid firmware collector environment, using defaults", "error", err)
		config = defaultFirmwareCollectorConfig()
	}

	if config.Timeout <= 0 {
		logger.Warn("Firmware collector timeout must be positive, using default", "value", config.Timeout)
		config.Timeout = 4 * time.Second
	}

	return config
}

func defaultFirmwareCollectorConfig() firmwareCollectorConfig {
	return firmwareCollectorConfig{
		Enabled:          true,
		Timeout:          4 * time.Second,
		ProcRoot:         "/proc",
		LibcLink:         "/lib/libc.so.0",
		SDKStatusFile:    "/proc/umap/sys",
		DominantSource:   dominantSourceProc,
		FwPrintenv:       "fw_printenv",
		CommandTimeout:   2 * time.Second,
		CommandMaxOutput: 4096,
		RedisKey:         "FIRMWARE|localhost",
	}
}

// LoadBuilderConfig reads the FIRMWARE_* environment into report sources.
func LoadBuilderConfig(logger *slog.Logger) firmware.Config {
	return loadFirmwareCollectorConfig(logger).sources(logger)
}

func (config firmwareCollectorConfig) sources(logger *slog.Logger) firmware.Config {
	builderConfig := firmware.Config{
		ProcRoot:      config.ProcRoot,
		LibcLink:      config.LibcLink,
		SDKStatusPath: config.SDKStatusFile,
	}

	if config.UbootEnvFile != "" {
		builderConfig.Bootloader = &firmware.EnvFile{Path: config.UbootEnvFile}
	} else {
		builderConfig.Bootloader = &firmware.FwPrintenv{
			Command:        config.FwPrintenv,
			Timeout:        config.CommandTimeout,
			MaxOutputBytes: config.CommandMaxOutput,
		}
	}

	switch config.DominantSource {
	case dominantSourceProcfs:
		builderConfig.DominantFinder = &firmware.ProcfsScanner{MountPoint: config.ProcRoot}
	case dominantSourcePIDFile:
		if config.MainPIDFile == "" {
			logger.Warn("Dominant source pidfile needs FIRMWARE_MAIN_PID_FILE, scanning /proc instead")
			builderConfig.DominantFinder = firmware.NewProcScanner(config.ProcRoot)
			break
		}
		builderConfig.DominantFinder = &firmware.PIDFileHint{Path: config.MainPIDFile, ProcRoot: config.ProcRoot}
	case dominantSourceProc:
		builderConfig.DominantFinder = firmware.NewProcScanner(config.ProcRoot)
	default:
		logger.Warn("Unknown dominant process source, scanning /proc", "value", config.DominantSource)
		builderConfig.DominantFinder = firmware.NewProcScanner(config.ProcRoot)
	}

	return builderConfig
}
