package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/exporter-toolkit/web"
	webflag "github.com/prometheus/exporter-toolkit/web/kingpinflag"
	nodecollector "github.com/prometheus/node_exporter/collector"
	"github.com/vinted/firmware-exporter/internal/collector"
	"github.com/vinted/firmware-exporter/internal/firmware"
	"gopkg.in/yaml.v3"
)

func main() {
	// setup node exporter collectors through global kingpin flags
	kingpin.CommandLine.Parse([]string{
		"--collector.disable-defaults",
		"--collector.uname",
		"--collector.loadavg",
		"--collector.cpu",
		"--collector.meminfo",
		"--collector.stat",
		"--collector.time",
	})

	// New kingpin instance to prevent imported code from adding flags (node exporter)
	kp := kingpin.New("firmware-exporter", "Firmware fingerprint exporter for embedded Linux devices")

	var (
		webConfig    = webflag.AddFlags(kp, ":9102")
		metricsPath  = kp.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
		reportPath   = kp.Flag("web.report-path", "Path under which to expose the firmware report.").Default("/firmware").String()
		reportOnce   = kp.Flag("report.once", "Print the firmware report and exit.").Bool()
		reportFormat = kp.Flag("report.format", "Output format for --report.once.").Default("json").Enum("json", "yaml")
	)

	promslogConfig := &promslog.Config{}
	flag.AddFlags(kp, promslogConfig)
	kp.HelpFlag.Short('h')
	kp.UsageWriter(os.Stdout)
	kp.Parse(os.Args[1:])

	logger := promslog.New(promslogConfig)

	if *reportOnce {
		if err := printReport(os.Stdout, logger, *reportFormat); err != nil {
			logger.Error("Failed to print firmware report", "error", err)
			os.Exit(1)
		}
		return
	}

	firmwareCollector := collector.NewFirmwareCollector(logger)
	if firmwareCollector.IsEnabled() {
		prometheus.MustRegister(firmwareCollector)
		http.Handle(*reportPath, firmwareCollector)
	}

	// Node exporter collectors
	nodeCollector, err := nodecollector.NewNodeCollector(logger,
		"uname",
		"loadavg",
		"cpu",
		"meminfo",
		"stat",
		"time",
	)
	if err != nil {
		logger.Error("Failed to create node collector", "error", err)
		os.Exit(1)
	}
	prometheus.MustRegister(nodeCollector)

	http.Handle(*metricsPath, promhttp.Handler())
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`<html>
             <head><title>Firmware Exporter</title></head>
             <body>
             <h1>Firmware Exporter</h1>
             <p><a href='` + *metricsPath + `'>Metrics</a></p>
             <p><a href='` + *reportPath + `'>Firmware report</a></p>
             </body>
             </html>`))
		if err != nil {
			logger.Error("Error writing response", "error", err)
		}
	})
	srv := &http.Server{}
	if err := web.ListenAndServe(srv, webConfig, logger); err != nil {
		logger.Error("Error starting HTTP server", "error", err)
		os.Exit(1)
	}
}

func printReport(w io.Writer, logger *slog.Logger, format string) error {
	builder := firmware.NewBuilder(logger, collector.LoadBuilderConfig(logger))
	report := builder.Build(context.Background())

	if format == "yaml" {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return err
		}
		return encoder.Close()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
