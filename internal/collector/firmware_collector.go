package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vinted/firmware-exporter/internal/firmware"
	"github.com/vinted/firmware-exporter/pkg/redis"
)

type firmwareCollector struct {
	factInfo               *prometheus.Desc
	facts                  *prometheus.Desc
	dominantProcessTicks   *prometheus.Desc
	scrapeDuration         *prometheus.Desc
	scrapeCollectorSuccess *prometheus.Desc
	cacheAge               *prometheus.Desc
	redisPublishSuccess    *prometheus.Desc

	logger  *slog.Logger
	config  firmwareCollectorConfig
	builder *firmware.Builder

	mu                 sync.RWMutex
	cachedMetrics      []prometheus.Metric
	cachedReport       *firmware.Report
	lastSuccess        float64
	lastScrapeDuration float64
	lastRefreshTime    time.Time
	lastPublishSuccess float64
}

func NewFirmwareCollector(logger *slog.Logger) *firmwareCollector {
	const namespace = "firmware"

	config := loadFirmwareCollectorConfig(logger)

	collector := &firmwareCollector{
		factInfo: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "fact_info"),
			"Firmware fact detected on the device, value is always 1", []string{"fact", "value"}, nil),
		facts: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "facts"),
			"Number of firmware facts in the latest report", nil, nil),
		dominantProcessTicks: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "dominant_process_cpu_ticks"),
			"Cumulative user and system clock ticks of the process reported as main application", []string{"pid", "name"}, nil),
		scrapeDuration: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "scrape_duration_seconds"),
			"Time it took for exporter to build the firmware report", nil, nil),
		scrapeCollectorSuccess: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "collector_success"),
			"Whether firmware collector succeeded", nil, nil),
		cacheAge: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "cache_age_seconds"),
			"Age of latest firmware report", nil, nil),
		redisPublishSuccess: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "redis_publish_success"),
			"Whether the latest firmware report was written to redis", nil, nil),
		logger: logger,
		config: config,
	}

	if !collector.config.Enabled {
		collector.logger.Info("Firmware collector is disabled")
		return collector
	}

	collector.builder = firmware.NewBuilder(logger, config.sources(logger))
	collector.refreshMetrics()

	if collector.config.RefreshInterval > 0 {
		go collector.refreshLoop()
	}

	return collector
}

func (collector *firmwareCollector) IsEnabled() bool {
	return collector.config.Enabled
}

func (collector *firmwareCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.factInfo
	ch <- collector.facts
	ch <- collector.dominantProcessTicks
	ch <- collector.scrapeDuration
	ch <- collector.scrapeCollectorSuccess
	ch <- collector.cacheAge
	ch <- collector.redisPublishSuccess
}

func (collector *firmwareCollector) Collect(ch chan<- prometheus.Metric) {
	if !collector.config.Enabled {
		return
	}

	collector.mu.RLock()
	cachedMetrics := append([]prometheus.Metric{}, collector.cachedMetrics...)
	lastScrapeDuration := collector.lastScrapeDuration
	lastSuccess := collector.lastSuccess
	lastRefreshTime := collector.lastRefreshTime
	lastPublishSuccess := collector.lastPublishSuccess
	collector.mu.RUnlock()

	for _, metric := range cachedMetrics {
		ch <- metric
	}

	cacheAge := 0.0
	if !lastRefreshTime.IsZero() {
		cacheAge = time.Since(lastRefreshTime).Seconds()
	}

	ch <- prometheus.MustNewConstMetric(collector.scrapeDuration, prometheus.GaugeValue, lastScrapeDuration)
	ch <- prometheus.MustNewConstMetric(collector.scrapeCollectorSuccess, prometheus.GaugeValue, lastSuccess)
	ch <- prometheus.MustNewConstMetric(collector.cacheAge, prometheus.GaugeValue, cacheAge)
	if collector.config.RedisPublish {
		ch <- prometheus.MustNewConstMetric(collector.redisPublishSuccess, prometheus.GaugeValue, lastPublishSuccess)
	}
}

// Report returns the latest report, or nil before the first build.
func (collector *firmwareCollector) Report() *firmware.Report {
	collector.mu.RLock()
	defer collector.mu.RUnlock()

	return collector.cachedReport
}

// ServeHTTP writes the latest report as JSON.
func (collector *firmwareCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := collector.Report()
	if report == nil {
		http.Error(w, "firmware report not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		collector.logger.Error("Error writing firmware report", "error", err)
	}
}

func (collector *firmwareCollector) refreshLoop() {
	ticker := time.NewTicker(collector.config.RefreshInterval)
	defer ticker.Stop()

	for range ticker.C {
		collector.refreshMetrics()
	}
}

func (collector *firmwareCollector) refreshMetrics() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), collector.config.Timeout)
	defer cancel()

	report, metrics := collector.scrapeMetrics(ctx)
	scrapeDuration := time.Since(start).Seconds()

	publishSuccess := 0.0
	if collector.config.RedisPublish {
		if err := collector.publishReport(ctx, report); err != nil {
			collector.logger.Error("Error publishing firmware report", "error", err)
		} else {
			publishSuccess = 1
		}
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()

	collector.lastScrapeDuration = scrapeDuration
	collector.cachedMetrics = metrics
	collector.cachedReport = report
	collector.lastSuccess = 1
	collector.lastPublishSuccess = publishSuccess
	collector.lastRefreshTime = time.Now()
}

func (collector *firmwareCollector) scrapeMetrics(ctx context.Context) (*firmware.Report, []prometheus.Metric) {
	report := collector.builder.Build(ctx)

	metrics := make([]prometheus.Metric, 0, report.Len()+2)
	for _, fact := range report.Facts() {
		metrics = append(metrics, prometheus.MustNewConstMetric(collector.factInfo, prometheus.GaugeValue, 1, fact.Label, labelValue(fact.Value)))
	}
	metrics = append(metrics, prometheus.MustNewConstMetric(collector.facts, prometheus.GaugeValue, float64(report.Len())))

	if dominant, ok := report.Dominant(); ok {
		metrics = append(metrics, prometheus.MustNewConstMetric(collector.dominantProcessTicks, prometheus.GaugeValue,
			float64(dominant.CPUTicks), strconv.Itoa(dominant.PID), labelValue(dominant.ShortName)))
	}

	if report.Len() == 0 {
		collector.logger.Debug("Firmware report is empty", "expected", true)
	}

	return report, metrics
}

// labelValue replaces invalid UTF-8, which process names and command lines
// may carry but Prometheus label values may not.
func labelValue(value string) string {
	return strings.ToValidUTF8(value, "\uFFFD")
}

func (collector *firmwareCollector) publishReport(ctx context.Context, report *firmware.Report) error {
	redisClient, err := redis.NewClient()
	if err != nil {
		return fmt.Errorf("redis client initialization failed: %w", err)
	}
	defer redisClient.Close()

	if err := redisClient.ReplaceHashInDb(ctx, "STATE_DB", collector.config.RedisKey, report.Map()); err != nil {
		return fmt.Errorf("failed to publish firmware report: %w", err)
	}

	collector.logger.Debug("Firmware report published", "key", collector.config.RedisKey, "facts", report.Len())
	return nil
}
