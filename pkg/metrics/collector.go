// Package metrics exposes the statistics registry to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vistara-analytics/pkg/stats"
)

const namespace = "vsa"

// SnapshotSource provides the latest snapshot with rates filled in.
type SnapshotSource interface {
	Latest() stats.Snapshot
}

// Collector reads the registry at scrape time, so counters are never
// duplicated into Prometheus-owned state.
type Collector struct {
	registry *stats.Registry
	rates    SnapshotSource

	decoded   *prometheus.Desc
	processed *prometheus.Desc
	failed    *prometheus.Desc
	dropped   *prometheus.Desc
	skipped   *prometheus.Desc
	fps       *prometheus.Desc

	cards prometheus.Gauge
}

// NewCollector creates a collector over registry. rates may be nil.
func NewCollector(registry *stats.Registry, rates SnapshotSource) *Collector {
	stageLabels := []string{"stage", "channel"}

	return &Collector{
		registry: registry,
		rates:    rates,
		decoded: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "items_decoded_total"),
			"Items submitted to a stage.", stageLabels, nil),
		processed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "items_processed_total"),
			"Items that completed a stage.", stageLabels, nil),
		failed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "batches_failed_total"),
			"Batches that failed on the accelerator.", stageLabels, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "items_dropped_total"),
			"Items dropped before a stage because of its budget.", stageLabels, nil),
		skipped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "frames_skipped_total"),
			"Frames not submitted because of the skip interval.", []string{"channel"}, nil),
		fps: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "channel_fps"),
			"Processing rate over the last report interval.", stageLabels, nil),
		cards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cards_active",
			Help:      "Cards whose pipeline is running.",
		}),
	}
}

// SetActiveCards records the number of running card pipelines.
func (c *Collector) SetActiveCards(n int) {
	c.cards.Set(float64(n))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.decoded
	ch <- c.processed
	ch <- c.failed
	ch <- c.dropped
	ch <- c.skipped
	ch <- c.fps
	c.cards.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Snapshot()

	var rates stats.Snapshot
	if c.rates != nil {
		rates = c.rates.Latest()
	}

	for _, cs := range snap.Channels {
		channel := strconv.Itoa(cs.Channel)

		for _, stage := range stats.Stages {
			s := cs.Detection
			if stage == stats.StageFeature {
				s = cs.Feature
			}

			name := stage.String()
			ch <- prometheus.MustNewConstMetric(c.decoded, prometheus.CounterValue, float64(s.Decoded), name, channel)
			ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(s.Processed), name, channel)
			ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed), name, channel)
			ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped), name, channel)

			if cs.Channel < len(rates.Channels) {
				fps := rates.Channels[cs.Channel].DetectionFPS
				if stage == stats.StageFeature {
					fps = rates.Channels[cs.Channel].FeatureFPS
				}

				ch <- prometheus.MustNewConstMetric(c.fps, prometheus.GaugeValue, fps, name, channel)
			}
		}

		ch <- prometheus.MustNewConstMetric(c.skipped, prometheus.CounterValue, float64(cs.Skipped), channel)
	}

	c.cards.Collect(ch)
}

// NewRegistry returns a private Prometheus registry holding c and the Go
// runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
