// Package reporter prints the periodic throughput line and fans statistics
// snapshots out to observers.
package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"vistara-analytics/pkg/defaults"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/timer"
)

// TimeLayout is the timestamp layout of report lines.
const TimeLayout = "2006-01-02:15:04:05"

// Options configures a Reporter.
type Options struct {
	Registry *stats.Registry
	Timers   *timer.Queue
	Clock    quartz.Clock
	Out      io.Writer
	Interval time.Duration
	// AllChannels appends one speed line per channel after the summary line.
	AllChannels bool
	Observers   []ports.StatsObserver
	Logger      *logrus.Entry
}

type channelRates struct {
	detection *stats.RateTracker
	feature   *stats.RateTracker
}

// Reporter samples the registry on every tick. Tick runs on the timer loop
// and only reads atomic counters.
type Reporter struct {
	opts Options

	detection *stats.RateTracker
	feature   *stats.RateTracker
	channels  []channelRates

	mu     sync.Mutex
	id     timer.ID
	latest stats.Snapshot
}

// New creates a reporter. Call Start to schedule it.
func New(opts Options) *Reporter {
	if opts.Interval <= 0 {
		opts.Interval = defaults.ReportInterval
	}

	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	r := &Reporter{
		opts:      opts,
		detection: stats.NewRateTracker(opts.Clock),
		feature:   stats.NewRateTracker(opts.Clock),
		channels:  make([]channelRates, opts.Registry.Channels()),
	}

	for i := range r.channels {
		r.channels[i] = channelRates{
			detection: stats.NewRateTracker(opts.Clock),
			feature:   stats.NewRateTracker(opts.Clock),
		}
	}

	return r
}

// Start schedules Tick every interval on the timer queue.
func (r *Reporter) Start() error {
	id, err := r.opts.Timers.CreateTimer("reporter", r.opts.Interval, r.Tick)
	if err != nil {
		return fmt.Errorf("scheduling reporter: %w", err)
	}

	r.mu.Lock()
	r.id = id
	r.mu.Unlock()

	return nil
}

// Stop cancels the reporter timer.
func (r *Reporter) Stop() {
	r.mu.Lock()
	id := r.id
	r.id = 0
	r.mu.Unlock()

	if id != 0 {
		r.opts.Timers.CancelTimer(id)
	}
}

// Latest returns the snapshot taken by the last tick.
func (r *Reporter) Latest() stats.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.latest
}

// Tick samples the registry, prints the report and notifies observers.
func (r *Reporter) Tick() {
	snap := r.Sample()

	if _, err := io.WriteString(r.opts.Out, r.Format(r.opts.Clock.Now("reporter", "format"), snap)); err != nil && r.opts.Logger != nil {
		r.opts.Logger.Warnf("writing report: %v", err)
	}

	for _, obs := range r.opts.Observers {
		obs.ObserveStats(snap)
	}
}

// Sample takes a registry snapshot and updates every rate from it.
func (r *Reporter) Sample() stats.Snapshot {
	snap := r.opts.Registry.Snapshot()

	snap.DetectionFPS = r.detection.Update(snap.Detection.Processed)
	snap.FeatureFPS = r.feature.Update(snap.Feature.Processed)

	for i := range snap.Channels {
		if i >= len(r.channels) {
			break
		}

		snap.Channels[i].DetectionFPS = r.channels[i].detection.Update(snap.Channels[i].Detection.Processed)
		snap.Channels[i].FeatureFPS = r.channels[i].feature.Update(snap.Channels[i].Feature.Processed)
	}

	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()

	return snap
}

// Format renders snap as report lines, each terminated by a newline.
func (r *Reporter) Format(now time.Time, snap stats.Snapshot) string {
	ts := now.Format(TimeLayout)

	var ch0 stats.ChannelSnapshot
	if len(snap.Channels) > 0 {
		ch0 = snap.Channels[0]
	}

	var b strings.Builder

	fmt.Fprintf(&b, "[%s] det ([SUCCESS: %s]total fps =%.1f,ch=0: speed=%.1f) feature ([SUCCESS: %s]total fps=%.1f,ch=0: speed=%.1f)\n",
		ts, snap.Detection, snap.DetectionFPS, ch0.DetectionFPS, snap.Feature, snap.FeatureFPS, ch0.FeatureFPS)

	if r.opts.AllChannels {
		for _, c := range snap.Channels {
			fmt.Fprintf(&b, "[%s] ch=%d det speed=%.1f feature speed=%.1f\n", ts, c.Channel, c.DetectionFPS, c.FeatureFPS)
		}
	}

	return b.String()
}
