package stats

import (
	"fmt"

	"go.uber.org/atomic"
)

// Stage identifies one of the two counter families.
type Stage int

const (
	// StageDetection counts frames going through the primary detector.
	StageDetection Stage = iota
	// StageFeature counts face crops going through the feature extractor.
	StageFeature

	numStages
)

func (s Stage) String() string {
	switch s {
	case StageDetection:
		return "detection"
	case StageFeature:
		return "feature"
	default:
		return "unknown"
	}
}

// Stages lists every stage in reporting order.
var Stages = []Stage{StageDetection, StageFeature}

type stageCounters struct {
	decoded   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// shard holds all counters of one channel. The padding keeps neighbouring
// channels on separate cache lines since each is written by its own worker.
type shard struct {
	stages  [numStages]stageCounters
	skipped atomic.Uint64
	_       [64]byte
}

// Registry holds per-channel counters for both stages. Writers only touch
// their own channel shard; totals are merged when read.
type Registry struct {
	shards []shard
}

// NewRegistry creates a registry for channels [0, channels).
func NewRegistry(channels int) *Registry {
	if channels < 0 {
		channels = 0
	}

	return &Registry{shards: make([]shard, channels)}
}

// Channels returns the number of channel slots.
func (r *Registry) Channels() int {
	return len(r.shards)
}

func (r *Registry) counters(stage Stage, channel int) *stageCounters {
	if channel < 0 || channel >= len(r.shards) || stage < 0 || stage >= numStages {
		return nil
	}

	return &r.shards[channel].stages[stage]
}

// IncDecoded records one item submitted to stage on channel.
func (r *Registry) IncDecoded(stage Stage, channel int) {
	r.AddDecoded(stage, channel, 1)
}

// AddDecoded records n items submitted to stage on channel.
func (r *Registry) AddDecoded(stage Stage, channel int, n uint64) {
	if c := r.counters(stage, channel); c != nil {
		c.decoded.Add(n)
	}
}

// IncProcessed records one item that completed stage on channel.
func (r *Registry) IncProcessed(stage Stage, channel int) {
	r.AddProcessed(stage, channel, 1)
}

// AddProcessed records n items that completed stage on channel.
func (r *Registry) AddProcessed(stage Stage, channel int, n uint64) {
	if c := r.counters(stage, channel); c != nil {
		c.processed.Add(n)
	}
}

// IncFailed records a batch that failed in stage on channel.
func (r *Registry) IncFailed(stage Stage, channel int) {
	if c := r.counters(stage, channel); c != nil {
		c.failed.Inc()
	}
}

// AddDropped records n items discarded before reaching stage.
func (r *Registry) AddDropped(stage Stage, channel int, n uint64) {
	if c := r.counters(stage, channel); c != nil {
		c.dropped.Add(n)
	}
}

// IncSkipped records a frame not submitted because of the skip interval.
func (r *Registry) IncSkipped(channel int) {
	if channel >= 0 && channel < len(r.shards) {
		r.shards[channel].skipped.Inc()
	}
}

// Decoded returns the decoded count of channel for stage.
func (r *Registry) Decoded(stage Stage, channel int) uint64 {
	if c := r.counters(stage, channel); c != nil {
		return c.decoded.Load()
	}

	return 0
}

// Processed returns the processed count of channel for stage.
func (r *Registry) Processed(stage Stage, channel int) uint64 {
	if c := r.counters(stage, channel); c != nil {
		return c.processed.Load()
	}

	return 0
}

// Failed returns the number of failed batches of channel for stage.
func (r *Registry) Failed(stage Stage, channel int) uint64 {
	if c := r.counters(stage, channel); c != nil {
		return c.failed.Load()
	}

	return 0
}

// Dropped returns the number of items dropped before stage on channel.
func (r *Registry) Dropped(stage Stage, channel int) uint64 {
	if c := r.counters(stage, channel); c != nil {
		return c.dropped.Load()
	}

	return 0
}

// Skipped returns the number of skipped frames of channel.
func (r *Registry) Skipped(channel int) uint64 {
	if channel >= 0 && channel < len(r.shards) {
		return r.shards[channel].skipped.Load()
	}

	return 0
}

// TotalDecoded sums the decoded counters of every channel for stage.
func (r *Registry) TotalDecoded(stage Stage) uint64 {
	var total uint64
	for ch := range r.shards {
		total += r.Decoded(stage, ch)
	}

	return total
}

// TotalProcessed sums the processed counters of every channel for stage.
func (r *Registry) TotalProcessed(stage Stage) uint64 {
	var total uint64
	for ch := range r.shards {
		total += r.Processed(stage, ch)
	}

	return total
}

// Ratio returns processed/decoded for channel, or 0 when nothing was decoded.
func (r *Registry) Ratio(stage Stage, channel int) float64 {
	return ratio(r.Processed(stage, channel), r.Decoded(stage, channel))
}

func ratio(processed, decoded uint64) float64 {
	if decoded == 0 {
		return 0
	}

	return float64(processed) / float64(decoded)
}

// StageSnapshot is a point-in-time copy of one stage's counters.
type StageSnapshot struct {
	Decoded   uint64 `json:"decoded"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Ratio returns Processed/Decoded.
func (s StageSnapshot) Ratio() float64 {
	return ratio(s.Processed, s.Decoded)
}

// String renders the "x/y" success shape used by the reporter.
func (s StageSnapshot) String() string {
	return fmt.Sprintf("%d/%d", s.Processed, s.Decoded)
}

// ChannelSnapshot is a point-in-time copy of one channel.
type ChannelSnapshot struct {
	Channel   int           `json:"channel"`
	Detection StageSnapshot `json:"detection"`
	Feature   StageSnapshot `json:"feature"`
	Skipped   uint64        `json:"skipped"`
	// DetectionFPS and FeatureFPS are filled in by the reporter.
	DetectionFPS float64 `json:"detection_fps"`
	FeatureFPS   float64 `json:"feature_fps"`
}

// Snapshot is an eventually consistent copy of the whole registry. Counters
// are read one by one without locking writers out.
type Snapshot struct {
	Channels     []ChannelSnapshot `json:"channels"`
	Detection    StageSnapshot     `json:"detection"`
	Feature      StageSnapshot     `json:"feature"`
	DetectionFPS float64           `json:"detection_fps"`
	FeatureFPS   float64           `json:"feature_fps"`
}

// Stage returns the totals of stage.
func (s Snapshot) Stage(stage Stage) StageSnapshot {
	if stage == StageFeature {
		return s.Feature
	}

	return s.Detection
}

func (r *Registry) stageSnapshot(stage Stage, channel int) StageSnapshot {
	return StageSnapshot{
		Decoded:   r.Decoded(stage, channel),
		Processed: r.Processed(stage, channel),
		Failed:    r.Failed(stage, channel),
		Dropped:   r.Dropped(stage, channel),
	}
}

// Snapshot copies every counter and merges the totals.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{Channels: make([]ChannelSnapshot, len(r.shards))}

	for ch := range r.shards {
		c := ChannelSnapshot{
			Channel:   ch,
			Detection: r.stageSnapshot(StageDetection, ch),
			Feature:   r.stageSnapshot(StageFeature, ch),
			Skipped:   r.Skipped(ch),
		}
		snap.Channels[ch] = c

		addStage(&snap.Detection, c.Detection)
		addStage(&snap.Feature, c.Feature)
	}

	return snap
}

func addStage(dst *StageSnapshot, src StageSnapshot) {
	dst.Decoded += src.Decoded
	dst.Processed += src.Processed
	dst.Failed += src.Failed
	dst.Dropped += src.Dropped
}
