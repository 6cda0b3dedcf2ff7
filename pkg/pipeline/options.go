package pipeline

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"vistara-analytics/pkg/accel"
	"vistara-analytics/pkg/defaults"
	"vistara-analytics/pkg/delegate"
	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/timer"
)

// Options configures a CardPipeline.
type Options struct {
	// Card is the index of the card in the fleet.
	Card int
	// StartChannel is the global index of the pipeline's first channel.
	StartChannel int
	// ChannelCount is the number of channels the pipeline runs.
	ChannelCount int
	// SkipFrame submits one frame out of every SkipFrame to the detector;
	// values below 2 submit every frame.
	SkipFrame int
	// FeatureDelay is the period of the feature extraction flush.
	FeatureDelay time.Duration
	// FeatureNum caps the crops extracted per channel per flush.
	FeatureNum int
	// L2DDRReduction trades throughput for memory: a single queued frame per
	// channel and frame pixels released as soon as detection is done.
	L2DDRReduction bool
	// MemoryLimit is the card memory budget in bytes, used to size frame
	// queues. Zero means unknown.
	MemoryLimit int64
	// RetryFloor and RetryCeil bound the stream reconnect backoff.
	RetryFloor time.Duration
	RetryCeil  time.Duration

	Registry  *stats.Registry
	Timers    *timer.Queue
	Context   *accel.CardContext
	Detector  delegate.Detector
	Features  delegate.FeatureExtractor
	Streams   ports.StreamService
	// Sink may be shared with other pipelines; its owner closes it.
	Sink      ports.ResultSink
	Observers []ports.FrameObserver
	Logger    *logrus.Entry
}

func (o *Options) validate() error {
	if o.Registry == nil || o.Detector == nil || o.Streams == nil || o.Logger == nil {
		return fmt.Errorf("card %d: registry, detector, streams and logger are required", o.Card)
	}

	if o.Features != nil && o.Timers == nil {
		return fmt.Errorf("card %d: a timer queue is required for feature extraction", o.Card)
	}

	if o.StartChannel < 0 || o.ChannelCount < 0 || o.StartChannel+o.ChannelCount > o.Registry.Channels() {
		return fmt.Errorf("card %d channels [%d,%d) of %d: %w",
			o.Card, o.StartChannel, o.StartChannel+o.ChannelCount, o.Registry.Channels(), verrors.ErrChannelOutOfRange)
	}

	if o.FeatureDelay <= 0 {
		o.FeatureDelay = defaults.FeatureDelay
	}

	if o.FeatureNum <= 0 {
		o.FeatureNum = defaults.FeatureNum
	}

	if o.RetryFloor <= 0 {
		o.RetryFloor = defaults.StreamRetryInitial
	}

	if o.RetryCeil < o.RetryFloor {
		o.RetryCeil = max(o.RetryFloor, defaults.StreamRetryMax)
	}

	return nil
}

// QueueDepth returns the number of decoded frames buffered per channel.
// With L2/DDR reduction it is one. Otherwise a memory budget spreads over the
// card's channels at the size of a 1080p frame, bounded to
// [1, MaxFrameQueueDepth]; without a budget the default depth is used.
func (o *Options) QueueDepth() int {
	if o.L2DDRReduction {
		return 1
	}

	if o.MemoryLimit <= 0 || o.ChannelCount <= 0 {
		return defaults.FrameQueueDepth
	}

	const frameBytes = 1920 * 1080 * 3 / 2

	depth := o.MemoryLimit / int64(o.ChannelCount) / frameBytes

	return int(max(1, min(depth, defaults.MaxFrameQueueDepth)))
}

func (o *Options) describeMemory() string {
	if o.MemoryLimit <= 0 {
		return "unbounded"
	}

	return units.BytesSize(float64(o.MemoryLimit))
}
