package ports

import (
	"context"

	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/stats"
)

// StreamService is the port definition for a stream source provider.
type StreamService interface {
	// Open starts reading url and tags every frame with the global channel.
	Open(ctx context.Context, url string, channel int) (FrameSource, error)
}

// FrameSource yields decoded frames of one channel.
type FrameSource interface {
	// Next blocks until a frame is available. io.EOF marks the end of a
	// finite source.
	Next(ctx context.Context) (*models.Frame, error)
	Close() error
}

// ResultSink persists inference output.
type ResultSink interface {
	WriteDetection(ctx context.Context, result models.DetectResult) error
	WriteFeature(ctx context.Context, vector models.FeatureVector) error
	Close() error
}

// StatsObserver receives a statistics snapshot on every report tick. It is
// called from the timer loop and must not block.
type StatsObserver interface {
	ObserveStats(snapshot stats.Snapshot)
}

// FrameObserver receives the detector output of every processed frame. It is
// called from channel workers concurrently.
type FrameObserver interface {
	ObserveResult(result models.DetectResult)
}

// StatsObserverFunc adapts a function to StatsObserver.
type StatsObserverFunc func(snapshot stats.Snapshot)

// ObserveStats calls f(snapshot).
func (f StatsObserverFunc) ObserveStats(snapshot stats.Snapshot) {
	f(snapshot)
}
