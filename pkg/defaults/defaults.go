package defaults

import "time"

const (
	// ConfigFile is the default path to the fleet descriptor.
	ConfigFile = "./cameras.json"

	// EnvPrefix is the prefix used when binding flags to environment variables.
	EnvPrefix = "VSA"

	// ModelType selects the face detector by default.
	ModelType = 0

	// EnableL2DDRReduction is on by default, matching the shipped camera configs.
	EnableL2DDRReduction = true

	// FeatureDelay is the interval between feature extraction flushes.
	FeatureDelay = 1000 * time.Millisecond

	// FeatureNum is the maximum number of face crops extracted per channel per flush.
	FeatureNum = 8

	// ReportInterval is the cadence of the throughput line.
	ReportInterval = 1000 * time.Millisecond

	// CardFailurePolicy decides what happens when a card fails to initialise.
	CardFailurePolicy = "abort"

	// BatchSize is used when a model config does not set one.
	BatchSize = 1

	// Threshold is the default detection score threshold.
	Threshold = 0.5

	// NMSThreshold is the default IoU threshold for non-max suppression.
	NMSThreshold = 0.45

	// FrameQueueDepth is the per-channel frame buffer used without a memory limit.
	FrameQueueDepth = 4

	// MaxFrameQueueDepth caps the queue depth derived from a card memory limit.
	MaxFrameQueueDepth = 16

	// StreamRetryInitial is the first backoff after a stream open/read failure.
	StreamRetryInitial = 500 * time.Millisecond

	// StreamRetryMax caps the stream reconnect backoff.
	StreamRetryMax = 30 * time.Second

	// ShutdownTimeout bounds the HTTP server graceful shutdown.
	ShutdownTimeout = 5 * time.Second

	// SimLatency is the per-batch latency of the simulated accelerator.
	SimLatency = 5 * time.Millisecond

	// DataDirPerm is the permissions to use for data folders.
	DataDirPerm = 0o755

	// DataFilePerm is the permissions to use for data files.
	DataFilePerm = 0o644
)
