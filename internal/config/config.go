package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"vistara-analytics/pkg/log"
)

// Config holds the settings shared by every vsa command.
type Config struct {
	// Logging contains the logging related config.
	Logging log.Config
	// ConfigFile is the fleet descriptor.
	ConfigFile string
	// EnvFile is loaded into the environment before flags are resolved.
	EnvFile string

	// ModelType selects the detector variant: 0 face_detect, 1 resnet50, 2 yolov5.
	ModelType int
	// EnableL2DDRReduction trades frame buffering for device memory.
	EnableL2DDRReduction bool
	// FeatureDelayMs is the feature extraction flush interval in milliseconds.
	FeatureDelayMs int
	// FeatureNum caps the face crops extracted per channel per flush.
	FeatureNum int
	// DisableFeatures skips feature extraction even for face detection.
	DisableFeatures bool
	// CardFailurePolicy is abort or degrade.
	CardFailurePolicy string

	// ReportInterval is the cadence of the throughput line.
	ReportInterval time.Duration
	// ReportAllChannels adds one line per channel to every report.
	ReportAllChannels bool
	// SnapshotFile, if set, receives a JSON copy of the statistics every report.
	SnapshotFile string
	// MetricsEndpoint is the listen address of the status server. Empty disables it.
	MetricsEndpoint string

	// AccelLatency is the per-batch latency of the simulated accelerator.
	AccelLatency time.Duration
	// AccelFailureRate is the probability that a simulated batch fails.
	AccelFailureRate float64
	// AccelFailDevices lists device ids the simulator refuses to open.
	AccelFailDevices []int
	// AccelDeviceMemory is the memory the simulator reports per device.
	AccelDeviceMemory string
}

// FeatureDelay returns FeatureDelayMs as a duration.
func (c *Config) FeatureDelay() time.Duration {
	return time.Duration(c.FeatureDelayMs) * time.Millisecond
}

// LoadEnv reads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored; with no paths ".env" is tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return nil
}
