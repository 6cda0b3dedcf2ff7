package flags

import (
	"fmt"

	"github.com/spf13/cobra"

	"vistara-analytics/internal/config"
	"vistara-analytics/pkg/defaults"
)

const (
	configFileFlag        = "config"
	modelTypeFlag         = "model-type"
	l2DDRReductionFlag    = "enable-l2-ddr-reduction"
	featDelayFlag         = "feat-delay"
	featNumFlag           = "feat-num"
	disableFeaturesFlag   = "disable-features"
	cardFailurePolicyFlag = "card-failure-policy"
	reportIntervalFlag    = "report-interval"
	reportAllChannelsFlag = "report-all-channels"
	snapshotFileFlag      = "snapshot-file"
	metricsEndpointFlag   = "metrics-endpoint"
	accelLatencyFlag      = "accel-latency"
	accelFailureRateFlag  = "accel-failure-rate"
	accelFailDevicesFlag  = "accel-fail-devices"
	accelDeviceMemoryFlag = "accel-device-memory"
)

// AddFleetFlagsToCommand will add the fleet descriptor flag to the supplied command.
func AddFleetFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.ConfigFile,
		configFileFlag,
		defaults.ConfigFile,
		"Path to the fleet descriptor (.json, .yaml or .toml).")
}

// AddPipelineFlagsToCommand will add the detection and feature pipeline flags to the supplied command.
func AddPipelineFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().IntVar(&cfg.ModelType,
		modelTypeFlag,
		defaults.ModelType,
		"The detector to run: 0 face_detect, 1 resnet50, 2 yolov5.")

	cmd.Flags().BoolVar(&cfg.EnableL2DDRReduction,
		l2DDRReductionFlag,
		defaults.EnableL2DDRReduction,
		"Keep a single frame in flight per channel and release it right after detection.")

	cmd.Flags().IntVar(&cfg.FeatureDelayMs,
		featDelayFlag,
		int(defaults.FeatureDelay.Milliseconds()),
		"Interval in milliseconds between feature extraction flushes.")

	cmd.Flags().IntVar(&cfg.FeatureNum,
		featNumFlag,
		defaults.FeatureNum,
		"Maximum number of face crops extracted per channel per flush.")

	cmd.Flags().BoolVar(&cfg.DisableFeatures,
		disableFeaturesFlag,
		false,
		"Do not attach a feature extractor to face detection cards.")

	cmd.Flags().StringVar(&cfg.CardFailurePolicy,
		cardFailurePolicyFlag,
		defaults.CardFailurePolicy,
		"What to do when a card fails to initialise: abort or degrade.")
}

// AddReportFlagsToCommand will add the reporting and status server flags to the supplied command.
func AddReportFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().DurationVar(&cfg.ReportInterval,
		reportIntervalFlag,
		defaults.ReportInterval,
		"How often the throughput line is printed.")

	cmd.Flags().BoolVar(&cfg.ReportAllChannels,
		reportAllChannelsFlag,
		false,
		"Print one speed line per channel after every report.")

	cmd.Flags().StringVar(&cfg.SnapshotFile,
		snapshotFileFlag,
		"",
		"Write a JSON copy of the statistics to this file on every report.")

	cmd.Flags().StringVar(&cfg.MetricsEndpoint,
		metricsEndpointFlag,
		"",
		"The endpoint for the metrics and status server to listen on (e.g. localhost:9090). An empty string disables it.")
}

// AddAccelFlagsToCommand will add the simulated accelerator flags to the supplied command.
func AddAccelFlagsToCommand(cmd *cobra.Command, cfg *config.Config) error {
	cmd.Flags().DurationVar(&cfg.AccelLatency,
		accelLatencyFlag,
		defaults.SimLatency,
		"Latency added to every batch by the simulated accelerator.")

	cmd.Flags().Float64Var(&cfg.AccelFailureRate,
		accelFailureRateFlag,
		0,
		"Probability in [0,1] that a simulated batch fails.")

	cmd.Flags().IntSliceVar(&cfg.AccelFailDevices,
		accelFailDevicesFlag,
		nil,
		"Device ids the simulated accelerator refuses to open.")

	cmd.Flags().StringVar(&cfg.AccelDeviceMemory,
		accelDeviceMemoryFlag,
		"8GiB",
		"Memory reported by each simulated device.")

	for _, name := range []string{accelFailDevicesFlag, accelDeviceMemoryFlag} {
		if err := cmd.Flags().MarkHidden(name); err != nil {
			return fmt.Errorf("setting %s as hidden: %w", name, err)
		}
	}

	return nil
}
