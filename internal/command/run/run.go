package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	cmdflags "vistara-analytics/internal/command/flags"
	"vistara-analytics/internal/config"
	"vistara-analytics/pkg/accel/sim"
	"vistara-analytics/pkg/api"
	"vistara-analytics/pkg/delegate"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/flags"
	"vistara-analytics/pkg/log"
	"vistara-analytics/pkg/metrics"
	"vistara-analytics/pkg/orchestrator"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/render"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/stream"
	"vistara-analytics/pkg/stream/synthetic"
)

func NewCommand(cfg *config.Config) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run detection and feature extraction over every camera of the fleet",
		PreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	cmdflags.AddFleetFlagsToCommand(cmd, cfg)
	cmdflags.AddPipelineFlagsToCommand(cmd, cfg)
	cmdflags.AddReportFlagsToCommand(cmd, cfg)

	if err := cmdflags.AddAccelFlagsToCommand(cmd, cfg); err != nil {
		return nil, err
	}

	return cmd, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger := log.GetLogger(ctx).WithField("run", runID)
	ctx = log.WithLogger(ctx, logger)

	modelType, err := delegate.ParseModelType(strconv.Itoa(cfg.ModelType))
	if err != nil {
		return err
	}

	policy, err := orchestrator.ParseFailurePolicy(cfg.CardFailurePolicy)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()

	fc, err := fleet.Load(fs, cfg.ConfigFile)
	if err != nil {
		return err
	}

	p, store, err := InitializePorts(cfg, fs, fc.TotalChannelCount())
	if err != nil {
		return err
	}

	if cfg.SnapshotFile != "" {
		snap := render.NewSnapshotFile(fs, cfg.SnapshotFile, runID, p.Clock, logger)
		p.StatsObservers = append(p.StatsObservers, snap)
	}

	var (
		o         *orchestrator.Orchestrator
		collector *metrics.Collector
	)

	if cfg.MetricsEndpoint != "" {
		p.StatsObservers = append(p.StatsObservers, ports.StatsObserverFunc(func(stats.Snapshot) {
			collector.SetActiveCards(o.ActiveCards())
		}))
	}

	o, err = orchestrator.New(orchestrator.Config{
		ModelType:         modelType,
		L2DDRReduction:    cfg.EnableL2DDRReduction,
		FeatureDelay:      cfg.FeatureDelay(),
		FeatureNum:        cfg.FeatureNum,
		DisableFeatures:   cfg.DisableFeatures,
		FailurePolicy:     policy,
		ReportInterval:    cfg.ReportInterval,
		ReportAllChannels: cfg.ReportAllChannels,
		RunID:             runID,
		Out:               os.Stdout,
	}, fc, p, logger)
	if err != nil {
		return err
	}

	logger.Infof("running %d channels on %d cards with %s", fc.TotalChannelCount(), fc.CardCount(), modelType)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsEndpoint != "" {
		collector = metrics.NewCollector(o.Registry(), o.Reporter())

		router := api.NewRouter(api.Deps{
			Metrics: metrics.Handler(metrics.NewRegistry(collector)),
			Stats:   o.Reporter(),
			Results: store,
			Health:  o.Healthy,
			Logger:  logger.WithField("component", "http"),
		})

		g.Go(func() error {
			return api.Serve(gctx, cfg.MetricsEndpoint, router, logger, nil)
		})
	}

	g.Go(func() error {
		return o.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Finished all tasks, exiting")

	return nil
}

// InitializePorts wires the simulated accelerator, the stream sources and the
// latest-result store.
func InitializePorts(cfg *config.Config, fs afero.Fs, channels int) (*ports.Collection, *render.LatestStore, error) {
	clock := quartz.NewReal()

	sdk, err := sim.New(sim.Config{
		Latency:      cfg.AccelLatency,
		FailureRate:  cfg.AccelFailureRate,
		FailDevices:  cfg.AccelFailDevices,
		DeviceMemory: cfg.AccelDeviceMemory,
	}, clock)
	if err != nil {
		return nil, nil, fmt.Errorf("creating accelerator: %w", err)
	}

	streams := stream.NewMux()
	streams.Register(synthetic.Scheme, synthetic.New(clock))

	store := render.NewLatestStore(channels)

	return &ports.Collection{
		SDK:            sdk,
		Streams:        streams,
		Results:        store,
		FrameObservers: []ports.FrameObserver{store},
		FileSystem:     fs,
		Clock:          clock,
	}, store, nil
}
