// Package orchestrator turns a fleet descriptor into running card pipelines:
// it allocates channels over cards, brings the cards up, drives the timer
// loop that reports statistics and tears everything down on shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vistara-analytics/pkg/accel"
	"vistara-analytics/pkg/delegate"
	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/pipeline"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/reporter"
	"vistara-analytics/pkg/scheduler"
	"vistara-analytics/pkg/sink"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/timer"
)

// Config holds the run-wide tuning.
type Config struct {
	ModelType         delegate.ModelType
	L2DDRReduction    bool
	FeatureDelay      time.Duration
	FeatureNum        int
	DisableFeatures   bool
	FailurePolicy     FailurePolicy
	ReportInterval    time.Duration
	ReportAllChannels bool
	// RunID tags logs and snapshots. A random id is used when empty.
	RunID string
	// Out receives the report lines. Defaults to stdout.
	Out io.Writer
}

// Orchestrator owns the statistics registry, the timer queue and every card
// pipeline of a run.
type Orchestrator struct {
	cfg    Config
	fleet  *fleet.Config
	ports  *ports.Collection
	logger *logrus.Entry

	runID    string
	plan     []scheduler.ChannelRange
	registry *stats.Registry
	timers   *timer.Queue
	reporter *reporter.Reporter

	mu        sync.Mutex
	pipelines []*pipeline.CardPipeline
	// sinks holds one result sink per output path, shared by every card
	// whose detector writes there.
	sinks map[string]*sink.JSONL

	shutdownOnce sync.Once
}

// New allocates the fleet's channels over its cards. It does not touch any
// device; that happens in Start.
func New(cfg Config, fc *fleet.Config, p *ports.Collection, logger *logrus.Entry) (*Orchestrator, error) {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyAbort
	}

	policy, err := ParseFailurePolicy(string(cfg.FailurePolicy))
	if err != nil {
		return nil, err
	}

	cfg.FailurePolicy = policy

	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	plan, err := scheduler.Plan(fc.TotalChannelCount(), fc.CardCount())
	if err != nil {
		return nil, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger = logger.WithField("run", runID)

	registry := stats.NewRegistry(fc.TotalChannelCount())
	timers := timer.NewQueue(p.Clock, logger)

	o := &Orchestrator{
		cfg:       cfg,
		fleet:     fc,
		ports:     p,
		logger:    logger,
		runID:     runID,
		plan:      plan,
		registry:  registry,
		timers:    timers,
		pipelines: make([]*pipeline.CardPipeline, fc.CardCount()),
		sinks:     make(map[string]*sink.JSONL),
	}

	o.reporter = reporter.New(reporter.Options{
		Registry:    registry,
		Timers:      timers,
		Clock:       p.Clock,
		Out:         cfg.Out,
		Interval:    cfg.ReportInterval,
		AllChannels: cfg.ReportAllChannels,
		Observers:   p.StatsObservers,
		Logger:      logger,
	})

	return o, nil
}

// RunID identifies this run in logs and snapshots.
func (o *Orchestrator) RunID() string { return o.runID }

// Plan returns the channel range of every card.
func (o *Orchestrator) Plan() []scheduler.ChannelRange { return o.plan }

// Registry returns the shared statistics registry.
func (o *Orchestrator) Registry() *stats.Registry { return o.registry }

// Reporter returns the periodic reporter.
func (o *Orchestrator) Reporter() *reporter.Reporter { return o.reporter }

// ActiveCards returns the number of cards whose pipeline is running.
func (o *Orchestrator) ActiveCards() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, p := range o.pipelines {
		if p != nil {
			n++
		}
	}

	return n
}

// Healthy returns an error when no card is running.
func (o *Orchestrator) Healthy() error {
	if o.ActiveCards() == 0 {
		return verrors.ErrNoCardsAvailable
	}

	return nil
}

// Start brings every card up concurrently, applies the failure policy and
// then starts the channel workers and the reporter. On error nothing is left
// running.
func (o *Orchestrator) Start(ctx context.Context) error {
	var g errgroup.Group

	built := make([]*pipeline.CardPipeline, len(o.plan))
	failures := make([]error, len(o.plan))

	for i := range o.plan {
		g.Go(func() error {
			p, err := o.buildCard(i)
			built[i], failures[i] = p, err

			return nil
		})
	}

	_ = g.Wait()

	if err := o.applyPolicy(built, failures); err != nil {
		closeAll(built)
		o.closeSinks()

		return err
	}

	o.mu.Lock()
	o.pipelines = built
	o.mu.Unlock()

	for i, p := range built {
		if p == nil {
			continue
		}

		if own := o.fleet.StreamURLs(i); len(own) > o.plan[i].Count {
			o.logger.WithField("card", i).Warnf("card has %d channels, cameras %s stay unbound",
				o.plan[i].Count, strings.Join(own[o.plan[i].Count:], ","))
		}

		if err := p.Start(ctx, o.ChannelURLs(i)); err != nil {
			o.Shutdown()

			return fmt.Errorf("starting card %d: %w", i, err)
		}
	}

	if err := o.reporter.Start(); err != nil {
		o.Shutdown()

		return err
	}

	o.logger.Infof("started %d of %d cards, %d channels", o.ActiveCards(), len(o.plan), o.registry.Channels())

	return nil
}

func (o *Orchestrator) applyPolicy(built []*pipeline.CardPipeline, failures []error) error {
	var errs []error

	for i, err := range failures {
		if err == nil {
			continue
		}

		errs = append(errs, err)

		if o.cfg.FailurePolicy == PolicyDegrade {
			o.logger.WithField("card", i).Warnf("card disabled, channels %s stay idle: %v", o.plan[i], err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	if o.cfg.FailurePolicy == PolicyAbort {
		return errors.Join(errs...)
	}

	for _, p := range built {
		if p != nil {
			return nil
		}
	}

	return errors.Join(append(errs, verrors.ErrNoCardsAvailable)...)
}

// buildCard opens card i and constructs its pipeline. Failures are
// ResourceAcquisitionErrors and leave the card closed.
func (o *Orchestrator) buildCard(i int) (*pipeline.CardPipeline, error) {
	rng := o.plan[i]
	devID := o.fleet.DeviceID(i)
	logger := o.logger.WithFields(logrus.Fields{"card": i, "device": devID})

	detModel, err := o.fleet.DetectorModel(i)
	if err != nil {
		return nil, &verrors.ResourceAcquisitionError{Card: i, DeviceID: devID, Err: err}
	}

	card, err := accel.OpenCard(o.ports.SDK, i, devID, o.fleet.ModelPaths(i)...)
	if err != nil {
		return nil, err
	}

	p, err := o.newPipeline(i, rng, card, detModel, logger)
	if err != nil {
		_ = card.Close()

		var resErr *verrors.ResourceAcquisitionError
		if errors.As(err, &resErr) {
			return nil, err
		}

		return nil, &verrors.ResourceAcquisitionError{Card: i, DeviceID: devID, Model: detModel.Path, Err: err}
	}

	logger.Infof("card ready: %s on %s, channels %s", detModel.Name, card.Info().Name, rng)

	return p, nil
}

func (o *Orchestrator) newPipeline(
	i int,
	rng scheduler.ChannelRange,
	card *accel.CardContext,
	detModel fleet.ModelConfig,
	logger *logrus.Entry,
) (*pipeline.CardPipeline, error) {
	detector, err := delegate.NewDetector(o.cfg.ModelType, card, detModel)
	if err != nil {
		return nil, err
	}

	var features delegate.FeatureExtractor

	if o.cfg.ModelType.WantsFeatures() && !o.cfg.DisableFeatures {
		featModel, ok := o.fleet.FeatureModel(i)
		if !ok {
			featModel = detModel
			featModel.BatchSize = o.cfg.FeatureNum
		}

		if features, err = delegate.NewFeatureExtractor(card, featModel); err != nil {
			return nil, err
		}
	}

	memory, err := o.fleet.MemoryLimit(i)
	if err != nil {
		return nil, err
	}

	var out ports.ResultSink
	if detModel.OutputPath != "" {
		s, err := o.sinkFor(detModel.OutputPath)
		if err != nil {
			return nil, err
		}

		out = s
	}

	p, err := pipeline.New(pipeline.Options{
		Card:           i,
		StartChannel:   rng.Start,
		ChannelCount:   rng.Count,
		SkipFrame:      detModel.SkipFrameNum,
		FeatureDelay:   o.cfg.FeatureDelay,
		FeatureNum:     o.cfg.FeatureNum,
		L2DDRReduction: o.cfg.L2DDRReduction,
		MemoryLimit:    memory,
		Registry:       o.registry,
		Timers:         o.timers,
		Context:        card,
		Detector:       detector,
		Features:       features,
		Streams:        o.ports.Streams,
		Sink:           out,
		Observers:      o.ports.FrameObservers,
		Logger:         logger,
	})
	return p, err
}

// sinkFor returns the sink writing to path, opening it on first use.
func (o *Orchestrator) sinkFor(path string) (*sink.JSONL, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.sinks[path]; ok {
		return s, nil
	}

	s, err := sink.Open(o.ports.FileSystem, path)
	if err != nil {
		return nil, err
	}

	o.sinks[path] = s

	return s, nil
}

func (o *Orchestrator) closeSinks() {
	o.mu.Lock()
	sinks := o.sinks
	o.sinks = make(map[string]*sink.JSONL)
	o.mu.Unlock()

	for path, s := range sinks {
		if err := s.Close(); err != nil {
			o.logger.Warnf("closing result sink %s: %v", path, err)
		}
	}
}

// ChannelURLs returns the URL of every channel of card i, in order. Channels
// cycle through the card's own cameras; a card without cameras takes the
// fleet-wide URLs at its global indices.
func (o *Orchestrator) ChannelURLs(i int) []string {
	rng := o.plan[i]

	src, offset := o.fleet.StreamURLs(i), 0
	if len(src) == 0 {
		src, offset = o.fleet.AllStreamURLs(), rng.Start
	}

	if len(src) == 0 {
		return nil
	}

	urls := make([]string, 0, rng.Count)
	for k := 0; k < rng.Count; k++ {
		urls = append(urls, src[(offset+k)%len(src)])
	}

	return urls
}

// Run starts the fleet and runs the timer loop on the calling goroutine until
// ctx is done, then shuts everything down.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	defer o.Shutdown()

	o.timers.RunLoop(ctx)

	return nil
}

// Shutdown stops the reporter, every pipeline and the timer queue, and
// releases the card contexts. It is idempotent.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.reporter.Stop()

		o.mu.Lock()
		pipelines := o.pipelines
		o.mu.Unlock()

		closeAll(pipelines)
		o.closeSinks()
		o.timers.Close()

		o.logger.Info("shutdown complete")
	})
}

func closeAll(pipelines []*pipeline.CardPipeline) {
	var wg sync.WaitGroup

	for _, p := range pipelines {
		if p == nil {
			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = p.Close()
		}()
	}

	wg.Wait()
}
