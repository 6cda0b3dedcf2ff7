package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/stats"
)

// featureWorker extracts feature vectors for one channel. Crops accumulate
// between flushes up to the per-flush budget; extra crops are dropped. The
// flush is signalled by a timer on the shared queue, whose callback only
// notifies and never waits for extraction.
type featureWorker struct {
	p       *CardPipeline
	channel int
	limit   int
	signal  chan struct{}
	logger  *logrus.Entry

	mu      sync.Mutex
	pending []models.FaceCrop
}

func (p *CardPipeline) startFeatureWorker(ctx context.Context, channel int) (*featureWorker, error) {
	fw := &featureWorker{
		p:       p,
		channel: channel,
		limit:   p.opts.FeatureNum,
		signal:  make(chan struct{}, 1),
		logger:  p.opts.Logger.WithFields(logrus.Fields{"channel": channel, "component": "features"}),
	}

	name := fmt.Sprintf("card%d-ch%d-features", p.opts.Card, channel)

	id, err := p.opts.Timers.CreateTimer(name, p.opts.FeatureDelay, fw.notify)
	if err != nil {
		return nil, fmt.Errorf("creating feature timer for channel %d: %w", channel, err)
	}

	p.mu.Lock()
	p.timers = append(p.timers, id)
	p.mu.Unlock()

	p.features.Add(1)

	go func() {
		defer p.features.Done()
		fw.run(ctx)
	}()

	return fw, nil
}

func (fw *featureWorker) notify() {
	select {
	case fw.signal <- struct{}{}:
	default:
	}
}

func (fw *featureWorker) enqueue(crops []models.FaceCrop) {
	fw.mu.Lock()
	take := min(fw.limit-len(fw.pending), len(crops))
	fw.pending = append(fw.pending, crops[:take]...)
	fw.mu.Unlock()

	if dropped := len(crops) - take; dropped > 0 {
		fw.p.opts.Registry.AddDropped(stats.StageFeature, fw.channel, uint64(dropped))
	}
}

func (fw *featureWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.signal:
			fw.flush(ctx)
		}
	}
}

func (fw *featureWorker) flush(ctx context.Context) {
	fw.mu.Lock()
	crops := fw.pending
	fw.pending = nil
	fw.mu.Unlock()

	if len(crops) == 0 {
		return
	}

	opts := &fw.p.opts
	size := max(1, opts.Features.BatchSize())

	for start := 0; start < len(crops); start += size {
		batch := crops[start:min(start+size, len(crops))]
		n := uint64(len(batch))

		opts.Registry.AddDecoded(stats.StageFeature, fw.channel, n)

		vectors, err := opts.Features.Extract(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			opts.Registry.IncFailed(stats.StageFeature, fw.channel)
			fw.logger.Debugf("feature batch failed: %v", err)

			continue
		}

		opts.Registry.AddProcessed(stats.StageFeature, fw.channel, n)

		if opts.Sink == nil {
			continue
		}

		for _, v := range vectors {
			if err := opts.Sink.WriteFeature(ctx, v); err != nil {
				fw.logger.Warnf("writing feature vector: %v", err)
			}
		}
	}
}
