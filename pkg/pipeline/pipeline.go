// Package pipeline runs the channels of one accelerator card: it reads each
// channel's stream, batches frames into the card's detector, forwards face
// crops to the feature extractor and records everything in the shared
// statistics registry under the channel's global index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/coder/retry"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/scheduler"
	"vistara-analytics/pkg/stats"
	"vistara-analytics/pkg/stream"
	"vistara-analytics/pkg/timer"
)

// CardPipeline owns a CardContext and the workers of its channels.
type CardPipeline struct {
	opts Options

	started atomic.Bool
	cancel  context.CancelFunc

	channels sync.WaitGroup
	features sync.WaitGroup

	mu     sync.Mutex
	timers []timer.ID

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New validates opts and creates an idle pipeline.
func New(opts Options) (*CardPipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	opts.Logger = opts.Logger.WithField("card", opts.Card)

	return &CardPipeline{opts: opts}, nil
}

// Range returns the global channels the pipeline reports into.
func (p *CardPipeline) Range() scheduler.ChannelRange {
	return scheduler.ChannelRange{Card: p.opts.Card, Start: p.opts.StartChannel, Count: p.opts.ChannelCount}
}

// Start binds local channel i to urls[i % len(urls)] and starts its workers.
// It returns immediately; workers run until their stream ends or Stop.
func (p *CardPipeline) Start(ctx context.Context, urls []string) error {
	if p.opts.ChannelCount > 0 && len(urls) == 0 {
		return fmt.Errorf("card %d: %w", p.opts.Card, verrors.ErrStreamURLRequired)
	}

	if !p.started.CompareAndSwap(false, true) {
		return verrors.ErrPipelineStarted
	}

	ctx, p.cancel = context.WithCancel(ctx)

	depth := p.opts.QueueDepth()
	p.opts.Logger.Infof("starting %d channels from %d, detector %s batch %d, queue depth %d, memory %s",
		p.opts.ChannelCount, p.opts.StartChannel, p.opts.Detector.Name(), p.opts.Detector.BatchSize(),
		depth, p.opts.describeMemory())

	for i := 0; i < p.opts.ChannelCount; i++ {
		ch := p.opts.StartChannel + i
		url := urls[i%len(urls)]

		w := &channelWorker{
			p:       p,
			channel: ch,
			url:     url,
			depth:   depth,
			logger:  p.opts.Logger.WithField("channel", ch),
		}

		if p.opts.Features != nil {
			fw, err := p.startFeatureWorker(ctx, ch)
			if err != nil {
				p.cancel()

				return err
			}

			w.features = fw
		}

		p.channels.Add(1)

		go func() {
			defer p.channels.Done()
			w.run(ctx)
		}()
	}

	return nil
}

// Wait blocks until every channel worker has exited.
func (p *CardPipeline) Wait() {
	p.channels.Wait()
}

// Stop cancels the workers and their timers and waits for them. It is
// idempotent and safe to call on a pipeline that never started.
func (p *CardPipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}

		p.mu.Lock()
		timers := p.timers
		p.timers = nil
		p.mu.Unlock()

		for _, id := range timers {
			p.opts.Timers.CancelTimer(id)
		}

		p.channels.Wait()
		p.features.Wait()

		p.opts.Logger.Debug("stopped")
	})
}

// Close stops the pipeline and releases its CardContext.
func (p *CardPipeline) Close() error {
	p.Stop()

	p.closeOnce.Do(func() {
		if p.opts.Context != nil {
			p.closeErr = p.opts.Context.Close()
		}
	})

	return p.closeErr
}

type channelWorker struct {
	p        *CardPipeline
	channel  int
	url      string
	depth    int
	features *featureWorker
	logger   *logrus.Entry

	frames uint64
}

// run reads the channel's stream until it ends, reconnecting with backoff
// after transient failures.
func (w *channelWorker) run(ctx context.Context) {
	opts := &w.p.opts

	for r := retry.New(opts.RetryFloor, opts.RetryCeil); r.Wait(ctx); {
		src, err := opts.Streams.Open(ctx, w.url, w.channel)
		if err != nil {
			if stream.IsPermanent(err) {
				w.logger.Errorf("giving up on stream: %v", err)

				return
			}

			w.logger.Warnf("opening stream %s: %v", w.url, err)

			continue
		}

		read, err := w.consume(ctx, src)
		_ = src.Close()

		if read > 0 {
			r.Reset()
		}

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			w.logger.Infof("stream %s ended after %d frames", w.url, w.frames)

			return
		case stream.IsPermanent(err):
			w.logger.Errorf("giving up on stream: %v", err)

			return
		default:
			w.logger.Warnf("reading stream %s: %v", w.url, err)
		}
	}
}

// consume pumps frames from src through a bounded queue into detection
// batches. It returns the number of frames read and the error that ended the
// stream.
func (w *channelWorker) consume(ctx context.Context, src ports.FrameSource) (int, error) {
	queue := make(chan *models.Frame, w.depth)
	errc := make(chan error, 1)

	go func() {
		defer close(queue)

		for {
			f, err := src.Next(ctx)
			if err != nil {
				errc <- err

				return
			}

			select {
			case queue <- f:
			case <-ctx.Done():
				errc <- ctx.Err()

				return
			}
		}
	}()

	batchSize := max(1, w.p.opts.Detector.BatchSize())
	batch := make([]*models.Frame, 0, batchSize)
	read := 0

	for f := range queue {
		read++
		w.frames++

		if skip := w.p.opts.SkipFrame; skip > 1 && w.frames%uint64(skip) != 0 {
			w.p.opts.Registry.IncSkipped(w.channel)

			continue
		}

		f.Channel = w.channel
		batch = append(batch, f)

		if len(batch) == batchSize {
			w.detect(ctx, batch)
			batch = make([]*models.Frame, 0, batchSize)
		}
	}

	err := <-errc
	if len(batch) > 0 && ctx.Err() == nil {
		w.detect(ctx, batch)
	}

	return read, err
}

// detect runs one batch through the detector. decoded always advances by the
// batch size; processed only advances when the batch succeeds.
func (w *channelWorker) detect(ctx context.Context, batch []*models.Frame) {
	opts := &w.p.opts
	n := uint64(len(batch))

	opts.Registry.AddDecoded(stats.StageDetection, w.channel, n)

	results, err := opts.Detector.Detect(ctx, batch)

	if opts.L2DDRReduction {
		for _, f := range batch {
			f.Release()
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		opts.Registry.IncFailed(stats.StageDetection, w.channel)
		w.logger.Debugf("detection batch failed: %v", err)

		return
	}

	opts.Registry.AddProcessed(stats.StageDetection, w.channel, n)

	for _, res := range results {
		if w.features != nil && len(res.Faces) > 0 {
			w.features.enqueue(res.Faces)
		}

		res.Faces = nil

		for _, obs := range opts.Observers {
			obs.ObserveResult(res)
		}

		if opts.Sink != nil {
			if err := opts.Sink.WriteDetection(ctx, res); err != nil {
				w.logger.Warnf("writing detection: %v", err)
			}
		}
	}
}
