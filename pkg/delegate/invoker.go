package delegate

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"vistara-analytics/pkg/accel"
	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/fleet"
)

// invoker serialises batches onto one accelerator model.
type invoker struct {
	name      string
	model     accel.Model
	gate      *semaphore.Weighted
	batchSize int
}

func newInvoker(name string, card *accel.CardContext, cfg fleet.ModelConfig) (*invoker, error) {
	model, err := card.Model(cfg.Path)
	if err != nil {
		return nil, err
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1
	}

	if limit := model.MaxBatch(); limit > 0 && batch > limit {
		batch = limit
	}

	return &invoker{
		name:      name,
		model:     model,
		gate:      card.Gate(cfg.Path),
		batchSize: batch,
	}, nil
}

func (i *invoker) Name() string {
	return i.name
}

func (i *invoker) BatchSize() int {
	return i.batchSize
}

// invoke runs inputs through the model in chunks of at most MaxBatch and
// returns one output per input.
func (i *invoker) invoke(ctx context.Context, channel int, inputs []accel.Input) ([]accel.Output, error) {
	if len(inputs) == 0 {
		return nil, i.fail(channel, 0, verrors.ErrEmptyBatch)
	}

	chunk := i.model.MaxBatch()
	if chunk <= 0 {
		chunk = len(inputs)
	}

	outputs := make([]accel.Output, 0, len(inputs))

	for start := 0; start < len(inputs); start += chunk {
		end := min(start+chunk, len(inputs))

		out, err := i.call(ctx, inputs[start:end])
		if err != nil {
			return nil, i.fail(channel, len(inputs), err)
		}

		if len(out) != end-start {
			return nil, i.fail(channel, len(inputs),
				fmt.Errorf("model returned %d outputs for %d inputs", len(out), end-start))
		}

		outputs = append(outputs, out...)
	}

	return outputs, nil
}

func (i *invoker) call(ctx context.Context, inputs []accel.Input) ([]accel.Output, error) {
	if i.gate != nil {
		if err := i.gate.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer i.gate.Release(1)
	}

	return i.model.Invoke(ctx, inputs)
}

func (i *invoker) fail(channel, batch int, err error) error {
	return &verrors.DelegateInvocationError{Delegate: i.name, Channel: channel, Batch: batch, Err: err}
}
