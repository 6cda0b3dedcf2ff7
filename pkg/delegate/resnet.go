package delegate

import (
	"context"
	"math"

	"vistara-analytics/pkg/models"
)

// classifier is the resnet50 variant: each output is a vector of class
// logits and the result is the softmax top-1.
type classifier struct {
	*invoker
}

func (c *classifier) Role() Role { return RoleDetector }

func (c *classifier) Detect(ctx context.Context, frames []*models.Frame) ([]models.DetectResult, error) {
	outputs, err := c.invoke(ctx, channelOf(frames), frameInputs(frames))
	if err != nil {
		return nil, err
	}

	results := make([]models.DetectResult, len(frames))
	for i, f := range frames {
		results[i] = models.DetectResult{Channel: f.Channel, Seq: f.Seq, Timestamp: f.CapturedAt}

		if class, score, ok := top1(outputs[i]); ok {
			results[i].Classification = &models.Classification{ClassID: class, Score: score}
		}
	}

	return results, nil
}

func top1(logits []float32) (int, float32, bool) {
	if len(logits) == 0 {
		return 0, 0, false
	}

	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - logits[best]))
	}

	return best, float32(1 / sum), true
}
