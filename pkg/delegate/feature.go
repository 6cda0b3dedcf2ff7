package delegate

import (
	"context"
	"math"

	"vistara-analytics/pkg/accel"
	"vistara-analytics/pkg/models"
)

type featureExtractor struct {
	*invoker
}

func (e *featureExtractor) Role() Role { return RoleFeature }

// Extract returns one L2-normalised vector per crop.
func (e *featureExtractor) Extract(ctx context.Context, crops []models.FaceCrop) ([]models.FeatureVector, error) {
	channel := -1
	if len(crops) > 0 {
		channel = crops[0].Channel
	}

	inputs := make([]accel.Input, len(crops))
	for i, c := range crops {
		inputs[i] = accel.Input{Width: c.Width, Height: c.Height, Data: c.Pixels}
	}

	outputs, err := e.invoke(ctx, channel, inputs)
	if err != nil {
		return nil, err
	}

	vectors := make([]models.FeatureVector, len(crops))
	for i, c := range crops {
		vectors[i] = models.FeatureVector{Channel: c.Channel, Seq: c.Seq, Box: c.Box, Values: normalize(outputs[i])}
	}

	return vectors, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}

	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out
}
