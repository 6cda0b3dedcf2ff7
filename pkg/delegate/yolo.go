package delegate

import (
	"context"
	"sort"

	"vistara-analytics/pkg/models"
)

// yoloClasses is the number of class scores following each candidate's
// cx, cy, w, h, objectness fields.
const yoloClasses = 1

type yoloDetector struct {
	*invoker
	threshold    float32
	nmsThreshold float32
	classes      int
}

func (d *yoloDetector) Role() Role { return RoleDetector }

func (d *yoloDetector) Detect(ctx context.Context, frames []*models.Frame) ([]models.DetectResult, error) {
	outputs, err := d.invoke(ctx, channelOf(frames), frameInputs(frames))
	if err != nil {
		return nil, err
	}

	stride := 5 + d.classes

	results := make([]models.DetectResult, len(frames))
	for i, f := range frames {
		var candidates []models.BBox

		for j := 0; j+stride <= len(outputs[i]); j += stride {
			o := outputs[i][j : j+stride]

			class, best := 0, o[5]
			for c := 1; c < d.classes; c++ {
				if o[5+c] > best {
					class, best = c, o[5+c]
				}
			}

			score := o[4] * best
			if score < d.threshold {
				continue
			}

			box := scaleBox(o[0]-o[2]/2, o[1]-o[3]/2, o[0]+o[2]/2, o[1]+o[3]/2, f.Width, f.Height)
			if box.Area() == 0 {
				continue
			}

			box.Score = score
			box.ClassID = class
			candidates = append(candidates, box)
		}

		results[i] = models.DetectResult{
			Channel:   f.Channel,
			Seq:       f.Seq,
			Boxes:     NMS(candidates, d.nmsThreshold),
			Timestamp: f.CapturedAt,
		}
	}

	return results, nil
}

// NMS is greedy per-class non-max suppression: boxes are kept in descending
// score order unless they overlap a kept box of the same class by more than
// iouThreshold.
func NMS(boxes []models.BBox, iouThreshold float32) []models.BBox {
	sorted := make([]models.BBox, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Score > sorted[b].Score })

	var kept []models.BBox

	for _, b := range sorted {
		suppressed := false

		for _, k := range kept {
			if k.ClassID == b.ClassID && IoU(k, b) > iouThreshold {
				suppressed = true

				break
			}
		}

		if !suppressed {
			kept = append(kept, b)
		}
	}

	return kept
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b models.BBox) float32 {
	inter := models.BBox{X1: max(a.X1, b.X1), Y1: max(a.Y1, b.Y1), X2: min(a.X2, b.X2), Y2: min(a.Y2, b.Y2)}

	union := a.Area() + b.Area() - inter.Area()
	if union <= 0 {
		return 0
	}

	return float32(inter.Area()) / float32(union)
}
