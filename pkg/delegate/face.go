package delegate

import (
	"context"

	"vistara-analytics/pkg/accel"
	"vistara-analytics/pkg/models"
)

// faceBoxStride is the layout of one face candidate in the detector output:
// x1, y1, x2, y2 (normalised to [0,1]) and a confidence score.
const faceBoxStride = 5

type faceDetector struct {
	*invoker
	threshold float32
}

func (d *faceDetector) Role() Role { return RoleDetector }

func (d *faceDetector) Detect(ctx context.Context, frames []*models.Frame) ([]models.DetectResult, error) {
	outputs, err := d.invoke(ctx, channelOf(frames), frameInputs(frames))
	if err != nil {
		return nil, err
	}

	results := make([]models.DetectResult, len(frames))
	for i, f := range frames {
		res := models.DetectResult{Channel: f.Channel, Seq: f.Seq, Timestamp: f.CapturedAt}

		for j := 0; j+faceBoxStride <= len(outputs[i]); j += faceBoxStride {
			o := outputs[i][j : j+faceBoxStride]
			if o[4] < d.threshold {
				continue
			}

			box := scaleBox(o[0], o[1], o[2], o[3], f.Width, f.Height)
			if box.Area() == 0 {
				continue
			}

			box.Score = o[4]
			res.Boxes = append(res.Boxes, box)
			res.Faces = append(res.Faces, Crop(f, box))
		}

		results[i] = res
	}

	return results, nil
}

// Crop copies the region of f covered by box. The crop owns its pixels, so
// the frame buffer may be released afterwards. A frame whose pixels were
// already released yields a crop without pixels.
func Crop(f *models.Frame, box models.BBox) models.FaceCrop {
	crop := models.FaceCrop{
		Channel: f.Channel,
		Seq:     f.Seq,
		Box:     box,
		Width:   box.Width(),
		Height:  box.Height(),
	}

	if len(f.Pixels) < f.Size() || crop.Width == 0 || crop.Height == 0 {
		return crop
	}

	crop.Pixels = make([]byte, crop.Width*crop.Height)
	for y := 0; y < crop.Height; y++ {
		row := (box.Y1+y)*f.Width + box.X1
		copy(crop.Pixels[y*crop.Width:(y+1)*crop.Width], f.Pixels[row:row+crop.Width])
	}

	return crop
}

func frameInputs(frames []*models.Frame) []accel.Input {
	inputs := make([]accel.Input, len(frames))
	for i, f := range frames {
		inputs[i] = accel.Input{Width: f.Width, Height: f.Height, Data: f.Pixels}
	}

	return inputs
}

func channelOf(frames []*models.Frame) int {
	if len(frames) == 0 {
		return -1
	}

	return frames[0].Channel
}

// scaleBox maps normalised corner coordinates onto a w x h frame, ordering
// and clamping them.
func scaleBox(x1, y1, x2, y2 float32, w, h int) models.BBox {
	if x1 > x2 {
		x1, x2 = x2, x1
	}

	if y1 > y2 {
		y1, y2 = y2, y1
	}

	return models.BBox{
		X1: clamp(int(x1*float32(w)), 0, w),
		Y1: clamp(int(y1*float32(h)), 0, h),
		X2: clamp(int(x2*float32(w)), 0, w),
		Y2: clamp(int(y2*float32(h)), 0, h),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
