package models

import "time"

// Frame is one decoded picture of a channel. Pixels are packed 8-bit
// grayscale, Width*Height bytes; decoding itself happens outside this module.
type Frame struct {
	// Channel is the global channel index the frame belongs to.
	Channel int `json:"channel"`
	// Seq is the per-channel sequence number, starting at 1.
	Seq uint64 `json:"seq"`
	// Width and Height are the picture dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Pixels holds the picture data. It may be released (nil) once the frame
	// has been submitted for inference when memory reduction is enabled.
	Pixels []byte `json:"-"`
	// CapturedAt is when the frame was produced by the source.
	CapturedAt time.Time `json:"captured_at"`
}

// Release drops the pixel buffer so it can be garbage collected early.
func (f *Frame) Release() {
	f.Pixels = nil
}

// Size returns the number of pixel bytes a frame of this geometry needs.
func (f *Frame) Size() int {
	return f.Width * f.Height
}

// BBox is an axis aligned box in frame pixel coordinates.
type BBox struct {
	X1      int     `json:"x1"`
	Y1      int     `json:"y1"`
	X2      int     `json:"x2"`
	Y2      int     `json:"y2"`
	Score   float32 `json:"score"`
	ClassID int     `json:"class_id"`
}

// Width returns the box width, never negative.
func (b BBox) Width() int {
	if b.X2 < b.X1 {
		return 0
	}

	return b.X2 - b.X1
}

// Height returns the box height, never negative.
func (b BBox) Height() int {
	if b.Y2 < b.Y1 {
		return 0
	}

	return b.Y2 - b.Y1
}

// Area returns the box area in pixels.
func (b BBox) Area() int {
	return b.Width() * b.Height()
}

// Classification is a top-1 image classification.
type Classification struct {
	ClassID int     `json:"class_id"`
	Score   float32 `json:"score"`
}

// DetectResult is the output of the primary detector for one frame.
type DetectResult struct {
	Channel        int             `json:"channel"`
	Seq            uint64          `json:"seq"`
	Boxes          []BBox          `json:"boxes,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	// Faces are the crops handed to the feature stage, if any.
	Faces     []FaceCrop `json:"-"`
	Timestamp time.Time  `json:"timestamp"`
}

// FaceCrop is a detected face cut out of its frame.
type FaceCrop struct {
	Channel int    `json:"channel"`
	Seq     uint64 `json:"seq"`
	Box     BBox   `json:"box"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Pixels  []byte `json:"-"`
}

// FeatureVector is the embedding produced for one face crop.
type FeatureVector struct {
	Channel int       `json:"channel"`
	Seq     uint64    `json:"seq"`
	Box     BBox      `json:"box"`
	Values  []float32 `json:"values"`
}
