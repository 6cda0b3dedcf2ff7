// Package delegate holds the inference strategies a card pipeline drives: one
// primary detector and an optional feature extractor. The set of variants is
// closed and selected once, at construction.
package delegate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vistara-analytics/pkg/accel"
	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/fleet"
	"vistara-analytics/pkg/models"
)

// Role is the capability a delegate provides to its pipeline.
type Role int

const (
	RoleDetector Role = iota
	RoleFeature
)

func (r Role) String() string {
	switch r {
	case RoleDetector:
		return "detector"
	case RoleFeature:
		return "feature"
	default:
		return "unknown"
	}
}

// ModelType selects the primary detector variant.
type ModelType int

const (
	ModelTypeFaceDetect ModelType = iota
	ModelTypeResNet50
	ModelTypeYOLOv5
)

var modelTypeNames = map[ModelType]string{
	ModelTypeFaceDetect: "face_detect",
	ModelTypeResNet50:   "resnet50",
	ModelTypeYOLOv5:     "yolov5",
}

func (t ModelType) String() string {
	if name, ok := modelTypeNames[t]; ok {
		return name
	}

	return "model_type(" + strconv.Itoa(int(t)) + ")"
}

// ParseModelType accepts either the numeric selector or the variant name.
func ParseModelType(s string) (ModelType, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	if n, err := strconv.Atoi(s); err == nil {
		t := ModelType(n)
		if _, ok := modelTypeNames[t]; ok {
			return t, nil
		}

		return 0, fmt.Errorf("%d: %w", n, verrors.ErrUnknownModelType)
	}

	for t, name := range modelTypeNames {
		if name == s {
			return t, nil
		}
	}

	return 0, fmt.Errorf("%q: %w", s, verrors.ErrUnknownModelType)
}

// WantsFeatures reports whether the variant produces face crops for a
// feature extractor.
func (t ModelType) WantsFeatures() bool {
	return t == ModelTypeFaceDetect
}

// Detector is the primary detection capability. Implementations are safe for
// concurrent use by every channel worker of a card.
type Detector interface {
	Name() string
	Role() Role
	// BatchSize is the number of frames the pipeline should accumulate per call.
	BatchSize() int
	// Detect returns one result per frame, in order. A failure is a
	// DelegateInvocationError and covers the whole batch.
	Detect(ctx context.Context, frames []*models.Frame) ([]models.DetectResult, error)
}

// FeatureExtractor is the secondary capability turning face crops into
// feature vectors. Implementations are safe for concurrent use.
type FeatureExtractor interface {
	Name() string
	Role() Role
	BatchSize() int
	Extract(ctx context.Context, crops []models.FaceCrop) ([]models.FeatureVector, error)
}

// NewDetector builds the detector variant selected by t on top of the model
// described by cfg, loading it on card if needed.
func NewDetector(t ModelType, card *accel.CardContext, cfg fleet.ModelConfig) (Detector, error) {
	inv, err := newInvoker(t.String(), card, cfg)
	if err != nil {
		return nil, err
	}

	switch t {
	case ModelTypeFaceDetect:
		return &faceDetector{invoker: inv, threshold: float32(cfg.Threshold)}, nil
	case ModelTypeResNet50:
		return &classifier{invoker: inv}, nil
	case ModelTypeYOLOv5:
		return &yoloDetector{
			invoker:      inv,
			threshold:    float32(cfg.Threshold),
			nmsThreshold: float32(cfg.NMSThreshold),
			classes:      yoloClasses,
		}, nil
	default:
		return nil, fmt.Errorf("%s: %w", t, verrors.ErrUnknownModelType)
	}
}

// NewFeatureExtractor builds the face feature extractor on top of cfg.
func NewFeatureExtractor(card *accel.CardContext, cfg fleet.ModelConfig) (FeatureExtractor, error) {
	inv, err := newInvoker("face_feature", card, cfg)
	if err != nil {
		return nil, err
	}

	return &featureExtractor{invoker: inv}, nil
}
