package ports

import (
	"context"

	"vistara-analytics/pkg/models"
)

// ResultRepository is the port definition for the latest-result store.
type ResultRepository interface {
	// Save replaces the latest result of the result's channel.
	Save(ctx context.Context, result models.DetectResult) error
	// Get returns the latest result of channel, or nil if there is none yet.
	Get(ctx context.Context, channel int) (*models.DetectResult, error)
	// GetAll returns the latest result of every channel that has one, in
	// channel order.
	GetAll(ctx context.Context) ([]*models.DetectResult, error)
}
