// Package render holds the presentation side of a run: the latest result per
// channel and stats snapshots written for external viewers.
package render

import (
	"context"
	"sort"
	"sync"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/ports"
)

// LatestStore keeps the most recent detector result of every channel. It is a
// FrameObserver and a ResultRepository.
type LatestStore struct {
	mu       sync.RWMutex
	channels int
	latest   map[int]models.DetectResult
}

// NewLatestStore creates a store for channels global channels.
func NewLatestStore(channels int) *LatestStore {
	return &LatestStore{channels: channels, latest: make(map[int]models.DetectResult)}
}

// ObserveResult implements ports.FrameObserver.
func (s *LatestStore) ObserveResult(result models.DetectResult) {
	_ = s.Save(context.Background(), result)
}

// Save implements ports.ResultRepository.
func (s *LatestStore) Save(_ context.Context, result models.DetectResult) error {
	if result.Channel < 0 || result.Channel >= s.channels {
		return verrors.ErrChannelOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.latest[result.Channel]; ok && prev.Seq > result.Seq {
		return nil
	}

	s.latest[result.Channel] = result

	return nil
}

// Get implements ports.ResultRepository.
func (s *LatestStore) Get(_ context.Context, channel int) (*models.DetectResult, error) {
	if channel < 0 || channel >= s.channels {
		return nil, verrors.ErrChannelOutOfRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.latest[channel]
	if !ok {
		return nil, nil
	}

	return &r, nil
}

// GetAll implements ports.ResultRepository.
func (s *LatestStore) GetAll(_ context.Context) ([]*models.DetectResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.DetectResult, 0, len(s.latest))
	for _, r := range s.latest {
		all = append(all, &r)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Channel < all[j].Channel })

	return all, nil
}

var (
	_ ports.FrameObserver    = (*LatestStore)(nil)
	_ ports.ResultRepository = (*LatestStore)(nil)
)
