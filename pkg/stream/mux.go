// Package stream routes stream URLs to the source provider for their scheme.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/ports"
)

// Mux is a StreamService dispatching on the URL scheme.
type Mux struct {
	mu       sync.RWMutex
	services map[string]ports.StreamService
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{services: make(map[string]ports.StreamService)}
}

// Register binds scheme to svc, replacing any previous binding.
func (m *Mux) Register(scheme string, svc ports.StreamService) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services[scheme] = svc
}

// Schemes returns the registered schemes in sorted order.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	schemes := make([]string, 0, len(m.services))
	for s := range m.services {
		schemes = append(schemes, s)
	}

	sort.Strings(schemes)

	return schemes
}

// Open implements ports.StreamService.
func (m *Mux) Open(ctx context.Context, rawURL string, channel int) (ports.FrameSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &PermanentError{URL: rawURL, Err: err}
	}

	m.mu.RLock()
	svc, ok := m.services[u.Scheme]
	m.mu.RUnlock()

	if !ok {
		return nil, &PermanentError{URL: rawURL, Err: fmt.Errorf("%q: %w", u.Scheme, verrors.ErrUnsupportedScheme)}
	}

	return svc.Open(ctx, rawURL, channel)
}

// PermanentError marks a stream failure that retrying cannot fix.
type PermanentError struct {
	URL string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("stream %s: %s", e.URL, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err should stop a channel instead of being retried.
func IsPermanent(err error) bool {
	var perm *PermanentError

	return errors.As(err, &perm)
}
