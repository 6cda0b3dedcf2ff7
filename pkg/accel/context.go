package accel

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	verrors "vistara-analytics/pkg/errors"
)

// ModelState is the lifecycle state of a CardContext.
type ModelState int

const (
	ModelStateStopped ModelState = iota
	ModelStateRunning
	ModelStateClosed
)

func (s ModelState) String() string {
	switch s {
	case ModelStateStopped:
		return "stopped"
	case ModelStateRunning:
		return "running"
	case ModelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CardContext owns one device handle and the models loaded on it. It belongs
// to exactly one card pipeline and is never shared across cards.
type CardContext struct {
	card  int
	devID int
	sdk   SDK

	mu     sync.Mutex
	handle Handle
	models map[string]Model
	gates  map[string]*semaphore.Weighted
	state  ModelState
}

// OpenCard opens device devID for card and loads every model path on it.
// Failures are reported as ResourceAcquisitionError and leave nothing open.
func OpenCard(sdk SDK, card, devID int, modelPaths ...string) (*CardContext, error) {
	handle, err := sdk.OpenDevice(devID)
	if err != nil {
		return nil, &verrors.ResourceAcquisitionError{Card: card, DeviceID: devID, Err: err}
	}

	c := &CardContext{
		card:   card,
		devID:  devID,
		sdk:    sdk,
		handle: handle,
		models: make(map[string]Model),
		gates:  make(map[string]*semaphore.Weighted),
		state:  ModelStateRunning,
	}

	for _, path := range modelPaths {
		if _, err := c.Model(path); err != nil {
			_ = c.Close()

			return nil, err
		}
	}

	return c, nil
}

// Card returns the card index this context belongs to.
func (c *CardContext) Card() int {
	return c.card
}

// DeviceID returns the accelerator device id.
func (c *CardContext) DeviceID() int {
	return c.devID
}

// Info returns the device description.
func (c *CardContext) Info() DeviceInfo {
	return c.handle.Info()
}

// State returns the lifecycle state.
func (c *CardContext) State() ModelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Model returns the model loaded from path, loading it on first use.
func (c *CardContext) Model(path string) (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ModelStateClosed {
		return nil, fmt.Errorf("card %d: context is closed", c.card)
	}

	if m, ok := c.models[path]; ok {
		return m, nil
	}

	m, err := c.sdk.LoadModel(c.handle, path)
	if err != nil {
		return nil, &verrors.ResourceAcquisitionError{Card: c.card, DeviceID: c.devID, Model: path, Err: err}
	}

	c.models[path] = m
	c.gates[path] = semaphore.NewWeighted(int64(max(1, m.Concurrency())))

	return m, nil
}

// Gate returns the semaphore bounding concurrent invocations of the model
// loaded from path, weighted by the model's concurrency. Every caller of that
// model shares the same gate. It returns nil for a model that is not loaded.
func (c *CardContext) Gate(path string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gates[path]
}

// Close releases every model and then the device. It is idempotent.
func (c *CardContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ModelStateClosed {
		return nil
	}

	c.state = ModelStateClosed

	var errs []error
	for path, m := range c.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing model %s: %w", path, err))
		}
	}

	c.models = nil
	c.gates = nil

	if err := c.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing device %d: %w", c.devID, err))
	}

	return errors.Join(errs...)
}
