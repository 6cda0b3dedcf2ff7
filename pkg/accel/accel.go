// Package accel is the boundary to the accelerator SDK. The orchestrator only
// needs to open a device, load a model on it and invoke the model on a batch.
package accel

import (
	"context"
)

// DeviceInfo describes an opened accelerator device.
type DeviceInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Memory int64  `json:"memory"`
}

// Handle is an opened accelerator device.
type Handle interface {
	Info() DeviceInfo
	Close() error
}

// Input is one item of an inference batch.
type Input struct {
	Width  int
	Height int
	Data   []byte
}

// Output is the raw, model specific result for one batch item.
type Output []float32

// Model is a network loaded on a device.
type Model interface {
	// Path returns the artifact the model was loaded from.
	Path() string
	// MaxBatch is the largest batch Invoke accepts.
	MaxBatch() int
	// Concurrency is how many Invoke calls the device can run at once.
	Concurrency() int
	// Invoke runs the network on a batch. A failure only concerns this batch.
	Invoke(ctx context.Context, batch []Input) ([]Output, error)
	Close() error
}

// SDK opens devices and loads models.
type SDK interface {
	OpenDevice(id int) (Handle, error)
	LoadModel(h Handle, path string) (Model, error)
}
