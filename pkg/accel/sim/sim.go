// Package sim is a software stand-in for the accelerator SDK. It produces
// deterministic pseudo-random outputs so pipelines can run without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/docker/go-units"
	"github.com/spf13/afero"

	"vistara-analytics/pkg/accel"
)

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrModelNotFound     = errors.New("model artifact not found")
	ErrInjectedFailure   = errors.New("injected accelerator failure")
	ErrBatchTooLarge     = errors.New("batch exceeds model capacity")
)

// Config tunes the simulator.
type Config struct {
	// Latency is added to every Invoke call.
	Latency time.Duration
	// FailureRate is the probability in [0,1] that an Invoke call fails.
	FailureRate float64
	// FailDevices lists device ids that cannot be opened.
	FailDevices []int
	// DeviceMemory is reported by opened devices, e.g. "8GiB".
	DeviceMemory string
	// MaxBatch is the largest batch a model accepts.
	MaxBatch int
	// OutputSize is the number of floats produced per batch item.
	OutputSize int
	// Fs, when set, is used to check that model artifacts exist.
	Fs afero.Fs
	// Seed makes the failure injection reproducible.
	Seed uint64
}

// SDK implements accel.SDK in software.
type SDK struct {
	cfg    Config
	clock  quartz.Clock
	memory int64

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a simulator.
func New(cfg Config, clock quartz.Clock) (*SDK, error) {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 16
	}

	if cfg.OutputSize <= 0 {
		cfg.OutputSize = 30
	}

	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate %v must be within [0,1]", cfg.FailureRate)
	}

	var memory int64 = 8 << 30
	if cfg.DeviceMemory != "" {
		m, err := units.RAMInBytes(cfg.DeviceMemory)
		if err != nil {
			return nil, fmt.Errorf("parsing device memory %q: %w", cfg.DeviceMemory, err)
		}

		memory = m
	}

	return &SDK{
		cfg:    cfg,
		clock:  clock,
		memory: memory,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// OpenDevice implements accel.SDK.
func (s *SDK) OpenDevice(id int) (accel.Handle, error) {
	for _, failing := range s.cfg.FailDevices {
		if failing == id {
			return nil, fmt.Errorf("device %d: %w", id, ErrDeviceUnavailable)
		}
	}

	return &handle{info: accel.DeviceInfo{
		ID:     id,
		Name:   fmt.Sprintf("sim%d", id),
		Memory: s.memory,
	}}, nil
}

// LoadModel implements accel.SDK.
func (s *SDK) LoadModel(h accel.Handle, path string) (accel.Model, error) {
	if path == "" {
		return nil, ErrModelNotFound
	}

	if s.cfg.Fs != nil {
		if _, err := s.cfg.Fs.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, ErrModelNotFound)
		}
	}

	return &model{sdk: s, device: h.Info().ID, path: path}, nil
}

func (s *SDK) shouldFail() bool {
	if s.cfg.FailureRate == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rng.Float64() < s.cfg.FailureRate
}

type handle struct {
	info accel.DeviceInfo
}

func (h *handle) Info() accel.DeviceInfo { return h.info }
func (h *handle) Close() error           { return nil }

type model struct {
	sdk    *SDK
	device int
	path   string
}

func (m *model) Path() string     { return m.path }
func (m *model) MaxBatch() int    { return m.sdk.cfg.MaxBatch }
func (m *model) Concurrency() int { return 1 }
func (m *model) Close() error     { return nil }

// Invoke waits for the configured latency and returns outputs derived from a
// hash of each input, so identical frames give identical results.
func (m *model) Invoke(ctx context.Context, batch []accel.Input) ([]accel.Output, error) {
	if len(batch) > m.sdk.cfg.MaxBatch {
		return nil, fmt.Errorf("%d > %d: %w", len(batch), m.sdk.cfg.MaxBatch, ErrBatchTooLarge)
	}

	if m.sdk.cfg.Latency > 0 {
		t := m.sdk.clock.NewTimer(m.sdk.cfg.Latency, "sim", "invoke")
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()

			return nil, ctx.Err()
		}
	}

	if m.sdk.shouldFail() {
		return nil, ErrInjectedFailure
	}

	outputs := make([]accel.Output, len(batch))
	for i, in := range batch {
		outputs[i] = m.output(in)
	}

	return outputs, nil
}

func (m *model) output(in accel.Input) accel.Output {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.path))
	_, _ = h.Write(in.Data)
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, uint64(in.Width)<<32|uint64(in.Height)))

	out := make(accel.Output, m.sdk.cfg.OutputSize)
	for i := range out {
		out[i] = rng.Float32()
	}

	return out
}
