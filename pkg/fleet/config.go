// Package fleet describes the cards, cameras and models a run is made of.
package fleet

import (
	"fmt"
	"sort"

	"github.com/docker/go-units"

	verrors "vistara-analytics/pkg/errors"
)

const (
	RoleDetector = "detector"
	RoleFeature  = "feature"
)

// Camera is one stream source. ChanNum channels are opened on the same address.
type Camera struct {
	Address string `json:"address" yaml:"address" toml:"address"`
	ChanNum int    `json:"chan_num,omitempty" yaml:"chan_num,omitempty" toml:"chan_num,omitempty"`
}

// Card is one accelerator card and the streams and models bound to it.
type Card struct {
	DevID       int      `json:"dev_id" yaml:"dev_id" toml:"dev_id"`
	Cameras     []Camera `json:"cameras" yaml:"cameras" toml:"cameras"`
	ModelNames  []string `json:"model_names" yaml:"model_names" toml:"model_names"`
	MemoryLimit string   `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty" toml:"memory_limit,omitempty"`
}

// ModelConfig is a named model artifact and its tuning.
type ModelConfig struct {
	Name         string  `json:"name" yaml:"name" toml:"name"`
	Path         string  `json:"path" yaml:"path" toml:"path"`
	SkipFrameNum int     `json:"skip_frame_num,omitempty" yaml:"skip_frame_num,omitempty" toml:"skip_frame_num,omitempty"`
	OutputPath   string  `json:"output_path,omitempty" yaml:"output_path,omitempty" toml:"output_path,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty" yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	Role         string  `json:"role,omitempty" yaml:"role,omitempty" toml:"role,omitempty"`
	Threshold    float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" toml:"threshold,omitempty"`
	NMSThreshold float64 `json:"nms_threshold,omitempty" yaml:"nms_threshold,omitempty" toml:"nms_threshold,omitempty"`
}

// Config is a validated fleet descriptor. Build it with Load or Parse, or
// call Validate on a literal before using the accessors.
type Config struct {
	Cards  []Card        `json:"cards" yaml:"cards" toml:"cards"`
	Models []ModelConfig `json:"models" yaml:"models" toml:"models"`

	models map[string]int
}

// CardCount returns the number of cards.
func (c *Config) CardCount() int {
	return len(c.Cards)
}

// TotalChannelCount returns the number of channels across the fleet once
// every camera is expanded by its chan_num.
func (c *Config) TotalChannelCount() int {
	total := 0
	for i := range c.Cards {
		total += len(c.StreamURLs(i))
	}

	return total
}

// DeviceID returns the accelerator device id of card i.
func (c *Config) DeviceID(card int) int {
	return c.Cards[card].DevID
}

// StreamURLs returns the expanded stream URLs of card i.
func (c *Config) StreamURLs(card int) []string {
	var urls []string
	for _, cam := range c.Cards[card].Cameras {
		n := cam.ChanNum
		if n <= 0 {
			n = 1
		}

		for j := 0; j < n; j++ {
			urls = append(urls, cam.Address)
		}
	}

	return urls
}

// AllStreamURLs returns every expanded URL in card order.
func (c *Config) AllStreamURLs() []string {
	var urls []string
	for i := range c.Cards {
		urls = append(urls, c.StreamURLs(i)...)
	}

	return urls
}

// ModelConfig returns the named model.
func (c *Config) ModelConfig(name string) (ModelConfig, bool) {
	if c.models == nil {
		c.index()
	}

	i, ok := c.models[name]
	if !ok {
		return ModelConfig{}, false
	}

	return c.Models[i], true
}

// DistinctModelNames returns the sorted set of model names referenced by the
// cards with device id devID.
func (c *Config) DistinctModelNames(devID int) []string {
	seen := make(map[string]struct{})
	for _, card := range c.Cards {
		if card.DevID != devID {
			continue
		}

		for _, name := range card.ModelNames {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// DetectorModel returns the first detector model, in name order, bound to card i.
func (c *Config) DetectorModel(card int) (ModelConfig, error) {
	for _, name := range c.DistinctModelNames(c.DeviceID(card)) {
		m, ok := c.ModelConfig(name)
		if ok && m.Role == RoleDetector {
			return m, nil
		}
	}

	return ModelConfig{}, fmt.Errorf("card %d: %w", card, verrors.ErrNoDetectorModel)
}

// FeatureModel returns the first feature model bound to card i, if any.
func (c *Config) FeatureModel(card int) (ModelConfig, bool) {
	for _, name := range c.DistinctModelNames(c.DeviceID(card)) {
		m, ok := c.ModelConfig(name)
		if ok && m.Role == RoleFeature {
			return m, true
		}
	}

	return ModelConfig{}, false
}

// ModelPaths returns the artifact paths of every model bound to card i.
func (c *Config) ModelPaths(card int) []string {
	var paths []string
	for _, name := range c.DistinctModelNames(c.DeviceID(card)) {
		if m, ok := c.ModelConfig(name); ok {
			paths = append(paths, m.Path)
		}
	}

	return paths
}

// MemoryLimit returns the memory budget of card i in bytes, 0 when unset.
func (c *Config) MemoryLimit(card int) (int64, error) {
	limit := c.Cards[card].MemoryLimit
	if limit == "" {
		return 0, nil
	}

	return units.RAMInBytes(limit)
}

func (c *Config) index() {
	c.models = make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		c.models[m.Name] = i
	}
}
