package fleet

import (
	"fmt"

	"github.com/docker/go-units"

	"vistara-analytics/pkg/defaults"
	verrors "vistara-analytics/pkg/errors"
)

// Validate applies defaults and checks the fleet invariants.
func (c *Config) Validate() error {
	if len(c.Cards) == 0 {
		return verrors.ErrNoCards
	}

	if len(c.Models) == 0 {
		return verrors.ErrNoModels
	}

	for i := range c.Models {
		if err := c.Models[i].validate(); err != nil {
			return err
		}
	}

	c.models = make(map[string]int, len(c.Models))
	for i, m := range c.Models {
		if _, ok := c.models[m.Name]; ok {
			return fmt.Errorf("model %q is defined twice: %w", m.Name, verrors.ErrInvalidModel)
		}

		c.models[m.Name] = i
	}

	devices := make(map[int]int, len(c.Cards))
	for i := range c.Cards {
		card := &c.Cards[i]

		if prev, ok := devices[card.DevID]; ok {
			return fmt.Errorf("cards %d and %d use device %d: %w", prev, i, card.DevID, verrors.ErrDuplicateDevice)
		}

		devices[card.DevID] = i

		if err := c.validateCard(i); err != nil {
			return err
		}
	}

	if c.TotalChannelCount() == 0 {
		return verrors.ErrNoChannels
	}

	return nil
}

func (c *Config) validateCard(i int) error {
	card := &c.Cards[i]

	if len(card.ModelNames) == 0 {
		return fmt.Errorf("card %d: %w", i, verrors.ErrNoModels)
	}

	for _, name := range card.ModelNames {
		if _, ok := c.models[name]; !ok {
			return fmt.Errorf("card %d model %q: %w", i, name, verrors.ErrUnknownModel)
		}
	}

	if _, err := c.DetectorModel(i); err != nil {
		return err
	}

	for j := range card.Cameras {
		cam := &card.Cameras[j]
		if cam.Address == "" {
			return fmt.Errorf("card %d camera %d: %w", i, j, verrors.ErrStreamURLRequired)
		}

		if cam.ChanNum < 0 {
			return fmt.Errorf("card %d camera %d: chan_num %d: %w", i, j, cam.ChanNum, verrors.ErrInvalidCamera)
		}

		if cam.ChanNum == 0 {
			cam.ChanNum = 1
		}
	}

	if card.MemoryLimit != "" {
		if _, err := units.RAMInBytes(card.MemoryLimit); err != nil {
			return fmt.Errorf("card %d memory_limit %q: %w", i, card.MemoryLimit, err)
		}
	}

	return nil
}

func (m *ModelConfig) validate() error {
	if m.Name == "" {
		return verrors.ErrModelNameRequired
	}

	if m.Path == "" {
		return fmt.Errorf("model %q: %w", m.Name, verrors.ErrModelPathRequired)
	}

	switch m.Role {
	case "":
		m.Role = RoleDetector
	case RoleDetector, RoleFeature:
	default:
		return fmt.Errorf("model %q role %q: %w", m.Name, m.Role, verrors.ErrInvalidModel)
	}

	if m.SkipFrameNum < 0 {
		return fmt.Errorf("model %q skip_frame_num %d: %w", m.Name, m.SkipFrameNum, verrors.ErrInvalidModel)
	}

	if m.BatchSize < 0 {
		return fmt.Errorf("model %q batch_size %d: %w", m.Name, m.BatchSize, verrors.ErrInvalidModel)
	}

	if m.BatchSize == 0 {
		m.BatchSize = defaults.BatchSize
	}

	if m.Threshold < 0 || m.Threshold > 1 || m.NMSThreshold < 0 || m.NMSThreshold > 1 {
		return fmt.Errorf("model %q thresholds must be within [0,1]: %w", m.Name, verrors.ErrInvalidModel)
	}

	if m.Threshold == 0 {
		m.Threshold = defaults.Threshold
	}

	if m.NMSThreshold == 0 {
		m.NMSThreshold = defaults.NMSThreshold
	}

	return nil
}
