package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNoCards            = errors.New("fleet has no cards")
	ErrNoChannels         = errors.New("fleet has no channels")
	ErrNoModels           = errors.New("card has no model configuration")
	ErrModelPathRequired  = errors.New("model path is required")
	ErrModelNameRequired  = errors.New("model name is required")
	ErrStreamURLRequired  = errors.New("camera address is required")
	ErrDuplicateDevice    = errors.New("device id is used by more than one card")
	ErrUnsupportedFormat  = errors.New("unsupported fleet file format")
	ErrUnknownModelType   = errors.New("unknown model type")
	ErrNoCardsAvailable   = errors.New("no card could be initialised")
	ErrChannelOutOfRange  = errors.New("channel index out of range")
	ErrUnsupportedScheme  = errors.New("unsupported stream scheme")
	ErrEmptyBatch         = errors.New("empty batch")
	ErrPipelineStarted    = errors.New("pipeline already started")
	ErrTimerQueueClosed   = errors.New("timer queue is closed")
	ErrInvalidFailurePlan = errors.New("card failure policy must be 'abort' or 'degrade'")
	ErrUnknownModel       = errors.New("card references an undefined model")
	ErrInvalidModel       = errors.New("invalid model configuration")
	ErrInvalidCamera      = errors.New("invalid camera configuration")
	ErrNoDetectorModel    = errors.New("card has no detector model")
)

// ConfigurationError reports an invalid or inconsistent fleet descriptor.
type ConfigurationError struct {
	Path string
	Err  error
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid fleet configuration: %s", e.Err)
	}

	return fmt.Sprintf("invalid fleet configuration %s: %s", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AllocationError reports invalid inputs to channel allocation.
type AllocationError struct {
	TotalChannels int
	CardCount     int
}

// Error returns the error message.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %d channels over %d cards", e.TotalChannels, e.CardCount)
}

// DelegateInvocationError reports a batch that could not be processed. It is
// recoverable and only affects the batch it was raised for.
type DelegateInvocationError struct {
	Delegate string
	Channel  int
	Batch    int
	Err      error
}

// Error returns the error message.
func (e *DelegateInvocationError) Error() string {
	return fmt.Sprintf("%s failed on channel %d batch of %d: %s", e.Delegate, e.Channel, e.Batch, e.Err)
}

func (e *DelegateInvocationError) Unwrap() error {
	return e.Err
}

// ResourceAcquisitionError reports an accelerator device or model that failed
// to open for a card.
type ResourceAcquisitionError struct {
	Card     int
	DeviceID int
	Model    string
	Err      error
}

// Error returns the error message.
func (e *ResourceAcquisitionError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("card %d: opening device %d: %s", e.Card, e.DeviceID, e.Err)
	}

	return fmt.Sprintf("card %d: loading model %s on device %d: %s", e.Card, e.Model, e.DeviceID, e.Err)
}

func (e *ResourceAcquisitionError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(path string, err error) error {
	return &ConfigurationError{Path: path, Err: err}
}

// IsFatal reports whether err must terminate the process: configuration and
// allocation problems are fatal, batch failures never are.
func IsFatal(err error) bool {
	var (
		cfgErr   *ConfigurationError
		allocErr *AllocationError
		resErr   *ResourceAcquisitionError
	)

	return errors.As(err, &cfgErr) || errors.As(err, &allocErr) || errors.As(err, &resErr) ||
		errors.Is(err, ErrNoCardsAvailable)
}
