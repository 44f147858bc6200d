package wcn3990

import "errors"

var (
	// ErrResourceExhausted means no rx buffer could be allocated. The refill
	// pass stops and is not retried.
	ErrResourceExhausted = errors.New("rx buffer allocation failed")
	// ErrDeviceIO means a buffer could not be mapped or the engine refused it.
	// The refill is retried after the retry delay.
	ErrDeviceIO = errors.New("device i/o failure")
	// ErrNoCapacity means the ring had no free slot.
	ErrNoCapacity = errors.New("ring full")
	// ErrConfigInvalid is returned when platform resources or the CE table
	// cannot support the device.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrInternal is returned on operations against a pipe in a state that
	// should not be reachable.
	ErrInternal = errors.New("internal pipe state error")
)
