package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidIndex is returned when a set_device payload is not a decimal integer.
	ErrInvalidIndex = errors.New("bridge: device index is not an integer")

	// ErrPublishDevices is returned when the device list could not be published.
	ErrPublishDevices = errors.New("bridge: publishing devices failed")
)
