package scanner

import "errors"

// Domain errors for the scanner package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, scanner.ErrOutOfRange) {
//	    // reject the selection
//	}
var (
	// ErrOutOfRange is returned when a device index is outside the registry.
	ErrOutOfRange = errors.New("scanner: device index out of range")

	// ErrEnumerationFailed is returned when the device list could not be produced.
	ErrEnumerationFailed = errors.New("scanner: enumeration failed")
)
