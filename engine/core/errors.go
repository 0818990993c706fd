package core

import (
	"errors"
)

var (
	// Graphics domain.
	ErrResourceCreationFailed     = errors.New("resource creation failed")
	ErrDescriptorAllocationFailed = errors.New("descriptor allocation failed")
	ErrResourceRegistrationFailed = errors.New("resource registration failed")

	// Renderer domain.
	ErrSurfaceExpired = errors.New("surface expired")

	// Fatal device condition. Fails the frame; the host must recreate the
	// device before the next frame starts.
	ErrDeviceLost = errors.New("device lost")

	ErrUnknown = errors.New("unknown")
)

// IsFatal reports whether err must cancel the remainder of the frame
// instead of being absorbed at a phase boundary.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrSurfaceExpired)
}
