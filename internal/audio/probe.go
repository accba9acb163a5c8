package audio

import (
	"context"
	"errors"
	"fmt"
)

// Probe verifies that microphone capture will work, without keeping the
// device. It acquires the capture device and releases it immediately; the
// held acquisition during a live call belongs to the realtime connection,
// never to the probe.
//
// Policy:
//   - unsupported platform surface -> ErrAPIUnavailable
//   - insecure context             -> ErrInsecureContext
//   - permission already denied    -> ErrPermissionDenied, without prompting
//     (a prompt that cannot appear only confuses the user)
//   - acquisition failures map to the stable categories, anything unknown
//     becomes ErrAPIUnavailable with the device message attached
func Probe(ctx context.Context, dev Device) error {
	if dev == nil || !dev.Supported() {
		return ErrAPIUnavailable
	}
	if !dev.SecureContext() {
		return ErrInsecureContext
	}

	state, err := dev.QueryPermission(ctx)
	if err == nil && state == PermissionDenied {
		return ErrPermissionDenied
	}
	// A failed permission query is not fatal: the acquisition below gives
	// the authoritative answer.

	cap, err := dev.Acquire(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied):
			return ErrPermissionDenied
		case errors.Is(err, ErrDeviceNotFound):
			return ErrDeviceNotFound
		default:
			return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
		}
	}

	// The probe never holds the device.
	_ = cap.Close()
	return nil
}
