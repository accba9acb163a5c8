package audio

import (
	"context"
	"errors"
)

// Capability errors. These are the stable categories surfaced to users; the
// underlying device message is attached via wrapping where it exists.
var (
	ErrPermissionDenied = errors.New("audio: microphone access denied")
	ErrDeviceNotFound   = errors.New("audio: no microphone found")
	ErrInsecureContext  = errors.New("audio: microphone access requires a secure context")
	ErrAPIUnavailable   = errors.New("audio: media device API not available")
)

// PermissionState mirrors the platform permission query result.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// Capture is a held audio input device. Close releases the device; it must
// be safe to call exactly once per acquisition.
type Capture interface {
	Close() error
}

// Device abstracts the platform audio-capture surface.
//
// Implementations signal denial and missing hardware by returning errors
// that wrap ErrPermissionDenied / ErrDeviceNotFound from Acquire; anything
// else is treated as an unavailable API.
type Device interface {
	// Supported reports whether a capture surface exists at all.
	Supported() bool

	// SecureContext reports whether capture is allowed from this context.
	SecureContext() bool

	// QueryPermission returns the current capability state without prompting.
	QueryPermission(ctx context.Context) (PermissionState, error)

	// Acquire opens the capture device. The caller owns the returned handle.
	Acquire(ctx context.Context) (Capture, error)
}
