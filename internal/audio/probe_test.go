package audio

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeCapture struct {
	closed int
}

func (c *fakeCapture) Close() error {
	c.closed++
	return nil
}

type fakeDevice struct {
	supported bool
	secure    bool
	state     PermissionState
	stateErr  error

	acquireErr error
	cap        *fakeCapture
	acquires   int
}

func (d *fakeDevice) Supported() bool     { return d.supported }
func (d *fakeDevice) SecureContext() bool { return d.secure }

func (d *fakeDevice) QueryPermission(ctx context.Context) (PermissionState, error) {
	return d.state, d.stateErr
}

func (d *fakeDevice) Acquire(ctx context.Context) (Capture, error) {
	d.acquires++
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	if d.cap == nil {
		d.cap = &fakeCapture{}
	}
	return d.cap, nil
}

func grantedDevice() *fakeDevice {
	return &fakeDevice{supported: true, secure: true, state: PermissionGranted}
}

func TestProbe_ReleasesDeviceOnSuccess(t *testing.T) {
	dev := grantedDevice()
	if err := Probe(context.Background(), dev); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if dev.acquires != 1 {
		t.Fatalf("expected one acquisition, got %d", dev.acquires)
	}
	if dev.cap.closed != 1 {
		t.Fatalf("expected probe to release the device, closed=%d", dev.cap.closed)
	}
}

func TestProbe_DeniedStateSkipsPrompt(t *testing.T) {
	dev := grantedDevice()
	dev.state = PermissionDenied

	err := Probe(context.Background(), dev)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if dev.acquires != 0 {
		t.Fatalf("denied state must not prompt, acquires=%d", dev.acquires)
	}
}

func TestProbe_UnsupportedAndInsecure(t *testing.T) {
	if err := Probe(context.Background(), nil); !errors.Is(err, ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable for nil device, got %v", err)
	}
	if err := Probe(context.Background(), &fakeDevice{supported: false}); !errors.Is(err, ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
	if err := Probe(context.Background(), &fakeDevice{supported: true, secure: false}); !errors.Is(err, ErrInsecureContext) {
		t.Fatalf("expected ErrInsecureContext, got %v", err)
	}
}

func TestProbe_MapsAcquireFailures(t *testing.T) {
	cases := []struct {
		name    string
		acquire error
		want    error
	}{
		{"denied", fmt.Errorf("wrapped: %w", ErrPermissionDenied), ErrPermissionDenied},
		{"not found", fmt.Errorf("wrapped: %w", ErrDeviceNotFound), ErrDeviceNotFound},
		{"unknown", errors.New("device busy"), ErrAPIUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := grantedDevice()
			dev.acquireErr = tc.acquire
			err := Probe(context.Background(), dev)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestProbe_QueryFailureFallsBackToAcquire(t *testing.T) {
	dev := grantedDevice()
	dev.stateErr = errors.New("permissions API not implemented")

	if err := Probe(context.Background(), dev); err != nil {
		t.Fatalf("probe should fall back to acquisition, got %v", err)
	}
	if dev.acquires != 1 {
		t.Fatalf("expected acquisition fallback, acquires=%d", dev.acquires)
	}
}
