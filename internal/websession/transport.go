package websession

import "context"

// StartOptions configure the realtime session start call.
type StartOptions struct {
	// AccessToken is the single-use secret that joins the call.
	AccessToken string

	// CaptureDeviceID selects the audio input; "default" when empty.
	CaptureDeviceID string

	// Voice activity detection tuning.
	EnableVAD bool
	VAD       VADOptions
}

type VADOptions struct {
	Threshold         float64
	AutoThreshold     bool
	AutoThresholdBias float64
}

func (o StartOptions) withDefaults() StartOptions {
	out := o
	if out.CaptureDeviceID == "" {
		out.CaptureDeviceID = "default"
	}
	return out
}

// Conn is one live realtime connection. The manager owns at most one Conn at
// a time, replaces it (never mutates it in place), and tears the previous
// one down before attaching a new one.
type Conn interface {
	// Start begins the session with the given options. It returns once the
	// session start has been submitted; progress arrives via Events.
	Start(ctx context.Context, opts StartOptions) error

	// Events delivers provider signals in transport order. The channel is
	// closed when the connection is gone, whether or not a terminal event
	// was delivered first.
	Events() <-chan Event

	// Stop tears the connection down. Fire-and-forget: it does not wait for
	// the provider to acknowledge.
	Stop()
}

// Transport produces realtime connections.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}
