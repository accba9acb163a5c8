package websession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wire frames exchanged with the realtime endpoint. Only the event frames
// matter to the state machine; audio payloads travel as binary messages and
// are ignored here.
type startFrame struct {
	Event            string  `json:"event"`
	AccessToken      string  `json:"access_token"`
	CaptureDeviceID  string  `json:"capture_device_id"`
	EnableVAD        bool    `json:"enable_vad"`
	VADThreshold     float64 `json:"vad_threshold,omitempty"`
	VADAutoThreshold bool    `json:"vad_auto_threshold,omitempty"`
	VADThresholdBias float64 `json:"vad_threshold_bias,omitempty"`
}

type eventFrame struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
}

// RealtimeTransport dials the provider's audio websocket.
type RealtimeTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewRealtimeTransport(url string) *RealtimeTransport {
	return &RealtimeTransport{
		URL: url,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *RealtimeTransport) Dial(ctx context.Context) (Conn, error) {
	ws, _, err := t.Dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}
	c := &wsConn{
		ws:     ws,
		events: make(chan Event, 16),
	}
	return c, nil
}

// wsConn is a single realtime connection. Writes are serialized with
// writeMu, which also guards the started/stopped flags so Start and Stop
// can race from different goroutines. The events channel has exactly one
// closer: the read loop once it is launched, Stop before that.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	events    chan Event
	closeOnce sync.Once

	// guarded by writeMu
	started bool
	stopped bool
}

func (c *wsConn) Start(ctx context.Context, opts StartOptions) error {
	frame := startFrame{
		Event:           "start",
		AccessToken:     opts.AccessToken,
		CaptureDeviceID: opts.CaptureDeviceID,
		EnableVAD:       opts.EnableVAD,
	}
	if opts.EnableVAD {
		frame.VADThreshold = opts.VAD.Threshold
		frame.VADAutoThreshold = opts.VAD.AutoThreshold
		frame.VADThresholdBias = opts.VAD.AutoThresholdBias
	}

	c.writeMu.Lock()
	if c.stopped {
		c.writeMu.Unlock()
		return fmt.Errorf("connection already closed")
	}
	if c.started {
		c.writeMu.Unlock()
		return fmt.Errorf("connection already started")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	if err := c.ws.WriteJSON(frame); err != nil {
		c.writeMu.Unlock()
		c.Stop()
		return fmt.Errorf("send start frame: %w", err)
	}
	_ = c.ws.SetWriteDeadline(time.Time{})

	// Launch the read loop while still holding writeMu: from here on it
	// owns closing the events channel, and a concurrent Stop must observe
	// started=true.
	c.started = true
	go c.readLoop()
	c.writeMu.Unlock()
	return nil
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Stop sends a best-effort close message and tears the socket down. Safe to
// call concurrently and more than once, including while Start is in flight.
func (c *wsConn) Stop() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.stopped = true
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second),
		)
		_ = c.ws.Close()
		if !c.started {
			// No read loop will ever run; close the channel here so a
			// consumer ranging over Events does not hang.
			close(c.events)
		}
		c.writeMu.Unlock()
	})
}

func (c *wsConn) readLoop() {
	defer close(c.events)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue // audio payload
		}
		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch kind := EventKind(frame.Event); kind {
		case EventConnecting, EventStarted, EventEnded, EventError:
			c.events <- Event{Kind: kind, Message: frame.Message}
			if kind == EventEnded || kind == EventError {
				return
			}
		}
	}
}
