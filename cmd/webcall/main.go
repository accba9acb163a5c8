package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"voicedesk/internal/audio"
	"voicedesk/internal/telephony"
	"voicedesk/internal/websession"
	"voicedesk/pkg/logger"
)

// webcall drives one live web-call session from a terminal: probe the
// microphone, register the call, attach audio over the realtime socket and
// stream state transitions until the call ends. Ctrl-C hangs up cleanly.
func main() {
	var (
		agentID  = flag.String("agent", "", "voice agent id to call (required)")
		baseURL  = flag.String("base-url", envOr("RETELL_BASE_URL", "https://api.retellai.com"), "provider API base URL")
		rtURL    = flag.String("realtime-url", envOr("RETELL_REALTIME_URL", "wss://api.retellai.com/audio-websocket"), "provider realtime websocket URL")
		recorder = flag.String("recorder", "", "capture binary override (arecord, sox, ffmpeg)")
	)
	flag.Parse()

	log := logger.New("local")
	slog.SetDefault(log)

	apiKey := strings.TrimSpace(os.Getenv("RETELL_API_KEY"))
	if apiKey == "" {
		log.Error("RETELL_API_KEY is required")
		os.Exit(2)
	}
	if strings.TrimSpace(*agentID) == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := telephony.NewRetellProvider(*baseURL, apiKey)
	transport := websession.NewRealtimeTransport(*rtURL)
	device := &audio.HostDevice{Recorder: *recorder}

	mgr := websession.NewManager(provider, transport, device, log)

	go func() {
		for tr := range mgr.Transitions() {
			if tr.Reason != "" {
				log.Info("session state", "state", tr.State, "reason", tr.Reason)
				continue
			}
			log.Info("session state", "state", tr.State)
		}
	}()

	if err := mgr.RequestMicrophoneAccess(ctx); err != nil {
		log.Error("microphone probe failed", "err", err)
		os.Exit(1)
	}

	session, err := mgr.CreateSession(ctx, *agentID)
	if err != nil {
		log.Error("session registration failed", "err", err)
		os.Exit(1)
	}
	log.Info("session registered", "call_id", session.CallID, "agent_id", session.AgentID)

	// Hang up on Ctrl-C; StartSession below returns once the session is
	// terminal either way.
	go func() {
		<-ctx.Done()
		mgr.EndSession()
	}()

	if err := mgr.StartSession(ctx, session); err != nil {
		log.Error("session failed", "err", err)
		os.Exit(1)
	}
	log.Info("session ended", "call_id", session.CallID)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
