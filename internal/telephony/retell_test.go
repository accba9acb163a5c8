package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*RetellProvider, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewRetellProvider(srv.URL, "test-key"), &hits
}

func TestCreateWebCall_Success(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/create-web-call" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"call_id":"call_1","access_token":"tok_1","agent_id":"agent_123"}`))
	})

	wc, err := p.CreateWebCall(context.Background(), WebCallRequest{AgentID: "agent_123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wc.CallID != "call_1" || wc.AccessToken != "tok_1" {
		t.Fatalf("unexpected web call: %+v", wc)
	}
}

func TestCreateWebCall_EmptyAgentSkipsNetwork(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := p.CreateWebCall(context.Background(), WebCallRequest{AgentID: "  "})
	if !errors.Is(err, ErrInvalidAgent) {
		t.Fatalf("expected ErrInvalidAgent, got %v", err)
	}
	if *hits != 0 {
		t.Fatalf("expected no network call, got %d", *hits)
	}
}

func TestCreateWebCall_MissingTokenIsUpstreamError(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"call_id":"call_1"}`))
	})

	_, err := p.CreateWebCall(context.Background(), WebCallRequest{AgentID: "agent_123"})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestCreateWebCall_Non2xxCarriesStatusAndBody(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("quota exhausted"))
	})

	_, err := p.CreateWebCall(context.Background(), WebCallRequest{AgentID: "agent_123"})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusPaymentRequired || !strings.Contains(ue.Body, "quota exhausted") {
		t.Fatalf("unexpected upstream error: %+v", ue)
	}
}

func TestListAgents_DecodesDirectory(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list-agents" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"agent_id":"agent_1","agent_name":"Support"},{"agent_id":"agent_2"}]`))
	})

	got, err := p.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].AgentName != "Support" || got[1].AgentID != "agent_2" {
		t.Fatalf("unexpected agents: %+v", got)
	}
}

func TestCreateBatchCall_ValidatesNumbersBeforeNetwork(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := p.CreateBatchCall(context.Background(), BatchCallRequest{
		FromNumber: "not-a-number",
		Tasks:      []BatchCallTask{{ToNumber: "+14157774444"}},
	})
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}

	_, err = p.CreateBatchCall(context.Background(), BatchCallRequest{
		FromNumber: "+14157774444",
	})
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber for empty tasks, got %v", err)
	}

	if *hits != 0 {
		t.Fatalf("expected no network calls, got %d", *hits)
	}
}

func TestCreateBatchCall_Success(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batch_call_id":"batch_9"}`))
	})

	res, err := p.CreateBatchCall(context.Background(), BatchCallRequest{
		FromNumber: "+14157774444",
		Tasks:      []BatchCallTask{{ToNumber: "+14157774445"}, {ToNumber: "+14157774446"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BatchCallID != "batch_9" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProviderCall_DurationSeconds(t *testing.T) {
	c := ProviderCall{StartTimestampMS: 1_000, EndTimestampMS: 61_000}
	if got := c.DurationSeconds(); got != 60 {
		t.Fatalf("expected 60s, got %d", got)
	}
	c = ProviderCall{StartTimestampMS: 5_000, EndTimestampMS: 0}
	if got := c.DurationSeconds(); got != 0 {
		t.Fatalf("expected 0s for missing end, got %d", got)
	}
}
