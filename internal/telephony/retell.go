package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// RetellProvider is the Retell adapter for Provider.
//
// It is a plain HTTP client: single-shot requests, no retries. Failures are
// mapped to UpstreamError at this boundary so callers never see raw
// transport errors with provider internals attached.
type RetellProvider struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

const defaultHTTPTimeout = 15 * time.Second

func NewRetellProvider(baseURL, apiKey string) *RetellProvider {
	return &RetellProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *RetellProvider) Name() string { return "retell" }

func (p *RetellProvider) HealthCheck(ctx context.Context) error {
	// The agent listing is the cheapest authenticated endpoint.
	_, err := p.ListAgents(ctx)
	return err
}

// createWebCallResponse is the explicit schema expected from the provider.
// Both fields are required; anything else is an upstream contract violation.
type createWebCallResponse struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	AgentID     string `json:"agent_id"`
}

func (p *RetellProvider) CreateWebCall(ctx context.Context, req WebCallRequest) (WebCall, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return WebCall{}, ErrInvalidAgent
	}

	var resp createWebCallResponse
	status, body, err := p.do(ctx, http.MethodPost, "/v2/create-web-call", req, &resp)
	if err != nil {
		return WebCall{}, err
	}
	if resp.CallID == "" || resp.AccessToken == "" {
		// 2xx with a missing field is still a broken contract.
		return WebCall{}, &UpstreamError{Status: status, Body: truncateBody(body)}
	}
	return WebCall{CallID: resp.CallID, AccessToken: resp.AccessToken, AgentID: resp.AgentID}, nil
}

func (p *RetellProvider) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if _, _, err := p.do(ctx, http.MethodGet, "/list-agents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *RetellProvider) GetAgent(ctx context.Context, agentID string) (AgentConfig, error) {
	if strings.TrimSpace(agentID) == "" {
		return AgentConfig{}, ErrInvalidAgent
	}
	var out AgentConfig
	if _, _, err := p.do(ctx, http.MethodGet, "/get-agent/"+agentID, nil, &out); err != nil {
		return AgentConfig{}, err
	}
	if out.AgentID == "" {
		out.AgentID = agentID
	}
	return out, nil
}

type listCallsRequest struct {
	Limit     int    `json:"limit"`
	SortOrder string `json:"sort_order"`
}

func (p *RetellProvider) ListCalls(ctx context.Context, q CallQuery) ([]ProviderCall, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []ProviderCall
	if _, _, err := p.do(ctx, http.MethodPost, "/v2/list-calls", listCallsRequest{Limit: limit, SortOrder: "descending"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type batchCallResponse struct {
	BatchCallID string `json:"batch_call_id"`
}

func (p *RetellProvider) CreateBatchCall(ctx context.Context, req BatchCallRequest) (BatchCallResult, error) {
	if err := ValidateBatchCall(req); err != nil {
		return BatchCallResult{}, err
	}

	var resp batchCallResponse
	status, body, err := p.do(ctx, http.MethodPost, "/create-batch-call", req, &resp)
	if err != nil {
		return BatchCallResult{}, err
	}
	if resp.BatchCallID == "" {
		return BatchCallResult{}, &UpstreamError{Status: status, Body: truncateBody(body)}
	}
	return BatchCallResult{BatchCallID: resp.BatchCallID}, nil
}

// e164 matches the number format the provider accepts for phone calls.
var e164 = regexp.MustCompile(`^\+[1-9]\d{10,14}$`)

// ValidateBatchCall checks numbers before any network I/O.
func ValidateBatchCall(req BatchCallRequest) error {
	if !e164.MatchString(req.FromNumber) {
		return fmt.Errorf("%w: from_number %q", ErrInvalidNumber, req.FromNumber)
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task required", ErrInvalidNumber)
	}
	for _, t := range req.Tasks {
		if !e164.MatchString(t.ToNumber) {
			return fmt.Errorf("%w: to_number %q", ErrInvalidNumber, t.ToNumber)
		}
	}
	return nil
}

// do performs one JSON round-trip. Non-2xx responses become UpstreamError
// with the status code and body text. The decoded body is also returned so
// callers can include it in their own contract-violation errors.
func (p *RetellProvider) do(ctx context.Context, method, path string, in any, out any) (int, string, error) {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("telephony: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return 0, "", fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return 0, "", &UpstreamError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", &UpstreamError{Status: resp.StatusCode, Body: err.Error()}
	}
	body := string(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &UpstreamError{Status: resp.StatusCode, Body: truncateBody(body)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, body, &UpstreamError{Status: resp.StatusCode, Body: "undecodable body: " + truncateBody(body)}
		}
	}
	return resp.StatusCode, body, nil
}

func truncateBody(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
