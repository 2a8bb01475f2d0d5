package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bridge-orchestrator/internal/core/ports"
)

// RailConfig holds the connection settings for one external rail.
type RailConfig struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// railError is a transport-level or provider-level HTTP failure. It exposes
// the status code so the retry predicate can classify it.
type railError struct {
	Code    int
	Message string
}

func (e *railError) Error() string {
	return fmt.Sprintf("rail call failed with status %d: %s", e.Code, e.Message)
}

func (e *railError) StatusCode() int { return e.Code }

// railResponse is a rail reply after shape normalization. Providers disagree
// on envelope nesting, so the raw body is kept alongside the extracted fields.
type railResponse struct {
	HTTPStatus  int
	RawStatus   string
	ProviderRef string
	Message     string
	Body        json.RawMessage
}

// Client is a thin HTTP client for one external payment rail.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg RailConfig, log zerolog.Logger) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func actionPath(action ports.DispatchAction) (string, error) {
	switch action {
	case ports.ActionPushPayment:
		return "/api/v2/payment", nil
	case ports.ActionStatusQuery:
		return "/api/v2/payment/status-query", nil
	default:
		return "", fmt.Errorf("unknown dispatch action %q", action)
	}
}

// Call posts one action to the rail and normalizes the reply. An HTTP error
// status is returned as *railError; a 2xx reply is returned normalized even
// when the provider reports a failure inside the body.
func (c *Client) Call(ctx context.Context, req ports.DispatchRequest) (*railResponse, error) {
	path, err := actionPath(req.Action)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rail payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rail request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if decErr := json.NewDecoder(resp.Body).Decode(&raw); decErr != nil {
		raw = nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &railError{Code: resp.StatusCode, Message: extractMessage(raw)}
	}

	return &railResponse{
		HTTPStatus:  resp.StatusCode,
		RawStatus:   extractStatus(raw),
		ProviderRef: extractRef(raw),
		Message:     extractMessage(raw),
		Body:        raw,
	}, nil
}

// extractRef digs the provider transaction reference out of the reply.
// Observed shapes: {"transaction_id": ...}, {"data": {"transaction_id": ...}},
// {"data": {"data": {"transaction_id": ...}}}, and legacy {"reference": ...}.
func extractRef(raw json.RawMessage) string {
	for _, path := range [][]string{
		{"transaction_id"},
		{"data", "transaction_id"},
		{"data", "data", "transaction_id"},
		{"reference"},
		{"data", "reference"},
	} {
		if v := digString(raw, path); v != "" {
			return v
		}
	}
	return ""
}

func extractStatus(raw json.RawMessage) string {
	for _, path := range [][]string{
		{"data", "status"},
		{"data", "data", "status"},
		{"status"},
	} {
		if v := digString(raw, path); v != "" {
			return v
		}
	}
	return ""
}

func extractMessage(raw json.RawMessage) string {
	for _, path := range [][]string{
		{"message"},
		{"data", "message"},
		{"error"},
	} {
		if v := digString(raw, path); v != "" {
			return v
		}
	}
	return ""
}

func digString(raw json.RawMessage, path []string) string {
	if len(raw) == 0 {
		return ""
	}
	var cur any
	if err := json.Unmarshal(raw, &cur); err != nil {
		return ""
	}
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
