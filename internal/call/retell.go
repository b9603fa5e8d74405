package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultBaseURL      = "https://api.retellai.com"
	defaultPollInterval = 5 * time.Second
)

// RetellProvider implements Provider against the Retell REST API. The
// patient's extracted data is passed to the voice agent as the
// "patient_data" dynamic variable, JSON-encoded.
type RetellProvider struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	agentID      string
	fromNumber   string
	toNumber     string
	pollInterval time.Duration
}

// RetellOpts holds parameters for creating a RetellProvider.
type RetellOpts struct {
	APIKey       string
	AgentID      string
	FromNumber   string
	ToNumber     string
	BaseURL      string        // default: https://api.retellai.com
	PollInterval time.Duration // default: 5s
	HTTPClient   *http.Client  // default: http.DefaultClient
}

// NewRetell creates a RetellProvider.
func NewRetell(opts RetellOpts) (*RetellProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("call: api key is required")
	}
	if opts.FromNumber == "" || opts.ToNumber == "" {
		return nil, fmt.Errorf("call: from and to numbers are required")
	}
	p := &RetellProvider{
		httpClient:   opts.HTTPClient,
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		agentID:      opts.AgentID,
		fromNumber:   opts.FromNumber,
		toNumber:     opts.ToNumber,
		pollInterval: opts.PollInterval,
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	return p, nil
}

// createCallRequest is the create-phone-call API payload.
type createCallRequest struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// callResponse is the subset of the provider's call object we consume.
type callResponse struct {
	CallID              string         `json:"call_id"`
	CallStatus          string         `json:"call_status"`
	Transcript          string         `json:"transcript"`
	CollectedVariables  map[string]any `json:"collected_dynamic_variables"`
	DisconnectionReason string         `json:"disconnection_reason"`
}

// Initiate places an outbound phone call with the patient data attached as a
// dynamic variable and returns the provider's call id.
func (p *RetellProvider) Initiate(ctx context.Context, patientData map[string]any) (string, error) {
	encoded, err := json.Marshal(patientData)
	if err != nil {
		return "", fmt.Errorf("call: encode patient data: %w", err)
	}

	reqBody := createCallRequest{
		FromNumber:       p.fromNumber,
		ToNumber:         p.toNumber,
		OverrideAgentID:  p.agentID,
		DynamicVariables: map[string]string{"patient_data": string(encoded)},
	}

	var resp callResponse
	if err := p.doJSON(ctx, http.MethodPost, "/v2/create-phone-call", reqBody, &resp); err != nil {
		return "", fmt.Errorf("call: create phone call: %w", err)
	}
	if resp.CallID == "" {
		return "", fmt.Errorf("call: create phone call: no call_id in response")
	}
	return resp.CallID, nil
}

// AwaitCompletion polls get-call until a terminal status appears, the timeout
// budget is exhausted, or ctx is cancelled. Transient polling errors are
// logged and polling continues; they only become fatal through the timeout.
func (p *RetellProvider) AwaitCompletion(ctx context.Context, callID string, timeout time.Duration) (*Record, error) {
	deadline := time.Now().Add(timeout)

	for {
		var resp callResponse
		err := p.doJSON(ctx, http.MethodGet, "/v2/get-call/"+callID, nil, &resp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("call: poll %s: %v", callID, err)
		} else if IsTerminal(resp.CallStatus) {
			return &Record{
				CallID:              resp.CallID,
				CallStatus:          resp.CallStatus,
				Transcript:          resp.Transcript,
				CollectedVariables:  resp.CollectedVariables,
				DisconnectionReason: resp.DisconnectionReason,
			}, nil
		}

		if time.Now().Add(p.pollInterval).After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

// doJSON performs an authenticated JSON request against the provider API.
func (p *RetellProvider) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
