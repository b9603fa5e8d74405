package call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newProvider(t *testing.T, baseURL string) *RetellProvider {
	t.Helper()
	p, err := NewRetell(RetellOpts{
		APIKey:       "key-test",
		AgentID:      "agent_1",
		FromNumber:   "+15550000001",
		ToNumber:     "+15550000002",
		BaseURL:      baseURL,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRetell: %v", err)
	}
	return p
}

func TestInitiate(t *testing.T) {
	var gotBody createCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/create-phone-call" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-test" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"call_id": "call_123"})
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	id, err := p.Initiate(context.Background(), map[string]any{"patient_name": "Jane Doe"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if id != "call_123" {
		t.Errorf("call id = %q, want call_123", id)
	}
	if gotBody.FromNumber != "+15550000001" || gotBody.ToNumber != "+15550000002" {
		t.Errorf("numbers = %q -> %q", gotBody.FromNumber, gotBody.ToNumber)
	}
	if gotBody.OverrideAgentID != "agent_1" {
		t.Errorf("agent = %q", gotBody.OverrideAgentID)
	}

	var patient map[string]any
	if err := json.Unmarshal([]byte(gotBody.DynamicVariables["patient_data"]), &patient); err != nil {
		t.Fatalf("patient_data not JSON: %v", err)
	}
	if patient["patient_name"] != "Jane Doe" {
		t.Errorf("patient_data = %v", patient)
	}
}

func TestInitiate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	if _, err := p.Initiate(context.Background(), nil); err == nil {
		t.Fatal("Initiate succeeded, want error")
	}
}

func TestAwaitCompletion_TerminalAfterPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/get-call/call_123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		n := polls.Add(1)
		resp := map[string]any{"call_id": "call_123", "call_status": "ongoing"}
		if n >= 3 {
			resp = map[string]any{
				"call_id":              "call_123",
				"call_status":          "ended",
				"transcript":           "Agent: Hello Jane...",
				"disconnection_reason": "user_hangup",
				"collected_dynamic_variables": map[string]any{
					"wants_reminders": true,
				},
			}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	rec, err := p.AwaitCompletion(context.Background(), "call_123", time.Second)
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if rec == nil {
		t.Fatal("record is nil, want terminal record")
	}
	if rec.CallStatus != StatusEnded {
		t.Errorf("CallStatus = %q, want ended", rec.CallStatus)
	}
	if rec.Transcript == "" {
		t.Error("transcript empty")
	}
	if rec.DisconnectionReason != "user_hangup" {
		t.Errorf("DisconnectionReason = %q", rec.DisconnectionReason)
	}
	if rec.CollectedVariables["wants_reminders"] != true {
		t.Errorf("CollectedVariables = %v", rec.CollectedVariables)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want >= 3", polls.Load())
	}
}

func TestAwaitCompletion_TransientErrorsRetried(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"call_id": "call_123", "call_status": "ended"})
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	rec, err := p.AwaitCompletion(context.Background(), "call_123", time.Second)
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if rec == nil || rec.CallStatus != StatusEnded {
		t.Fatalf("record = %+v, want ended after transient errors", rec)
	}
}

func TestAwaitCompletion_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"call_id": "call_123", "call_status": "ongoing"})
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	rec, err := p.AwaitCompletion(context.Background(), "call_123", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if rec != nil {
		t.Fatalf("record = %+v, want nil on timeout", rec)
	}
}

func TestAwaitCompletion_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"call_id": "call_123", "call_status": "ongoing"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProvider(t, srv.URL)
	if _, err := p.AwaitCompletion(ctx, "call_123", time.Second); err == nil {
		t.Fatal("AwaitCompletion with cancelled ctx succeeded, want error")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusEnded, StatusError, StatusNotConnected} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = false", s)
		}
	}
	for _, s := range []string{"registered", "ongoing", ""} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%q) = true", s)
		}
	}
}
