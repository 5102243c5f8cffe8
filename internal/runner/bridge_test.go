package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/machine"
)

// --- BridgeExecutor Tests ---

func TestBridgeExecutor_SuccessfulAction(t *testing.T) {
	var received bridgeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/actions" {
			t.Errorf("expected /v1/actions, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(machine.ActionResult{Success: true, MoreSteps: true})
	}))
	defer server.Close()

	ex := NewBridgeExecutor(server.URL, nil).Bind("greenhouse", "job-42")

	result, err := ex.Execute(context.Background(), machine.Action{
		Kind:         machine.ActionFill,
		SelectorHint: "#name",
		Value:        "Jane",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if !result.MoreSteps {
		t.Error("expected more_steps")
	}
	if received.Platform != "greenhouse" || received.JobRef != "job-42" {
		t.Errorf("application context not forwarded: %+v", received)
	}
	if received.Action.Kind != machine.ActionFill || received.Action.SelectorHint != "#name" {
		t.Errorf("action not forwarded: %+v", received.Action)
	}
}

func TestBridgeExecutor_DistressSignalForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(machine.ActionResult{
			Success: false,
			Error:   "captcha wall",
			Signal:  machine.SignalAutomationDetected,
		})
	}))
	defer server.Close()

	ex := NewBridgeExecutor(server.URL, nil).Bind("lever", "job-1")

	result, err := ex.Execute(context.Background(), machine.Action{Kind: machine.ActionInspect})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Success {
		t.Error("expected failure")
	}
	if result.Signal != machine.SignalAutomationDetected {
		t.Errorf("signal = %q, want automation_detected", result.Signal)
	}
}

func TestBridgeExecutor_HTTPErrorIsBridgeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bridge session expired", http.StatusBadGateway)
	}))
	defer server.Close()

	ex := NewBridgeExecutor(server.URL, nil).Bind("lever", "job-1")

	_, err := ex.Execute(context.Background(), machine.Action{Kind: machine.ActionSubmit})
	if !errors.Is(err, ErrBridgeRequest) {
		t.Fatalf("expected ErrBridgeRequest, got %v", err)
	}
}

func TestBridgeExecutor_RespectsContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		json.NewEncoder(w).Encode(machine.ActionResult{Success: true})
	}))
	defer server.Close()

	ex := NewBridgeExecutor(server.URL, nil).Bind("lever", "job-1")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := ex.Execute(ctx, machine.Action{Kind: machine.ActionInspect})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestBridgeExecutor_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	ex := NewBridgeExecutor(server.URL, nil).Bind("lever", "job-1")

	_, err := ex.Execute(context.Background(), machine.Action{Kind: machine.ActionInspect})
	if !errors.Is(err, ErrBridgeRequest) {
		t.Fatalf("expected ErrBridgeRequest, got %v", err)
	}
}
