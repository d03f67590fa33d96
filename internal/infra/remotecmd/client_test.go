package remotecmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aweller/gamewarden/internal/domain"
)

func TestSendReturnsCommandID(t *testing.T) {
	var gotPath, gotKey string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(sendResponse{CommandID: "cmd-42"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", "i-0abc")
	commandID, err := client.Send(context.Background(), []string{"systemctl start game"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if commandID != "cmd-42" {
		t.Fatalf("command id = %q", commandID)
	}
	if gotPath != "/instances/i-0abc/commands" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if len(gotBody.Commands) != 1 || gotBody.Commands[0] != "systemctl start game" {
		t.Fatalf("commands = %v", gotBody.Commands)
	}
}

func TestSendSurfacesCodedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]APIError{
			"error": {Code: CodeInvalidInstance, Message: "instance not recognized"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "i-0abc")
	_, err := client.Send(context.Background(), []string{"uptime"})
	if !HasCode(err, CodeInvalidInstance) {
		t.Fatalf("expected coded api error, got %v", err)
	}
}

func TestInvocationTrimsOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instances/i-0abc/commands/cmd-42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(invocationResponse{
			Status: "Success",
			Stdout: "3\n",
			Stderr: "  ",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "i-0abc")
	invocation, err := client.Invocation(context.Background(), "cmd-42", []string{"count-players"})
	if err != nil {
		t.Fatalf("invocation: %v", err)
	}
	if invocation.Status != domain.CommandSuccess {
		t.Fatalf("status = %s", invocation.Status)
	}
	if invocation.Output != "3" {
		t.Fatalf("output = %q", invocation.Output)
	}
	if invocation.ErrorOutput != "" {
		t.Fatalf("error output = %q", invocation.ErrorOutput)
	}
	if len(invocation.Commands) != 1 || invocation.Commands[0] != "count-players" {
		t.Fatalf("commands = %v", invocation.Commands)
	}
}

func TestCheckStatusFallsBackOnUnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "i-0abc")
	_, err := client.Invocation(context.Background(), "cmd-42", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("unexpected coded error %v", apiErr)
	}
}
