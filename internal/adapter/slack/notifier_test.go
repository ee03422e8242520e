package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/agentplan/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("", 0)
	if n.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("", 0)
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendSuccess(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 0)
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Plan completed",
		Message: "launch campaign",
		Level:   notifier.LevelSuccess,
		Source:  "plan.finished",
		PlanID:  "p1",
		Fields:  []notifier.Field{{Name: "Tasks", Value: "3/3 succeeded"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got.Text, "[OK] Plan completed") {
		t.Errorf("unexpected fallback text %q", got.Text)
	}
	// header, message, fields, context
	if len(got.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(got.Blocks))
	}
	if len(got.Blocks[2].Fields) != 1 || !strings.Contains(got.Blocks[2].Fields[0].Text, "3/3 succeeded") {
		t.Errorf("unexpected fields block %+v", got.Blocks[2])
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 0)
	err := n.Send(context.Background(), notifier.Notification{Title: "Test", Level: notifier.LevelInfo})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
