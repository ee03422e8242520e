package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/agentplan/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("", 0)
	if n.Name() != "discord" {
		t.Fatalf("expected 'discord', got %q", n.Name())
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
	var got discordWebhook
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 0)
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	fields := make([]notifier.Field, 30)
	for i := range fields {
		fields[i] = notifier.Field{Name: "k", Value: "v"}
	}
	err := n.Send(context.Background(), notifier.Notification{
		Title:  "Plan failed",
		Level:  notifier.LevelError,
		Source: "plan.finished",
		PlanID: "p1",
		Fields: fields,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Color != 0xE74C3C {
		t.Errorf("expected red, got %#x", e.Color)
	}
	if len(e.Fields) != maxEmbedFields {
		t.Errorf("expected %d fields, got %d", maxEmbedFields, len(e.Fields))
	}
	if e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %q", e.Timestamp)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, 0)
	if err := n.Send(context.Background(), notifier.Notification{Title: "Test"}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
