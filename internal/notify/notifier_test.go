package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// recordingSender captures sent notifications.
type recordingSender struct {
	name string
	sent []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, title+"|"+message)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNotifierEventFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"invariant_violation"}, discard())

	if err := n.Notify(context.Background(), "startup", "up", "engine started"); err != nil {
		t.Fatalf("filtered Notify: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("filtered event was delivered: %v", s.sent)
	}

	if err := n.Notify(context.Background(), "invariant_violation", "bad round", "supply != demand"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || !strings.HasPrefix(s.sent[0], "bad round|") {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())
	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestNotifierPartialFailure(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("boom")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discard())

	err := n.Notify(context.Background(), "error", "t", "m")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("err = %v, want combined failure naming the broken sender", err)
	}
	// The healthy sender still got the notification.
	if len(healthy.sent) != 1 {
		t.Fatalf("healthy sent = %v", healthy.sent)
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	if err := n.Notify(context.Background(), "error", "t", "m"); err != nil {
		t.Fatalf("Notify with no senders: %v", err)
	}
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "alert", "something happened"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["content"] != "**alert**\nsomething happened" {
		t.Fatalf("content = %q", got["content"])
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "alert", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status failure", err)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok123/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok123", "chat-9")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "alert", "round cleared"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "chat-9" {
		t.Errorf("chat_id = %q", got["chat_id"])
	}
	if got["text"] != "*alert*\nround cleared" {
		t.Errorf("text = %q", got["text"])
	}
}

func TestTruncate(t *testing.T) {
	if out := truncate("short", 100); out != "short" {
		t.Errorf("truncate(short) = %q", out)
	}
	long := strings.Repeat("x", 50)
	out := truncate(long, 10)
	if out != strings.Repeat("x", 7)+"..." {
		t.Errorf("truncate(long) = %q", out)
	}
	if len(out) != 10 {
		t.Errorf("len = %d, want 10", len(out))
	}
}
