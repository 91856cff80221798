package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-news-alerts/internal/model"
)

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	titles   []string
	bodies   []string
}

func (s *flakySender) Send(ctx context.Context, recipientID, title, body string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
	if s.calls <= s.failures {
		return errors.New("transient failure")
	}
	return nil
}

func testEvent() model.MarketEvent {
	return model.MarketEvent{
		ID:          "e1",
		Commodities: []string{"gold", "silver"},
		Impact:      model.ImpactHigh,
		Headline:    "gold spikes on supply news",
		Source:      "newswire",
		OccurredAt:  time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC),
	}
}

func testDecision() model.AlertDecision {
	return model.AlertDecision{EventID: "e1", UserID: "u1", Allowed: true, Reason: model.ReasonOK}
}

func fastOptions() Options {
	return Options{MaxAttempts: 3, Backoff: time.Millisecond, Timeout: time.Second}
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	sender := &flakySender{failures: 2}
	d := New(sender, fastOptions(), zerolog.Nop())

	record := d.Dispatch(context.Background(), testDecision(), testEvent(), model.NotificationTemplate{Title: "t", Body: "b"})
	if !record.Delivered {
		t.Fatalf("delivery should succeed on the final attempt: %+v", record)
	}
	if record.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", record.Attempts)
	}
	if record.AlertID == "" {
		t.Fatal("record must carry an alert id")
	}
	if record.LastAttemptAt.IsZero() {
		t.Fatal("record must carry the last attempt time")
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	sender := &flakySender{failures: 100}
	d := New(sender, fastOptions(), zerolog.Nop())

	record := d.Dispatch(context.Background(), testDecision(), testEvent(), model.NotificationTemplate{Title: "t", Body: "b"})
	if record.Delivered {
		t.Fatal("delivery must be reported failed after retries are exhausted")
	}
	if record.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", record.Attempts)
	}
	if sender.calls != 3 {
		t.Fatalf("sender calls = %d, want 3", sender.calls)
	}
}

func TestDispatchContextCancelStopsRetrying(t *testing.T) {
	sender := &flakySender{failures: 100}
	d := New(sender, Options{MaxAttempts: 5, Backoff: time.Minute, Timeout: time.Second}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	record := d.Dispatch(ctx, testDecision(), testEvent(), model.NotificationTemplate{Title: "t", Body: "b"})
	if record.Delivered {
		t.Fatal("cancelled dispatch must not report success")
	}
	if record.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", record.Attempts)
	}
}

func TestRenderTemplate(t *testing.T) {
	tmpl := model.NotificationTemplate{
		Title: "Alert: {{.Commodities}}",
		Body:  "{{.Headline}} ({{.Impact}} impact, source {{.Source}})",
	}

	title, body, err := Render(tmpl, testEvent())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if title != "Alert: gold, silver" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(body, "gold spikes on supply news") || !strings.Contains(body, "high impact") {
		t.Fatalf("body = %q", body)
	}
}

func TestDispatchFallsBackOnBadTemplate(t *testing.T) {
	sender := &flakySender{}
	d := New(sender, fastOptions(), zerolog.Nop())

	record := d.Dispatch(context.Background(), testDecision(), testEvent(), model.NotificationTemplate{Title: "{{.Broken", Body: "b"})
	if !record.Delivered {
		t.Fatalf("fallback render should still deliver: %+v", record)
	}
	if !strings.Contains(sender.titles[0], "Market alert:") {
		t.Fatalf("fallback title not used: %q", sender.titles[0])
	}
	if !strings.Contains(sender.bodies[0], "gold, silver") {
		t.Fatalf("fallback body missing commodities: %q", sender.bodies[0])
	}
}
