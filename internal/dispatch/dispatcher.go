package dispatch

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-news-alerts/internal/model"
)

// Sender is the external delivery channel. Transport choice (push service,
// email, in-app banner) is the collaborator's concern.
type Sender interface {
	Send(ctx context.Context, recipientID, title, body string, metadata map[string]string) error
}

// Options tune delivery retry behaviour.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Dispatcher renders notification payloads and drives bounded-retry delivery.
// A delivery timeout counts as a failure for rate accounting; the decision
// itself is never rolled back.
type Dispatcher struct {
	sender Sender
	opts   Options
	logger zerolog.Logger
	clock  func() time.Time
}

// New constructs a Dispatcher. Zero options get conservative defaults.
func New(sender Sender, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender: sender,
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the dispatcher clock. Test hook.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Dispatch renders the payload and attempts delivery until it succeeds or
// retries are exhausted. The returned record reflects the final outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, decision model.AlertDecision, ev model.MarketEvent, tmpl model.NotificationTemplate) model.DeliveryRecord {
	record := model.DeliveryRecord{
		AlertID:        uuid.NewString(),
		RecipientCount: 1,
	}

	title, body, err := Render(tmpl, ev)
	if err != nil {
		d.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("template render failed; using fallback")
		title, body = fallbackRender(ev)
	}

	metadata := map[string]string{
		"event_id": ev.ID,
		"impact":   ev.Impact.String(),
		"reason":   string(decision.Reason),
	}

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		record.Attempts = attempt
		record.LastAttemptAt = d.clock()

		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		err := d.sender.Send(attemptCtx, decision.UserID, title, body, metadata)
		cancel()

		if err == nil {
			record.Delivered = true
			return record
		}

		d.logger.Warn().Err(err).
			Str("event_id", ev.ID).
			Int("attempt", attempt).
			Msg("delivery attempt failed")

		if attempt == d.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return record
		case <-time.After(d.opts.Backoff * time.Duration(attempt)):
		}
	}
	return record
}

// templateData is the field set exposed to notification templates.
type templateData struct {
	Headline    string
	Source      string
	Commodities string
	Impact      string
	Sentiment   string
	OccurredAt  string
	EventID     string
}

// Render fills a notification template from event fields.
func Render(tmpl model.NotificationTemplate, ev model.MarketEvent) (title, body string, err error) {
	data := templateData{
		Headline:    ev.Headline,
		Source:      ev.Source,
		Commodities: strings.Join(ev.Commodities, ", "),
		Impact:      ev.Impact.String(),
		OccurredAt:  ev.OccurredAt.UTC().Format(time.RFC3339),
		EventID:     ev.ID,
	}
	if ev.Sentiment != nil {
		data.Sentiment = ev.Sentiment.StringFixed(2)
	}

	title, err = renderOne("title", tmpl.Title, data)
	if err != nil {
		return "", "", err
	}
	body, err = renderOne("body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}

func renderOne(name, text string, data templateData) (string, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func fallbackRender(ev model.MarketEvent) (string, string) {
	builder := strings.Builder{}
	builder.WriteString("[Market Alert]\n")
	builder.WriteString("Commodities: " + strings.Join(ev.Commodities, ", ") + "\n")
	builder.WriteString("Impact: " + ev.Impact.String() + "\n")
	if ev.Headline != "" {
		builder.WriteString(ev.Headline + "\n")
	}
	return "Market alert: " + strings.Join(ev.Commodities, ", "), builder.String()
}
