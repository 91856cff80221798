package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-news-alerts/internal/model"
	"market-news-alerts/internal/prefs"
)

// Clock supplies the current time. Injected so every time-windowed rule is
// testable against a simulated clock.
type Clock func() time.Time

// Dispatcher renders and delivers an approved alert, reporting the outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision model.AlertDecision, ev model.MarketEvent, tmpl model.NotificationTemplate) model.DeliveryRecord
}

// AuditStore persists decisions and delivery records for reporting. Writes
// are best effort and never gate the decision path.
type AuditStore interface {
	SaveDecision(ctx context.Context, decision model.AlertDecision) error
	SaveDelivery(ctx context.Context, record model.DeliveryRecord) error
}

// Options tune engine behaviour.
type Options struct {
	// Retention bounds the alert history window. Must cover the widest
	// frequency spacing (weekly); defaults to 7 days.
	Retention time.Duration
	// DecisionLogSize bounds the in-memory reporting ring.
	DecisionLogSize int
	// Clock defaults to UTC wall time.
	Clock Clock
	// Audit is optional.
	Audit AuditStore
	// DefaultTemplate renders event-driven alerts; scheduled rules carry
	// their own.
	DefaultTemplate model.NotificationTemplate
}

// Engine is the single decision path for all alert sources: classified
// events, broadcast fan-out, and scheduled triggers all funnel through the
// same evaluate-reserve-dispatch sequence.
type Engine struct {
	prefs      prefs.Store
	dispatcher Dispatcher
	governor   *Governor
	decisions  *DecisionLog
	audit      AuditStore
	logger     zerolog.Logger
	clock      Clock
	retention  time.Duration
	template   model.NotificationTemplate

	mu    sync.Mutex
	users map[string]*userState
}

// userState serializes the read-evaluate-reserve sequence per user.
// Different users proceed fully in parallel.
type userState struct {
	mu   sync.Mutex
	hist userHistory
}

// New constructs an Engine.
func New(prefStore prefs.Store, dispatcher Dispatcher, opts Options, logger zerolog.Logger) *Engine {
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.DefaultTemplate.Title == "" && opts.DefaultTemplate.Body == "" {
		opts.DefaultTemplate = model.NotificationTemplate{
			Title: "Market alert: {{.Commodities}}",
			Body:  "{{.Headline}} ({{.Impact}} impact)",
		}
	}
	return &Engine{
		prefs:      prefStore,
		dispatcher: dispatcher,
		governor:   NewGovernor(),
		decisions:  NewDecisionLog(opts.DecisionLogSize),
		audit:      opts.Audit,
		logger:     logger.With().Str("component", "engine").Logger(),
		clock:      opts.Clock,
		retention:  opts.Retention,
		template:   opts.DefaultTemplate,
		users:      make(map[string]*userState),
	}
}

// SubmitEvent is the primary inbound call: evaluate one classified event for
// one user and, when allowed, dispatch it. A ValidationError is returned for
// malformed events; rule rejections are normal decisions, not errors.
func (e *Engine) SubmitEvent(ctx context.Context, userID string, ev model.MarketEvent) (model.AlertDecision, error) {
	return e.submit(ctx, userID, ev, e.template)
}

// SubmitScheduled routes a synthesized scheduled trigger through the same
// approval path as real events, rendering with the rule's template.
// Scheduled alerts are not exempt from spacing, quiet hours, or caps.
func (e *Engine) SubmitScheduled(ctx context.Context, rule model.ScheduledAlertRule, ev model.MarketEvent) (model.AlertDecision, error) {
	tmpl := rule.Template
	if tmpl.Title == "" && tmpl.Body == "" {
		tmpl = e.template
	}
	return e.submit(ctx, rule.UserID, ev, tmpl)
}

// Broadcast evaluates an unaddressed event for every user with stored
// preferences, in parallel, each through the per-user serialized path.
func (e *Engine) Broadcast(ctx context.Context, ev model.MarketEvent) ([]model.AlertDecision, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	users, err := e.prefs.Users(ctx)
	if err != nil {
		return nil, err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		decisions = make([]model.AlertDecision, 0, len(users))
	)
	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			decision, err := e.submit(ctx, userID, ev, e.template)
			if err != nil {
				e.logger.Warn().Err(err).Str("user_id", userID).Str("event_id", ev.ID).Msg("broadcast evaluation failed")
				return
			}
			mu.Lock()
			decisions = append(decisions, decision)
			mu.Unlock()
		}(userID)
	}
	wg.Wait()
	return decisions, nil
}

// RecentDecisions exposes a user's decisions inside the trailing window for
// the alert-history screen.
func (e *Engine) RecentDecisions(userID string, window time.Duration) []model.AlertDecision {
	since := e.clock().Add(-window)
	return e.decisions.Recent(userID, since)
}

func (e *Engine) submit(ctx context.Context, userID string, ev model.MarketEvent, tmpl model.NotificationTemplate) (model.AlertDecision, error) {
	if userID == "" {
		return model.AlertDecision{}, &model.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if err := ev.Validate(); err != nil {
		return model.AlertDecision{}, err
	}

	pref, err := e.prefs.Get(ctx, userID)
	if err != nil {
		return model.AlertDecision{}, err
	}

	state := e.userState(userID)

	state.mu.Lock()
	now := e.clock()
	snap := state.hist.snapshot(now, e.retention)
	decision := Evaluate(userID, ev, pref, snap, now)

	var resID, histID uint64
	if decision.Allowed {
		id, reason, ok := e.governor.CheckAndReserve(userID, pref, ev.PriorityOverride, now)
		if !ok {
			decision.Allowed = false
			decision.Reason = reason
		} else {
			resID = id
			histID = state.hist.reserve(eventKeys(ev), now)
		}
	}
	state.mu.Unlock()

	e.decisions.Add(decision)
	if e.audit != nil {
		if err := e.audit.SaveDecision(ctx, decision); err != nil {
			e.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to persist decision")
		}
	}

	if !decision.Allowed {
		e.logger.Debug().
			Str("user_id", userID).
			Str("event_id", ev.ID).
			Str("reason", string(decision.Reason)).
			Msg("alert suppressed")
		return decision, nil
	}

	record := e.dispatcher.Dispatch(ctx, decision, ev, tmpl)

	state.mu.Lock()
	if record.Delivered {
		e.governor.Confirm(userID, resID)
		state.hist.confirm(histID, record.LastAttemptAt)
	} else {
		e.governor.Release(userID, resID)
		state.hist.release(histID)
	}
	state.mu.Unlock()

	if e.audit != nil {
		if err := e.audit.SaveDelivery(ctx, record); err != nil {
			e.logger.Warn().Err(err).Str("alert_id", record.AlertID).Msg("failed to persist delivery record")
		}
	}

	if record.Delivered {
		e.logger.Info().
			Str("user_id", userID).
			Str("event_id", ev.ID).
			Int("attempts", record.Attempts).
			Msg("alert delivered")
	} else {
		e.logger.Warn().
			Str("user_id", userID).
			Str("event_id", ev.ID).
			Int("attempts", record.Attempts).
			Msg("alert delivery failed; reservation released")
	}

	return decision, nil
}

func (e *Engine) userState(userID string) *userState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.users[userID]; ok {
		return state
	}
	state := &userState{}
	e.users[userID] = state
	return state
}
