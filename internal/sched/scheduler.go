package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"market-news-alerts/internal/model"
)

// Submitter routes a synthesized scheduled trigger through the engine's
// single approval path. Scheduled alerts get no exemption from frequency or
// quiet-hours rules.
type Submitter interface {
	SubmitScheduled(ctx context.Context, rule model.ScheduledAlertRule, ev model.MarketEvent) (model.AlertDecision, error)
}

// Options tune the sweep cadence.
type Options struct {
	SweepInterval time.Duration
	Clock         func() time.Time
}

// Scheduler fires active ScheduledAlertRules on wall-clock time. Each sweep
// walks the rule set once; due rules fire in parallel and recompute their
// next fire time relative to now, so downtime never produces catch-up storms.
type Scheduler struct {
	submitter Submitter
	logger    zerolog.Logger
	clock     func() time.Time
	interval  time.Duration

	mu        sync.Mutex
	rules     map[string]*model.ScheduledAlertRule
	schedules map[string]cron.Schedule
}

// New constructs a Scheduler.
func New(submitter Submitter, opts Options, logger zerolog.Logger) *Scheduler {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		submitter: submitter,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		clock:     opts.Clock,
		interval:  opts.SweepInterval,
		rules:     make(map[string]*model.ScheduledAlertRule),
		schedules: make(map[string]cron.Schedule),
	}
}

// AddRule registers a rule and computes its first fire time. A rule whose
// cron spec cannot be parsed is stored deactivated rather than retried every
// sweep; the misfire is logged and the parse error returned.
func (s *Scheduler) AddRule(rule model.ScheduledAlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := parseSpec(rule.CronSpec, rule.Timezone)
	if err != nil {
		rule.Active = false
		s.rules[rule.ID] = &rule
		s.logger.Error().Err(err).
			Str("rule_id", rule.ID).
			Str("cron", rule.CronSpec).
			Msg("scheduler misfire: rule deactivated")
		return fmt.Errorf("parse cron spec for rule %s: %w", rule.ID, err)
	}

	rule.NextFireAt = schedule.Next(s.clock())
	s.rules[rule.ID] = &rule
	s.schedules[rule.ID] = schedule
	s.logger.Info().
		Str("rule_id", rule.ID).
		Str("user_id", rule.UserID).
		Time("next_fire_at", rule.NextFireAt).
		Msg("scheduled rule registered")
	return nil
}

// Rules returns a snapshot of the registered rules.
func (s *Scheduler) Rules() []model.ScheduledAlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduledAlertRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, *rule)
	}
	return out
}

// Run blocks, sweeping the rule set on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx, s.clock())
		}
	}
}

// Sweep fires every active rule whose next fire time has passed. Fire times
// already elapsed beyond the current one are skipped: next is recomputed
// from now, not from the missed slot.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	due := s.collectDue(now)
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, rule := range due {
		wg.Add(1)
		go func(rule model.ScheduledAlertRule) {
			defer wg.Done()
			s.fire(ctx, rule, now)
		}(rule)
	}
	wg.Wait()
}

// collectDue picks due rules and advances their next fire time under the
// lock, so a slow dispatch cannot double-fire a rule on the next sweep.
func (s *Scheduler) collectDue(now time.Time) []model.ScheduledAlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]model.ScheduledAlertRule, 0)
	for id, rule := range s.rules {
		if !rule.Active {
			continue
		}
		if rule.NextFireAt.After(now) {
			continue
		}
		due = append(due, *rule)
		rule.NextFireAt = s.schedules[id].Next(now)
	}
	return due
}

func (s *Scheduler) fire(ctx context.Context, rule model.ScheduledAlertRule, now time.Time) {
	commodities := rule.Commodities
	if len(commodities) == 0 {
		commodities = []string{"digest"}
	}

	ev := model.MarketEvent{
		ID:               uuid.NewString(),
		Commodities:      commodities,
		Impact:           rule.Impact,
		OccurredAt:       now,
		PriorityOverride: rule.PriorityOverride,
	}

	decision, err := s.submitter.SubmitScheduled(ctx, rule, ev)
	if err != nil {
		s.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("scheduled fire failed")
		return
	}
	s.logger.Info().
		Str("rule_id", rule.ID).
		Str("user_id", rule.UserID).
		Bool("allowed", decision.Allowed).
		Str("reason", string(decision.Reason)).
		Msg("scheduled rule fired")
}

// parseSpec parses a five-field cron spec in the rule's timezone.
func parseSpec(spec, timezone string) (cron.Schedule, error) {
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		spec = "CRON_TZ=" + timezone + " " + spec
	}
	return cron.ParseStandard(spec)
}
