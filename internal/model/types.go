package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Impact is the discretized severity of a market event.
type Impact int

const (
	ImpactLow Impact = iota
	ImpactMedium
	ImpactHigh
)

var impactNames = map[Impact]string{
	ImpactLow:    "low",
	ImpactMedium: "medium",
	ImpactHigh:   "high",
}

// ParseImpact resolves a case-insensitive impact name.
func ParseImpact(s string) (Impact, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow, nil
	case "medium":
		return ImpactMedium, nil
	case "high":
		return ImpactHigh, nil
	default:
		return ImpactLow, fmt.Errorf("unknown impact %q", s)
	}
}

func (i Impact) String() string {
	if name, ok := impactNames[i]; ok {
		return name
	}
	return fmt.Sprintf("impact(%d)", int(i))
}

// Valid reports whether the impact is one of the known levels.
func (i Impact) Valid() bool {
	_, ok := impactNames[i]
	return ok
}

func (i Impact) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Impact) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseImpact(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// FrequencyMode classifies the minimum spacing between delivered alerts.
type FrequencyMode int

const (
	FrequencyRealtime FrequencyMode = iota
	FrequencyHourly
	FrequencyDaily
	FrequencyWeekly
)

var frequencyNames = map[FrequencyMode]string{
	FrequencyRealtime: "realtime",
	FrequencyHourly:   "hourly",
	FrequencyDaily:    "daily",
	FrequencyWeekly:   "weekly",
}

// ParseFrequencyMode resolves a case-insensitive mode name.
func ParseFrequencyMode(s string) (FrequencyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime":
		return FrequencyRealtime, nil
	case "hourly":
		return FrequencyHourly, nil
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	default:
		return FrequencyRealtime, fmt.Errorf("unknown frequency mode %q", s)
	}
}

func (m FrequencyMode) String() string {
	if name, ok := frequencyNames[m]; ok {
		return name
	}
	return fmt.Sprintf("frequency(%d)", int(m))
}

// Valid reports whether the mode is one of the known classes.
func (m FrequencyMode) Valid() bool {
	_, ok := frequencyNames[m]
	return ok
}

// Spacing returns the minimum wall-clock gap the mode requires between
// delivered alerts.
func (m FrequencyMode) Spacing() time.Duration {
	switch m {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ReasonCode labels the outcome of a rule evaluation.
type ReasonCode string

const (
	ReasonOK                   ReasonCode = "OK"
	ReasonBelowImpactThreshold ReasonCode = "BELOW_IMPACT_THRESHOLD"
	ReasonCommodityFiltered    ReasonCode = "COMMODITY_FILTERED"
	ReasonFrequencySpacing     ReasonCode = "FREQUENCY_SPACING"
	ReasonDuplicateSuppressed  ReasonCode = "DUPLICATE_SUPPRESSED"
	ReasonQuietHours           ReasonCode = "QUIET_HOURS"
	ReasonRateCapped           ReasonCode = "RATE_CAPPED"
)

// ValidationError marks malformed input rejected before evaluation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuietHours suppresses normal-priority delivery inside a local-time window.
// Start and End use "HH:MM"; the window may wrap midnight. Equal start and
// end disables the window.
type QuietHours struct {
	Start    string `json:"start" mapstructure:"start"`
	End      string `json:"end" mapstructure:"end"`
	Timezone string `json:"timezone" mapstructure:"timezone"`
}

// Validate checks clock format and timezone resolution.
func (q QuietHours) Validate() error {
	if _, err := ParseClock(q.Start); err != nil {
		return &ValidationError{Field: "quietHours.start", Reason: err.Error()}
	}
	if _, err := ParseClock(q.End); err != nil {
		return &ValidationError{Field: "quietHours.end", Reason: err.Error()}
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		return &ValidationError{Field: "quietHours.timezone", Reason: err.Error()}
	}
	return nil
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("clock %q must be HH:MM", s)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("clock %q must be HH:MM", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return hour*60 + minute, nil
}

// AlertPreference holds one user's alerting rules. Zero caps mean unlimited.
type AlertPreference struct {
	FrequencyMode   FrequencyMode `json:"frequency_mode"`
	MinImpact       Impact        `json:"min_impact"`
	CommodityFilter []string      `json:"commodity_filter"`
	QuietHours      *QuietHours   `json:"quiet_hours,omitempty"`
	MaxPerHour      int           `json:"max_per_hour"`
	MaxPerDay       int           `json:"max_per_day"`
	CooldownMinutes int           `json:"cooldown_minutes"`
	DedupeEnabled   bool          `json:"dedupe_enabled"`
}

// DefaultPreference returns the onboarding defaults: everything alertable,
// dedupe on, no caps.
func DefaultPreference() AlertPreference {
	return AlertPreference{
		FrequencyMode:   FrequencyRealtime,
		MinImpact:       ImpactLow,
		CooldownMinutes: 30,
		DedupeEnabled:   true,
	}
}

// Validate rejects malformed preferences with the offending field named.
func (p AlertPreference) Validate() error {
	if !p.FrequencyMode.Valid() {
		return &ValidationError{Field: "frequencyMode", Reason: "unknown mode"}
	}
	if !p.MinImpact.Valid() {
		return &ValidationError{Field: "minImpact", Reason: "unknown impact level"}
	}
	if p.MaxPerHour < 0 {
		return &ValidationError{Field: "maxPerHour", Reason: "must be >= 0"}
	}
	if p.MaxPerDay < 0 {
		return &ValidationError{Field: "maxPerDay", Reason: "must be >= 0"}
	}
	if p.MaxPerHour > 0 && p.MaxPerDay > 0 && p.MaxPerHour > p.MaxPerDay {
		return &ValidationError{Field: "maxPerHour", Reason: "must not exceed maxPerDay"}
	}
	if p.CooldownMinutes < 0 {
		return &ValidationError{Field: "cooldownMinutes", Reason: "must be >= 0"}
	}
	if p.QuietHours != nil {
		if err := p.QuietHours.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MatchesCommodity reports whether any of the event's tags passes the
// commodity filter. An empty filter admits everything.
func (p AlertPreference) MatchesCommodity(tags []string) bool {
	if len(p.CommodityFilter) == 0 {
		return true
	}
	for _, tag := range tags {
		for _, allowed := range p.CommodityFilter {
			if strings.EqualFold(tag, allowed) {
				return true
			}
		}
	}
	return false
}

// MarketEvent is a classified market/news item. Immutable once classified.
type MarketEvent struct {
	ID               string           `json:"id"`
	Commodities      []string         `json:"commodities"`
	Impact           Impact           `json:"impact"`
	Sentiment        *decimal.Decimal `json:"sentiment,omitempty"`
	Headline         string           `json:"headline,omitempty"`
	Source           string           `json:"source,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
	PriorityOverride bool             `json:"priority_override"`
}

// Validate enforces the classifier boundary: events with no id or no
// commodity tags never reach evaluation.
func (e MarketEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if len(e.Commodities) == 0 {
		return &ValidationError{Field: "commodities", Reason: "must not be empty"}
	}
	if !e.Impact.Valid() {
		return &ValidationError{Field: "impact", Reason: "unknown impact level"}
	}
	return nil
}

// Key returns the dedupe key for the event's primary commodity tag.
func (e MarketEvent) Key() string {
	return EventKey(e.Commodities[0], e.Impact)
}

// EventKey builds the (commodity, impact-bucket) dedupe key.
func EventKey(commodity string, impact Impact) string {
	return strings.ToLower(commodity) + "|" + impact.String()
}

// AlertDecision is the outcome of evaluating one event for one user.
// Evaluation is a pure function of its inputs, so re-delivered events
// re-evaluate to the same decision.
type AlertDecision struct {
	EventID     string     `json:"event_id"`
	UserID      string     `json:"user_id"`
	Allowed     bool       `json:"allowed"`
	Reason      ReasonCode `json:"reason"`
	EvaluatedAt time.Time  `json:"evaluated_at"`
}

// NotificationTemplate carries the render sources for a notification.
type NotificationTemplate struct {
	Title string `json:"title" mapstructure:"title"`
	Body  string `json:"body" mapstructure:"body"`
}

// ScheduledAlertRule fires recurring alerts on wall-clock time. NextFireAt is
// derived from CronSpec and recomputed after every trigger.
type ScheduledAlertRule struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	CronSpec         string               `json:"cron_spec"`
	Timezone         string               `json:"timezone"`
	Commodities      []string             `json:"commodities"`
	Impact           Impact               `json:"impact"`
	PriorityOverride bool                 `json:"priority_override"`
	Template         NotificationTemplate `json:"template"`
	Active           bool                 `json:"active"`
	NextFireAt       time.Time            `json:"next_fire_at"`
}

// DeliveryRecord captures the outcome of dispatching one approved alert.
type DeliveryRecord struct {
	AlertID        string    `json:"alert_id"`
	Delivered      bool      `json:"delivered"`
	Attempts       int       `json:"attempts"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
	RecipientCount int       `json:"recipient_count"`
}
