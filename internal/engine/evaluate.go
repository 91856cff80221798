package engine

import (
	"time"

	"market-news-alerts/internal/model"
)

// HistorySnapshot is the view of a user's alert history an evaluation runs
// against. Pending reservations count alongside delivered alerts so that two
// in-flight evaluations cannot both observe a stale "no recent alert" state.
type HistorySnapshot struct {
	LastAlertAt time.Time
	LastByKey   map[string]time.Time
	HourCount   int
	DayCount    int
}

// Evaluate runs the rule chain for one event against one user's preference
// and history snapshots. It is a pure function of its inputs: re-evaluating
// the same inputs always yields the same decision, so re-delivered events
// are harmless.
//
// Checks short-circuit in order: impact floor, commodity filter, frequency
// spacing, cooldown/dedupe, quiet hours, rate caps.
func Evaluate(userID string, ev model.MarketEvent, pref model.AlertPreference, snap HistorySnapshot, now time.Time) model.AlertDecision {
	decision := model.AlertDecision{
		EventID:     ev.ID,
		UserID:      userID,
		EvaluatedAt: now,
	}

	if ev.Impact < pref.MinImpact {
		decision.Reason = model.ReasonBelowImpactThreshold
		return decision
	}

	if !pref.MatchesCommodity(ev.Commodities) {
		decision.Reason = model.ReasonCommodityFiltered
		return decision
	}

	if spacing := pref.FrequencyMode.Spacing(); spacing > 0 && !ev.PriorityOverride {
		if !snap.LastAlertAt.IsZero() && snap.LastAlertAt.After(now.Add(-spacing)) {
			decision.Reason = model.ReasonFrequencySpacing
			return decision
		}
	}

	if pref.DedupeEnabled && pref.CooldownMinutes > 0 {
		cooldown := time.Duration(pref.CooldownMinutes) * time.Minute
		for _, key := range eventKeys(ev) {
			last, ok := snap.LastByKey[key]
			if ok && last.After(now.Add(-cooldown)) {
				decision.Reason = model.ReasonDuplicateSuppressed
				return decision
			}
		}
	}

	if !ev.PriorityOverride && inQuietHours(pref.QuietHours, now) {
		decision.Reason = model.ReasonQuietHours
		return decision
	}

	if !capAllows(pref.MaxPerHour, snap.HourCount, ev.PriorityOverride) ||
		!capAllows(pref.MaxPerDay, snap.DayCount, ev.PriorityOverride) {
		decision.Reason = model.ReasonRateCapped
		return decision
	}

	decision.Allowed = true
	decision.Reason = model.ReasonOK
	return decision
}

// capAllows applies the rolling-window limit. Overrides still count against
// caps but get a single-event allowance: the window may hold cap+1 entries
// when the extra one is an override, so at least one high-priority alert
// always reaches the user.
func capAllows(cap, count int, override bool) bool {
	if cap <= 0 {
		return true
	}
	limit := cap
	if override {
		limit = cap + 1
	}
	return count < limit
}

// eventKeys returns the (commodity, impact-bucket) dedupe keys for every tag
// on the event. An event is evaluated once; sharing any key with a recent
// delivery suppresses it.
func eventKeys(ev model.MarketEvent) []string {
	keys := make([]string, 0, len(ev.Commodities))
	for _, tag := range ev.Commodities {
		keys = append(keys, model.EventKey(tag, ev.Impact))
	}
	return keys
}
