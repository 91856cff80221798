package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseImpact(t *testing.T) {
	cases := []struct {
		in      string
		want    Impact
		wantErr bool
	}{
		{"low", ImpactLow, false},
		{"MEDIUM", ImpactMedium, false},
		{" High ", ImpactHigh, false},
		{"urgent", ImpactLow, true},
		{"", ImpactLow, true},
	}
	for _, tc := range cases {
		got, err := ParseImpact(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseImpact(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseImpact(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseImpact(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFrequencySpacing(t *testing.T) {
	if FrequencyRealtime.Spacing() != 0 {
		t.Fatal("realtime spacing should be zero")
	}
	if FrequencyHourly.Spacing() != time.Hour {
		t.Fatal("hourly spacing should be 1h")
	}
	if FrequencyDaily.Spacing() != 24*time.Hour {
		t.Fatal("daily spacing should be 24h")
	}
	if FrequencyWeekly.Spacing() != 7*24*time.Hour {
		t.Fatal("weekly spacing should be 7d")
	}
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("22:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if minutes != 22*60+30 {
		t.Fatalf("ParseClock = %d", minutes)
	}
	for _, bad := range []string{"2230", "25:00", "10:61", "ab:cd", "9:30"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestPreferenceValidate(t *testing.T) {
	pref := DefaultPreference()
	if err := pref.Validate(); err != nil {
		t.Fatalf("default preference should validate: %v", err)
	}

	pref.MaxPerHour = 10
	pref.MaxPerDay = 5
	err := pref.Validate()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "maxPerHour" {
		t.Fatalf("offending field = %q", vErr.Field)
	}

	pref = DefaultPreference()
	pref.CooldownMinutes = -1
	if err := pref.Validate(); err == nil {
		t.Fatal("negative cooldown should fail validation")
	}

	pref = DefaultPreference()
	pref.QuietHours = &QuietHours{Start: "22:00", End: "07:00", Timezone: "America/New_York"}
	if err := pref.Validate(); err != nil {
		t.Fatalf("valid quiet hours rejected: %v", err)
	}
	pref.QuietHours.Timezone = "Mars/Olympus"
	if err := pref.Validate(); err == nil {
		t.Fatal("bogus timezone should fail validation")
	}

	// zero caps mean unlimited and never trip the hour<=day rule
	pref = DefaultPreference()
	pref.MaxPerHour = 3
	pref.MaxPerDay = 0
	if err := pref.Validate(); err != nil {
		t.Fatalf("zero day cap should validate: %v", err)
	}
}

func TestEventValidate(t *testing.T) {
	ev := MarketEvent{ID: "e1", Commodities: []string{"gold"}, Impact: ImpactHigh, OccurredAt: time.Now()}
	if err := ev.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	ev.Commodities = nil
	if err := ev.Validate(); err == nil {
		t.Fatal("event without commodities should be rejected")
	}

	ev = MarketEvent{Commodities: []string{"gold"}, Impact: ImpactHigh}
	if err := ev.Validate(); err == nil {
		t.Fatal("event without id should be rejected")
	}
}

func TestMatchesCommodity(t *testing.T) {
	pref := DefaultPreference()
	if !pref.MatchesCommodity([]string{"gold"}) {
		t.Fatal("empty filter should admit everything")
	}
	pref.CommodityFilter = []string{"gold", "silver"}
	if !pref.MatchesCommodity([]string{"oil", "GOLD"}) {
		t.Fatal("any matching tag should pass the filter")
	}
	if pref.MatchesCommodity([]string{"oil", "wheat"}) {
		t.Fatal("disjoint tags should be filtered")
	}
}

func TestImpactJSONRoundTrip(t *testing.T) {
	var ev MarketEvent
	payload := `{"id":"e1","commodities":["gold"],"impact":"HIGH","occurred_at":"2026-03-02T10:00:00Z"}`
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Impact != ImpactHigh {
		t.Fatalf("impact = %v", ev.Impact)
	}
	out, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if want := `"impact":"high"`; !strings.Contains(string(out), want) {
		t.Fatalf("marshalled event missing %s: %s", want, out)
	}
}
