package engine

import (
	"testing"
	"time"

	"market-news-alerts/internal/model"
)

func TestGovernorOverrideAllowance(t *testing.T) {
	g := NewGovernor()
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	pref := model.AlertPreference{MaxPerHour: 2}

	for i := 0; i < 2; i++ {
		if _, _, ok := g.CheckAndReserve("u1", pref, false, now); !ok {
			t.Fatalf("reservation %d should fit under the cap", i)
		}
	}

	if _, reason, ok := g.CheckAndReserve("u1", pref, false, now); ok || reason != model.ReasonRateCapped {
		t.Fatalf("third normal reservation should be capped, got ok=%t reason=%s", ok, reason)
	}

	// the override takes the single cap+1 slot
	if _, _, ok := g.CheckAndReserve("u1", pref, true, now); !ok {
		t.Fatal("override at cap should reserve the +1 slot")
	}
	if _, _, ok := g.CheckAndReserve("u1", pref, true, now); ok {
		t.Fatal("second override must not stack past cap+1")
	}
}

func TestGovernorReleaseRestoresBudget(t *testing.T) {
	g := NewGovernor()
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	pref := model.AlertPreference{MaxPerHour: 1}

	id, _, ok := g.CheckAndReserve("u1", pref, false, now)
	if !ok {
		t.Fatal("first reservation should succeed")
	}
	if _, _, ok := g.CheckAndReserve("u1", pref, false, now); ok {
		t.Fatal("cap reached, second reservation must fail")
	}

	g.Release("u1", id)
	if _, _, ok := g.CheckAndReserve("u1", pref, false, now); !ok {
		t.Fatal("released slot should free the budget")
	}
}

func TestGovernorRollingWindows(t *testing.T) {
	g := NewGovernor()
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	pref := model.AlertPreference{MaxPerHour: 1, MaxPerDay: 2}

	id, _, ok := g.CheckAndReserve("u1", pref, false, now)
	if !ok {
		t.Fatal("first reservation should succeed")
	}
	g.Confirm("u1", id)

	// hour window rolls off, day window still counts it
	later := now.Add(2 * time.Hour)
	id2, _, ok := g.CheckAndReserve("u1", pref, false, later)
	if !ok {
		t.Fatal("hour window elapsed, reservation should succeed")
	}
	g.Confirm("u1", id2)

	if _, reason, ok := g.CheckAndReserve("u1", pref, false, later.Add(2*time.Hour)); ok || reason != model.ReasonRateCapped {
		t.Fatalf("day cap should reject, got ok=%t reason=%s", ok, reason)
	}

	// both slots age out after 24h
	hour, day := g.Counts("u1", now.Add(27*time.Hour))
	if hour != 0 || day != 0 {
		t.Fatalf("counts after eviction = (%d, %d), want (0, 0)", hour, day)
	}
}

func TestGovernorIsolatesUsers(t *testing.T) {
	g := NewGovernor()
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	pref := model.AlertPreference{MaxPerHour: 1}

	if _, _, ok := g.CheckAndReserve("u1", pref, false, now); !ok {
		t.Fatal("u1 reservation should succeed")
	}
	if _, _, ok := g.CheckAndReserve("u2", pref, false, now); !ok {
		t.Fatal("u2 budget must be independent of u1")
	}
}
