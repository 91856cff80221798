package prefs

import (
	"context"
	"errors"
	"testing"

	"market-news-alerts/internal/model"
)

func TestGetReturnsDefaultsWhenAbsent(t *testing.T) {
	store := NewMemoryStore()
	pref, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pref.FrequencyMode != model.FrequencyRealtime || !pref.DedupeEnabled {
		t.Fatalf("expected onboarding defaults, got %+v", pref)
	}
}

func TestPutRejectsInvalidPreference(t *testing.T) {
	store := NewMemoryStore()
	pref := model.DefaultPreference()
	pref.MaxPerHour = 5
	pref.MaxPerDay = 2

	err := store.Put(context.Background(), "u1", pref)
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "maxPerHour" {
		t.Fatalf("offending field = %q", vErr.Field)
	}

	// rejected put must not leave partial state behind
	got, _ := store.Get(context.Background(), "u1")
	if got.MaxPerHour != 0 {
		t.Fatalf("rejected preference was stored: %+v", got)
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	pref := model.DefaultPreference()
	pref.FrequencyMode = model.FrequencyDaily
	pref.MinImpact = model.ImpactMedium
	pref.CommodityFilter = []string{"gold"}

	if err := store.Put(context.Background(), "u1", pref); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FrequencyMode != model.FrequencyDaily || got.MinImpact != model.ImpactMedium {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	users, err := store.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Fatalf("Users = %v", users)
	}
}
