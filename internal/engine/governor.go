package engine

import (
	"sync"
	"time"

	"market-news-alerts/internal/model"
)

// Governor enforces per-user rolling rate caps (trailing hour and day). A
// decision to allow reserves its slot in the same critical section, so a
// concurrent evaluation for the same user cannot also pass; reservations are
// confirmed or released once the dispatcher reports the delivery outcome.
type Governor struct {
	mu    sync.Mutex
	users map[string]*userBudget
}

type userBudget struct {
	slots  []budgetSlot
	nextID uint64
}

type budgetSlot struct {
	id        uint64
	at        time.Time
	confirmed bool
}

// NewGovernor constructs an empty Governor.
func NewGovernor() *Governor {
	return &Governor{users: make(map[string]*userBudget)}
}

// Counts returns the trailing 1h/24h slot counts for a user, pending
// reservations included.
func (g *Governor) Counts(userID string, now time.Time) (hour, day int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	budget := g.budget(userID)
	budget.evict(now)
	hourCutoff := now.Add(-time.Hour)
	for _, slot := range budget.slots {
		if slot.at.After(hourCutoff) {
			hour++
		}
		day++
	}
	return hour, day
}

// CheckAndReserve atomically checks both caps and, if they admit the event,
// reserves the slot. The returned id confirms or releases the reservation.
func (g *Governor) CheckAndReserve(userID string, pref model.AlertPreference, override bool, now time.Time) (uint64, model.ReasonCode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	budget := g.budget(userID)
	budget.evict(now)

	hour := 0
	hourCutoff := now.Add(-time.Hour)
	for _, slot := range budget.slots {
		if slot.at.After(hourCutoff) {
			hour++
		}
	}
	day := len(budget.slots)

	if !capAllows(pref.MaxPerHour, hour, override) || !capAllows(pref.MaxPerDay, day, override) {
		return 0, model.ReasonRateCapped, false
	}

	budget.nextID++
	budget.slots = append(budget.slots, budgetSlot{id: budget.nextID, at: now})
	return budget.nextID, model.ReasonOK, true
}

// Confirm marks a reservation as a counted delivery.
func (g *Governor) Confirm(userID string, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	budget := g.budget(userID)
	for i := range budget.slots {
		if budget.slots[i].id == id {
			budget.slots[i].confirmed = true
			return
		}
	}
}

// Release returns a reserved slot after a failed delivery so the user's rate
// budget is not consumed.
func (g *Governor) Release(userID string, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	budget := g.budget(userID)
	for i := range budget.slots {
		if budget.slots[i].id == id {
			budget.slots = append(budget.slots[:i], budget.slots[i+1:]...)
			return
		}
	}
}

func (g *Governor) budget(userID string) *userBudget {
	if budget, ok := g.users[userID]; ok {
		return budget
	}
	budget := &userBudget{}
	g.users[userID] = budget
	return budget
}

// evict drops slots older than the widest window (24h).
func (b *userBudget) evict(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	kept := b.slots[:0]
	for _, slot := range b.slots {
		if slot.at.After(cutoff) {
			kept = append(kept, slot)
		}
	}
	b.slots = kept
}
