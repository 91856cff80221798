package engine

import "time"

// historyEntry is one reserved or delivered alert slot. Pending entries are
// provisional reservations awaiting a delivery signal; released entries are
// removed outright so a failed delivery never consumes the spacing window.
type historyEntry struct {
	id        uint64
	keys      []string
	at        time.Time
	delivered bool
}

// userHistory is the append-only delivered/pending alert log for one user,
// bounded by the retention window. Not safe for concurrent use: the engine
// serializes access per user.
type userHistory struct {
	entries []historyEntry
	nextID  uint64
}

// snapshot prunes expired entries and derives the view evaluation runs
// against. Counts cover trailing 1h/24h windows over pending and delivered
// entries alike.
func (h *userHistory) snapshot(now time.Time, retention time.Duration) HistorySnapshot {
	h.prune(now.Add(-retention))

	snap := HistorySnapshot{LastByKey: make(map[string]time.Time, len(h.entries))}
	hourCutoff := now.Add(-time.Hour)
	dayCutoff := now.Add(-24 * time.Hour)

	for _, entry := range h.entries {
		if entry.at.After(snap.LastAlertAt) {
			snap.LastAlertAt = entry.at
		}
		for _, key := range entry.keys {
			if last, ok := snap.LastByKey[key]; !ok || entry.at.After(last) {
				snap.LastByKey[key] = entry.at
			}
		}
		if entry.at.After(hourCutoff) {
			snap.HourCount++
		}
		if entry.at.After(dayCutoff) {
			snap.DayCount++
		}
	}
	return snap
}

// reserve appends a provisional entry and returns its handle.
func (h *userHistory) reserve(keys []string, at time.Time) uint64 {
	h.nextID++
	h.entries = append(h.entries, historyEntry{id: h.nextID, keys: keys, at: at})
	return h.nextID
}

// confirm marks a reservation delivered, fixing its timestamp to the actual
// delivery time.
func (h *userHistory) confirm(id uint64, deliveredAt time.Time) {
	for i := range h.entries {
		if h.entries[i].id == id {
			h.entries[i].delivered = true
			if !deliveredAt.IsZero() {
				h.entries[i].at = deliveredAt
			}
			return
		}
	}
}

// release drops a reservation whose delivery failed.
func (h *userHistory) release(id uint64) {
	for i := range h.entries {
		if h.entries[i].id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *userHistory) prune(cutoff time.Time) {
	kept := h.entries[:0]
	for _, entry := range h.entries {
		if entry.at.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	h.entries = kept
}
