package engine

import (
	"sync"
	"time"

	"market-news-alerts/internal/model"
)

// DecisionLog keeps a bounded in-memory ring of recent decisions for the
// history/analytics view. It is a reporting surface, not a control path.
type DecisionLog struct {
	mu    sync.RWMutex
	buf   []model.AlertDecision
	limit int
}

// NewDecisionLog constructs a ring holding up to limit decisions.
func NewDecisionLog(limit int) *DecisionLog {
	if limit <= 0 {
		limit = 1000
	}
	return &DecisionLog{limit: limit}
}

// Add appends a decision, evicting the oldest when full.
func (l *DecisionLog) Add(decision model.AlertDecision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) < l.limit {
		l.buf = append(l.buf, decision)
		return
	}
	copy(l.buf, l.buf[1:])
	l.buf[len(l.buf)-1] = decision
}

// Recent returns a user's decisions evaluated since the cutoff, oldest first.
func (l *DecisionLog) Recent(userID string, since time.Time) []model.AlertDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.AlertDecision, 0)
	for _, d := range l.buf {
		if d.UserID != userID {
			continue
		}
		if d.EvaluatedAt.Before(since) {
			continue
		}
		out = append(out, d)
	}
	return out
}
