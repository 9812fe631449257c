package resolution

import (
	"sync"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

type ledgerEntry struct {
	history model.ConflictResolutionHistory
	before  model.AssignmentSnapshot
}

// Ledger is the in-memory resolution history of one session. It keeps the
// snapshot taken right before each application so it can be restored.
type Ledger struct {
	mu      sync.Mutex
	entries []ledgerEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends h with the snapshot it was applied on.
func (l *Ledger) Record(h model.ConflictResolutionHistory, before model.AssignmentSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ledgerEntry{history: h, before: before})
}

// Entries returns the current state of every entry in application order.
func (l *Ledger) Entries() []model.ConflictResolutionHistory {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ConflictResolutionHistory, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.history
	}
	return out
}

// Get returns the entry with id.
func (l *Ledger) Get(id string) (model.ConflictResolutionHistory, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.history.ID == id {
			return e.history, true
		}
	}
	return model.ConflictResolutionHistory{}, false
}

// Revert restores the snapshot that preceded the successful entry id and
// marks it reverted. Later successful entries were built on top of it and
// are reverted too. The updated entries are returned, the target first.
func (l *Ledger) Revert(id string, now time.Time) (model.AssignmentSnapshot, []model.ConflictResolutionHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := -1
	for i, e := range l.entries {
		if e.history.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return model.AssignmentSnapshot{}, nil, &model.InvalidRevertError{HistoryID: id}
	}
	target := l.entries[pos]
	if target.history.Outcome != model.OutcomeSuccessful {
		return model.AssignmentSnapshot{}, nil, &model.InvalidRevertError{HistoryID: id, Outcome: target.history.Outcome}
	}

	var updated []model.ConflictResolutionHistory
	for i := pos; i < len(l.entries); i++ {
		h := &l.entries[i].history
		if h.Outcome != model.OutcomeSuccessful {
			continue
		}
		at := now
		h.Outcome = model.OutcomeReverted
		h.RevertedAt = &at
		if i != pos {
			h.Notes = appendNote(h.Notes, "reverted with "+id)
		}
		updated = append(updated, *h)
	}
	restored := target.before
	restored.Assignments = target.before.Copy()
	return restored, updated, nil
}

func appendNote(notes, n string) string {
	if notes == "" {
		return n
	}
	return notes + "; " + n
}
