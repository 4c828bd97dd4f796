package progress

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Tracker maps job IDs to a 0-100 completion percentage. Each entry is
// written only by the run that owns the job; readers never block it.
type Tracker struct {
	m *xsync.MapOf[string, float64]
}

func NewTracker() *Tracker {
	return &Tracker{m: xsync.NewMapOf[string, float64]()}
}

// Set records pct for id and returns the stored value. Values are clamped
// to [0,100] and never move backwards while the entry exists.
func (t *Tracker) Set(id string, pct float64) float64 {
	pct = max(0, min(pct, 100))
	stored, _ := t.m.Compute(id, func(old float64, loaded bool) (float64, bool) {
		if loaded && old > pct {
			return old, false
		}
		return pct, false
	})
	return stored
}

// Get returns the current percentage and whether the job has an entry.
func (t *Tracker) Get(id string) (float64, bool) {
	return t.m.Load(id)
}

// Clear drops the entry, e.g. after a failed run.
func (t *Tracker) Clear(id string) {
	t.m.Delete(id)
}

func (t *Tracker) Len() int { return t.m.Size() }
