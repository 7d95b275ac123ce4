package syncengine

import "time"

// CalendarState is the per-calendar state the engine tracks (spec
// §4.6): a sync token and/or ctag for change detection, the last time
// a full reconciliation ran, a local href->etag map built from the
// last successful pull, and a queue of not-yet-pushed local
// operations.
//
// Callers that want to persist this across process restarts copy the
// fields they need (spec §6's "persisted state layout" names the same
// shape) — the engine itself holds this only in memory.
type CalendarState struct {
	SyncToken      string
	CTag           string
	LastFullSyncAt time.Time
	LocalETags     map[string]string
	PendingOps     []Op
}

func newCalendarState() *CalendarState {
	return &CalendarState{LocalETags: make(map[string]string)}
}

// Snapshot returns a deep-enough copy safe for a caller to persist or
// inspect without racing the engine's own mutation of it.
func (s *CalendarState) Snapshot() CalendarState {
	cp := CalendarState{
		SyncToken:      s.SyncToken,
		CTag:           s.CTag,
		LastFullSyncAt: s.LastFullSyncAt,
		LocalETags:     make(map[string]string, len(s.LocalETags)),
		PendingOps:     append([]Op(nil), s.PendingOps...),
	}
	for k, v := range s.LocalETags {
		cp.LocalETags[k] = v
	}
	return cp
}
