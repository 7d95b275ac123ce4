package syncengine

import (
	"time"

	"github.com/nyxcal/icaldav/ical"
)

// ConflictStrategy selects how a 412 encountered during push is
// resolved (spec §4.6's table). Chosen per call to Push, not fixed on
// the Engine, since different callers pushing to the same calendar may
// want different behaviour.
type ConflictStrategy int

const (
	// ServerWins discards the local change and adopts the server's
	// version.
	ServerWins ConflictStrategy = iota
	// LocalWins refetches the remote etag and resubmits the local
	// change against it.
	LocalWins
	// NewestWins compares LastModified timestamps; the later one wins,
	// ties broken toward the server.
	NewestWins
	// Manual surfaces both versions to the application and leaves the
	// op queued until the caller resolves it out of band.
	Manual
)

// ConflictAction is what the push loop should do once a strategy has
// judged a conflict.
type ConflictAction int

const (
	// AdoptServer drops the local op; the server's version stands.
	AdoptServer ConflictAction = iota
	// ResubmitLocal retries the op against the server's current etag.
	ResubmitLocal
	// KeepQueued leaves the op pending for manual resolution.
	KeepQueued
)

// resolveConflict applies strategy to a single 412. localModified is
// the zero time for ops with no local timestamp of their own (a
// DeleteOp carries no event body to date), which means NewestWins
// degrades to AdoptServer for deletes — without a timestamp to compare
// against, a delete is never assumed to be the newer change.
func resolveConflict(strategy ConflictStrategy, localModified time.Time, remote *ical.Event) ConflictAction {
	switch strategy {
	case LocalWins:
		return ResubmitLocal
	case NewestWins:
		var remoteModified time.Time
		if remote != nil && remote.LastModified != nil {
			remoteModified = *remote.LastModified
		}
		if localModified.After(remoteModified) {
			return ResubmitLocal
		}
		return AdoptServer
	case Manual:
		return KeepQueued
	default:
		return AdoptServer
	}
}
