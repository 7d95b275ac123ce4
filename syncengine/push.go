package syncengine

import (
	"context"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/ical"
)

// PushStatus classifies what happened to a single queued op during
// Push (spec §4.6 step 2-3).
type PushStatus int

const (
	// PushApplied means the op reached the server with no conflict.
	PushApplied PushStatus = iota
	// PushConflictResolved means a 412 was resolved by the chosen
	// ConflictStrategy, one way or another (see Err for Manual).
	PushConflictResolved
	// PushRequeued means a NetworkError or other retriable failure
	// left the op in the pending queue for the next Push.
	PushRequeued
	// PushDeadLettered means the op was dropped with its cause
	// recorded in Err (spec §4.6 step 3).
	PushDeadLettered
)

// PushOutcome reports what happened to one op during a Push call.
type PushOutcome struct {
	Op     Op
	Status PushStatus
	Href   string
	ETag   string
	Err    error
}

// Push implements spec §4.6's push algorithm: coalesce the pending
// queue, then execute each surviving op serially against the server,
// requeueing, dead-lettering, or conflict-resolving as each op's
// result demands.
func (e *Engine) Push(ctx context.Context, calendarPath string, strategy ConflictStrategy) []PushOutcome {
	ce := e.entry(calendarPath)
	ce.mu.Lock()
	defer ce.mu.Unlock()

	coalesced := Coalesce(ce.state.PendingOps)
	outcomes := make([]PushOutcome, 0, len(coalesced))
	var remaining []Op

	for _, op := range coalesced {
		outcome, keep := e.pushOne(ctx, calendarPath, ce, op, strategy)
		outcomes = append(outcomes, outcome)
		if keep {
			remaining = append(remaining, op)
		}
	}
	ce.state.PendingOps = remaining
	return outcomes
}

func (e *Engine) pushOne(ctx context.Context, calendarPath string, ce *calendarEntry, op Op, strategy ConflictStrategy) (PushOutcome, bool) {
	switch o := op.(type) {
	case CreateOp:
		return e.pushCreate(ctx, calendarPath, ce, o)
	case UpdateOp:
		return e.pushUpdate(ctx, calendarPath, ce, o, strategy)
	case DeleteOp:
		return e.pushDelete(ctx, calendarPath, ce, o, strategy)
	default:
		return PushOutcome{Op: op, Status: PushDeadLettered, Err: &icaldav.ValidationError{Message: "unknown op type"}}, false
	}
}

func (e *Engine) pushCreate(ctx context.Context, calendarPath string, ce *calendarEntry, o CreateOp) (PushOutcome, bool) {
	event, err := parseSingleEvent(o.RawICal)
	if err != nil {
		return PushOutcome{Op: o, Status: PushDeadLettered, Err: err}, false
	}
	event.UID = o.UID

	result := e.client.CreateEvent(ctx, calendarPath, event)
	put, ok := result.Unwrap()
	if ok {
		ce.state.LocalETags[put.Href] = put.ETag
		return PushOutcome{Op: o, Status: PushApplied, Href: put.Href, ETag: put.ETag}, false
	}
	// A 412 here means a concurrent create already claimed this UID;
	// there is no href yet to refetch a remote version against, so
	// this is dead-lettered rather than routed through the conflict
	// strategy (classifyFailure's default case).
	return classifyFailure(o, result.Error())
}

func (e *Engine) pushUpdate(ctx context.Context, calendarPath string, ce *calendarEntry, o UpdateOp, strategy ConflictStrategy) (PushOutcome, bool) {
	event, err := parseSingleEvent(o.RawICal)
	if err != nil {
		return PushOutcome{Op: o, Status: PushDeadLettered, Err: err}, false
	}

	result := e.client.UpdateEvent(ctx, o.Href, event, o.BaseETag)
	etag, ok := result.Unwrap()
	if ok {
		ce.state.LocalETags[o.Href] = etag
		return PushOutcome{Op: o, Status: PushApplied, Href: o.Href, ETag: etag}, false
	}
	if httpErr, isHTTP := result.Error().(*icaldav.HttpError); isHTTP && httpErr.Code == 412 {
		return e.resolveUpdateConflict(ctx, calendarPath, ce, o, event, strategy)
	}
	return classifyFailure(o, result.Error())
}

func (e *Engine) resolveUpdateConflict(ctx context.Context, calendarPath string, ce *calendarEntry, o UpdateOp, local *ical.Event, strategy ConflictStrategy) (PushOutcome, bool) {
	remote, remoteETag, err := e.fetchRemote(ctx, calendarPath, o.Href)
	if err != nil {
		return PushOutcome{Op: o, Status: PushRequeued, Err: err}, true
	}

	var localModified time.Time
	if local.LastModified != nil {
		localModified = *local.LastModified
	}
	switch resolveConflict(strategy, localModified, remote) {
	case ResubmitLocal:
		retry := e.client.UpdateEvent(ctx, o.Href, local, remoteETag)
		etag, ok := retry.Unwrap()
		if ok {
			ce.state.LocalETags[o.Href] = etag
			return PushOutcome{Op: o, Status: PushConflictResolved, Href: o.Href, ETag: etag}, false
		}
		return classifyFailure(o, retry.Error())
	case KeepQueued:
		return PushOutcome{Op: o, Status: PushConflictResolved, Err: &icaldav.Conflict{Local: local, Remote: remote}}, true
	default: // AdoptServer
		if remote != nil {
			ce.state.LocalETags[o.Href] = remoteETag
		}
		return PushOutcome{Op: o, Status: PushConflictResolved, Href: o.Href, ETag: remoteETag}, false
	}
}

func (e *Engine) pushDelete(ctx context.Context, calendarPath string, ce *calendarEntry, o DeleteOp, strategy ConflictStrategy) (PushOutcome, bool) {
	result := e.client.DeleteEvent(ctx, o.Href, o.BaseETag)
	_, ok := result.Unwrap()
	if ok {
		delete(ce.state.LocalETags, o.Href)
		return PushOutcome{Op: o, Status: PushApplied, Href: o.Href}, false
	}
	if httpErr, isHTTP := result.Error().(*icaldav.HttpError); isHTTP && httpErr.Code == 412 {
		return e.resolveDeleteConflict(ctx, calendarPath, ce, o, strategy)
	}
	return classifyFailure(o, result.Error())
}

func (e *Engine) resolveDeleteConflict(ctx context.Context, calendarPath string, ce *calendarEntry, o DeleteOp, strategy ConflictStrategy) (PushOutcome, bool) {
	remote, remoteETag, err := e.fetchRemote(ctx, calendarPath, o.Href)
	if err != nil {
		return PushOutcome{Op: o, Status: PushRequeued, Err: err}, true
	}

	// A delete carries no local timestamp, so NewestWins always
	// degrades to AdoptServer here (see resolveConflict's doc comment).
	switch resolveConflict(strategy, time.Time{}, remote) {
	case ResubmitLocal:
		retry := e.client.DeleteEvent(ctx, o.Href, remoteETag)
		_, ok := retry.Unwrap()
		if ok {
			delete(ce.state.LocalETags, o.Href)
			return PushOutcome{Op: o, Status: PushConflictResolved, Href: o.Href}, false
		}
		return classifyFailure(o, retry.Error())
	case KeepQueued:
		return PushOutcome{Op: o, Status: PushConflictResolved, Err: &icaldav.Conflict{Local: nil, Remote: remote}}, true
	default: // AdoptServer: the server's version survives, the delete is dropped.
		if remote != nil {
			ce.state.LocalETags[o.Href] = remoteETag
		}
		return PushOutcome{Op: o, Status: PushConflictResolved, Href: o.Href, ETag: remoteETag}, false
	}
}

func (e *Engine) fetchRemote(ctx context.Context, calendarPath, href string) (*ical.Event, string, error) {
	result := e.client.FetchEventsByHref(ctx, calendarPath, []string{href})
	events, ok := result.Unwrap()
	if !ok {
		return nil, "", result.Error()
	}
	if len(events) == 0 {
		return nil, "", nil
	}
	return events[0].Event, events[0].ETag, nil
}

func parseSingleEvent(raw []byte) (*ical.Event, error) {
	cal, _, err := ical.ParseCalendar(raw)
	if err != nil {
		return nil, err
	}
	if cal == nil || len(cal.Events) == 0 {
		return nil, &icaldav.ParseError{Message: "sync engine: no VEVENT in queued op's raw_ical"}
	}
	return cal.Events[0], nil
}

// classifyFailure implements spec §4.6 step 3: NetworkError requeues,
// HttpError{400,403,404,405,409} dead-letters, anything else
// retriable (5xx) requeues, and everything else dead-letters.
func classifyFailure(op Op, err error) (PushOutcome, bool) {
	if _, isNet := err.(*icaldav.NetworkError); isNet {
		return PushOutcome{Op: op, Status: PushRequeued, Err: err}, true
	}
	if httpErr, isHTTP := err.(*icaldav.HttpError); isHTTP {
		switch httpErr.Code {
		case 400, 403, 404, 405, 409:
			return PushOutcome{Op: op, Status: PushDeadLettered, Err: err}, false
		}
	}
	if icaldav.Retriable(err) {
		return PushOutcome{Op: op, Status: PushRequeued, Err: err}, true
	}
	return PushOutcome{Op: op, Status: PushDeadLettered, Err: err}, false
}
