// Package syncengine implements the offline sync engine (spec §4.6):
// per-calendar operation queueing with coalescing, pull/push
// reconciliation against a CalDAV server, and pluggable
// conflict-resolution strategies.
package syncengine

// Op is one queued local mutation, tagged by which concrete type it
// holds (spec §4.6's Op union).
type Op interface {
	opUID() string
}

// CreateOp queues a new event for upload. UID identifies it before the
// server has ever seen it.
type CreateOp struct {
	UID     string
	RawICal []byte
}

func (o CreateOp) opUID() string { return o.UID }

// UpdateOp queues a change to an existing event, guarded by the etag
// the local copy was last known to match.
type UpdateOp struct {
	Href     string
	UID      string
	RawICal  []byte
	BaseETag string
}

func (o UpdateOp) opUID() string { return o.UID }

// DeleteOp queues removal of an existing event.
type DeleteOp struct {
	Href     string
	UID      string
	BaseETag string
}

func (o DeleteOp) opUID() string { return o.UID }

// Coalesce applies spec §4.6's push-algorithm step 1: operations
// queued against the same UID collapse according to the rules
//
//	C then U -> C(latest)
//	C then D -> (dropped entirely)
//	U then U -> U(latest)
//	U then D -> D
//
// Ops for different UIDs are left untouched and relative order among
// distinct UIDs is preserved.
func Coalesce(ops []Op) []Op {
	order := make([]string, 0, len(ops))
	byUID := make(map[string][]Op)
	for _, op := range ops {
		uid := op.opUID()
		if _, seen := byUID[uid]; !seen {
			order = append(order, uid)
		}
		byUID[uid] = append(byUID[uid], op)
	}

	out := make([]Op, 0, len(ops))
	for _, uid := range order {
		reduced := coalesceOne(byUID[uid])
		if reduced != nil {
			out = append(out, reduced)
		}
	}
	return out
}

// coalesceOne reduces the sequence of ops queued for a single UID to
// at most one, per the table in Coalesce's doc comment.
func coalesceOne(seq []Op) Op {
	var acc Op
	for _, op := range seq {
		switch next := op.(type) {
		case CreateOp:
			acc = next
		case UpdateOp:
			switch acc.(type) {
			case CreateOp:
				// C then U: the create hasn't reached the server yet,
				// so fold the update's body into it and keep it a Create.
				c := acc.(CreateOp)
				c.RawICal = next.RawICal
				acc = c
			default:
				acc = next
			}
		case DeleteOp:
			switch acc.(type) {
			case CreateOp:
				// C then D: never existed on the server, drop both.
				acc = nil
			default:
				acc = next
			}
		}
	}
	return acc
}
