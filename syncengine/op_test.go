package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesceCreateThenUpdateFoldsIntoLatestCreate(t *testing.T) {
	ops := []Op{
		CreateOp{UID: "e1", RawICal: []byte("v1")},
		UpdateOp{UID: "e1", Href: "/e1.ics", RawICal: []byte("v2")},
	}
	got := Coalesce(ops)
	a := assert.New(t)
	a.Len(got, 1)
	create, ok := got[0].(CreateOp)
	a.True(ok)
	a.Equal([]byte("v2"), create.RawICal)
}

func TestCoalesceCreateThenDeleteDropsBoth(t *testing.T) {
	ops := []Op{
		CreateOp{UID: "e1", RawICal: []byte("v1")},
		DeleteOp{UID: "e1", Href: "/e1.ics"},
	}
	got := Coalesce(ops)
	assert.Empty(t, got)
}

func TestCoalesceUpdateThenUpdateKeepsLatest(t *testing.T) {
	ops := []Op{
		UpdateOp{UID: "e1", Href: "/e1.ics", RawICal: []byte("v1"), BaseETag: "a"},
		UpdateOp{UID: "e1", Href: "/e1.ics", RawICal: []byte("v2"), BaseETag: "b"},
	}
	got := Coalesce(ops)
	assert.Len(t, got, 1)
	update, ok := got[0].(UpdateOp)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), update.RawICal)
	assert.Equal(t, "b", update.BaseETag)
}

func TestCoalesceUpdateThenDeleteBecomesDelete(t *testing.T) {
	ops := []Op{
		UpdateOp{UID: "e1", Href: "/e1.ics", RawICal: []byte("v1")},
		DeleteOp{UID: "e1", Href: "/e1.ics", BaseETag: "etag"},
	}
	got := Coalesce(ops)
	assert.Len(t, got, 1)
	del, ok := got[0].(DeleteOp)
	assert.True(t, ok)
	assert.Equal(t, "etag", del.BaseETag)
}

func TestCoalescePreservesOrderAcrossDistinctUIDs(t *testing.T) {
	ops := []Op{
		CreateOp{UID: "e1"},
		CreateOp{UID: "e2"},
		UpdateOp{UID: "e1", Href: "/e1.ics"},
	}
	got := Coalesce(ops)
	assert.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].opUID())
	assert.Equal(t, "e2", got[1].opUID())
}
