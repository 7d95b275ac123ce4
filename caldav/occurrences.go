package caldav

import (
	"context"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/ical"
	"github.com/nyxcal/icaldav/recurrence"
)

// FetchOccurrences is spec §2's stated use of the Recurrence Engine "on
// events fetched from the server": it runs FetchEvents and then expands
// every recurring master it finds into concrete occurrence instances
// within [start, end), replacing any instance whose RECURRENCE-ID
// matches a sibling override also returned by the query (spec §4.2).
// Non-recurring events pass through unchanged. Each occurrence keeps
// its master's Href/ETag/RawICal, since all instances of one recurring
// object live at the same CalDAV resource.
func (c *Client) FetchOccurrences(ctx context.Context, calendarPath string, start, end time.Time) icaldav.DavResult[[]EventWithMetadata] {
	fetched := c.FetchEvents(ctx, calendarPath, start, end)
	items, ok := fetched.Unwrap()
	if !ok {
		return icaldav.Err[[]EventWithMetadata](fetched.Error())
	}
	return icaldav.Ok(ExpandOccurrences(items, start, end))
}

// ExpandOccurrences applies the Recurrence Engine to a batch of fetched
// or locally held events, grouping overrides under their master by UID
// (spec §4.2's override mapping) before calling recurrence.Expand on
// each master. It is exported so an application can run the same
// expansion over "local events the application wishes to enumerate"
// (spec §2), not only over a live FetchEvents/FetchOccurrences result.
func ExpandOccurrences(items []EventWithMetadata, start, end time.Time) []EventWithMetadata {
	type group struct {
		master    *EventWithMetadata
		overrides []*ical.Event
	}
	groups := make(map[string]*group)
	var order []string

	for i := range items {
		it := &items[i]
		uid := it.Event.UID
		g, exists := groups[uid]
		if !exists {
			g = &group{}
			groups[uid] = g
			order = append(order, uid)
		}
		if it.Event.RecurrenceID != nil {
			g.overrides = append(g.overrides, it.Event)
			continue
		}
		if g.master == nil {
			g.master = it
		}
	}

	window := recurrence.TimeRange{Start: start, End: end}
	out := make([]EventWithMetadata, 0, len(items))
	for _, uid := range order {
		g := groups[uid]
		if g.master == nil {
			// Overrides with no master in this batch (e.g. a partial
			// multiget): surface them as-is rather than dropping them.
			for _, ov := range g.overrides {
				out = append(out, EventWithMetadata{Event: ov})
			}
			continue
		}
		occurrences, err := recurrence.Expand(g.master.Event, window, g.overrides, recurrence.DefaultBudget())
		if err != nil {
			out = append(out, *g.master)
			continue
		}
		for _, occ := range occurrences {
			out = append(out, EventWithMetadata{
				Event:   occ,
				Href:    g.master.Href,
				ETag:    g.master.ETag,
				RawICal: g.master.RawICal,
			})
		}
	}
	return out
}
