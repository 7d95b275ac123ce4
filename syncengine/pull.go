package syncengine

import (
	"context"
	"time"

	"github.com/nyxcal/icaldav"
	"github.com/nyxcal/icaldav/caldav"
	"github.com/nyxcal/icaldav/ical"
)

// Pull implements spec §4.6's pull algorithm: sync-collection when a
// valid token is held, falling back to a ctag-gated etag diff across
// window when the token is absent or invalidated, dispatching Added /
// Modified / Deleted to callbacks as changes are discovered.
func (e *Engine) Pull(ctx context.Context, calendarPath string, window Window, callbacks ChangeCallbacks) error {
	ce := e.entry(calendarPath)
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if ce.state.SyncToken != "" {
		done, err := e.pullViaSyncToken(ctx, calendarPath, ce, callbacks)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// Token was invalid (pullViaSyncToken has cleared
		// ce.state.SyncToken) or the server does not support
		// sync-collection; fall through to the ctag diff.
	}
	return e.pullViaCTagDiff(ctx, calendarPath, ce, window, callbacks)
}

// pullViaSyncToken attempts step 1 of the pull algorithm. done is true
// when sync-collection was used (whether or not it reported changes);
// it is false when the server doesn't support sync-collection or the
// held token was rejected, meaning the caller must fall back to step 2.
func (e *Engine) pullViaSyncToken(ctx context.Context, calendarPath string, ce *calendarEntry, callbacks ChangeCallbacks) (done bool, err error) {
	result := e.client.SyncCollectionIfSupported(ctx, calendarPath, ce.state.SyncToken, 0)
	sr, ok := result.Unwrap()
	if !ok {
		if httpErr, isHTTP := result.Error().(*icaldav.HttpError); isHTTP && e.quirks.IsInvalidSyncToken(httpErr.Code) {
			ce.state.SyncToken = ""
			return false, nil
		}
		return false, result.Error()
	}
	if sr == nil {
		// Server doesn't advertise sync-collection support at all.
		return false, nil
	}

	for _, href := range sr.Deleted {
		delete(ce.state.LocalETags, href)
		if callbacks != nil {
			callbacks.Deleted(href)
		}
	}
	for _, added := range sr.Added {
		e.dispatchEventChange(ce, callbacks, added.Event, added.Href, added.ETag)
	}
	if len(sr.AddedHrefs) > 0 {
		if err := e.resolveAddedHrefs(ctx, calendarPath, ce, sr.AddedHrefs, callbacks); err != nil {
			return false, err
		}
	}
	ce.state.SyncToken = sr.NewSyncToken
	return true, nil
}

// pullViaCTagDiff implements step 2: compare the stored ctag, and when
// it has changed, diff fetch_etags_in_range's result against the local
// etag map before multigetting only what actually changed.
func (e *Engine) pullViaCTagDiff(ctx context.Context, calendarPath string, ce *calendarEntry, window Window, callbacks ChangeCallbacks) error {
	ctagResult := e.client.GetCTag(ctx, calendarPath)
	ctag, ok := ctagResult.Unwrap()
	if !ok {
		return ctagResult.Error()
	}
	if ctag != "" && ctag == ce.state.CTag {
		return nil
	}

	etagsResult := e.client.FetchETagsInRange(ctx, calendarPath, window.Start, window.End)
	hrefETags, ok := etagsResult.Unwrap()
	if !ok {
		return etagsResult.Error()
	}

	seen := make(map[string]bool, len(hrefETags))
	var changed []string
	for _, he := range hrefETags {
		seen[he.Href] = true
		if prior, existed := ce.state.LocalETags[he.Href]; !existed || prior != he.ETag {
			changed = append(changed, he.Href)
		}
	}
	for href := range ce.state.LocalETags {
		if !seen[href] {
			delete(ce.state.LocalETags, href)
			if callbacks != nil {
				callbacks.Deleted(href)
			}
		}
	}

	if len(changed) > 0 {
		eventsResult := e.client.FetchEventsByHref(ctx, calendarPath, changed)
		events, ok := eventsResult.Unwrap()
		if !ok {
			return eventsResult.Error()
		}
		for _, ev := range events {
			e.dispatchEventChange(ce, callbacks, ev.Event, ev.Href, ev.ETag)
		}
	}

	ce.state.CTag = ctag
	ce.state.LastFullSyncAt = time.Now()
	return nil
}

// resolveAddedHrefs handles the iCloud case (spec §4.5): sync-collection
// reported hrefs changed without inline calendar-data, so a follow-up
// multiget fetches the bodies before dispatch.
func (e *Engine) resolveAddedHrefs(ctx context.Context, calendarPath string, ce *calendarEntry, hrefs []caldav.HrefETag, callbacks ChangeCallbacks) error {
	paths := make([]string, len(hrefs))
	for i, he := range hrefs {
		paths[i] = he.Href
	}
	result := e.client.FetchEventsByHref(ctx, calendarPath, paths)
	events, ok := result.Unwrap()
	if !ok {
		return result.Error()
	}
	for _, ev := range events {
		e.dispatchEventChange(ce, callbacks, ev.Event, ev.Href, ev.ETag)
	}
	return nil
}

// dispatchEventChange records href's new etag locally and tells
// callbacks whether this is a first sighting (Added) or a change to a
// previously known resource (Modified).
func (e *Engine) dispatchEventChange(ce *calendarEntry, callbacks ChangeCallbacks, event *ical.Event, href, etag string) {
	_, known := ce.state.LocalETags[href]
	ce.state.LocalETags[href] = etag
	if callbacks == nil {
		return
	}
	if known {
		callbacks.Modified(event, href, etag)
	} else {
		callbacks.Added(event, href, etag)
	}
}
