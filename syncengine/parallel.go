package syncengine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PullAll runs Pull against each calendar in calendarPaths
// concurrently (spec §5: "across calendars [pull/push] may proceed in
// parallel"). windows supplies the active range per calendar path;
// callbacksFor, if non-nil, returns the ChangeCallbacks to dispatch
// for a given calendar. The first calendar to fail cancels the others
// via gctx, matching errgroup's usual fail-fast semantics.
func (e *Engine) PullAll(ctx context.Context, calendarPaths []string, windows map[string]Window, callbacksFor func(calendarPath string) ChangeCallbacks) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range calendarPaths {
		path := path
		g.Go(func() error {
			var cb ChangeCallbacks
			if callbacksFor != nil {
				cb = callbacksFor(path)
			}
			return e.Pull(gctx, path, windows[path], cb)
		})
	}
	return g.Wait()
}

// PushAll runs Push against each calendar in calendarPaths
// concurrently, returning every calendar's outcomes keyed by path.
// Push itself never returns a top-level error — failures surface
// per-op in PushOutcome — so one calendar's failures never prevent
// another's ops from being attempted.
func (e *Engine) PushAll(ctx context.Context, calendarPaths []string, strategy ConflictStrategy) map[string][]PushOutcome {
	results := make(map[string][]PushOutcome, len(calendarPaths))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, path := range calendarPaths {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes := e.Push(ctx, path, strategy)
			mu.Lock()
			results[path] = outcomes
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
