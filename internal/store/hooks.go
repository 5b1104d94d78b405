package store

import (
	"context"
	"sync"
)

// ActivityHook mutates an activity record in place.
type ActivityHook func(ctx context.Context, rec *ActivityRecord)

// EntryHook mutates a timeline entry record in place.
type EntryHook func(ctx context.Context, timelineKind string, rec *EntryRecord)

// Hooks is the process-wide set of storage hook points. Hooks are registered
// at startup and invoked synchronously in registration order.
type Hooks struct {
	mu                      sync.RWMutex
	willInsertActivity      []ActivityHook
	didFetchActivity        []ActivityHook
	willInsertTimelineEntry []EntryHook
	didFetchTimelineEntry   []EntryHook
}

func (h *Hooks) WillInsertActivity(fn ActivityHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.willInsertActivity = append(h.willInsertActivity, fn)
}

func (h *Hooks) DidFetchActivity(fn ActivityHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.didFetchActivity = append(h.didFetchActivity, fn)
}

func (h *Hooks) WillInsertTimelineEntry(fn EntryHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.willInsertTimelineEntry = append(h.willInsertTimelineEntry, fn)
}

func (h *Hooks) DidFetchTimelineEntry(fn EntryHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.didFetchTimelineEntry = append(h.didFetchTimelineEntry, fn)
}

func (h *Hooks) activityHooks(will bool) []ActivityHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if will {
		return h.willInsertActivity
	}
	return h.didFetchActivity
}

func (h *Hooks) entryHooks(will bool) []EntryHook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if will {
		return h.willInsertTimelineEntry
	}
	return h.didFetchTimelineEntry
}

var _ Store = (*Hooked)(nil)

// Hooked runs Hooks around an underlying Store.
type Hooked struct {
	Store
	hooks *Hooks
}

// WithHooks wraps s so every insert and fetch passes through hooks.
func WithHooks(s Store, hooks *Hooks) *Hooked {
	if hooks == nil {
		hooks = &Hooks{}
	}
	return &Hooked{Store: s, hooks: hooks}
}

func (h *Hooked) InsertActivity(ctx context.Context, rec ActivityRecord) (string, error) {
	for _, fn := range h.hooks.activityHooks(true) {
		fn(ctx, &rec)
	}
	return h.Store.InsertActivity(ctx, rec)
}

func (h *Hooked) FetchActivity(ctx context.Context, id string) (*ActivityRecord, error) {
	rec, err := h.Store.FetchActivity(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	for _, fn := range h.hooks.activityHooks(false) {
		fn(ctx, rec)
	}
	return rec, nil
}

func (h *Hooked) QueryActivities(ctx context.Context, filter Filter, opts QueryOptions) ([]ActivityRecord, error) {
	recs, err := h.Store.QueryActivities(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	hooks := h.hooks.activityHooks(false)
	for i := range recs {
		for _, fn := range hooks {
			fn(ctx, &recs[i])
		}
	}
	return recs, nil
}

func (h *Hooked) InsertTimelineEntry(ctx context.Context, timelineKind string, rec EntryRecord) (string, error) {
	for _, fn := range h.hooks.entryHooks(true) {
		fn(ctx, timelineKind, &rec)
	}
	return h.Store.InsertTimelineEntry(ctx, timelineKind, rec)
}

func (h *Hooked) FetchTimelineEntry(ctx context.Context, timelineKind, id string) (*EntryRecord, error) {
	rec, err := h.Store.FetchTimelineEntry(ctx, timelineKind, id)
	if err != nil || rec == nil {
		return rec, err
	}
	for _, fn := range h.hooks.entryHooks(false) {
		fn(ctx, timelineKind, rec)
	}
	return rec, nil
}

func (h *Hooked) QueryTimelineEntries(ctx context.Context, timelineKind, recipientID string, limit, skip int) ([]EntryRecord, error) {
	recs, err := h.Store.QueryTimelineEntries(ctx, timelineKind, recipientID, limit, skip)
	if err != nil {
		return nil, err
	}
	hooks := h.hooks.entryHooks(false)
	for i := range recs {
		for _, fn := range hooks {
			fn(ctx, timelineKind, &recs[i])
		}
	}
	return recs, nil
}
