package timeline

import (
	"context"
	"fmt"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/store"
)

// Timeline is one recipient's view of a timeline type.
type Timeline struct {
	typ       *Type
	recipient Recipient
	store     store.Store
	catalog   activity.Catalog
}

// New returns the timeline of typ owned by recipient.
func New(typ *Type, recipient Recipient, st store.Store, cat activity.Catalog) *Timeline {
	return &Timeline{typ: typ, recipient: recipient, store: st, catalog: cat}
}

func (t *Timeline) Type() *Type          { return t.typ }
func (t *Timeline) Kind() string         { return t.typ.kind }
func (t *Timeline) Recipient() Recipient { return t.recipient }
func (t *Timeline) RecipientID() string  { return t.recipient.ID }

// HandleActivity delivers a to this timeline through route. It returns nil
// without error when a gate vetoes the delivery or, for deduplicating types,
// when the same activity already arrived through the same routing kind.
// Entries beyond MaxLength are pruned after the store; a failed prune is
// reported alongside the stored entry.
func (t *Timeline) HandleActivity(ctx context.Context, a *activity.Activity, route *Route) (*Entry, error) {
	if route == nil || route.timeline != t.typ {
		return nil, domain.Configf(t.typ.kind, "route does not belong to this timeline")
	}
	if a.Kind() != route.activityKind {
		return nil, domain.Configf(route.String(), "cannot handle %s activities", a.Kind())
	}
	for _, gate := range t.typ.shouldHandle {
		if !gate(ctx, a, route) {
			return nil, nil
		}
	}

	if t.typ.dedupe && a.IsStored() {
		seen, err := t.store.HasTimelineEntry(ctx, t.typ.kind, store.EntryKey{
			RecipientID: t.recipient.ID,
			ActivityID:  a.ID(),
			RoutingKind: route.routingKind,
		})
		if err != nil {
			return nil, fmt.Errorf("checking %s entries: %w", t.typ.kind, err)
		}
		if seen {
			return nil, nil
		}
	}

	entry := &Entry{
		typ:         t.typ,
		RecipientID: t.recipient.ID,
		Recipient:   t.recipient,
		RoutingKind: route.routingKind,
		Activity:    a.Clone(),
		Meta:        make(map[string]any),
	}
	for _, gate := range t.typ.shouldStore {
		if !gate(ctx, entry) {
			return nil, nil
		}
	}
	for _, hook := range t.typ.willStore {
		hook(ctx, entry)
	}
	if err := entry.Store(ctx, t.store); err != nil {
		return nil, err
	}
	for _, hook := range t.typ.didStore {
		hook(ctx, entry)
	}

	if t.typ.maxLength > 0 {
		if _, err := t.Trim(ctx); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

// Fetch returns entries newest first by embedded activity timestamp.
func (t *Timeline) Fetch(ctx context.Context, limit, skip int) ([]*Entry, error) {
	recs, err := t.store.QueryTimelineEntries(ctx, t.typ.kind, t.recipient.ID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("fetching %s for %s: %w", t.typ.kind, t.recipient.ID, err)
	}
	out := make([]*Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := EntryFromRecord(t.typ, t.catalog, rec)
		if err != nil {
			return nil, err
		}
		e.Recipient = t.recipient
		out = append(out, e)
	}
	return out, nil
}

func (t *Timeline) Count(ctx context.Context) (int, error) {
	n, err := t.store.CountTimelineEntries(ctx, t.typ.kind, t.recipient.ID)
	if err != nil {
		return 0, fmt.Errorf("counting %s for %s: %w", t.typ.kind, t.recipient.ID, err)
	}
	return n, nil
}

// Get returns the entry with id when it belongs to this recipient.
func (t *Timeline) Get(ctx context.Context, id string) (*Entry, error) {
	rec, err := t.store.FetchTimelineEntry(ctx, t.typ.kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetching %s entry %s: %w", t.typ.kind, id, err)
	}
	if rec == nil || rec.RecipientID != t.recipient.ID {
		return nil, fmt.Errorf("%s entry %s: %w", t.typ.kind, id, domain.ErrNotFound)
	}
	e, err := EntryFromRecord(t.typ, t.catalog, *rec)
	if err != nil {
		return nil, err
	}
	e.Recipient = t.recipient
	return e, nil
}

// Trim deletes entries beyond MaxLength, oldest first, and reports how many went.
func (t *Timeline) Trim(ctx context.Context) (int64, error) {
	if t.typ.maxLength <= 0 {
		return 0, nil
	}
	excess, err := t.store.QueryTimelineEntries(ctx, t.typ.kind, t.recipient.ID, 0, t.typ.maxLength)
	if err != nil {
		return 0, fmt.Errorf("trimming %s for %s: %w", t.typ.kind, t.recipient.ID, err)
	}
	if len(excess) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(excess))
	for _, rec := range excess {
		ids = append(ids, rec.ID)
	}
	n, err := t.store.DeleteTimelineEntries(ctx, t.typ.kind, store.Filter{RecipientID: t.recipient.ID, IDs: ids})
	if err != nil {
		return 0, fmt.Errorf("trimming %s for %s: %w", t.typ.kind, t.recipient.ID, err)
	}
	return n, nil
}
