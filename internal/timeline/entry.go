package timeline

import (
	"context"
	"errors"
	"fmt"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/render"
	"feedcraft/internal/store"
)

// ErrMalformedEntry is returned for stored entries that no longer match a declared route.
var ErrMalformedEntry = errors.New("malformed timeline entry")

// Entry is one timeline row: an immutable copy of an activity delivered to a
// recipient through a routing kind. Activity and Meta may be adjusted by
// will-store hooks before the entry is persisted.
type Entry struct {
	id          string
	typ         *Type
	RecipientID string
	Recipient   Recipient
	RoutingKind string
	Activity    *activity.Activity
	Meta        map[string]any
}

func (e *Entry) ID() string           { return e.id }
func (e *Entry) Type() *Type          { return e.typ }
func (e *Entry) TimelineKind() string { return e.typ.kind }
func (e *Entry) IsStored() bool       { return e.id != "" }

// Route returns the route that produced this entry.
func (e *Entry) Route() (*Route, bool) {
	if e.Activity == nil {
		return nil, false
	}
	return e.typ.RouteFor(e.RoutingKind, e.Activity.Kind())
}

// Store persists the entry in its timeline's collection.
func (e *Entry) Store(ctx context.Context, st store.Store) error {
	if e.IsStored() {
		return fmt.Errorf("timeline entry %s: already stored", e.id)
	}
	id, err := st.InsertTimelineEntry(ctx, e.typ.kind, e.ToRecord())
	if err != nil {
		return fmt.Errorf("storing %s entry: %w", e.typ.kind, err)
	}
	e.id = id
	return nil
}

// ToRecord returns the canonical record form.
func (e *Entry) ToRecord() store.EntryRecord {
	rec := store.EntryRecord{
		ID:           e.id,
		TimelineKind: e.typ.kind,
		RecipientID:  e.RecipientID,
		RoutingKind:  e.RoutingKind,
	}
	if e.Activity != nil {
		rec.Activity = e.Activity.ToRecord()
	}
	if len(e.Meta) > 0 {
		rec.Meta = store.CloneMeta(e.Meta)
	}
	return rec
}

// EntryFromRecord rebuilds an entry of typ. Records whose routing and
// activity kind match no declared route are malformed.
func EntryFromRecord(typ *Type, cat activity.Catalog, rec store.EntryRecord) (*Entry, error) {
	a, err := activity.FromRecord(cat, rec.Activity)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrMalformedEntry, rec.ID, err)
	}
	if _, ok := typ.RouteFor(rec.RoutingKind, a.Kind()); !ok {
		return nil, fmt.Errorf("%w %s: no %s route for routing %q and activity %q",
			ErrMalformedEntry, rec.ID, typ.kind, rec.RoutingKind, a.Kind())
	}
	return &Entry{
		id:          rec.ID,
		typ:         typ,
		RecipientID: rec.RecipientID,
		Recipient:   Recipient{ID: rec.RecipientID},
		RoutingKind: rec.RoutingKind,
		Activity:    a,
		Meta:        store.CloneMeta(rec.Meta),
	}, nil
}

// Humanize renders the entry: the route's inline template first, then the
// renderer selected by the route, then the embedded activity's own template.
func (e *Entry) Humanize(ctx context.Context) (string, error) {
	route, ok := e.Route()
	if !ok {
		return "", fmt.Errorf("%w %s: no matching route", ErrMalformedEntry, e.id)
	}
	if route.template != "" {
		bindings, err := e.Activity.Bindings(ctx)
		if err != nil {
			return "", err
		}
		return render.Render(route.template, bindings)
	}
	name := route.entry
	if name == "" {
		name = route.kind
	}
	if fn, ok := e.typ.renderers[name]; ok {
		return fn(ctx, e)
	}
	if e.Activity.Type().Template() == "" {
		return "", domain.Configf(route.String(), "nothing to humanize with")
	}
	return e.Activity.Humanize(ctx)
}
