// Package engine ties the registry, storage and dispatcher together behind
// the operations host applications call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedcraft/internal/activity"
	"feedcraft/internal/dispatch"
	"feedcraft/internal/domain"
	"feedcraft/internal/registry"
	"feedcraft/internal/store"
	"feedcraft/internal/timeline"
)

type Engine struct {
	reg        *registry.Registry
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func New(reg *registry.Registry, st store.Store, d *dispatch.Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, store: st, dispatcher: d, logger: logger}
}

func (e *Engine) Registry() *registry.Registry     { return e.reg }
func (e *Engine) Store() store.Store               { return e.store }
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// NewActivity builds an unsaved activity of kind from fields.
func (e *Engine) NewActivity(kind string, fields map[string]any) (*activity.Activity, error) {
	typ, ok := e.reg.ActivityType(kind)
	if !ok {
		return nil, &domain.UnknownKindError{Family: "activity", Kind: kind}
	}
	return activity.New(typ, fields)
}

// Record stores a and fans it out. A vetoed store returns a nil result and
// no error. Fan-out failures are returned alongside the result; the
// activity stays stored either way.
func (e *Engine) Record(ctx context.Context, a *activity.Activity) (*dispatch.Result, error) {
	stored, err := a.Store(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", a.Kind(), err)
	}
	if !stored {
		e.logger.Debug("activity store vetoed", slog.String("kind", a.Kind()))
		return nil, nil
	}
	res, err := e.dispatcher.Route(ctx, a)
	if err != nil {
		return res, fmt.Errorf("routing %s %s: %w", a.Kind(), a.ID(), err)
	}
	return res, nil
}

// Query selects stored activities.
type Query struct {
	Entities  map[string]string
	Before    time.Time
	After     time.Time
	Only      []string
	Except    []string
	Limit     int
	Skip      int
	Ascending bool
}

func (q Query) filter() store.Filter {
	return store.Filter{
		Entities: q.Entities,
		Before:   q.Before,
		After:    q.After,
		Only:     q.Only,
		Except:   q.Except,
	}
}

func (q Query) options() store.QueryOptions {
	return store.QueryOptions{Limit: q.Limit, Skip: q.Skip, Ascending: q.Ascending}
}

// Activity loads one stored activity.
func (e *Engine) Activity(ctx context.Context, id string) (*activity.Activity, error) {
	rec, err := e.store.FetchActivity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching activity %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("activity %s: %w", id, domain.ErrNotFound)
	}
	return activity.FromRecord(e.reg, *rec)
}

// Activities returns matching activities, newest first unless q.Ascending.
func (e *Engine) Activities(ctx context.Context, q Query) ([]*activity.Activity, error) {
	recs, err := e.store.QueryActivities(ctx, q.filter(), q.options())
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	return e.decode(recs)
}

func (e *Engine) ActivitiesCount(ctx context.Context, q Query) (int, error) {
	n, err := e.store.CountActivities(ctx, q.filter())
	if err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return n, nil
}

// EntityActivities returns activities referencing the className model id
// through any entity slot declared with that class.
func (e *Engine) EntityActivities(ctx context.Context, className, id string, q Query) ([]*activity.Activity, error) {
	filter, ok := e.entityFilter(className, id, q)
	if !ok {
		return []*activity.Activity{}, nil
	}
	recs, err := e.store.QueryActivities(ctx, filter, q.options())
	if err != nil {
		return nil, fmt.Errorf("querying %s %s activities: %w", className, id, err)
	}
	return e.decode(recs)
}

func (e *Engine) EntityActivitiesCount(ctx context.Context, className, id string, q Query) (int, error) {
	filter, ok := e.entityFilter(className, id, q)
	if !ok {
		return 0, nil
	}
	n, err := e.store.CountActivities(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("counting %s %s activities: %w", className, id, err)
	}
	return n, nil
}

func (e *Engine) entityFilter(className, id string, q Query) (store.Filter, bool) {
	names := e.reg.EntityNamesForClass(className)
	if len(names) == 0 {
		return store.Filter{}, false
	}
	filter := q.filter()
	filter.AnyEntities = make(map[string]string, len(names))
	for _, name := range names {
		filter.AnyEntities[name] = id
	}
	return filter, true
}

func (e *Engine) decode(recs []store.ActivityRecord) ([]*activity.Activity, error) {
	out := make([]*activity.Activity, 0, len(recs))
	for _, rec := range recs {
		a, err := activity.FromRecord(e.reg, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Timeline returns kind's timeline for recipient (model, reference or id).
func (e *Engine) Timeline(kind string, recipient any) (*timeline.Timeline, error) {
	typ, ok := e.reg.TimelineType(kind)
	if !ok {
		return nil, &domain.UnknownKindError{Family: "timeline", Kind: kind}
	}
	rcpt, err := typ.RecipientOf(recipient)
	if err != nil {
		return nil, err
	}
	return timeline.New(typ, rcpt, e.store, e.reg), nil
}

// DeleteResult counts rows removed by DeleteEntity.
type DeleteResult struct {
	Activities int64
	Entries    map[string]int64
}

// DeleteEntity removes every activity, and every timeline entry embedding an
// activity, that references the className model id.
func (e *Engine) DeleteEntity(ctx context.Context, className, id string) (*DeleteResult, error) {
	res := &DeleteResult{Entries: make(map[string]int64)}

	// the entity's own timelines go first
	for _, typ := range e.reg.Timelines() {
		if typ.RecipientClass().Name != className {
			continue
		}
		n, err := e.store.DeleteTimelineEntries(ctx, typ.Kind(), store.Filter{RecipientID: id})
		if err != nil {
			return res, fmt.Errorf("deleting %s of %s %s: %w", typ.Kind(), className, id, err)
		}
		res.Entries[typ.Kind()] += n
	}

	filter, ok := e.entityFilter(className, id, Query{})
	if !ok {
		return res, nil
	}
	for _, typ := range e.reg.Timelines() {
		n, err := e.store.DeleteTimelineEntries(ctx, typ.Kind(), filter)
		if err != nil {
			return res, fmt.Errorf("deleting %s entries for %s %s: %w", typ.Kind(), className, id, err)
		}
		res.Entries[typ.Kind()] += n
	}
	n, err := e.store.DeleteActivities(ctx, filter)
	if err != nil {
		return res, fmt.Errorf("deleting activities for %s %s: %w", className, id, err)
	}
	res.Activities = n

	e.logger.Info("entity deleted",
		slog.String("class", className),
		slog.String("id", id),
		slog.Int64("activities", res.Activities))
	return res, nil
}
