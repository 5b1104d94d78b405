// Package dispatch fans stored activities out to every timeline whose routes
// match them, either inline or through a job queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/registry"
	"feedcraft/internal/store"
	"feedcraft/internal/timeline"
)

const defaultConcurrency = 8

type Options struct {
	// Concurrency bounds parallel deliveries per activity.
	Concurrency int
	// AsyncRoute defers whole-activity routing to Queue.
	AsyncRoute bool
	// AsyncHandle defers each (recipient, route) delivery to Queue.
	AsyncHandle bool
	Queue       Queue
	Logger      *slog.Logger
}

type Dispatcher struct {
	reg    *registry.Registry
	store  store.Store
	opts   Options
	logger *slog.Logger
}

func New(reg *registry.Registry, st store.Store, opts Options) (*Dispatcher, error) {
	if (opts.AsyncRoute || opts.AsyncHandle) && opts.Queue == nil {
		return nil, domain.Configf("dispatch", "async dispatch requires a queue")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{reg: reg, store: st, opts: opts, logger: logger}, nil
}

// RouteError ties a fan-out failure to its timeline route and, when known, recipient.
type RouteError struct {
	Timeline  string
	Route     string
	Recipient string
	Err       error
}

func (e *RouteError) Error() string {
	if e.Recipient == "" {
		return fmt.Sprintf("%s/%s: %v", e.Timeline, e.Route, e.Err)
	}
	return fmt.Sprintf("%s/%s for %s: %v", e.Timeline, e.Route, e.Recipient, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// Result summarizes one fan-out. Failures of one route or recipient never
// stop the others; they are collected in Errors.
type Result struct {
	Stored   int
	Skipped  int
	Deferred int
	Errors   []error
}

// Err joins every collected failure, or returns nil.
func (r *Result) Err() error { return errors.Join(r.Errors...) }

type collector struct {
	mu  sync.Mutex
	res Result
}

func (c *collector) add(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case outcomeStored:
		c.res.Stored++
	case outcomeSkipped:
		c.res.Skipped++
	case outcomeDeferred:
		c.res.Deferred++
	}
}

func (c *collector) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Errors = append(c.res.Errors, err)
}

// Route delivers a stored activity to every matching timeline. The returned
// error joins per-route failures; the result is always non-nil unless the
// activity was never stored.
func (d *Dispatcher) Route(ctx context.Context, a *activity.Activity) (*Result, error) {
	if !a.IsStored() {
		return nil, &domain.NotStoredError{Kind: a.Kind()}
	}
	if d.opts.AsyncRoute {
		if err := d.opts.Queue.Enqueue(ctx, RouteJob(a.ToRecord())); err != nil {
			jobsTotal.WithLabelValues(JobRouteActivity, "enqueue_failed").Inc()
			return &Result{Errors: []error{err}}, fmt.Errorf("enqueueing route job: %w", err)
		}
		jobsTotal.WithLabelValues(JobRouteActivity, "enqueued").Inc()
		return &Result{Deferred: 1}, nil
	}
	res := d.route(ctx, a)
	return res, res.Err()
}

func (d *Dispatcher) route(ctx context.Context, a *activity.Activity) *Result {
	ctx, span := tracer.Start(ctx, "dispatch.Route",
		trace.WithAttributes(
			attribute.String("activity.kind", a.Kind()),
			attribute.String("activity.id", a.ID()),
		),
	)
	defer span.End()
	start := time.Now()

	var c collector
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for _, typ := range d.reg.Timelines() {
		for _, route := range typ.RoutesFor(a.Kind()) {
			rcpts, err := route.Resolve(ctx, a)
			if err != nil {
				routesTotal.WithLabelValues(typ.Kind(), "failed").Inc()
				d.logger.Warn("route resolution failed",
					slog.String("route", route.String()),
					slog.String("activity_id", a.ID()),
					slog.String("error", err.Error()))
				c.fail(&RouteError{Timeline: typ.Kind(), Route: route.Kind(), Err: err})
				continue
			}
			routesTotal.WithLabelValues(typ.Kind(), "resolved").Inc()

			for _, rcpt := range rcpts {
				if d.opts.AsyncHandle {
					job := HandleJob(typ.Kind(), rcpt.ID, route.Kind(), a.ToRecord())
					if err := d.opts.Queue.Enqueue(ctx, job); err != nil {
						jobsTotal.WithLabelValues(JobTimelineHandle, "enqueue_failed").Inc()
						c.fail(&RouteError{Timeline: typ.Kind(), Route: route.Kind(), Recipient: rcpt.ID, Err: err})
						continue
					}
					jobsTotal.WithLabelValues(JobTimelineHandle, "enqueued").Inc()
					entriesTotal.WithLabelValues(typ.Kind(), outcomeDeferred).Inc()
					c.add(outcomeDeferred)
					continue
				}

				g.Go(func() error {
					outcome, err := d.handle(gctx, typ, route, rcpt, a)
					if err != nil {
						d.logger.Warn("timeline delivery failed",
							slog.String("route", route.String()),
							slog.String("recipient", rcpt.ID),
							slog.String("activity_id", a.ID()),
							slog.String("error", err.Error()))
						c.fail(&RouteError{Timeline: typ.Kind(), Route: route.Kind(), Recipient: rcpt.ID, Err: err})
					}
					c.add(outcome)
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	routeDuration.WithLabelValues(a.Kind()).Observe(time.Since(start).Seconds())
	res := c.res
	span.SetAttributes(
		attribute.Int("dispatch.stored", res.Stored),
		attribute.Int("dispatch.deferred", res.Deferred),
		attribute.Int("dispatch.errors", len(res.Errors)),
	)
	if len(res.Errors) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d fan-out failures", len(res.Errors)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	d.logger.Debug("activity routed",
		slog.String("kind", a.Kind()),
		slog.String("activity_id", a.ID()),
		slog.Int("stored", res.Stored),
		slog.Int("skipped", res.Skipped),
		slog.Int("deferred", res.Deferred),
		slog.Int("errors", len(res.Errors)))
	return &res
}

func (d *Dispatcher) handle(ctx context.Context, typ *timeline.Type, route *timeline.Route, rcpt timeline.Recipient, a *activity.Activity) (string, error) {
	ctx, span := tracer.Start(ctx, "dispatch.Handle",
		trace.WithAttributes(
			attribute.String("timeline.kind", typ.Kind()),
			attribute.String("route.kind", route.Kind()),
			attribute.String("recipient.id", rcpt.ID),
		),
	)
	defer span.End()

	entry, err := timeline.New(typ, rcpt, d.store, d.reg).HandleActivity(ctx, a, route)
	switch {
	case err != nil && entry == nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entriesTotal.WithLabelValues(typ.Kind(), outcomeFailed).Inc()
		return outcomeFailed, err
	case entry == nil:
		entriesTotal.WithLabelValues(typ.Kind(), outcomeSkipped).Inc()
		return outcomeSkipped, nil
	}
	entriesTotal.WithLabelValues(typ.Kind(), outcomeStored).Inc()
	if err != nil {
		// stored, but the trim afterwards failed
		span.RecordError(err)
		return outcomeStored, err
	}
	return outcomeStored, nil
}

// Perform executes a deferred job. Route jobs fan out inline, still honoring
// AsyncHandle; handle jobs deliver to exactly one recipient.
func (d *Dispatcher) Perform(ctx context.Context, job Job) (*Result, error) {
	a, err := activity.FromRecord(d.reg, job.Activity)
	if err != nil {
		jobsTotal.WithLabelValues(job.Type, "failed").Inc()
		return nil, fmt.Errorf("decoding %s job: %w", job.Type, err)
	}
	if !a.IsStored() {
		jobsTotal.WithLabelValues(job.Type, "failed").Inc()
		return nil, &domain.NotStoredError{Kind: a.Kind()}
	}

	switch job.Type {
	case JobRouteActivity:
		res := d.route(ctx, a)
		jobsTotal.WithLabelValues(job.Type, resultLabel(res.Err())).Inc()
		return res, res.Err()

	case JobTimelineHandle:
		typ, ok := d.reg.TimelineType(job.TimelineKind)
		if !ok {
			jobsTotal.WithLabelValues(job.Type, "failed").Inc()
			return nil, &domain.UnknownKindError{Family: "timeline", Kind: job.TimelineKind}
		}
		route, ok := typ.Route(job.RouteKind)
		if !ok {
			jobsTotal.WithLabelValues(job.Type, "failed").Inc()
			return nil, &domain.UnknownKindError{Family: "route", Kind: job.TimelineKind + "/" + job.RouteKind}
		}
		if job.RecipientID == "" {
			jobsTotal.WithLabelValues(job.Type, "failed").Inc()
			return nil, &domain.InvalidRecipientError{Timeline: typ.Kind(), Route: route.Kind()}
		}

		var res Result
		outcome, err := d.handle(ctx, typ, route, timeline.Recipient{ID: job.RecipientID}, a)
		switch outcome {
		case outcomeStored:
			res.Stored++
		case outcomeSkipped:
			res.Skipped++
		}
		if err != nil {
			res.Errors = append(res.Errors, &RouteError{Timeline: typ.Kind(), Route: route.Kind(), Recipient: job.RecipientID, Err: err})
		}
		jobsTotal.WithLabelValues(job.Type, resultLabel(err)).Inc()
		return &res, res.Err()
	}

	jobsTotal.WithLabelValues("unknown", "failed").Inc()
	return nil, &domain.UnknownKindError{Family: "job", Kind: job.Type}
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
