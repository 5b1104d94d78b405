package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedcraft/internal/dispatch"
	"feedcraft/internal/domain"
)

// Source is the consuming side of a job queue.
type Source interface {
	Enqueue(ctx context.Context, job dispatch.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*dispatch.Job, error)
	Bury(ctx context.Context, job dispatch.Job) error
}

// Performer executes a job, normally a *dispatch.Dispatcher.
type Performer interface {
	Perform(ctx context.Context, job dispatch.Job) (*dispatch.Result, error)
}

type WorkerOptions struct {
	MaxAttempts int
	Poll        time.Duration
	Logger      *slog.Logger
}

// Worker consumes jobs until its context ends. Failed jobs are retried up to
// MaxAttempts times; jobs that can never succeed are buried at once.
type Worker struct {
	src     Source
	perform Performer
	opts    WorkerOptions
	logger  *slog.Logger
}

func NewWorker(src Source, p Performer, opts WorkerOptions) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Poll <= 0 {
		opts.Poll = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{src: src, perform: p, opts: opts, logger: logger}
}

// Run processes jobs until ctx is done. Only queue failures end it early.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.src.Dequeue(ctx, w.opts.Poll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, *job); err != nil {
			return err
		}
	}
}

// Process runs one job and settles it: done, requeued or buried.
func (w *Worker) Process(ctx context.Context, job dispatch.Job) error {
	res, err := w.perform.Perform(ctx, job)
	if err == nil {
		if res != nil {
			w.logger.Debug("job done",
				slog.String("type", job.Type),
				slog.Int("stored", res.Stored),
				slog.Int("skipped", res.Skipped))
		}
		return nil
	}

	job.Attempt++
	log := w.logger.With(
		slog.String("type", job.Type),
		slog.String("activity_id", job.Activity.ID),
		slog.Int("attempt", job.Attempt),
		slog.String("error", err.Error()))

	if job.Type == dispatch.JobRouteActivity && res != nil && len(res.Errors) > 0 {
		return w.settleRoute(ctx, job, res.Errors, log)
	}
	if permanent(err) || job.Attempt >= w.opts.MaxAttempts {
		log.Error("job failed, burying")
		return w.src.Bury(ctx, job)
	}
	log.Warn("job failed, retrying")
	return w.src.Enqueue(ctx, job)
}

// settleRoute splits a partially failed fan-out. Recipient failures become
// handle jobs settled on their own, so a permanent failure on one route does
// not bury transient ones elsewhere. Resolution failures have no recipient
// and fall back to the whole route job.
func (w *Worker) settleRoute(ctx context.Context, job dispatch.Job, failures []error, log *slog.Logger) error {
	var retryRoute, buryRoute bool
	var errs []error
	for _, ferr := range failures {
		var rerr *dispatch.RouteError
		if !errors.As(ferr, &rerr) || rerr.Recipient == "" {
			if permanent(ferr) {
				buryRoute = true
			} else {
				retryRoute = true
			}
			continue
		}

		h := dispatch.HandleJob(rerr.Timeline, rerr.Recipient, rerr.Route, job.Activity)
		h.Attempt = job.Attempt
		hlog := log.With(slog.String("timeline", rerr.Timeline), slog.String("recipient", rerr.Recipient))
		if permanent(ferr) || h.Attempt >= w.opts.MaxAttempts {
			hlog.Error("delivery failed, burying")
			errs = append(errs, w.src.Bury(ctx, h))
			continue
		}
		hlog.Warn("delivery failed, retrying")
		errs = append(errs, w.src.Enqueue(ctx, h))
	}

	switch {
	case retryRoute && job.Attempt < w.opts.MaxAttempts:
		log.Warn("route resolution failed, retrying")
		errs = append(errs, w.src.Enqueue(ctx, job))
	case retryRoute || buryRoute:
		log.Error("route resolution failed, burying")
		errs = append(errs, w.src.Bury(ctx, job))
	}
	return errors.Join(errs...)
}

// permanent reports failures a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrConfiguration) ||
		errors.Is(err, domain.ErrUnknownKind) ||
		errors.Is(err, domain.ErrNotStored) ||
		errors.Is(err, domain.ErrInvalidRecipient) ||
		errors.Is(err, domain.ErrMissingEntity)
}
