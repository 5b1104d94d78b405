// Package store defines the persistence boundary for activities and timeline
// entries. One adapter per backing store implements Store; the adapter is
// chosen at startup, never per call.
package store

import (
	"context"
)

type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	InsertActivity(ctx context.Context, rec ActivityRecord) (string, error)
	FetchActivity(ctx context.Context, id string) (*ActivityRecord, error)
	QueryActivities(ctx context.Context, filter Filter, opts QueryOptions) ([]ActivityRecord, error)
	CountActivities(ctx context.Context, filter Filter) (int, error)
	DeleteActivities(ctx context.Context, filter Filter) (int64, error)

	InsertTimelineEntry(ctx context.Context, timelineKind string, rec EntryRecord) (string, error)
	FetchTimelineEntry(ctx context.Context, timelineKind, id string) (*EntryRecord, error)
	// QueryTimelineEntries sorts by embedded activity timestamp, newest first.
	// An empty recipientID spans every recipient of the timeline kind.
	QueryTimelineEntries(ctx context.Context, timelineKind, recipientID string, limit, skip int) ([]EntryRecord, error)
	CountTimelineEntries(ctx context.Context, timelineKind, recipientID string) (int, error)
	DeleteTimelineEntries(ctx context.Context, timelineKind string, filter Filter) (int64, error)
	HasTimelineEntry(ctx context.Context, timelineKind string, key EntryKey) (bool, error)
}
