package validate

import (
	"context"

	"feedcraft/internal/activity"
	"feedcraft/internal/store"
	"feedcraft/internal/timeline"
)

// Catalog is the part of the registry a validation run reads.
type Catalog interface {
	activity.Catalog
	Timelines() []*timeline.Type
}

// Source is the part of the store a validation run reads. It never writes.
type Source interface {
	FetchActivity(ctx context.Context, id string) (*store.ActivityRecord, error)
	QueryActivities(ctx context.Context, filter store.Filter, opts store.QueryOptions) ([]store.ActivityRecord, error)
	QueryTimelineEntries(ctx context.Context, timelineKind, recipientID string, limit, skip int) ([]store.EntryRecord, error)
}
