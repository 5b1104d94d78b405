package ingest

import (
	"context"

	"feedcraft/internal/activity"
	"feedcraft/internal/dispatch"
)

// Recorder builds, stores and routes activities. *engine.Engine implements it.
type Recorder interface {
	NewActivity(kind string, fields map[string]any) (*activity.Activity, error)
	Record(ctx context.Context, a *activity.Activity) (*dispatch.Result, error)
	Activity(ctx context.Context, id string) (*activity.Activity, error)
}
