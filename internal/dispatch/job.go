package dispatch

import (
	"context"

	"feedcraft/internal/store"
)

// Job types for the two deferrable fan-out seams.
const (
	JobRouteActivity  = "route_activity"
	JobTimelineHandle = "timeline_handle"
)

// Job is a serializable unit of deferred fan-out. Route jobs carry only the
// activity; handle jobs also name the timeline kind, recipient and route.
type Job struct {
	Type         string               `json:"type"`
	Activity     store.ActivityRecord `json:"activity"`
	TimelineKind string               `json:"timeline_kind,omitempty"`
	RecipientID  string               `json:"recipient_id,omitempty"`
	RouteKind    string               `json:"route_kind,omitempty"`
	Attempt      int                  `json:"attempt,omitempty"`
}

// RouteJob defers routing of a stored activity.
func RouteJob(rec store.ActivityRecord) Job {
	return Job{Type: JobRouteActivity, Activity: rec}
}

// HandleJob defers delivery of a stored activity to one recipient through one route.
func HandleJob(timelineKind, recipientID, routeKind string, rec store.ActivityRecord) Job {
	return Job{
		Type:         JobTimelineHandle,
		Activity:     rec,
		TimelineKind: timelineKind,
		RecipientID:  recipientID,
		RouteKind:    routeKind,
	}
}

// Queue accepts jobs for out-of-process execution through Dispatcher.Perform.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}
