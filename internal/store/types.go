package store

import (
	"maps"
	"time"
)

// ActivityRecord is the canonical stored form of an activity:
// {_id?, at, kind, <entityName>: <entityId>, ..., meta: {...}}.
type ActivityRecord struct {
	ID       string
	Kind     string
	At       time.Time
	Entities map[string]string
	Meta     map[string]any
}

// Clone returns a deep copy of the record's maps.
func (r ActivityRecord) Clone() ActivityRecord {
	out := r
	out.Entities = maps.Clone(r.Entities)
	out.Meta = CloneMeta(r.Meta)
	return out
}

// EntryRecord is the stored form of a timeline entry. Activity is an embedded
// snapshot, never a reference.
type EntryRecord struct {
	ID           string
	TimelineKind string
	RecipientID  string
	RoutingKind  string
	Activity     ActivityRecord
	Meta         map[string]any
}

// Clone returns a deep copy of the record.
func (r EntryRecord) Clone() EntryRecord {
	out := r
	out.Activity = r.Activity.Clone()
	out.Meta = CloneMeta(r.Meta)
	return out
}

// EntryKey identifies one delivery of an activity to a recipient through a routing.
type EntryKey struct {
	RecipientID string
	ActivityID  string
	RoutingKind string
}

// Filter constrains activity and timeline entry queries. For timeline entries
// the entity, time and kind constraints apply to the embedded activity.
type Filter struct {
	// Entities are entityName -> id equality constraints, all of which must hold.
	Entities map[string]string
	// AnyEntities are entityName -> id constraints of which at least one must hold.
	AnyEntities map[string]string
	Before      time.Time
	After       time.Time
	Only        []string
	Except      []string
	// RecipientID and IDs only apply to timeline entries.
	RecipientID string
	IDs         []string
}

// QueryOptions pages an activity query. Results are sorted by at, newest
// first, unless Ascending is set.
type QueryOptions struct {
	Limit     int
	Skip      int
	Ascending bool
}

// CloneMeta deep-copies nested maps and slices of a metadata bucket.
func CloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMeta(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
