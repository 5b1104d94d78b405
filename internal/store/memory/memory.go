// Package memory is an in-process Store used by tests and the memory driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"feedcraft/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	activities map[string]store.ActivityRecord
	entries    map[string]map[string]store.EntryRecord
	// seq breaks timestamp ties in commit order.
	seq   map[string]uint64
	clock uint64
}

func New() *Store {
	return &Store{
		activities: make(map[string]store.ActivityRecord),
		entries:    make(map[string]map[string]store.EntryRecord),
		seq:        make(map[string]uint64),
	}
}

func (s *Store) Close(ctx context.Context) error        { return nil }
func (s *Store) EnsureSchema(ctx context.Context) error { return nil }

func (s *Store) InsertActivity(ctx context.Context, rec store.ActivityRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.activities[rec.ID] = rec
	s.stamp(rec.ID)
	return rec.ID, nil
}

func (s *Store) FetchActivity(ctx context.Context, id string) (*store.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.activities[id]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (s *Store) QueryActivities(ctx context.Context, filter store.Filter, opts store.QueryOptions) ([]store.ActivityRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.ActivityRecord
	for _, rec := range s.activities {
		if filter.MatchActivity(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			if opts.Ascending {
				return out[i].At.Before(out[j].At)
			}
			return out[i].At.After(out[j].At)
		}
		if opts.Ascending {
			return s.seq[out[i].ID] < s.seq[out[j].ID]
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	out = page(out, opts.Limit, opts.Skip)
	if out == nil {
		out = []store.ActivityRecord{}
	}
	return out, nil
}

func (s *Store) CountActivities(ctx context.Context, filter store.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.activities {
		if filter.MatchActivity(rec) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteActivities(ctx context.Context, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.activities {
		if filter.MatchActivity(rec) {
			delete(s.activities, id)
			delete(s.seq, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertTimelineEntry(ctx context.Context, timelineKind string, rec store.EntryRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.TimelineKind = timelineKind
	bucket, ok := s.entries[timelineKind]
	if !ok {
		bucket = make(map[string]store.EntryRecord)
		s.entries[timelineKind] = bucket
	}
	bucket[rec.ID] = rec
	s.stamp(rec.ID)
	return rec.ID, nil
}

func (s *Store) FetchTimelineEntry(ctx context.Context, timelineKind, id string) (*store.EntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[timelineKind][id]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (s *Store) QueryTimelineEntries(ctx context.Context, timelineKind, recipientID string, limit, skip int) ([]store.EntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.entriesFor(timelineKind, store.Filter{RecipientID: recipientID})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Activity.At.Equal(out[j].Activity.At) {
			return out[i].Activity.At.After(out[j].Activity.At)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	out = page(out, limit, skip)
	if out == nil {
		out = []store.EntryRecord{}
	}
	return out, nil
}

func (s *Store) CountTimelineEntries(ctx context.Context, timelineKind, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entriesFor(timelineKind, store.Filter{RecipientID: recipientID})), nil
}

func (s *Store) DeleteTimelineEntries(ctx context.Context, timelineKind string, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.entries[timelineKind] {
		if filter.MatchEntry(rec) {
			delete(s.entries[timelineKind], id)
			delete(s.seq, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) HasTimelineEntry(ctx context.Context, timelineKind string, key store.EntryKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.entries[timelineKind] {
		if rec.RecipientID == key.RecipientID && rec.Activity.ID == key.ActivityID && rec.RoutingKind == key.RoutingKind {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) entriesFor(timelineKind string, filter store.Filter) []store.EntryRecord {
	var out []store.EntryRecord
	for _, rec := range s.entries[timelineKind] {
		if filter.MatchEntry(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (s *Store) stamp(id string) {
	s.clock++
	s.seq[id] = s.clock
}

func page[T any](items []T, limit, skip int) []T {
	if skip > 0 {
		if skip >= len(items) {
			return nil
		}
		items = items[skip:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
