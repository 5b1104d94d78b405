// Package storetest is the behavioral suite every store adapter runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/store"
)

// Factory returns an empty store with its schema in place.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func activity(kind string, at time.Duration, entities map[string]string) store.ActivityRecord {
	return store.ActivityRecord{Kind: kind, At: base.Add(at), Entities: entities}
}

func entry(rcpt, routing string, act store.ActivityRecord) store.EntryRecord {
	return store.EntryRecord{RecipientID: rcpt, RoutingKind: routing, Activity: act}
}

// Run exercises the Store contract against adapters built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ActivityRoundTrip", func(t *testing.T) { testActivityRoundTrip(t, newStore(t)) })
	t.Run("ActivityQueries", func(t *testing.T) { testActivityQueries(t, newStore(t)) })
	t.Run("DeleteActivities", func(t *testing.T) { testDeleteActivities(t, newStore(t)) })
	t.Run("EntryRoundTrip", func(t *testing.T) { testEntryRoundTrip(t, newStore(t)) })
	t.Run("EntryOrderingAndPaging", func(t *testing.T) { testEntryOrdering(t, newStore(t)) })
	t.Run("DeleteEntries", func(t *testing.T) { testDeleteEntries(t, newStore(t)) })
	t.Run("HasTimelineEntry", func(t *testing.T) { testHasEntry(t, newStore(t)) })
	t.Run("InvalidEntityName", func(t *testing.T) { testInvalidEntityName(t, newStore(t)) })
}

func testActivityRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	rec := activity("follow_buddy", 0, map[string]string{"actor": "u1", "buddy": "u2"})
	rec.At = rec.At.Add(1500 * time.Microsecond)
	rec.Meta = map[string]any{"note": "hi", "tags": map[string]any{"source": "import"}}

	id, err := st.InsertActivity(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := st.FetchActivity(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "follow_buddy", got.Kind)
	assert.True(t, rec.At.Equal(got.At), "at %v != %v", got.At, rec.At)
	assert.Equal(t, rec.Entities, got.Entities)
	assert.Equal(t, rec.Meta, got.Meta)

	missing, err := st.FetchActivity(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec.ID = "fixed-id"
	id, err = st.InsertActivity(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
}

func seedActivities(t *testing.T, st store.Store) []string {
	t.Helper()
	ctx := context.Background()
	recs := []store.ActivityRecord{
		activity("follow_buddy", 0, map[string]string{"actor": "u1", "buddy": "u2"}),
		activity("add_photo", time.Minute, map[string]string{"actor": "u2", "photo": "p1", "album": "a1"}),
		activity("follow_buddy", 2*time.Minute, map[string]string{"actor": "u3", "buddy": "u1"}),
		// same instant as the previous record; commit order breaks the tie
		activity("add_photo", 2*time.Minute, map[string]string{"actor": "u1", "photo": "p2", "album": "a1"}),
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		id, err := st.InsertActivity(ctx, rec)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func testActivityQueries(t *testing.T, st store.Store) {
	ids := seedActivities(t, st)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter store.Filter
		opts   store.QueryOptions
		want   []string
	}{
		{"newest first", store.Filter{}, store.QueryOptions{}, []string{ids[3], ids[2], ids[1], ids[0]}},
		{"ascending", store.Filter{}, store.QueryOptions{Ascending: true}, []string{ids[0], ids[1], ids[2], ids[3]}},
		{"limit", store.Filter{}, store.QueryOptions{Limit: 2}, []string{ids[3], ids[2]}},
		{"skip without limit", store.Filter{}, store.QueryOptions{Skip: 3}, []string{ids[0]}},
		{"limit and skip", store.Filter{}, store.QueryOptions{Limit: 2, Skip: 1}, []string{ids[2], ids[1]}},
		{"skip past end", store.Filter{}, store.QueryOptions{Skip: 10}, []string{}},
		{"entity", store.Filter{Entities: map[string]string{"actor": "u1"}}, store.QueryOptions{}, []string{ids[3], ids[0]}},
		{"entities all", store.Filter{Entities: map[string]string{"actor": "u1", "album": "a1"}}, store.QueryOptions{}, []string{ids[3]}},
		{"any entity", store.Filter{AnyEntities: map[string]string{"actor": "u1", "buddy": "u1"}}, store.QueryOptions{}, []string{ids[3], ids[2], ids[0]}},
		{"before", store.Filter{Before: base.Add(time.Minute)}, store.QueryOptions{}, []string{ids[0]}},
		{"after", store.Filter{After: base.Add(time.Minute)}, store.QueryOptions{}, []string{ids[3], ids[2]}},
		{"only", store.Filter{Only: []string{"add_photo"}}, store.QueryOptions{}, []string{ids[3], ids[1]}},
		{"except", store.Filter{Except: []string{"add_photo"}}, store.QueryOptions{}, []string{ids[2], ids[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.QueryActivities(ctx, tt.filter, tt.opts)
			require.NoError(t, err)
			gotIDs := make([]string, 0, len(got))
			for _, rec := range got {
				gotIDs = append(gotIDs, rec.ID)
			}
			assert.Equal(t, tt.want, gotIDs)

			if tt.opts == (store.QueryOptions{}) {
				n, err := st.CountActivities(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, len(tt.want), n)
			}
		})
	}
}

func testDeleteActivities(t *testing.T, st store.Store) {
	seedActivities(t, st)
	ctx := context.Background()

	n, err := st.DeleteActivities(ctx, store.Filter{Entities: map[string]string{"album": "a1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := st.CountActivities(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	n, err = st.DeleteActivities(ctx, store.Filter{Entities: map[string]string{"album": "a1"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testEntryRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	act := activity("follow_buddy", 0, map[string]string{"actor": "u1", "buddy": "u2"})
	act.ID = "a1"
	act.Meta = map[string]any{"note": "hi"}
	rec := entry("u2", "buddy", act)
	rec.Meta = map[string]any{"seen": "no"}

	id, err := st.InsertTimelineEntry(ctx, "news_feed", rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := st.FetchTimelineEntry(ctx, "news_feed", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "news_feed", got.TimelineKind)
	assert.Equal(t, "u2", got.RecipientID)
	assert.Equal(t, "buddy", got.RoutingKind)
	assert.Equal(t, "a1", got.Activity.ID)
	assert.Equal(t, "follow_buddy", got.Activity.Kind)
	assert.True(t, act.At.Equal(got.Activity.At))
	assert.Equal(t, act.Entities, got.Activity.Entities)
	assert.Equal(t, act.Meta, got.Activity.Meta)
	assert.Equal(t, rec.Meta, got.Meta)

	other, err := st.FetchTimelineEntry(ctx, "crowd_feed", id)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func testEntryOrdering(t *testing.T, st store.Store) {
	ctx := context.Background()
	var ids []string
	for i, offset := range []time.Duration{time.Minute, 0, 2 * time.Minute, 2 * time.Minute} {
		act := activity("follow_buddy", offset, map[string]string{"actor": "u1", "buddy": "u2"})
		act.ID = []string{"a1", "a2", "a3", "a4"}[i]
		id, err := st.InsertTimelineEntry(ctx, "news_feed", entry("u2", "buddy", act))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := st.InsertTimelineEntry(ctx, "news_feed", entry("u3", "buddy", activity("follow_buddy", 0, nil)))
	require.NoError(t, err)

	got, err := st.QueryTimelineEntries(ctx, "news_feed", "u2", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[2], ids[0], ids[1]}, entryIDs(got))

	got, err = st.QueryTimelineEntries(ctx, "news_feed", "u2", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[0]}, entryIDs(got))

	got, err = st.QueryTimelineEntries(ctx, "news_feed", "u2", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, entryIDs(got))

	n, err := st.CountTimelineEntries(ctx, "news_feed", "u2")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = st.CountTimelineEntries(ctx, "news_feed", "")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = st.CountTimelineEntries(ctx, "crowd_feed", "u2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testDeleteEntries(t *testing.T, st store.Store) {
	ctx := context.Background()
	p1 := activity("add_photo", 0, map[string]string{"actor": "u1", "photo": "p1"})
	p2 := activity("add_photo", time.Minute, map[string]string{"actor": "u1", "photo": "p2"})

	var u2 []string
	for _, act := range []store.ActivityRecord{p1, p2} {
		id, err := st.InsertTimelineEntry(ctx, "news_feed", entry("u2", "buddy", act))
		require.NoError(t, err)
		u2 = append(u2, id)
		_, err = st.InsertTimelineEntry(ctx, "news_feed", entry("u3", "buddy", act))
		require.NoError(t, err)
	}
	_, err := st.InsertTimelineEntry(ctx, "crowd_feed", entry("u2", "fans", p1))
	require.NoError(t, err)

	n, err := st.DeleteTimelineEntries(ctx, "news_feed", store.Filter{RecipientID: "u2", IDs: []string{u2[0]}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = st.DeleteTimelineEntries(ctx, "news_feed", store.Filter{AnyEntities: map[string]string{"photo": "p2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := st.QueryTimelineEntries(ctx, "news_feed", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "u3", left[0].RecipientID)
	assert.Equal(t, "p1", left[0].Activity.Entities["photo"])

	count, err := st.CountTimelineEntries(ctx, "crowd_feed", "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testHasEntry(t *testing.T, st store.Store) {
	ctx := context.Background()
	act := activity("follow_buddy", 0, map[string]string{"actor": "u1", "buddy": "u2"})
	act.ID = "a1"
	_, err := st.InsertTimelineEntry(ctx, "news_feed", entry("u2", "buddy", act))
	require.NoError(t, err)

	tests := []struct {
		name string
		kind string
		key  store.EntryKey
		want bool
	}{
		{"exact", "news_feed", store.EntryKey{RecipientID: "u2", ActivityID: "a1", RoutingKind: "buddy"}, true},
		{"other routing", "news_feed", store.EntryKey{RecipientID: "u2", ActivityID: "a1", RoutingKind: "album_owner"}, false},
		{"other recipient", "news_feed", store.EntryKey{RecipientID: "u3", ActivityID: "a1", RoutingKind: "buddy"}, false},
		{"other timeline", "crowd_feed", store.EntryKey{RecipientID: "u2", ActivityID: "a1", RoutingKind: "buddy"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.HasTimelineEntry(ctx, tt.kind, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testInvalidEntityName(t *testing.T, st store.Store) {
	ctx := context.Background()
	bad := store.Filter{Entities: map[string]string{"actor') OR 1=1 --": "x"}}

	_, err := st.QueryActivities(ctx, bad, store.QueryOptions{})
	assert.Error(t, err)
	_, err = st.DeleteActivities(ctx, bad)
	assert.Error(t, err)
	_, err = st.DeleteTimelineEntries(ctx, "news_feed", bad)
	assert.Error(t, err)
}

func entryIDs(recs []store.EntryRecord) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ID)
	}
	return out
}
