package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/activity"
	"feedcraft/internal/dispatch"
	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/registry"
	"feedcraft/internal/store/memory"
	"feedcraft/internal/timeline"
)

type person struct {
	id, name string
}

func (p *person) EntityID() string    { return p.id }
func (p *person) EntityClass() string { return "User" }

func (p *person) Humanize(method string, opts entity.HumanizeOptions) (string, error) {
	if method == "display_name" {
		return p.name, nil
	}
	return "", entity.ErrUnknownAttr
}

type world struct {
	people map[string]*person
	eng    *Engine
	st     *memory.Store
	vetoed bool
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{people: map[string]*person{
		"U1": {id: "U1", name: "Ada"},
		"U2": {id: "U2", name: "Grace"},
		"U3": {id: "U3", name: "Linus"},
	}}
	users := entity.NewClass("User", func(ctx context.Context, id string) (entity.Model, error) {
		p, ok := w.people[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		return p, nil
	})
	photos := entity.StubClass("Photo")

	reg := registry.New()
	require.NoError(t, reg.RegisterClass(users))
	require.NoError(t, reg.RegisterClass(photos))
	reg.MustRegisterActivity(activity.Define("follow_buddy").
		Entity("actor", activity.EntityDecl{Class: users, HumanizeMethod: "display_name"}).
		Entity("buddy", activity.EntityDecl{Class: users, HumanizeMethod: "display_name"}).
		Humanize("{{actor}} is now following {{buddy}}").
		BeforeStore(func(ctx context.Context, a *activity.Activity) bool { return !w.vetoed }).
		MustBuild())
	reg.MustRegisterActivity(activity.Define("like_photo").
		Entity("actor", activity.EntityDecl{Class: users, HumanizeMethod: "display_name"}).
		Entity("photo", activity.EntityDecl{Class: photos}).
		Entity("owner", activity.EntityDecl{Class: users, Optional: true}).
		MustBuild())
	reg.MustRegisterTimeline(timeline.Define("news_feed", users).
		Route("follow_buddy", timeline.To("buddy")).
		Route("like_photo", timeline.To("owner")).
		MustBuild())

	w.st = memory.New()
	d, err := dispatch.New(reg, w.st, dispatch.Options{})
	require.NoError(t, err)
	w.eng = New(reg, w.st, d, nil)
	return w
}

func (w *world) record(t *testing.T, kind string, fields map[string]any) *activity.Activity {
	t.Helper()
	a, err := w.eng.NewActivity(kind, fields)
	require.NoError(t, err)
	_, err = w.eng.Record(context.Background(), a)
	require.NoError(t, err)
	return a
}

func TestEngine_FollowBuddyScenario(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	a := w.record(t, "follow_buddy", map[string]any{"actor": "U1", "buddy": "U2"})
	require.True(t, a.IsStored())

	tl, err := w.eng.Timeline("news_feed", "U2")
	require.NoError(t, err)
	entries, err := tl.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "buddy", entries[0].RoutingKind)

	text, err := entries[0].Humanize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada is now following Grace", text)

	other, err := w.eng.Timeline("news_feed", w.people["U1"])
	require.NoError(t, err)
	n, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_RecordVetoed(t *testing.T) {
	w := newWorld(t)
	w.vetoed = true

	a, err := w.eng.NewActivity("follow_buddy", map[string]any{"actor": "U1", "buddy": "U2"})
	require.NoError(t, err)
	res, err := w.eng.Record(context.Background(), a)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, a.IsStored())

	n, err := w.eng.ActivitiesCount(context.Background(), Query{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_RecordMissingEntity(t *testing.T) {
	w := newWorld(t)
	a, err := w.eng.NewActivity("follow_buddy", map[string]any{"actor": "U1"})
	require.NoError(t, err)

	_, err = w.eng.Record(context.Background(), a)
	var missing *domain.MissingEntityError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "buddy", missing.Entity)
}

func TestEngine_UnknownKinds(t *testing.T) {
	w := newWorld(t)
	_, err := w.eng.NewActivity("dance", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
	_, err = w.eng.Timeline("dance_feed", "U1")
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestEngine_Activities(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w.record(t, "follow_buddy", map[string]any{"actor": "U1", "buddy": "U2", "at": base})
	w.record(t, "like_photo", map[string]any{"actor": "U3", "photo": "P1", "owner": "U1", "at": base.Add(time.Hour)})
	w.record(t, "follow_buddy", map[string]any{"actor": "U3", "buddy": "U1", "at": base.Add(2 * time.Hour)})

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all newest first", Query{}, []string{"follow_buddy", "like_photo", "follow_buddy"}},
		{"ascending", Query{Ascending: true, Limit: 2}, []string{"follow_buddy", "like_photo"}},
		{"only", Query{Only: []string{"like_photo"}}, []string{"like_photo"}},
		{"except", Query{Except: []string{"like_photo"}}, []string{"follow_buddy", "follow_buddy"}},
		{"entity", Query{Entities: map[string]string{"actor": "U3"}}, []string{"follow_buddy", "like_photo"}},
		{"before", Query{Before: base.Add(time.Hour)}, []string{"follow_buddy"}},
		{"after", Query{After: base}, []string{"follow_buddy", "like_photo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.eng.Activities(ctx, tt.query)
			require.NoError(t, err)
			kinds := make([]string, 0, len(got))
			for _, a := range got {
				kinds = append(kinds, a.Kind())
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestEngine_EntityActivities(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.record(t, "follow_buddy", map[string]any{"actor": "U1", "buddy": "U2"})
	w.record(t, "like_photo", map[string]any{"actor": "U3", "photo": "P1", "owner": "U1"})
	w.record(t, "follow_buddy", map[string]any{"actor": "U3", "buddy": "U2"})

	got, err := w.eng.EntityActivities(ctx, "User", "U1", Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	n, err := w.eng.EntityActivitiesCount(ctx, "User", "U2", Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.eng.EntityActivitiesCount(ctx, "Photo", "P1", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = w.eng.EntityActivities(ctx, "Planet", "X", Query{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_DeleteEntityCascade(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.record(t, "like_photo", map[string]any{"actor": "U3", "photo": "P1", "owner": "U1"})
	w.record(t, "like_photo", map[string]any{"actor": "U3", "photo": "P1", "owner": "U2"})
	w.record(t, "like_photo", map[string]any{"actor": "U3", "photo": "P2", "owner": "U2"})

	u1, err := w.eng.Timeline("news_feed", "U1")
	require.NoError(t, err)
	u2, err := w.eng.Timeline("news_feed", "U2")
	require.NoError(t, err)

	res, err := w.eng.DeleteEntity(ctx, "Photo", "P1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Activities)
	assert.Equal(t, int64(2), res.Entries["news_feed"])

	n, err := u1.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	entries, err := u2.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "P2", entries[0].Activity.EntityID("photo"))

	_, err = w.eng.DeleteEntity(ctx, "User", "U2")
	require.NoError(t, err)
	n, err = u2.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_ActivityLookup(t *testing.T) {
	w := newWorld(t)
	a := w.record(t, "follow_buddy", map[string]any{"actor": "U1", "buddy": "U2", "note": "hi"})

	got, err := w.eng.Activity(context.Background(), a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.At(), got.At())
	assert.Equal(t, "U2", got.EntityID("buddy"))
	note, _ := got.Meta("note")
	assert.Equal(t, "hi", note)

	_, err = w.eng.Activity(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
