package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/store"
	"feedcraft/internal/store/memory"
)

type user struct {
	id        string
	name      string
	followers []string
}

func (u *user) EntityID() string    { return u.id }
func (u *user) EntityClass() string { return "User" }
func (u *user) String() string      { return u.name }

func (u *user) Attr(ctx context.Context, name string) (any, error) {
	switch name {
	case "followers":
		return u.followers, nil
	case "name":
		return u.name, nil
	}
	return nil, entity.ErrUnknownAttr
}

type album struct {
	id    string
	owner *user
}

func (a *album) EntityID() string    { return a.id }
func (a *album) EntityClass() string { return "Album" }

func (a *album) Attr(ctx context.Context, name string) (any, error) {
	if name == "owner" {
		return a.owner, nil
	}
	return nil, entity.ErrUnknownAttr
}

type catalog map[string]*activity.Type

func (c catalog) ActivityType(kind string) (*activity.Type, bool) {
	t, ok := c[kind]
	return t, ok
}

func (c catalog) IsEntityName(name string) bool {
	for _, t := range c {
		if t.HasEntity(name) {
			return true
		}
	}
	return false
}

type fixture struct {
	users      map[string]*user
	userClass  *entity.Class
	albumClass *entity.Class
	follow     *activity.Type
	addPhoto   *activity.Type
	cat        catalog
	st         *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: map[string]*user{
			"u1": {id: "u1", name: "Ana", followers: []string{"u3", "u4"}},
			"u2": {id: "u2", name: "Bo"},
		},
		st: memory.New(),
	}
	f.userClass = entity.NewClass("User", func(ctx context.Context, id string) (entity.Model, error) {
		u, ok := f.users[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		return u, nil
	})
	f.albumClass = entity.NewClass("Album", nil)

	f.follow = activity.Define("follow_buddy").
		Entity("actor", activity.EntityDecl{Class: f.userClass}).
		Entity("buddy", activity.EntityDecl{Class: f.userClass}).
		Humanize("{{actor}} is now following {{buddy}}").
		MustBuild()
	f.addPhoto = activity.Define("add_photo").
		Entity("actor", activity.EntityDecl{Class: f.userClass}).
		Entity("album", activity.EntityDecl{Class: f.albumClass, Optional: true}).
		MustBuild()
	f.cat = catalog{f.follow.Kind(): f.follow, f.addPhoto.Kind(): f.addPhoto}
	return f
}

func (f *fixture) stored(t *testing.T, typ *activity.Type, fields map[string]any) *activity.Activity {
	t.Helper()
	a, err := activity.New(typ, fields)
	require.NoError(t, err)
	ok, err := a.Store(context.Background(), f.st)
	require.NoError(t, err)
	require.True(t, ok)
	return a
}

func TestDefine_DerivesKinds(t *testing.T) {
	f := newFixture(t)
	typ := Define("news_feed", f.userClass).
		Routing("actor_follower", RoutingDef{To: "actor.followers"}).
		Route("follow_buddy", To("buddy")).
		Route("add_photo", To("album.owner")).
		Route("add_photo", Using("actor_follower")).
		Route("follow_buddy", To("actor"), RoutingKind("self"), Kind("me_following")).
		MustBuild()

	kinds := make([][2]string, 0)
	for _, r := range typ.Routes() {
		kinds = append(kinds, [2]string{r.RoutingKind(), r.Kind()})
	}
	assert.Equal(t, [][2]string{
		{"buddy", "buddy_follow_buddy"},
		{"album_owner", "album_owner_add_photo"},
		{"actor_follower", "actor_follower_add_photo"},
		{"self", "me_following"},
	}, kinds)

	assert.Len(t, typ.RoutesFor("add_photo"), 2)
	r, ok := typ.RouteFor("album_owner", "add_photo")
	require.True(t, ok)
	assert.Equal(t, "album.owner", r.Path())
}

func TestDefine_ConfigurationErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"no recipient class", func() *Builder {
			return Define("feed", nil).Route("follow_buddy", To("buddy"))
		}},
		{"missing strategy", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy")
		}},
		{"ambiguous strategy", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy", To("buddy"), Using("x"))
		}},
		{"duplicate route", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy", To("buddy")).Route("follow_buddy", To("buddy"))
		}},
		{"duplicate routing", func() *Builder {
			return Define("feed", f.userClass).
				Routing("r", RoutingDef{To: "actor"}).
				Routing("r", RoutingDef{To: "buddy"})
		}},
		{"unknown using", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy", Using("nobody"))
		}},
		{"bad template", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy", To("buddy"), Humanize("{{#open}}"))
		}},
		{"empty path step", func() *Builder {
			return Define("feed", f.userClass).Route("follow_buddy", To("actor..name"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestRoute_ResolvePath(t *testing.T) {
	f := newFixture(t)
	typ := Define("news_feed", f.userClass).
		Route("follow_buddy", To("buddy")).
		Route("follow_buddy", To("actor.followers")).
		Route("add_photo", To("album.owner")).
		MustBuild()
	ctx := context.Background()

	follow := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": f.users["u2"]})
	routes := typ.RoutesFor("follow_buddy")

	rcpts, err := routes[0].Resolve(ctx, follow)
	require.NoError(t, err)
	require.Len(t, rcpts, 1)
	assert.Equal(t, "u2", rcpts[0].ID)

	rcpts, err = routes[1].Resolve(ctx, follow)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u3", "u4"}, []string{rcpts[0].ID, rcpts[1].ID})

	photo := f.stored(t, f.addPhoto, map[string]any{
		"actor": "u2",
		"album": &album{id: "a1", owner: f.users["u1"]},
	})
	rcpts, err = typ.RoutesFor("add_photo")[0].Resolve(ctx, photo)
	require.NoError(t, err)
	require.Len(t, rcpts, 1)
	assert.Equal(t, "u1", rcpts[0].ID)
	assert.Same(t, f.users["u1"], rcpts[0].Model)

	noAlbum := f.stored(t, f.addPhoto, map[string]any{"actor": "u2"})
	rcpts, err = typ.RoutesFor("add_photo")[0].Resolve(ctx, noAlbum)
	require.NoError(t, err)
	assert.Empty(t, rcpts)
}

func TestRoute_ResolveRejectsForeignRecipients(t *testing.T) {
	f := newFixture(t)
	typ := Define("album_feed", f.userClass).
		Resolver("albums", func(ctx context.Context, a *activity.Activity, tl *Type) (any, error) {
			return []any{a.Entity("album"), nil}, nil
		}).
		Route("add_photo", Using("albums")).
		MustBuild()

	photo := f.stored(t, f.addPhoto, map[string]any{"actor": "u1", "album": &album{id: "a1"}})
	_, err := typ.Routes()[0].Resolve(context.Background(), photo)

	var invalid *domain.InvalidRecipientError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "albums_add_photo", invalid.Route)
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

func TestRoute_ResolveBinaryIdentifiers(t *testing.T) {
	f := newFixture(t)
	one := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	two := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	typ := Define("feed", f.userClass).
		Resolver("one", func(ctx context.Context, a *activity.Activity, tl *Type) (any, error) {
			return one, nil
		}).
		Resolver("many", func(ctx context.Context, a *activity.Activity, tl *Type) (any, error) {
			return []uuid.UUID{one, two}, nil
		}).
		Route("follow_buddy", Using("one")).
		Route("follow_buddy", Using("many")).
		MustBuild()
	follow := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})
	routes := typ.RoutesFor("follow_buddy")
	ctx := context.Background()

	rcpts, err := routes[0].Resolve(ctx, follow)
	require.NoError(t, err)
	require.Len(t, rcpts, 1)
	assert.Equal(t, one.String(), rcpts[0].ID)

	rcpts, err = routes[1].Resolve(ctx, follow)
	require.NoError(t, err)
	require.Len(t, rcpts, 2)
	assert.ElementsMatch(t, []string{one.String(), two.String()}, []string{rcpts[0].ID, rcpts[1].ID})
}

func TestRoute_ResolveUnknownAccessor(t *testing.T) {
	f := newFixture(t)
	typ := Define("feed", f.userClass).Route("follow_buddy", To("buddy.manager")).MustBuild()
	follow := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})

	_, err := typ.Routes()[0].Resolve(context.Background(), follow)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestTimeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	typ := Define("news_feed", f.userClass).Route("follow_buddy", To("buddy")).MustBuild()
	ctx := context.Background()

	a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})
	route := typ.Routes()[0]
	rcpts, err := route.Resolve(ctx, a)
	require.NoError(t, err)
	require.Len(t, rcpts, 1)

	tl := New(typ, rcpts[0], f.st, f.cat)
	entry, err := tl.HandleActivity(ctx, a, route)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.IsStored())

	entries, err := New(typ, Recipient{ID: "u2"}, f.st, f.cat).Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "buddy", entries[0].RoutingKind)
	assert.Equal(t, a.ID(), entries[0].Activity.ID())

	text, err := entries[0].Humanize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana is now following Bo", text)
}

func TestTimeline_FetchNewestFirst(t *testing.T) {
	f := newFixture(t)
	typ := Define("news_feed", f.userClass).Route("follow_buddy", To("buddy")).MustBuild()
	ctx := context.Background()
	tl := New(typ, Recipient{ID: "u2"}, f.st, f.cat)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2", "at": base.Add(time.Duration(i) * time.Hour), "n": i})
		_, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
		require.NoError(t, err)
	}

	entries, err := tl.Fetch(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, want := range []int{2, 1, 0} {
		n, _ := entries[i].Activity.Meta("n")
		assert.Equal(t, want, n)
	}

	n, err := tl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := tl.Fetch(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, entries[1].ID(), page[0].ID())
}

func TestTimeline_Gates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		builder *Builder
	}{
		{"should handle", Define("feed", f.userClass).ShouldHandle(func(ctx context.Context, a *activity.Activity, r *Route) bool {
			return false
		})},
		{"should store", Define("feed", f.userClass).ShouldStore(func(ctx context.Context, e *Entry) bool {
			return false
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored bool
			typ := tt.builder.
				Route("follow_buddy", To("buddy")).
				DidStore(func(ctx context.Context, e *Entry) { stored = true }).
				MustBuild()
			tl := New(typ, Recipient{ID: "u2"}, f.st, f.cat)
			a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})

			before, err := tl.Count(ctx)
			require.NoError(t, err)
			entry, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
			require.NoError(t, err)
			assert.Nil(t, entry)
			assert.False(t, stored)

			after, err := tl.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestTimeline_WillStoreMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	typ := Define("feed", f.userClass).
		Route("follow_buddy", To("buddy")).
		WillStore(func(ctx context.Context, e *Entry) {
			_ = e.Activity.SetMeta("foo", "tag")
			e.Meta["seen"] = false
		}).
		MustBuild()
	a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2", "foo": "bar"})
	tl := New(typ, Recipient{ID: "u2"}, f.st, f.cat)

	entry, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
	require.NoError(t, err)
	require.NotNil(t, entry)

	original, _ := a.Meta("foo")
	assert.Equal(t, "bar", original)

	got, err := tl.Get(ctx, entry.ID())
	require.NoError(t, err)
	foo, _ := got.Activity.Meta("foo")
	assert.Equal(t, "tag", foo)
	assert.Equal(t, false, got.Meta["seen"])
}

func TestTimeline_MaxLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	typ := Define("feed", f.userClass).Route("follow_buddy", To("buddy")).MaxLength(2).MustBuild()
	tl := New(typ, Recipient{ID: "u2"}, f.st, f.cat)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 4 {
		a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2", "at": base.Add(time.Duration(i) * time.Minute), "n": i})
		_, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
		require.NoError(t, err)
	}

	entries, err := tl.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	first, _ := entries[0].Activity.Meta("n")
	second, _ := entries[1].Activity.Meta("n")
	assert.Equal(t, []any{3, 2}, []any{first, second})
}

func TestTimeline_Dedupe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	typ := Define("feed", f.userClass).Route("follow_buddy", To("buddy")).Dedupe().MustBuild()
	tl := New(typ, Recipient{ID: "u2"}, f.st, f.cat)
	a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})

	first, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := tl.HandleActivity(ctx, a, typ.Routes()[0])
	require.NoError(t, err)
	assert.Nil(t, again)

	n, err := tl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTimeline_GetOtherRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	typ := Define("feed", f.userClass).Route("follow_buddy", To("buddy")).MustBuild()
	a := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})
	entry, err := New(typ, Recipient{ID: "u2"}, f.st, f.cat).HandleActivity(ctx, a, typ.Routes()[0])
	require.NoError(t, err)

	_, err = New(typ, Recipient{ID: "u1"}, f.st, f.cat).Get(ctx, entry.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntry_Humanize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	typ := Define("feed", f.userClass).
		Route("follow_buddy", To("buddy")).
		Route("follow_buddy", To("actor"), Humanize("You followed {{buddy}}")).
		Route("add_photo", To("actor"), EntryRenderer("photo")).
		Render("photo", func(ctx context.Context, e *Entry) (string, error) {
			return "new photo for " + e.RecipientID, nil
		}).
		MustBuild()

	follow := f.stored(t, f.follow, map[string]any{"actor": "u1", "buddy": "u2"})
	photo := f.stored(t, f.addPhoto, map[string]any{"actor": "u2"})

	tests := []struct {
		name  string
		a     *activity.Activity
		route string
		want  string
	}{
		{"activity template", follow, "buddy_follow_buddy", "Ana is now following Bo"},
		{"inline template", follow, "actor_follow_buddy", "You followed Bo"},
		{"entry renderer", photo, "actor_add_photo", "new photo for u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, ok := typ.Route(tt.route)
			require.True(t, ok)
			rcpts, err := route.Resolve(ctx, tt.a)
			require.NoError(t, err)
			entry, err := New(typ, rcpts[0], f.st, f.cat).HandleActivity(ctx, tt.a, route)
			require.NoError(t, err)

			text, err := entry.Humanize(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestEntryFromRecord_Malformed(t *testing.T) {
	f := newFixture(t)
	typ := Define("feed", f.userClass).Route("follow_buddy", To("buddy")).MustBuild()

	_, err := EntryFromRecord(typ, f.cat, store.EntryRecord{
		ID:          "e1",
		RecipientID: "u2",
		RoutingKind: "ghost",
		Activity:    store.ActivityRecord{Kind: "follow_buddy", Entities: map[string]string{"actor": "u1", "buddy": "u2"}},
	})
	assert.ErrorIs(t, err, ErrMalformedEntry)

	_, err = EntryFromRecord(typ, f.cat, store.EntryRecord{
		ID:       "e2",
		Activity: store.ActivityRecord{Kind: "vanished"},
	})
	assert.True(t, errors.Is(err, ErrMalformedEntry) && errors.Is(err, domain.ErrUnknownKind))
}
