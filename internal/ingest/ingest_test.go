package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/activity"
	"feedcraft/internal/dispatch"
	"feedcraft/internal/domain"
	"feedcraft/internal/engine"
	"feedcraft/internal/entity"
	"feedcraft/internal/parser"
	"feedcraft/internal/registry"
	"feedcraft/internal/store"
	"feedcraft/internal/store/memory"
	"feedcraft/internal/timeline"
)

func newEngine(t *testing.T) (*engine.Engine, store.Store) {
	t.Helper()
	users := entity.StubClass("User")
	reg := registry.New()
	require.NoError(t, reg.RegisterClass(users))
	reg.MustRegisterActivity(activity.Define("follow_buddy").
		Entity("actor", activity.EntityDecl{Class: users}).
		Entity("buddy", activity.EntityDecl{Class: users}).
		BeforeStore(func(ctx context.Context, a *activity.Activity) bool {
			return a.EntityID("actor") != a.EntityID("buddy")
		}).
		MustBuild())
	reg.MustRegisterTimeline(timeline.Define("news_feed", users).
		Route("follow_buddy", timeline.To("buddy")).
		MustBuild())

	st := memory.New()
	d, err := dispatch.New(reg, st, dispatch.Options{})
	require.NoError(t, err)
	return engine.New(reg, st, d, nil), st
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestRun_RecordsDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024/follows.yaml", "kind: follow_buddy\nactor: u1\nbuddy: u2\n---\nkind: follow_buddy\nactor: u3\nbuddy: u2\n")
	writeFile(t, dir, "more.jsonl", `{"kind":"follow_buddy","actor":"u2","buddy":"u1","at":"2024-01-01T00:00:00Z"}`+"\n")
	writeFile(t, dir, "notes.md", "kind: follow_buddy\n")

	eng, st := newEngine(t)
	result, err := Run(context.Background(), eng, Options{Paths: []string{dir}})
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 3, result.Documents)
	assert.Equal(t, 3, result.Recorded)
	assert.Equal(t, 3, result.EntriesStored)

	n, err := st.CountTimelineEntries(context.Background(), "news_feed", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_CollectsErrorsPerDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "feed.jsonl", `{"kind":"follow_buddy","actor":"u1","buddy":"u2"}
{"kind":"dance","actor":"u1"}
{"kind":"follow_buddy","actor":"u1"}
{"actor":"u1"}
{"kind":"follow_buddy","actor":"u4","buddy":"u4"}
{"kind":"follow_buddy","actor":"u3","buddy":"u2"}
`)

	eng, _ := newEngine(t)
	result, err := Run(context.Background(), eng, Options{Paths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Documents)
	assert.Equal(t, 2, result.Recorded)
	assert.Equal(t, 1, result.Vetoed)
	require.Len(t, result.Errors, 3)

	var unknown, missing, noKind bool
	for _, err := range result.Errors {
		var docErr *parser.DocumentError
		require.True(t, errors.As(err, &docErr), "error %v carries its document", err)
		switch {
		case errors.Is(err, domain.ErrUnknownKind):
			unknown = docErr.Index == 2
		case errors.Is(err, domain.ErrMissingEntity):
			missing = docErr.Index == 3
		case errors.Is(err, parser.ErrMissingKind):
			noKind = docErr.Index == 4
		}
	}
	assert.True(t, unknown, "unknown kind on line 2")
	assert.True(t, missing, "missing entity on line 3")
	assert.True(t, noKind, "missing kind on line 4")
}

func TestRun_ExplicitIDsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "feed.yaml", "_id: import-1\nkind: follow_buddy\nactor: u1\nbuddy: u2\n")

	eng, _ := newEngine(t)
	first, err := Run(context.Background(), eng, Options{Paths: []string{path}})
	require.NoError(t, err)
	require.Empty(t, first.Errors)
	assert.Equal(t, 1, first.Recorded)

	second, err := Run(context.Background(), eng, Options{Paths: []string{path}})
	require.NoError(t, err)
	require.Empty(t, second.Errors)
	assert.Equal(t, 0, second.Recorded)
	assert.Equal(t, 1, second.Skipped)

	a, err := eng.Activity(context.Background(), "import-1")
	require.NoError(t, err)
	assert.Equal(t, "u2", a.EntityID("buddy"))
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "feed.yaml", "kind: follow_buddy\nactor: u1\nbuddy: u2\n---\nkind: follow_buddy\nactor: u1\n")

	eng, st := newEngine(t)
	result, err := Run(context.Background(), eng, Options{Paths: []string{dir}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Documents)
	assert.Zero(t, result.Recorded)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], domain.ErrMissingEntity)

	n, err := st.CountActivities(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWalkDocumentFiles_Exclude(t *testing.T) {
	dir := t.TempDir()
	keep := writeFile(t, dir, "keep.yml", "kind: x\n")
	writeFile(t, dir, "archive/old.yaml", "kind: x\n")

	files, err := walkDocumentFiles([]string{dir}, []string{filepath.Join(dir, "archive")})
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}
