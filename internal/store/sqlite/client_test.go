package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/store"
	"feedcraft/internal/store/storetest"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	require.NoError(t, c.EnsureSchema(ctx))
	return c
}

func TestClient(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestClient(t) })
}

func TestClient_EnsureSchemaIdempotent(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.EnsureSchema(context.Background()))
}

func TestClient_FileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "feed.db")

	c, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.EnsureSchema(ctx))
	id, err := c.InsertActivity(ctx, store.ActivityRecord{
		Kind:     "follow_buddy",
		At:       time.Date(2024, 1, 1, 0, 0, 0, 1000, time.UTC),
		Entities: map[string]string{"actor": "u1"},
	})
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	c, err = New(ctx, "sqlite://"+path)
	require.NoError(t, err)
	defer c.Close(ctx)
	got, err := c.FetchActivity(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.Entities["actor"])
	assert.Equal(t, 1000, got.At.Nanosecond())
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- comment
CREATE TABLE a (x INTEGER);
CREATE TABLE b (
	y TEXT
);
`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "y TEXT")
	assert.NotContains(t, stmts[0], "comment")
}
