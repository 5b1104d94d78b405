package validate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/activity"
	"feedcraft/internal/entity"
	"feedcraft/internal/registry"
	"feedcraft/internal/store"
	"feedcraft/internal/store/memory"
	"feedcraft/internal/timeline"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	users := entity.StubClass("User")
	reg := registry.New()
	require.NoError(t, reg.RegisterClass(users))
	reg.MustRegisterActivity(activity.Define("follow_buddy").
		Entity("actor", activity.EntityDecl{Class: users}).
		Entity("buddy", activity.EntityDecl{Class: users}).
		MustBuild())
	reg.MustRegisterTimeline(timeline.Define("news_feed", users).
		Route("follow_buddy", timeline.To("buddy")).
		MaxLength(2).
		MustBuild())
	return reg
}

func follow(id string, at time.Time) store.ActivityRecord {
	return store.ActivityRecord{
		ID:       id,
		Kind:     "follow_buddy",
		At:       at,
		Entities: map[string]string{"actor": "U1", "buddy": "U2"},
	}
}

func insertEntry(t *testing.T, st store.Store, recipient, routing string, a store.ActivityRecord) string {
	t.Helper()
	id, err := st.InsertTimelineEntry(context.Background(), "news_feed", store.EntryRecord{
		RecipientID: recipient,
		RoutingKind: routing,
		Activity:    a,
	})
	require.NoError(t, err)
	return id
}

func codes(report *Report) []string {
	out := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		out = append(out, issue.Code)
	}
	return out
}

func TestRun_CleanStore(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	st := memory.New()

	a := follow("a1", time.Now().UTC())
	_, err := st.InsertActivity(ctx, a)
	require.NoError(t, err)
	insertEntry(t, st, "U2", "buddy", a)

	report, err := Run(ctx, reg, st, Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.Zero(t, report.Errors())
}

func TestRun_ReportsEntryProblems(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	st := memory.New()
	now := time.Now().UTC()

	kept := follow("a1", now)
	_, err := st.InsertActivity(ctx, kept)
	require.NoError(t, err)

	badRoute := insertEntry(t, st, "U2", "actor", kept)

	unknown := kept
	unknown.ID = "a2"
	unknown.Kind = "poke"
	badKind := insertEntry(t, st, "U3", "buddy", unknown)

	orphan := insertEntry(t, st, "U4", "buddy", follow("gone", now))

	report, err := Run(ctx, reg, st, Options{})
	require.NoError(t, err)
	require.Len(t, report.Issues, 3)
	assert.Equal(t, 2, report.Errors())

	byRecord := make(map[string]Issue)
	for _, issue := range report.Issues {
		assert.Equal(t, "news_feed", issue.Timeline)
		byRecord[issue.Record] = issue
	}
	assert.Equal(t, codeMalformedEntry, byRecord[badRoute].Code)
	assert.Equal(t, codeUnknownActivityKind, byRecord[badKind].Code)
	assert.Equal(t, codeMissingSource, byRecord[orphan].Code)
	assert.Equal(t, SeverityWarn, byRecord[orphan].Severity)
	assert.Equal(t, "U4", byRecord[orphan].Recipient)
}

func TestRun_UnknownStoredActivityKind(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, err := st.InsertActivity(ctx, store.ActivityRecord{ID: "x", Kind: "poke", At: time.Now().UTC()})
	require.NoError(t, err)

	report, err := Run(ctx, testRegistry(t), st, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{codeUnknownActivityKind}, codes(report))
	assert.Equal(t, "x", report.Issues[0].Record)
}

func TestRun_TimelineOverMaxLength(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// small batches force several pages per timeline
	for i := range 5 {
		a := follow(fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Minute))
		_, err := st.InsertActivity(ctx, a)
		require.NoError(t, err)
		insertEntry(t, st, "U2", "buddy", a)
	}
	a := follow("b", base)
	_, err := st.InsertActivity(ctx, a)
	require.NoError(t, err)
	insertEntry(t, st, "U3", "buddy", a)

	report, err := Run(ctx, testRegistry(t), st, Options{BatchSize: 2})
	require.NoError(t, err)
	require.Equal(t, []string{codeOverMaxLength}, codes(report))
	assert.Equal(t, "U2", report.Issues[0].Recipient)
	assert.Contains(t, report.Issues[0].Message, "5 entries exceed max length 2")
}

func TestRun_RequiresInputs(t *testing.T) {
	_, err := Run(context.Background(), nil, memory.New(), Options{})
	assert.Error(t, err)
	_, err = Run(context.Background(), testRegistry(t), nil, Options{})
	assert.Error(t, err)
}
