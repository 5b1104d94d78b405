package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityRecord_FlatForm(t *testing.T) {
	rec := ActivityRecord{
		ID:       "a1",
		Kind:     "follow_buddy",
		At:       time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC),
		Entities: map[string]string{"actor": "u1", "buddy": "u2"},
		Meta:     map[string]any{"note": "hi"},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, map[string]any{
		"_id":   "a1",
		"kind":  "follow_buddy",
		"at":    "2024-01-02T03:04:05.000006Z",
		"actor": "u1",
		"buddy": "u2",
		"meta":  map[string]any{"note": "hi"},
	}, flat)

	var back ActivityRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)
}

func TestActivityRecord_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `[1]`},
		{"bad at", `{"kind":"x","at":"yesterday"}`},
		{"non-string entity", `{"kind":"x","actor":7}`},
		{"bad meta", `{"kind":"x","meta":"m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec ActivityRecord
			assert.Error(t, json.Unmarshal([]byte(tt.raw), &rec))
		})
	}
}

func TestEntryRecord_EmbedsActivity(t *testing.T) {
	rec := EntryRecord{
		ID:           "e1",
		TimelineKind: "news_feed",
		RecipientID:  "u2",
		RoutingKind:  "buddy",
		Activity: ActivityRecord{
			ID:       "a1",
			Kind:     "follow_buddy",
			At:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Entities: map[string]string{"buddy": "u2"},
		},
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"activity":{`)
	assert.Contains(t, string(raw), `"buddy":"u2"`)

	var back EntryRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, rec, back)
}

func TestFilter_Validate(t *testing.T) {
	assert.NoError(t, Filter{Entities: map[string]string{"actor_1": "x"}}.Validate())
	assert.Error(t, Filter{Entities: map[string]string{"a.b": "x"}}.Validate())
	assert.Error(t, Filter{AnyEntities: map[string]string{"1a": "x"}}.Validate())
}
