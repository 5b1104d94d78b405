package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchema(t *testing.T) {
	t.Run("valid schema loads", func(t *testing.T) {
		schema, err := LoadSchema(filepath.Join("testdata", "valid_schema.yaml"))
		require.NoError(t, err)
		assert.True(t, schema.HasClass("Album"))

		act, ok := schema.ActivityByKind("add_photo")
		require.True(t, ok)
		require.Len(t, act.Entities, 2)
		assert.True(t, act.Entities[1].Optional)
		assert.Equal(t, "an album", act.Entities[1].Default)

		tl, ok := schema.TimelineByKind("news_feed")
		require.True(t, ok)
		assert.Equal(t, 50, tl.MaxLength)
		assert.Equal(t, "album_owner", tl.Routes[1].Using)
	})

	t.Run("directory merges yaml files", func(t *testing.T) {
		schema, err := LoadSchema(filepath.Join("testdata", "feeds"))
		require.NoError(t, err)
		_, ok := schema.ActivityByKind("follow_buddy")
		assert.True(t, ok)
		_, ok = schema.TimelineByKind("news_feed")
		assert.True(t, ok)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := LoadSchema(t.TempDir())
		assert.Error(t, err)
	})

	tests := []struct {
		name     string
		contents string
	}{
		{"unsupported version", "version: 2\nclasses: [User]\nactivities:\n  - kind: a\n"},
		{"no activities", "version: 1\nclasses: [User]\n"},
		{"duplicate class", "version: 1\nclasses: [User, User]\nactivities:\n  - kind: a\n"},
		{"duplicate activity", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\n  - kind: a\n"},
		{"duplicate entity", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\n    entities:\n      - { name: x, class: User }\n      - { name: x, class: User }\n"},
		{"unknown entity class", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\n    entities:\n      - { name: x, class: Photo }\n"},
		{"unknown recipient", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\ntimelines:\n  - kind: t\n    recipient: Group\n"},
		{"duplicate routing", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\ntimelines:\n  - kind: t\n    recipient: User\n    routings:\n      - { name: r, to: x }\n      - { name: r, to: y }\n"},
		{"route unknown activity", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\ntimelines:\n  - kind: t\n    recipient: User\n    routes:\n      - { activity: b, to: x }\n"},
		{"route with both strategies", "version: 1\nclasses: [User]\nactivities:\n  - kind: a\ntimelines:\n  - kind: t\n    recipient: User\n    routes:\n      - { activity: a, to: x, using: y }\n"},
		{"invalid yaml", "version: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSchema(writeTemp(t, "schema.yaml", tt.contents))
			assert.Error(t, err)
		})
	}
}
