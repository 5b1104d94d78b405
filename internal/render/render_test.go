package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		bindings map[string]any
		want     string
	}{
		{"plain bindings", "{{actor}} is now following {{buddy}}", map[string]any{"actor": "Ada", "buddy": "Grace"}, "Ada is now following Grace"},
		{"escaped", "{{actor}} said hi", map[string]any{"actor": "<b>Ada</b>"}, "&lt;b&gt;Ada&lt;/b&gt; said hi"},
		{"verbatim", "{{{actor}}} said hi", map[string]any{"actor": "<b>Ada</b>"}, "<b>Ada</b> said hi"},
		{"missing binding", "{{actor}} added {{count}} photos", map[string]any{"actor": "Bo"}, "Bo added  photos"},
		{"section", "{{#count}}{{count}} photos{{/count}}", map[string]any{"count": 3}, "3 photos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.bindings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("{{actor}} joined"))
	assert.Error(t, Validate("{{#open}} never closed"))

	_, err := Render("{{#open}}", nil)
	assert.Error(t, err)
}
