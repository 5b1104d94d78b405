// Package render turns humanize templates into sentences.
package render

import (
	"fmt"

	"github.com/cbroglie/mustache"
)

// Render renders a mustache template against bindings. Values are inserted
// verbatim with {{{name}}} and HTML-escaped with {{name}}.
func Render(template string, bindings map[string]any) (string, error) {
	out, err := mustache.Render(template, bindings)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

// Validate parses template without rendering it, so declarations fail early.
func Validate(template string) error {
	if _, err := mustache.ParseString(template); err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	return nil
}
