package store

import (
	"fmt"
	"regexp"
	"slices"
)

var entityNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects entity names that cannot be used as record keys. SQL
// adapters splice names into JSON paths, so this runs before any query is built.
func (f Filter) Validate() error {
	for name := range f.Entities {
		if !entityNamePattern.MatchString(name) {
			return fmt.Errorf("invalid entity name in filter: %q", name)
		}
	}
	for name := range f.AnyEntities {
		if !entityNamePattern.MatchString(name) {
			return fmt.Errorf("invalid entity name in filter: %q", name)
		}
	}
	return nil
}

// MatchActivity reports whether rec satisfies the activity constraints of f.
func (f Filter) MatchActivity(rec ActivityRecord) bool {
	for name, id := range f.Entities {
		if rec.Entities[name] != id {
			return false
		}
	}
	if len(f.AnyEntities) > 0 {
		matched := false
		for name, id := range f.AnyEntities {
			if rec.Entities[name] == id {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !f.Before.IsZero() && !rec.At.Before(f.Before) {
		return false
	}
	if !f.After.IsZero() && !rec.At.After(f.After) {
		return false
	}
	if len(f.Only) > 0 && !slices.Contains(f.Only, rec.Kind) {
		return false
	}
	if len(f.Except) > 0 && slices.Contains(f.Except, rec.Kind) {
		return false
	}
	return true
}

// MatchEntry reports whether rec satisfies f, including entry-only constraints.
func (f Filter) MatchEntry(rec EntryRecord) bool {
	if f.RecipientID != "" && rec.RecipientID != f.RecipientID {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, rec.ID) {
		return false
	}
	return f.MatchActivity(rec.Activity)
}
