package sqlite

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"

	"feedcraft/internal/store"
)

// columns names where an activity's fields live in a table. Timeline entries
// keep their embedded activity in activity_* columns.
type columns struct {
	kind     string
	at       string
	entities string
}

var (
	activityColumns = columns{kind: "kind", at: "at", entities: "entities"}
	entryColumns    = columns{kind: "activity_kind", at: "activity_at", entities: "activity_entities"}
)

// where translates the activity constraints of f. Entity names must have
// passed Filter.Validate since they are spliced into JSON paths.
func where(f store.Filter, c columns) squirrel.And {
	conds := squirrel.And{}
	for _, name := range sortedKeys(f.Entities) {
		conds = append(conds, entityEq(c, name, f.Entities[name]))
	}
	if len(f.AnyEntities) > 0 {
		anyOf := squirrel.Or{}
		for _, name := range sortedKeys(f.AnyEntities) {
			anyOf = append(anyOf, entityEq(c, name, f.AnyEntities[name]))
		}
		conds = append(conds, anyOf)
	}
	if !f.Before.IsZero() {
		conds = append(conds, squirrel.Lt{c.at: f.Before.UnixNano()})
	}
	if !f.After.IsZero() {
		conds = append(conds, squirrel.Gt{c.at: f.After.UnixNano()})
	}
	if len(f.Only) > 0 {
		conds = append(conds, squirrel.Eq{c.kind: f.Only})
	}
	if len(f.Except) > 0 {
		conds = append(conds, squirrel.NotEq{c.kind: f.Except})
	}
	return conds
}

func entityEq(c columns, name, id string) squirrel.Sqlizer {
	return squirrel.Expr(fmt.Sprintf("json_extract(%s, '$.%s') = ?", c.entities, name), id)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// page applies limit and skip. SQLite needs a LIMIT before OFFSET; -1 means unbounded.
func page(q squirrel.SelectBuilder, limit, skip int) squirrel.SelectBuilder {
	switch {
	case limit > 0 && skip > 0:
		return q.Limit(uint64(limit)).Offset(uint64(skip))
	case limit > 0:
		return q.Limit(uint64(limit))
	case skip > 0:
		return q.Suffix(fmt.Sprintf("LIMIT -1 OFFSET %d", skip))
	}
	return q
}

func encodeEntities(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding entities: %w", err)
	}
	return string(b), nil
}

func encodeMeta(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding meta: %w", err)
	}
	return string(b), nil
}

func decodeEntities(raw string) (map[string]string, error) {
	out := map[string]string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return out, nil
}

// decodeMeta returns nil for an empty bucket, matching records that never had meta.
func decodeMeta(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding meta: %w", err)
	}
	return out, nil
}
