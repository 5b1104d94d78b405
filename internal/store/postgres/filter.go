package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"

	"feedcraft/internal/store"
)

type columns struct {
	kind     string
	at       string
	entities string
}

var (
	activityColumns = columns{kind: "kind", at: "at", entities: "entities"}
	entryColumns    = columns{kind: "activity_kind", at: "activity_at", entities: "activity_entities"}
)

// where translates the activity constraints of f. Entity constraints use
// JSONB containment so the GIN index serves them.
func where(f store.Filter, c columns) (squirrel.And, error) {
	conds := squirrel.And{}
	if len(f.Entities) > 0 {
		doc, err := json.Marshal(f.Entities)
		if err != nil {
			return nil, fmt.Errorf("encoding entity filter: %w", err)
		}
		conds = append(conds, squirrel.Expr(c.entities+" @> ?::jsonb", string(doc)))
	}
	if len(f.AnyEntities) > 0 {
		anyOf := squirrel.Or{}
		for name, id := range f.AnyEntities {
			doc, err := json.Marshal(map[string]string{name: id})
			if err != nil {
				return nil, fmt.Errorf("encoding entity filter: %w", err)
			}
			anyOf = append(anyOf, squirrel.Expr(c.entities+" @> ?::jsonb", string(doc)))
		}
		conds = append(conds, anyOf)
	}
	if !f.Before.IsZero() {
		conds = append(conds, squirrel.Lt{c.at: f.Before})
	}
	if !f.After.IsZero() {
		conds = append(conds, squirrel.Gt{c.at: f.After})
	}
	if len(f.Only) > 0 {
		conds = append(conds, squirrel.Eq{c.kind: f.Only})
	}
	if len(f.Except) > 0 {
		conds = append(conds, squirrel.NotEq{c.kind: f.Except})
	}
	return conds, nil
}

func page(q squirrel.SelectBuilder, limit, skip int) squirrel.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if skip > 0 {
		q = q.Offset(uint64(skip))
	}
	return q
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeEntities(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	s, err := encodeJSON(m)
	if err != nil {
		return "", fmt.Errorf("encoding entities: %w", err)
	}
	return s, nil
}

func encodeMeta(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	s, err := encodeJSON(m)
	if err != nil {
		return "", fmt.Errorf("encoding meta: %w", err)
	}
	return s, nil
}

func decodeEntities(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	return out, nil
}

func decodeMeta(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding meta: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
