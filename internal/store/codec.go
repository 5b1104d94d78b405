package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarshalJSON writes the flat canonical form:
// {"_id": ..., "at": ..., "kind": ..., "<entity>": "<id>", ..., "meta": {...}}.
func (r ActivityRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Entities)+4)
	for name, id := range r.Entities {
		flat[name] = id
	}
	if r.ID != "" {
		flat["_id"] = r.ID
	}
	flat["kind"] = r.Kind
	flat["at"] = r.At.UTC().Format(time.RFC3339Nano)
	if len(r.Meta) > 0 {
		flat["meta"] = r.Meta
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat canonical form. Every non-reserved key is an entity id.
func (r *ActivityRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	out := ActivityRecord{Entities: make(map[string]string)}
	for key, raw := range flat {
		switch key {
		case "_id":
			if err := json.Unmarshal(raw, &out.ID); err != nil {
				return fmt.Errorf("decoding _id: %w", err)
			}
		case "kind":
			if err := json.Unmarshal(raw, &out.Kind); err != nil {
				return fmt.Errorf("decoding kind: %w", err)
			}
		case "at":
			var at string
			if err := json.Unmarshal(raw, &at); err != nil {
				return fmt.Errorf("decoding at: %w", err)
			}
			t, err := time.Parse(time.RFC3339Nano, at)
			if err != nil {
				return fmt.Errorf("decoding at: %w", err)
			}
			out.At = t.UTC()
		case "meta":
			if err := json.Unmarshal(raw, &out.Meta); err != nil {
				return fmt.Errorf("decoding meta: %w", err)
			}
		default:
			var id string
			if err := json.Unmarshal(raw, &id); err != nil {
				return fmt.Errorf("decoding entity %s: %w", key, err)
			}
			out.Entities[key] = id
		}
	}
	*r = out
	return nil
}

type entryJSON struct {
	ID           string         `json:"_id,omitempty"`
	TimelineKind string         `json:"timeline_kind"`
	RecipientID  string         `json:"recipient_id"`
	RoutingKind  string         `json:"routing_kind"`
	Activity     ActivityRecord `json:"activity"`
	Meta         map[string]any `json:"meta,omitempty"`
}

func (r EntryRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON(r))
}

func (r *EntryRecord) UnmarshalJSON(data []byte) error {
	var v entryJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = EntryRecord(v)
	return nil
}
