package activity

import (
	"context"
	"fmt"
	"maps"
	"time"

	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/render"
	"feedcraft/internal/store"
)

// Timestamps are kept at microsecond precision so every store round-trips them exactly.
const timePrecision = time.Microsecond

// Activity is one recorded fact. It is mutable until stored and append-only afterwards.
type Activity struct {
	typ      *Type
	id       string
	at       time.Time
	entities map[string]*entity.Ref
	meta     map[string]any
	// presetID is handed to the store in place of a generated id.
	presetID string
}

// New builds an activity of typ from fields. Names matching a declared entity
// fill that slot, reserved names fill their field, "meta" merges a map into
// the metadata bucket, and every other name becomes metadata.
func New(typ *Type, fields map[string]any) (*Activity, error) {
	if typ == nil {
		return nil, domain.Configf("activity", "type is required")
	}
	a := &Activity{
		typ:      typ,
		entities: make(map[string]*entity.Ref, len(typ.entities)),
		meta:     make(map[string]any),
	}

	var id string
	for name, value := range fields {
		switch {
		case name == FieldID:
			var ok bool
			id, ok = entity.Identifier(value)
			if !ok && value != nil {
				return nil, fmt.Errorf("%w: %s must be an identifier, got %T", domain.ErrInvalidField, FieldID, value)
			}
		case name == FieldAt:
			at, err := timestamp(value)
			if err != nil {
				return nil, err
			}
			a.at = at
		case name == FieldKind:
			if kind, _ := value.(string); kind != typ.kind {
				return nil, fmt.Errorf("%w: kind %v does not match %s", domain.ErrInvalidField, value, typ.kind)
			}
		case name == FieldMeta:
			if value == nil {
				continue
			}
			m, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: meta must be a map, got %T", domain.ErrInvalidField, value)
			}
			for k, v := range m {
				if err := a.SetMeta(k, v); err != nil {
					return nil, err
				}
			}
		case typ.HasEntity(name):
			if err := a.SetEntity(name, value); err != nil {
				return nil, err
			}
		default:
			if err := a.SetMeta(name, value); err != nil {
				return nil, err
			}
		}
	}

	if a.at.IsZero() {
		a.at = time.Now().UTC().Truncate(timePrecision)
	}
	a.id = id
	return a, nil
}

func timestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Truncate(timePrecision), nil
	case *time.Time:
		if v != nil {
			return v.UTC().Truncate(timePrecision), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s must be a timestamp, got %T", domain.ErrInvalidField, FieldAt, value)
}

func (a *Activity) Type() *Type    { return a.typ }
func (a *Activity) Kind() string   { return a.typ.kind }
func (a *Activity) ID() string     { return a.id }
func (a *Activity) At() time.Time  { return a.at }
func (a *Activity) IsStored() bool { return a.id != "" }

// Entity returns the reference in declared slot name, or nil when the slot
// is unset or not declared on this type.
func (a *Activity) Entity(name string) *entity.Ref {
	return a.entities[name]
}

// EntityID returns the id in slot name, or "".
func (a *Activity) EntityID(name string) string {
	if ref := a.entities[name]; ref != nil {
		return ref.ID()
	}
	return ""
}

// TryEntity probes any entity name across heterogeneous activity types. A name
// declared elsewhere in cat but not on this type yields a nil reference; a
// name unknown to the whole system is an error.
func (a *Activity) TryEntity(cat Catalog, name string) (*entity.Ref, error) {
	if a.typ.HasEntity(name) {
		return a.entities[name], nil
	}
	if cat != nil && cat.IsEntityName(name) {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntity, name)
}

// SetEntity fills declared slot name with value (model, reference or id).
func (a *Activity) SetEntity(name string, value any) error {
	if a.IsStored() {
		return fmt.Errorf("activity %s: stored activities are immutable", a.id)
	}
	decl, ok := a.typ.Entity(name)
	if !ok {
		return fmt.Errorf("%w: %q is not an entity of %s", domain.ErrUnknownEntity, name, a.typ.kind)
	}
	ref, err := entity.Resolve(name, value, entity.Options{Class: decl.Class})
	if err != nil {
		return err
	}
	if ref == nil {
		delete(a.entities, name)
		return nil
	}
	a.entities[name] = ref
	return nil
}

// SetID asks the store to keep id instead of generating one. Importers use it
// to make re-runs idempotent.
func (a *Activity) SetID(id string) error {
	if a.IsStored() {
		return fmt.Errorf("activity %s: stored activities are immutable", a.id)
	}
	a.presetID = id
	return nil
}

// Meta returns metadata value key.
func (a *Activity) Meta(key string) (any, bool) {
	v, ok := a.meta[key]
	return v, ok
}

// MetaMap returns a deep copy of the metadata bucket.
func (a *Activity) MetaMap() map[string]any {
	return store.CloneMeta(a.meta)
}

// SetMeta stores value under key. Keys may not collide with declared entity
// names or reserved fields.
func (a *Activity) SetMeta(key string, value any) error {
	if key == "" || isReserved(key) || a.typ.HasEntity(key) {
		return fmt.Errorf("%w: meta key %q collides with a reserved field or entity", domain.ErrInvalidField, key)
	}
	a.meta[key] = value
	return nil
}

// Check fails with a MissingEntityError naming the first unset required slot.
func (a *Activity) Check() error {
	for _, decl := range a.typ.entities {
		if decl.Optional {
			continue
		}
		if a.entities[decl.Name] == nil {
			return &domain.MissingEntityError{Kind: a.typ.kind, Entity: decl.Name}
		}
	}
	return nil
}

// Store validates and persists the activity, assigning its id. A before-store
// gate returning false aborts without error and Store reports false.
func (a *Activity) Store(ctx context.Context, st store.Store) (bool, error) {
	if a.IsStored() {
		return false, fmt.Errorf("activity %s: already stored", a.id)
	}
	for _, gate := range a.typ.beforeStore {
		if !gate(ctx, a) {
			return false, nil
		}
	}
	if err := a.Check(); err != nil {
		return false, err
	}
	rec := a.ToRecord()
	rec.ID = a.presetID
	id, err := st.InsertActivity(ctx, rec)
	if err != nil {
		return false, err
	}
	a.id = id
	for _, notify := range a.typ.afterStore {
		notify(ctx, a)
	}
	return true, nil
}

// ToRecord returns the canonical record form.
func (a *Activity) ToRecord() store.ActivityRecord {
	rec := store.ActivityRecord{
		ID:       a.id,
		Kind:     a.typ.kind,
		At:       a.at,
		Entities: make(map[string]string, len(a.entities)),
	}
	for name, ref := range a.entities {
		rec.Entities[name] = ref.ID()
	}
	if len(a.meta) > 0 {
		rec.Meta = store.CloneMeta(a.meta)
	}
	return rec
}

// FromRecord rebuilds the concrete activity type named by rec.Kind.
func FromRecord(cat Catalog, rec store.ActivityRecord) (*Activity, error) {
	if rec.Kind == "" {
		return nil, &domain.UnknownKindError{Family: "activity"}
	}
	typ, ok := cat.ActivityType(rec.Kind)
	if !ok {
		return nil, &domain.UnknownKindError{Family: "activity", Kind: rec.Kind}
	}

	fields := make(map[string]any, len(rec.Entities)+3)
	for name, id := range rec.Entities {
		fields[name] = id
	}
	if rec.ID != "" {
		fields[FieldID] = rec.ID
	}
	if !rec.At.IsZero() {
		fields[FieldAt] = rec.At
	}
	if len(rec.Meta) > 0 {
		fields[FieldMeta] = store.CloneMeta(rec.Meta)
	}
	a, err := New(typ, fields)
	if err != nil {
		return nil, fmt.Errorf("decoding %s activity: %w", rec.Kind, err)
	}
	return a, nil
}

// Clone returns an independent snapshot. References are shared since they are immutable.
func (a *Activity) Clone() *Activity {
	return &Activity{
		typ:      a.typ,
		id:       a.id,
		at:       a.at,
		entities: maps.Clone(a.entities),
		meta:     store.CloneMeta(a.meta),
	}
}

// Bindings returns the template bindings: every declared entity humanized
// through its declaration, plus the metadata bucket.
func (a *Activity) Bindings(ctx context.Context) (map[string]any, error) {
	bindings := make(map[string]any, len(a.typ.entities)+len(a.meta))
	for k, v := range a.meta {
		bindings[k] = v
	}
	for _, decl := range a.typ.entities {
		text, err := a.entities[decl.Name].Humanize(ctx, entity.HumanizeOptions{
			Method:  decl.HumanizeMethod,
			Default: decl.Default,
		})
		if err != nil {
			return nil, err
		}
		bindings[decl.Name] = text
	}
	return bindings, nil
}

// Humanize renders the activity through its type template.
func (a *Activity) Humanize(ctx context.Context) (string, error) {
	if a.typ.template == "" {
		return "", domain.Configf(a.typ.kind, "no humanize template declared")
	}
	bindings, err := a.Bindings(ctx)
	if err != nil {
		return "", err
	}
	return render.Render(a.typ.template, bindings)
}
