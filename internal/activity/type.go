// Package activity models typed, timestamped facts that reference named
// domain entities plus free-form metadata.
package activity

import (
	"context"
	"strings"

	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/render"
)

// Reserved record fields. Neither entity slots nor metadata may use them.
const (
	FieldID   = "_id"
	FieldAt   = "at"
	FieldKind = "kind"
	FieldMeta = "meta"
)

func isReserved(name string) bool {
	switch name {
	case FieldID, FieldAt, FieldKind, FieldMeta:
		return true
	}
	return false
}

// EntityDecl declares one entity slot of an activity type.
type EntityDecl struct {
	Name           string
	Class          *entity.Class
	Optional       bool
	HumanizeMethod string
	Default        string
}

// Gate decides whether storing may continue. Returning false aborts the store without error.
type Gate func(ctx context.Context, a *Activity) bool

// Notify observes a stored activity.
type Notify func(ctx context.Context, a *Activity)

// Type is the immutable descriptor of one activity kind.
type Type struct {
	kind        string
	entities    []EntityDecl
	index       map[string]int
	template    string
	beforeStore []Gate
	afterStore  []Notify
}

func (t *Type) Kind() string     { return t.kind }
func (t *Type) Template() string { return t.template }

// Entities returns the declared slots in declaration order.
func (t *Type) Entities() []EntityDecl {
	return append([]EntityDecl(nil), t.entities...)
}

// Entity returns the declaration of slot name.
func (t *Type) Entity(name string) (EntityDecl, bool) {
	i, ok := t.index[name]
	if !ok {
		return EntityDecl{}, false
	}
	return t.entities[i], true
}

func (t *Type) HasEntity(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Builder accumulates declarations for one activity type. The first
// declaration error is kept and returned by Build.
type Builder struct {
	t   *Type
	err error
}

// Define starts the declaration of activity kind.
func Define(kind string) *Builder {
	b := &Builder{t: &Type{kind: strings.TrimSpace(kind), index: make(map[string]int)}}
	if b.t.kind == "" {
		b.err = domain.Configf("activity", "kind is required")
	}
	return b
}

// Entity declares slot name. Re-declaring a name is a configuration error.
func (b *Builder) Entity(name string, decl EntityDecl) *Builder {
	if b.err != nil {
		return b
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		b.err = domain.Configf(b.t.kind, "entity name is required")
	case isReserved(name):
		b.err = domain.Configf(b.t.kind, "entity name %q is reserved", name)
	case b.t.HasEntity(name):
		b.err = domain.Configf(b.t.kind, "entity %q already declared", name)
	case decl.Class == nil:
		b.err = domain.Configf(b.t.kind, "entity %q has no class", name)
	}
	if b.err != nil {
		return b
	}
	decl.Name = name
	b.t.index[name] = len(b.t.entities)
	b.t.entities = append(b.t.entities, decl)
	return b
}

// Humanize sets the type-level rendering template. Declaring it twice is a configuration error.
func (b *Builder) Humanize(template string) *Builder {
	if b.err != nil {
		return b
	}
	if b.t.template != "" {
		b.err = domain.Configf(b.t.kind, "humanize template already declared")
		return b
	}
	if err := render.Validate(template); err != nil {
		b.err = domain.Configf(b.t.kind, "humanize template: %v", err)
		return b
	}
	b.t.template = template
	return b
}

func (b *Builder) BeforeStore(g Gate) *Builder {
	if b.err == nil && g != nil {
		b.t.beforeStore = append(b.t.beforeStore, g)
	}
	return b
}

func (b *Builder) AfterStore(n Notify) *Builder {
	if b.err == nil && n != nil {
		b.t.afterStore = append(b.t.afterStore, n)
	}
	return b
}

// Build returns the finished descriptor. The builder must not be reused.
func (b *Builder) Build() (*Type, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := b.t
	b.t = nil
	return t, nil
}

// MustBuild is Build for startup code that treats declaration errors as fatal.
func (b *Builder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// Catalog resolves activity kinds and system-wide entity names.
type Catalog interface {
	ActivityType(kind string) (*Type, bool)
	IsEntityName(name string) bool
}
