// Package entity resolves domain objects, or their identifiers, into lazily
// loaded references that activities and timeline entries point at.
package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"feedcraft/internal/domain"
)

// ErrUnknownAttr is returned by Accessor implementations for names they do not expose.
var ErrUnknownAttr = errors.New("unknown attribute")

// FindFunc loads a model by its opaque identifier.
type FindFunc func(ctx context.Context, id string) (Model, error)

// Class describes a kind of domain object. Find is nil for classes that can
// only be referenced through live instances.
type Class struct {
	Name string
	Find FindFunc
}

// NewClass returns a class named name that loads models with find.
func NewClass(name string, find FindFunc) *Class {
	return &Class{Name: name, Find: find}
}

// Model is a domain object that can take part in an activity.
type Model interface {
	EntityID() string
	EntityClass() string
}

// Accessor exposes named attributes of a model to path routing and humanizing.
type Accessor interface {
	Attr(ctx context.Context, name string) (any, error)
}

// Humanizer renders a model through one of its named presentation methods.
type Humanizer interface {
	Humanize(method string, opts HumanizeOptions) (string, error)
}

// HumanizeOptions drives Ref.Humanize.
type HumanizeOptions struct {
	Method  string
	Default string
	Extra   map[string]any
}

// Options constrain Resolve.
type Options struct {
	Class *Class
}

// Ref is an immutable pointer from an activity slot to a domain object.
type Ref struct {
	name      string
	class     *Class
	className string
	id        string

	mu     sync.Mutex
	loaded bool
	model  Model
}

// Resolve turns value into a reference named name. Value is either a live
// Model, an existing *Ref, or an opaque identifier (string or uuid.UUID).
// A nil value resolves to a nil reference.
func Resolve(name string, value any, opts Options) (*Ref, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Ref:
		if v == nil {
			return nil, nil
		}
		if opts.Class != nil && v.className != opts.Class.Name {
			return nil, domain.Configf(name, "class mismatch: got %s, want %s", v.className, opts.Class.Name)
		}
		ref := &Ref{name: name, class: v.class, className: v.className, id: v.id}
		if opts.Class != nil {
			ref.class = opts.Class
		}
		if m, ok := v.cached(); ok {
			ref.loaded, ref.model = true, m
		}
		return ref, nil
	case Model:
		className := v.EntityClass()
		if opts.Class != nil && opts.Class.Name != className {
			return nil, domain.Configf(name, "class mismatch: got %s, want %s", className, opts.Class.Name)
		}
		return &Ref{
			name:      name,
			class:     opts.Class,
			className: className,
			id:        v.EntityID(),
			loaded:    true,
			model:     v,
		}, nil
	}

	id, ok := Identifier(value)
	if !ok {
		return nil, fmt.Errorf("%w: entity %s: unsupported value %T", domain.ErrInvalidField, name, value)
	}
	if opts.Class == nil {
		return nil, domain.Configf(name, "class is required to resolve an entity by id")
	}
	if opts.Class.Find == nil {
		return nil, domain.Configf(name, "class %s cannot find models by id", opts.Class.Name)
	}
	return &Ref{name: name, class: opts.Class, className: opts.Class.Name, id: id}, nil
}

// Identifier reports whether value is an opaque identifier and returns its string form.
func Identifier(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case uuid.UUID:
		return v.String(), v != uuid.Nil
	case *uuid.UUID:
		if v == nil || *v == uuid.Nil {
			return "", false
		}
		return v.String(), true
	default:
		return "", false
	}
}

func (r *Ref) Name() string      { return r.name }
func (r *Ref) ID() string        { return r.id }
func (r *Ref) ClassName() string { return r.className }
func (r *Ref) Class() *Class     { return r.class }

// Equal reports whether both references point at the same object through the same slot.
func (r *Ref) Equal(other *Ref) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.name == other.name && r.className == other.className && r.id == other.id
}

// Model loads the referenced object on first use and returns the cached value afterwards,
// even if the backing store changes. A failed lookup is not cached.
func (r *Ref) Model(ctx context.Context) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.model, nil
	}
	if r.class == nil || r.class.Find == nil {
		return nil, domain.Configf(r.name, "class %s cannot find models by id", r.className)
	}
	m, err := r.class.Find(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", r.className, r.id, err)
	}
	r.loaded, r.model = true, m
	return m, nil
}

func (r *Ref) cached() (Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model, r.loaded
}

// Humanize renders the referenced model for natural-language output. With a
// method, the model's Humanizer (or Accessor) is asked for it; without one,
// fmt.Stringer or the id is used. Empty results fall back to opts.Default.
func (r *Ref) Humanize(ctx context.Context, opts HumanizeOptions) (string, error) {
	if r == nil {
		return opts.Default, nil
	}
	m, err := r.Model(ctx)
	if err != nil {
		return "", err
	}
	if m == nil {
		return opts.Default, nil
	}

	var out string
	switch {
	case opts.Method == "":
		if s, ok := m.(fmt.Stringer); ok {
			out = s.String()
		} else {
			out = m.EntityID()
		}
	default:
		if h, ok := m.(Humanizer); ok {
			out, err = h.Humanize(opts.Method, opts)
			if err != nil {
				return "", fmt.Errorf("humanizing %s: %w", r.name, err)
			}
			break
		}
		a, ok := m.(Accessor)
		if !ok {
			return "", domain.Configf(r.name, "%s has no humanize method %q", r.className, opts.Method)
		}
		v, err := a.Attr(ctx, opts.Method)
		if err != nil {
			if errors.Is(err, ErrUnknownAttr) {
				return "", domain.Configf(r.name, "%s has no humanize method %q", r.className, opts.Method)
			}
			return "", fmt.Errorf("humanizing %s: %w", r.name, err)
		}
		if v != nil {
			out = fmt.Sprint(v)
		}
	}

	if strings.TrimSpace(out) == "" {
		return opts.Default, nil
	}
	return out, nil
}
