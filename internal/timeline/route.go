package timeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
)

// RouteOption configures one route declaration.
type RouteOption func(*routeSettings)

type routeSettings struct {
	to          string
	using       string
	routingKind string
	kind        string
	template    string
	entry       string
}

// To resolves recipients by walking a dotted path from the activity.
func To(path string) RouteOption { return func(s *routeSettings) { s.to = path } }

// Using resolves recipients through a named resolver or routing.
func Using(name string) RouteOption { return func(s *routeSettings) { s.using = name } }

// RoutingKind overrides the derived routing kind.
func RoutingKind(kind string) RouteOption { return func(s *routeSettings) { s.routingKind = kind } }

// Kind overrides the derived route kind.
func Kind(kind string) RouteOption { return func(s *routeSettings) { s.kind = kind } }

// Humanize sets an inline template rendered with the embedded activity's bindings.
func Humanize(template string) RouteOption {
	return func(s *routeSettings) { s.template = template }
}

// EntryRenderer selects the renderer registered under name for this route's entries.
func EntryRenderer(name string) RouteOption { return func(s *routeSettings) { s.entry = name } }

// Route is one (activity kind, recipient strategy) rule of a timeline type.
type Route struct {
	timeline     *Type
	activityKind string
	routingKind  string
	kind         string
	using        string
	path         []string
	template     string
	entry        string
}

func newRoute(t *Type, activityKind string, s routeSettings) (*Route, error) {
	if activityKind == "" {
		return nil, domain.Configf(t.kind, "route activity kind is required")
	}
	to, using := strings.TrimSpace(s.to), strings.TrimSpace(s.using)
	switch {
	case to == "" && using == "":
		return nil, domain.Configf(t.kind, "route for %s needs a path or a resolver", activityKind)
	case to != "" && using != "":
		return nil, domain.Configf(t.kind, "route for %s declares both a path and a resolver", activityKind)
	}

	r := &Route{
		timeline:     t,
		activityKind: activityKind,
		using:        using,
		template:     s.template,
		entry:        s.entry,
	}
	if to != "" {
		path, err := parsePath(t.kind, to)
		if err != nil {
			return nil, err
		}
		r.path = path
		r.routingKind = strings.ReplaceAll(to, ".", "_")
	} else {
		r.routingKind = using
	}
	if s.routingKind != "" {
		r.routingKind = s.routingKind
	}
	r.kind = r.routingKind + "_" + activityKind
	if s.kind != "" {
		r.kind = s.kind
	}
	if err := validateTemplate(t.kind+"."+r.kind, r.template); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Route) Timeline() *Type      { return r.timeline }
func (r *Route) ActivityKind() string { return r.activityKind }
func (r *Route) RoutingKind() string  { return r.routingKind }
func (r *Route) Kind() string         { return r.kind }
func (r *Route) Template() string     { return r.template }

// Path returns the dotted path strategy, or "" for resolver-based routes.
func (r *Route) Path() string { return strings.Join(r.path, ".") }

// Using returns the resolver or routing name, or "" for path routes.
func (r *Route) Using() string { return r.using }

func (r *Route) String() string { return r.timeline.kind + "/" + r.kind }

// Recipient identifies a timeline owner. Model is set when the resolver
// produced a live object.
type Recipient struct {
	ID    string
	Model entity.Model
}

// Resolve computes this route's recipients for a. Collections are flattened
// and nil values dropped. Order follows the resolver's output.
func (r *Route) Resolve(ctx context.Context, a *activity.Activity) ([]Recipient, error) {
	if a.Kind() != r.activityKind {
		return nil, domain.Configf(r.String(), "cannot route %s activities", a.Kind())
	}
	raw, err := r.evaluate(ctx, a)
	if err != nil {
		return nil, err
	}
	values := flatten(raw)
	out := make([]Recipient, 0, len(values))
	for _, v := range values {
		rcpt, err := r.timeline.recipientOf(v)
		if err != nil {
			var invalid *domain.InvalidRecipientError
			if errors.As(err, &invalid) {
				invalid.Route = r.kind
			}
			return nil, err
		}
		if rcpt.ID == "" {
			continue
		}
		out = append(out, rcpt)
	}
	return out, nil
}

func (r *Route) evaluate(ctx context.Context, a *activity.Activity) (any, error) {
	if r.path != nil {
		return walk(ctx, r.String(), a, r.path)
	}
	if fn, ok := r.timeline.resolvers[r.using]; ok {
		return fn(ctx, a, r.timeline)
	}
	rt, ok := r.timeline.routing(r.using)
	if !ok {
		return nil, domain.Configf(r.String(), "unknown resolver or routing %q", r.using)
	}
	if rt.fn != nil {
		return rt.fn(ctx, a, r.timeline)
	}
	return walk(ctx, r.String(), a, rt.path)
}

// RecipientOf normalizes value (model, reference or identifier) into a
// recipient of this timeline type.
func (t *Type) RecipientOf(value any) (Recipient, error) {
	rcpt, err := t.recipientOf(value)
	if err != nil {
		return Recipient{}, err
	}
	if rcpt.ID == "" {
		return Recipient{}, &domain.InvalidRecipientError{Timeline: t.kind, Value: value}
	}
	return rcpt, nil
}

func (t *Type) recipientOf(value any) (Recipient, error) {
	switch v := value.(type) {
	case nil:
		return Recipient{}, nil
	case *entity.Ref:
		if v == nil {
			return Recipient{}, nil
		}
		if v.ClassName() != t.recipient.Name {
			return Recipient{}, &domain.InvalidRecipientError{Timeline: t.kind, Value: value}
		}
		return Recipient{ID: v.ID()}, nil
	case entity.Model:
		if v.EntityClass() != t.recipient.Name {
			return Recipient{}, &domain.InvalidRecipientError{Timeline: t.kind, Value: value}
		}
		return Recipient{ID: v.EntityID(), Model: v}, nil
	}
	if id, ok := entity.Identifier(value); ok {
		return Recipient{ID: id}, nil
	}
	return Recipient{}, &domain.InvalidRecipientError{Timeline: t.kind, Value: value}
}

// walk applies each path step to every current value, flattening
// collections between steps. Unset optional entities end their branch.
func walk(ctx context.Context, subject string, a *activity.Activity, path []string) (any, error) {
	current := []any{a}
	for _, step := range path {
		var next []any
		for _, v := range current {
			out, err := access(ctx, subject, v, step)
			if err != nil {
				return nil, err
			}
			next = append(next, flatten(out)...)
		}
		if len(next) == 0 {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

func access(ctx context.Context, subject string, value any, step string) (any, error) {
	switch v := value.(type) {
	case *activity.Activity:
		if v.Type().HasEntity(step) {
			if ref := v.Entity(step); ref != nil {
				return ref, nil
			}
			return nil, nil
		}
		if m, ok := v.Meta(step); ok {
			return m, nil
		}
		return nil, domain.Configf(subject, "%s activities have no %q", v.Kind(), step)
	case *entity.Ref:
		if step == "id" {
			return v.ID(), nil
		}
		m, err := v.Model(ctx)
		if err != nil {
			return nil, err
		}
		return access(ctx, subject, m, step)
	case map[string]any:
		out, ok := v[step]
		if !ok {
			return nil, domain.Configf(subject, "no %q in map value", step)
		}
		return out, nil
	case entity.Accessor:
		out, err := v.Attr(ctx, step)
		if err != nil {
			if errors.Is(err, entity.ErrUnknownAttr) {
				return nil, domain.Configf(subject, "%T has no accessor %q", value, step)
			}
			return nil, fmt.Errorf("%s: reading %q: %w", subject, step, err)
		}
		return out, nil
	}
	return nil, domain.Configf(subject, "cannot access %q on %T", step, value)
}

// flatten turns value into a flat list of non-nil items.
func flatten(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, item := range v {
			out = append(out, flatten(item)...)
		}
		return out
	case []string:
		out := make([]any, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out
	case []*entity.Ref:
		out := make([]any, 0, len(v))
		for _, ref := range v {
			if ref != nil {
				out = append(out, ref)
			}
		}
		return out
	case []entity.Model:
		out := make([]any, 0, len(v))
		for _, m := range v {
			if m != nil {
				out = append(out, m)
			}
		}
		return out
	case []byte:
		return []any{v}
	case uuid.UUID, *uuid.UUID:
		return []any{v}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		var out []any
		for i := 0; i < rv.Len(); i++ {
			out = append(out, flatten(rv.Index(i).Interface())...)
		}
		return out
	case reflect.Pointer, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return nil
		}
	}
	return []any{value}
}
