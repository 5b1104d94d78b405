// Package timeline models per-recipient ordered logs and the declarative
// routes that decide which activities reach them.
package timeline

import (
	"context"
	"strings"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/render"
)

// ResolverFunc computes recipients for an activity: a single value, a slice,
// or nil. Values must be recipient-class models, references or opaque ids.
type ResolverFunc func(ctx context.Context, a *activity.Activity, tl *Type) (any, error)

// RenderFunc renders an entry for routes without an inline template.
type RenderFunc func(ctx context.Context, e *Entry) (string, error)

// HandleGate decides whether a timeline accepts an activity through a route.
type HandleGate func(ctx context.Context, a *activity.Activity, r *Route) bool

// EntryGate decides whether a built entry is stored.
type EntryGate func(ctx context.Context, e *Entry) bool

// EntryHook mutates or observes an entry around its storage.
type EntryHook func(ctx context.Context, e *Entry)

// RoutingDef is a named, reusable resolver: a dotted path or a function.
type RoutingDef struct {
	To   string
	Func ResolverFunc
}

type routing struct {
	name string
	path []string
	fn   ResolverFunc
}

// Type is the immutable descriptor of one timeline kind.
type Type struct {
	kind      string
	recipient *entity.Class
	maxLength int
	dedupe    bool

	resolvers map[string]ResolverFunc
	routings  []*routing
	routes    []*Route
	renderers map[string]RenderFunc

	shouldHandle []HandleGate
	shouldStore  []EntryGate
	willStore    []EntryHook
	didStore     []EntryHook
}

func (t *Type) Kind() string                  { return t.kind }
func (t *Type) RecipientClass() *entity.Class { return t.recipient }
func (t *Type) MaxLength() int                { return t.maxLength }

// Routes returns every route in declaration (priority) order.
func (t *Type) Routes() []*Route {
	return append([]*Route(nil), t.routes...)
}

// RoutesFor returns the routes matching activityKind in priority order.
func (t *Type) RoutesFor(activityKind string) []*Route {
	var out []*Route
	for _, r := range t.routes {
		if r.activityKind == activityKind {
			out = append(out, r)
		}
	}
	return out
}

// Route looks a route up by its unique kind.
func (t *Type) Route(kind string) (*Route, bool) {
	for _, r := range t.routes {
		if r.kind == kind {
			return r, true
		}
	}
	return nil, false
}

// RouteFor finds the route an entry was produced by.
func (t *Type) RouteFor(routingKind, activityKind string) (*Route, bool) {
	for _, r := range t.routes {
		if r.routingKind == routingKind && r.activityKind == activityKind {
			return r, true
		}
	}
	return nil, false
}

// Renderer returns the entry renderer registered under name.
func (t *Type) Renderer(name string) (RenderFunc, bool) {
	fn, ok := t.renderers[name]
	return fn, ok
}

func (t *Type) routing(name string) (*routing, bool) {
	for _, r := range t.routings {
		if r.name == name {
			return r, true
		}
	}
	return nil, false
}

// Builder accumulates declarations for one timeline type. The first
// declaration error is kept and returned by Build.
type Builder struct {
	t   *Type
	err error
}

// Define starts the declaration of timeline kind whose recipients are of class recipient.
func Define(kind string, recipient *entity.Class) *Builder {
	b := &Builder{t: &Type{
		kind:      strings.TrimSpace(kind),
		recipient: recipient,
		resolvers: make(map[string]ResolverFunc),
		renderers: make(map[string]RenderFunc),
	}}
	if b.t.kind == "" {
		b.err = domain.Configf("timeline", "kind is required")
	}
	return b
}

// Resolver declares a timeline-level resolver function usable by Using(name).
func (b *Builder) Resolver(name string, fn ResolverFunc) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case name == "" || fn == nil:
		b.err = domain.Configf(b.t.kind, "resolver needs a name and a function")
	case b.t.resolvers[name] != nil:
		b.err = domain.Configf(b.t.kind, "resolver %q already declared", name)
	default:
		b.t.resolvers[name] = fn
	}
	return b
}

// Routing declares a reusable named routing. Names are unique per timeline kind.
func (b *Builder) Routing(name string, def RoutingDef) *Builder {
	if b.err != nil {
		return b
	}
	name = strings.TrimSpace(name)
	if name == "" {
		b.err = domain.Configf(b.t.kind, "routing name is required")
		return b
	}
	if _, exists := b.t.routing(name); exists {
		b.err = domain.Configf(b.t.kind, "routing %q already declared", name)
		return b
	}
	r := &routing{name: name, fn: def.Func}
	switch {
	case def.To != "" && def.Func != nil:
		b.err = domain.Configf(b.t.kind, "routing %q declares both a path and a function", name)
	case def.To != "":
		r.path, b.err = parsePath(b.t.kind, def.To)
	case def.Func == nil:
		b.err = domain.Configf(b.t.kind, "routing %q declares neither a path nor a function", name)
	}
	if b.err == nil {
		b.t.routings = append(b.t.routings, r)
	}
	return b
}

// Route declares that activities of activityKind reach this timeline through
// the strategy given by opts. Declaration order is route priority.
func (b *Builder) Route(activityKind string, opts ...RouteOption) *Builder {
	if b.err != nil {
		return b
	}
	if b.t.recipient == nil {
		b.err = domain.Configf(b.t.kind, "recipient class must be set before declaring routes")
		return b
	}
	var s routeSettings
	for _, opt := range opts {
		opt(&s)
	}
	r, err := newRoute(b.t, strings.TrimSpace(activityKind), s)
	if err != nil {
		b.err = err
		return b
	}
	if _, exists := b.t.Route(r.kind); exists {
		b.err = domain.Configf(b.t.kind, "route %q already declared", r.kind)
		return b
	}
	b.t.routes = append(b.t.routes, r)
	return b
}

// Render registers an entry renderer. Routes pick it by EntryRenderer(name) or by their own kind.
func (b *Builder) Render(name string, fn RenderFunc) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || fn == nil {
		b.err = domain.Configf(b.t.kind, "renderer needs a name and a function")
		return b
	}
	if b.t.renderers[name] != nil {
		b.err = domain.Configf(b.t.kind, "renderer %q already declared", name)
		return b
	}
	b.t.renderers[name] = fn
	return b
}

// MaxLength bounds each recipient's timeline; older entries are pruned after stores.
func (b *Builder) MaxLength(n int) *Builder {
	if b.err == nil {
		if n < 0 {
			b.err = domain.Configf(b.t.kind, "max length must not be negative")
			return b
		}
		b.t.maxLength = n
	}
	return b
}

// Dedupe skips entries whose (recipient, activity, routing kind) was already stored.
func (b *Builder) Dedupe() *Builder {
	if b.err == nil {
		b.t.dedupe = true
	}
	return b
}

func (b *Builder) ShouldHandle(g HandleGate) *Builder {
	if b.err == nil && g != nil {
		b.t.shouldHandle = append(b.t.shouldHandle, g)
	}
	return b
}

func (b *Builder) ShouldStore(g EntryGate) *Builder {
	if b.err == nil && g != nil {
		b.t.shouldStore = append(b.t.shouldStore, g)
	}
	return b
}

func (b *Builder) WillStore(h EntryHook) *Builder {
	if b.err == nil && h != nil {
		b.t.willStore = append(b.t.willStore, h)
	}
	return b
}

func (b *Builder) DidStore(h EntryHook) *Builder {
	if b.err == nil && h != nil {
		b.t.didStore = append(b.t.didStore, h)
	}
	return b
}

// Build checks cross references and returns the finished descriptor.
func (b *Builder) Build() (*Type, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := b.t
	for _, r := range t.routes {
		if r.using == "" {
			continue
		}
		if _, ok := t.resolvers[r.using]; ok {
			if _, clash := t.routing(r.using); clash {
				return nil, domain.Configf(t.kind, "%q is both a resolver and a routing", r.using)
			}
			continue
		}
		if _, ok := t.routing(r.using); !ok {
			return nil, domain.Configf(t.kind, "route %s uses unknown resolver or routing %q", r.kind, r.using)
		}
	}
	for _, r := range t.routes {
		if r.entry != "" && t.renderers[r.entry] == nil {
			return nil, domain.Configf(t.kind, "route %s names unknown entry renderer %q", r.kind, r.entry)
		}
	}
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

func parsePath(subject, path string) ([]string, error) {
	steps := strings.Split(strings.TrimSpace(path), ".")
	for _, step := range steps {
		if strings.TrimSpace(step) == "" {
			return nil, domain.Configf(subject, "invalid path %q", path)
		}
	}
	return steps, nil
}

func validateTemplate(subject, tpl string) error {
	if tpl == "" {
		return nil
	}
	if err := render.Validate(tpl); err != nil {
		return domain.Configf(subject, "humanize template: %v", err)
	}
	return nil
}
