// Package registry is the process-wide catalog of entity classes, activity
// types and timeline types. It is populated at startup and read-only afterwards.
package registry

import (
	"slices"
	"sort"
	"sync"

	"feedcraft/internal/activity"
	"feedcraft/internal/domain"
	"feedcraft/internal/entity"
	"feedcraft/internal/timeline"
)

var _ activity.Catalog = (*Registry)(nil)

type Registry struct {
	mu         sync.RWMutex
	classes    map[string]*entity.Class
	activities map[string]*activity.Type
	timelines  map[string]*timeline.Type

	// users maps entity names to the activity kinds declaring them. Built on
	// first use and dropped whenever an activity type registers.
	users map[string][]string
}

func New() *Registry {
	return &Registry{
		classes:    make(map[string]*entity.Class),
		activities: make(map[string]*activity.Type),
		timelines:  make(map[string]*timeline.Type),
	}
}

// RegisterClass adds an entity class. Names are unique.
func (r *Registry) RegisterClass(c *entity.Class) error {
	if c == nil || c.Name == "" {
		return domain.Configf("registry", "class needs a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classes[c.Name]; exists {
		return domain.Configf("registry", "class %q already registered", c.Name)
	}
	r.classes[c.Name] = c
	return nil
}

func (r *Registry) Class(name string) (*entity.Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// RegisterActivity adds an activity type. Kinds are unique.
func (r *Registry) RegisterActivity(t *activity.Type) error {
	if t == nil {
		return domain.Configf("registry", "activity type is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activities[t.Kind()]; exists {
		return domain.Configf("registry", "activity kind %q already registered", t.Kind())
	}
	r.activities[t.Kind()] = t
	r.users = nil
	return nil
}

// MustRegisterActivity is RegisterActivity for startup code.
func (r *Registry) MustRegisterActivity(t *activity.Type) {
	if err := r.RegisterActivity(t); err != nil {
		panic(err)
	}
}

// RegisterTimeline adds a timeline type. Kinds are unique and every route
// must target a registered activity kind.
func (r *Registry) RegisterTimeline(t *timeline.Type) error {
	if t == nil {
		return domain.Configf("registry", "timeline type is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.timelines[t.Kind()]; exists {
		return domain.Configf("registry", "timeline kind %q already registered", t.Kind())
	}
	for _, route := range t.Routes() {
		if _, ok := r.activities[route.ActivityKind()]; !ok {
			return domain.Configf(route.String(), "unregistered activity kind %q", route.ActivityKind())
		}
	}
	r.timelines[t.Kind()] = t
	return nil
}

// MustRegisterTimeline is RegisterTimeline for startup code.
func (r *Registry) MustRegisterTimeline(t *timeline.Type) {
	if err := r.RegisterTimeline(t); err != nil {
		panic(err)
	}
}

func (r *Registry) ActivityType(kind string) (*activity.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.activities[kind]
	return t, ok
}

func (r *Registry) TimelineType(kind string) (*timeline.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.timelines[kind]
	return t, ok
}

// ActivityTypes returns a copy of the activity catalog.
func (r *Registry) ActivityTypes() map[string]*activity.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*activity.Type, len(r.activities))
	for k, v := range r.activities {
		out[k] = v
	}
	return out
}

// TimelineTypes returns a copy of the timeline catalog.
func (r *Registry) TimelineTypes() map[string]*timeline.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*timeline.Type, len(r.timelines))
	for k, v := range r.timelines {
		out[k] = v
	}
	return out
}

// Timelines returns the timeline types sorted by kind.
func (r *Registry) Timelines() []*timeline.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*timeline.Type, 0, len(r.timelines))
	for _, t := range r.timelines {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

func (r *Registry) ActivityKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.activities))
	for k := range r.activities {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// EntityUsers maps every entity name to the sorted activity kinds declaring it.
func (r *Registry) EntityUsers() map[string][]string {
	users := r.entityUsers()
	out := make(map[string][]string, len(users))
	for name, kinds := range users {
		out[name] = slices.Clone(kinds)
	}
	return out
}

// UsersOf returns the activity kinds declaring entity name.
func (r *Registry) UsersOf(name string) []string {
	return slices.Clone(r.entityUsers()[name])
}

// IsEntityName reports whether any registered activity type declares name.
func (r *Registry) IsEntityName(name string) bool {
	_, ok := r.entityUsers()[name]
	return ok
}

func (r *Registry) entityUsers() map[string][]string {
	r.mu.RLock()
	users := r.users
	r.mu.RUnlock()
	if users != nil {
		return users
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users != nil {
		return r.users
	}
	users = make(map[string][]string)
	for kind, t := range r.activities {
		for _, decl := range t.Entities() {
			users[decl.Name] = append(users[decl.Name], kind)
		}
	}
	for _, kinds := range users {
		slices.Sort(kinds)
	}
	r.users = users
	return users
}

// EntityNamesForClass returns the sorted entity names whose slots hold className models.
func (r *Registry) EntityNamesForClass(className string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, t := range r.activities {
		for _, decl := range t.Entities() {
			if decl.Class.Name == className {
				seen[decl.Name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Route looks a route up by (timeline kind, route kind).
func (r *Registry) Route(timelineKind, routeKind string) (*timeline.Route, bool) {
	t, ok := r.TimelineType(timelineKind)
	if !ok {
		return nil, false
	}
	return t.Route(routeKind)
}
