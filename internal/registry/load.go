package registry

import (
	"fmt"

	"feedcraft/internal/activity"
	"feedcraft/internal/config"
	"feedcraft/internal/entity"
	"feedcraft/internal/timeline"
)

// Host supplies the application side of a declared schema: entity classes
// able to load real models, and resolver functions routes may name.
// Classes the host leaves out are backed by entity.StubClass.
type Host struct {
	Classes   map[string]*entity.Class
	Resolvers map[string]timeline.ResolverFunc
}

// Load builds a registry from schema. Routes naming neither a routing of
// their timeline nor a host resolver fail to load.
func Load(schema *config.Schema, host Host) (*Registry, error) {
	reg := New()
	for _, name := range schema.Classes {
		class := host.Classes[name]
		if class == nil {
			class = entity.StubClass(name)
		}
		if err := reg.RegisterClass(class); err != nil {
			return nil, err
		}
	}

	for _, def := range schema.Activities {
		typ, err := buildActivity(reg, def)
		if err != nil {
			return nil, fmt.Errorf("loading activity %s: %w", def.Kind, err)
		}
		if err := reg.RegisterActivity(typ); err != nil {
			return nil, err
		}
	}

	for _, def := range schema.Timelines {
		typ, err := buildTimeline(reg, def, host.Resolvers)
		if err != nil {
			return nil, fmt.Errorf("loading timeline %s: %w", def.Kind, err)
		}
		if err := reg.RegisterTimeline(typ); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildActivity(reg *Registry, def config.ActivityType) (*activity.Type, error) {
	b := activity.Define(def.Kind)
	for _, slot := range def.Entities {
		class, _ := reg.Class(slot.Class)
		b.Entity(slot.Name, activity.EntityDecl{
			Class:          class,
			Optional:       slot.Optional,
			HumanizeMethod: slot.Humanize,
			Default:        slot.Default,
		})
	}
	if def.Humanize != "" {
		b.Humanize(def.Humanize)
	}
	return b.Build()
}

func buildTimeline(reg *Registry, def config.TimelineType, resolvers map[string]timeline.ResolverFunc) (*timeline.Type, error) {
	recipient, _ := reg.Class(def.Recipient)
	b := timeline.Define(def.Kind, recipient).MaxLength(def.MaxLength)
	if def.Dedupe {
		b.Dedupe()
	}

	routings := make(map[string]bool, len(def.Routings))
	for _, r := range def.Routings {
		b.Routing(r.Name, timeline.RoutingDef{To: r.To})
		routings[r.Name] = true
	}
	declared := make(map[string]bool)
	for _, r := range def.Routes {
		if r.Using == "" || routings[r.Using] || declared[r.Using] {
			continue
		}
		if fn, ok := resolvers[r.Using]; ok {
			b.Resolver(r.Using, fn)
			declared[r.Using] = true
		}
	}

	for _, r := range def.Routes {
		var opts []timeline.RouteOption
		if r.To != "" {
			opts = append(opts, timeline.To(r.To))
		}
		if r.Using != "" {
			opts = append(opts, timeline.Using(r.Using))
		}
		if r.RoutingKind != "" {
			opts = append(opts, timeline.RoutingKind(r.RoutingKind))
		}
		if r.Kind != "" {
			opts = append(opts, timeline.Kind(r.Kind))
		}
		if r.Humanize != "" {
			opts = append(opts, timeline.Humanize(r.Humanize))
		}
		b.Route(r.Activity, opts...)
	}
	return b.Build()
}
