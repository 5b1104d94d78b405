package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema is the declarative description of activity and timeline types.
type Schema struct {
	Version    int            `yaml:"version"`
	Classes    []string       `yaml:"classes"`
	Activities []ActivityType `yaml:"activities"`
	Timelines  []TimelineType `yaml:"timelines"`

	activityIndex map[string]*ActivityType
	timelineIndex map[string]*TimelineType
}

type ActivityType struct {
	Kind     string       `yaml:"kind"`
	Humanize string       `yaml:"humanize"`
	Entities []EntitySlot `yaml:"entities"`
}

type EntitySlot struct {
	Name     string `yaml:"name"`
	Class    string `yaml:"class"`
	Optional bool   `yaml:"optional"`
	Humanize string `yaml:"humanize"`
	Default  string `yaml:"default"`
}

type TimelineType struct {
	Kind      string    `yaml:"kind"`
	Recipient string    `yaml:"recipient"`
	MaxLength int       `yaml:"max_length"`
	Dedupe    bool      `yaml:"dedupe"`
	Routings  []Routing `yaml:"routings"`
	Routes    []Route   `yaml:"routes"`
}

type Routing struct {
	Name string `yaml:"name"`
	To   string `yaml:"to"`
}

type Route struct {
	Activity    string `yaml:"activity"`
	To          string `yaml:"to"`
	Using       string `yaml:"using"`
	RoutingKind string `yaml:"routing_kind"`
	Kind        string `yaml:"kind"`
	Humanize    string `yaml:"humanize"`
}

// LoadSchema reads a schema file, or every *.yaml / *.yml file under a
// directory in lexical order, merging them into one schema.
func LoadSchema(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = schemaFiles(path)
		if err != nil {
			return nil, fmt.Errorf("loading schema: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("loading schema: no yaml files in %s", path)
		}
	}

	schema := &Schema{Version: 1}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading schema: %w", err)
		}
		var part Schema
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("loading schema %s: %w", file, err)
		}
		if part.Version != 1 {
			return nil, fmt.Errorf("loading schema %s: unsupported version: %d", file, part.Version)
		}
		schema.Classes = append(schema.Classes, part.Classes...)
		schema.Activities = append(schema.Activities, part.Activities...)
		schema.Timelines = append(schema.Timelines, part.Timelines...)
	}

	if err := validateSchema(schema); err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	schema.index()
	return schema, nil
}

func schemaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

func validateSchema(s *Schema) error {
	if len(s.Activities) == 0 {
		return fmt.Errorf("at least one activity type is required")
	}

	classes := make(map[string]struct{})
	for i, name := range s.Classes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("class %d name is required", i)
		}
		if _, exists := classes[name]; exists {
			return fmt.Errorf("duplicate class: %s", name)
		}
		classes[name] = struct{}{}
	}

	kinds := make(map[string]struct{})
	for i, act := range s.Activities {
		if strings.TrimSpace(act.Kind) == "" {
			return fmt.Errorf("activity type %d kind is required", i)
		}
		if _, exists := kinds[act.Kind]; exists {
			return fmt.Errorf("duplicate activity kind: %s", act.Kind)
		}
		kinds[act.Kind] = struct{}{}

		slots := make(map[string]struct{})
		for _, slot := range act.Entities {
			if strings.TrimSpace(slot.Name) == "" {
				return fmt.Errorf("activity %s has entity with empty name", act.Kind)
			}
			if _, exists := slots[slot.Name]; exists {
				return fmt.Errorf("activity %s has duplicate entity: %s", act.Kind, slot.Name)
			}
			slots[slot.Name] = struct{}{}
			if _, ok := classes[slot.Class]; !ok {
				return fmt.Errorf("activity %s entity %s references unknown class: %q", act.Kind, slot.Name, slot.Class)
			}
		}
	}

	timelines := make(map[string]struct{})
	for i, tl := range s.Timelines {
		if strings.TrimSpace(tl.Kind) == "" {
			return fmt.Errorf("timeline type %d kind is required", i)
		}
		if _, exists := timelines[tl.Kind]; exists {
			return fmt.Errorf("duplicate timeline kind: %s", tl.Kind)
		}
		timelines[tl.Kind] = struct{}{}
		if _, ok := classes[tl.Recipient]; !ok {
			return fmt.Errorf("timeline %s references unknown recipient class: %q", tl.Kind, tl.Recipient)
		}
		if tl.MaxLength < 0 {
			return fmt.Errorf("timeline %s max_length must not be negative", tl.Kind)
		}

		routings := make(map[string]struct{})
		for _, r := range tl.Routings {
			if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.To) == "" {
				return fmt.Errorf("timeline %s has routing without name or path", tl.Kind)
			}
			if _, exists := routings[r.Name]; exists {
				return fmt.Errorf("timeline %s has duplicate routing: %s", tl.Kind, r.Name)
			}
			routings[r.Name] = struct{}{}
		}
		for j, r := range tl.Routes {
			if _, ok := kinds[r.Activity]; !ok {
				return fmt.Errorf("timeline %s route %d references unknown activity: %q", tl.Kind, j, r.Activity)
			}
			if (r.To == "") == (r.Using == "") {
				return fmt.Errorf("timeline %s route %d needs exactly one of to or using", tl.Kind, j)
			}
		}
	}
	return nil
}

func (s *Schema) index() {
	s.activityIndex = make(map[string]*ActivityType, len(s.Activities))
	for i := range s.Activities {
		s.activityIndex[s.Activities[i].Kind] = &s.Activities[i]
	}
	s.timelineIndex = make(map[string]*TimelineType, len(s.Timelines))
	for i := range s.Timelines {
		s.timelineIndex[s.Timelines[i].Kind] = &s.Timelines[i]
	}
}

func (s *Schema) ActivityByKind(kind string) (*ActivityType, bool) {
	if s == nil {
		return nil, false
	}
	act, ok := s.activityIndex[kind]
	return act, ok
}

func (s *Schema) TimelineByKind(kind string) (*TimelineType, bool) {
	if s == nil {
		return nil, false
	}
	tl, ok := s.timelineIndex[kind]
	return tl, ok
}

func (s *Schema) HasClass(name string) bool {
	return s != nil && slices.Contains(s.Classes, name)
}
