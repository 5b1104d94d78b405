package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"feedcraft/internal/activity"
	"feedcraft/internal/config"
	"feedcraft/internal/engine"
	"feedcraft/internal/timeline"
)

const defaultPageSize = 20

type RecordActivityInput struct {
	Kind   string         `json:"kind" jsonschema:"activity kind"`
	Fields map[string]any `json:"fields,omitempty" jsonschema:"entity ids, at, and metadata by field name"`
}

type GetTimelineInput struct {
	Timeline  string `json:"timeline" jsonschema:"timeline kind"`
	Recipient string `json:"recipient" jsonschema:"recipient id"`
	Limit     int    `json:"limit,omitempty" jsonschema:"page size, default 20"`
	Skip      int    `json:"skip,omitempty" jsonschema:"entries to skip"`
}

type ListActivitiesInput struct {
	Class     string            `json:"class,omitempty" jsonschema:"restrict to activities referencing this entity class"`
	ID        string            `json:"id,omitempty" jsonschema:"entity id, used with class"`
	Entities  map[string]string `json:"entities,omitempty" jsonschema:"entity name to id constraints"`
	Only      []string          `json:"only,omitempty" jsonschema:"activity kinds to include"`
	Except    []string          `json:"except,omitempty" jsonschema:"activity kinds to exclude"`
	Before    string            `json:"before,omitempty" jsonschema:"RFC 3339 upper bound, exclusive"`
	After     string            `json:"after,omitempty" jsonschema:"RFC 3339 lower bound, exclusive"`
	Limit     int               `json:"limit,omitempty" jsonschema:"page size, default 20"`
	Skip      int               `json:"skip,omitempty" jsonschema:"activities to skip"`
	Ascending bool              `json:"ascending,omitempty" jsonschema:"oldest first"`
}

type GetActivityInput struct {
	ID string `json:"id" jsonschema:"activity id"`
}

type GetSchemaInput struct{}

type ActivityOutput struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	At       time.Time         `json:"at"`
	Entities map[string]string `json:"entities"`
	Meta     map[string]any    `json:"meta,omitempty"`
	Text     string            `json:"text,omitempty"`
}

type RecordActivityOutput struct {
	Activity ActivityOutput `json:"activity"`
	Stored   bool           `json:"stored"`
	Entries  int            `json:"entries"`
	Deferred int            `json:"deferred"`
	Errors   []string       `json:"errors,omitempty"`
}

type EntryOutput struct {
	ID          string         `json:"id"`
	RoutingKind string         `json:"routing_kind"`
	Activity    ActivityOutput `json:"activity"`
	Meta        map[string]any `json:"meta,omitempty"`
	Text        string         `json:"text,omitempty"`
}

type GetTimelineOutput struct {
	Timeline  string        `json:"timeline"`
	Recipient string        `json:"recipient"`
	Total     int           `json:"total"`
	Entries   []EntryOutput `json:"entries"`
}

type ListActivitiesOutput struct {
	Total      int              `json:"total"`
	Activities []ActivityOutput `json:"activities"`
}

type SchemaOutput struct {
	Version    int                  `json:"version"`
	Classes    []string             `json:"classes"`
	Activities []ActivityTypeOutput `json:"activities"`
	Timelines  []TimelineTypeOutput `json:"timelines"`
}

type ActivityTypeOutput struct {
	Kind     string             `json:"kind"`
	Humanize string             `json:"humanize,omitempty"`
	Entities []EntitySlotOutput `json:"entities"`
}

type EntitySlotOutput struct {
	Name     string `json:"name"`
	Class    string `json:"class"`
	Optional bool   `json:"optional,omitempty"`
}

type TimelineTypeOutput struct {
	Kind      string        `json:"kind"`
	Recipient string        `json:"recipient"`
	MaxLength int           `json:"max_length,omitempty"`
	Routes    []RouteOutput `json:"routes"`
}

type RouteOutput struct {
	Activity string `json:"activity"`
	To       string `json:"to,omitempty"`
	Using    string `json:"using,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "record_activity",
		Description: "Record an activity and fan it out to the timelines routing it",
	}, s.handleRecordActivity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_timeline",
		Description: "Read a recipient's timeline, newest entries first",
	}, s.handleGetTimeline)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_activities",
		Description: "List stored activities with optional filters",
	}, s.handleListActivities)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_activity",
		Description: "Retrieve one stored activity by id",
	}, s.handleGetActivity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_schema",
		Description: "Return the activity and timeline types in use",
	}, s.handleGetSchema)
}

func (s *Server) handleRecordActivity(ctx context.Context, req *sdk.CallToolRequest, input RecordActivityInput) (*sdk.CallToolResult, RecordActivityOutput, error) {
	if input.Kind == "" {
		return nil, RecordActivityOutput{}, fmt.Errorf("kind is required")
	}
	a, err := s.feed.NewActivity(input.Kind, normalizeFields(input.Fields))
	if err != nil {
		return nil, RecordActivityOutput{}, err
	}
	res, err := s.feed.Record(ctx, a)
	if err != nil && !a.IsStored() {
		return nil, RecordActivityOutput{}, err
	}

	out := RecordActivityOutput{
		Activity: activityOutput(ctx, a),
		Stored:   a.IsStored(),
	}
	if res != nil {
		out.Entries = res.Stored
		out.Deferred = res.Deferred
		for _, e := range res.Errors {
			out.Errors = append(out.Errors, e.Error())
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetTimeline(ctx context.Context, req *sdk.CallToolRequest, input GetTimelineInput) (*sdk.CallToolResult, GetTimelineOutput, error) {
	if input.Timeline == "" || input.Recipient == "" {
		return nil, GetTimelineOutput{}, fmt.Errorf("timeline and recipient are required")
	}
	tl, err := s.feed.Timeline(input.Timeline, input.Recipient)
	if err != nil {
		return nil, GetTimelineOutput{}, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	entries, err := tl.Fetch(ctx, limit, input.Skip)
	if err != nil {
		return nil, GetTimelineOutput{}, err
	}
	total, err := tl.Count(ctx)
	if err != nil {
		return nil, GetTimelineOutput{}, err
	}

	output := make([]EntryOutput, 0, len(entries))
	for _, e := range entries {
		output = append(output, entryOutput(ctx, e))
	}
	return nil, GetTimelineOutput{
		Timeline:  input.Timeline,
		Recipient: input.Recipient,
		Total:     total,
		Entries:   output,
	}, nil
}

func (s *Server) handleListActivities(ctx context.Context, req *sdk.CallToolRequest, input ListActivitiesInput) (*sdk.CallToolResult, ListActivitiesOutput, error) {
	q := engine.Query{
		Entities:  input.Entities,
		Only:      input.Only,
		Except:    input.Except,
		Limit:     input.Limit,
		Skip:      input.Skip,
		Ascending: input.Ascending,
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	var err error
	if q.Before, err = parseBound("before", input.Before); err != nil {
		return nil, ListActivitiesOutput{}, err
	}
	if q.After, err = parseBound("after", input.After); err != nil {
		return nil, ListActivitiesOutput{}, err
	}

	var (
		items []*activity.Activity
		total int
	)
	switch {
	case input.Class != "" && input.ID != "":
		if items, err = s.feed.EntityActivities(ctx, input.Class, input.ID, q); err == nil {
			total, err = s.feed.EntityActivitiesCount(ctx, input.Class, input.ID, q)
		}
	case input.Class != "" || input.ID != "":
		return nil, ListActivitiesOutput{}, fmt.Errorf("class and id must be given together")
	default:
		if items, err = s.feed.Activities(ctx, q); err == nil {
			total, err = s.feed.ActivitiesCount(ctx, q)
		}
	}
	if err != nil {
		return nil, ListActivitiesOutput{}, err
	}

	output := make([]ActivityOutput, 0, len(items))
	for _, a := range items {
		output = append(output, activityOutput(ctx, a))
	}
	return nil, ListActivitiesOutput{Total: total, Activities: output}, nil
}

func (s *Server) handleGetActivity(ctx context.Context, req *sdk.CallToolRequest, input GetActivityInput) (*sdk.CallToolResult, ActivityOutput, error) {
	if input.ID == "" {
		return nil, ActivityOutput{}, fmt.Errorf("id is required")
	}
	a, err := s.feed.Activity(ctx, input.ID)
	if err != nil {
		return nil, ActivityOutput{}, err
	}
	return nil, activityOutput(ctx, a), nil
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input GetSchemaInput) (*sdk.CallToolResult, SchemaOutput, error) {
	return nil, schemaOutputFromConfig(s.schema), nil
}

func parseBound(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return t, nil
}

// normalizeFields turns a JSON "at" string into a timestamp.
func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	if raw, ok := out["at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			out["at"] = t
		}
	}
	return out
}

func activityOutput(ctx context.Context, a *activity.Activity) ActivityOutput {
	rec := a.ToRecord()
	out := ActivityOutput{
		ID:       a.ID(),
		Kind:     a.Kind(),
		At:       a.At(),
		Entities: rec.Entities,
		Meta:     rec.Meta,
	}
	// a model that fails to load leaves the text empty
	if text, err := a.Humanize(ctx); err == nil {
		out.Text = text
	}
	return out
}

func entryOutput(ctx context.Context, e *timeline.Entry) EntryOutput {
	out := EntryOutput{
		ID:          e.ID(),
		RoutingKind: e.RoutingKind,
		Activity:    activityOutput(ctx, e.Activity),
		Meta:        e.Meta,
	}
	if text, err := e.Humanize(ctx); err == nil {
		out.Text = text
	}
	return out
}

func schemaOutputFromConfig(schema *config.Schema) SchemaOutput {
	if schema == nil {
		return SchemaOutput{}
	}

	out := SchemaOutput{
		Version:    schema.Version,
		Classes:    append([]string{}, schema.Classes...),
		Activities: make([]ActivityTypeOutput, 0, len(schema.Activities)),
		Timelines:  make([]TimelineTypeOutput, 0, len(schema.Timelines)),
	}

	for _, def := range schema.Activities {
		activityOut := ActivityTypeOutput{
			Kind:     def.Kind,
			Humanize: def.Humanize,
			Entities: make([]EntitySlotOutput, 0, len(def.Entities)),
		}
		for _, slot := range def.Entities {
			activityOut.Entities = append(activityOut.Entities, EntitySlotOutput{
				Name:     slot.Name,
				Class:    slot.Class,
				Optional: slot.Optional,
			})
		}
		out.Activities = append(out.Activities, activityOut)
	}

	for _, def := range schema.Timelines {
		timelineOut := TimelineTypeOutput{
			Kind:      def.Kind,
			Recipient: def.Recipient,
			MaxLength: def.MaxLength,
			Routes:    make([]RouteOutput, 0, len(def.Routes)),
		}
		for _, route := range def.Routes {
			timelineOut.Routes = append(timelineOut.Routes, RouteOutput{
				Activity: route.Activity,
				To:       route.To,
				Using:    route.Using,
			})
		}
		out.Timelines = append(out.Timelines, timelineOut)
	}

	return out
}
