// Package validate checks stored feed data against the registered types.
package validate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"feedcraft/internal/domain"
	"feedcraft/internal/store"
	"feedcraft/internal/timeline"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
)

const (
	codeUnknownActivityKind = "unknown_activity_kind"
	codeMalformedEntry      = "malformed_entry"
	codeMissingSource       = "missing_source_activity"
	codeOverMaxLength       = "timeline_over_max_length"
)

const defaultBatchSize = 500

type Issue struct {
	Severity  Severity
	Code      string
	Message   string
	Timeline  string
	Recipient string
	Record    string
}

type Report struct {
	Issues []Issue
}

// Errors counts the issues with error severity.
func (r *Report) Errors() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}

type Options struct {
	// BatchSize bounds how many records are read per query. Zero means 500.
	BatchSize int
}

// Run scans every stored activity and every entry of every registered
// timeline kind, reporting records the registry can no longer explain.
func Run(ctx context.Context, cat Catalog, src Source, opts Options) (*Report, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if src == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	issues := make([]Issue, 0)

	activityIssues, err := validateActivities(ctx, cat, src, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	issues = append(issues, activityIssues...)

	for _, typ := range cat.Timelines() {
		timelineIssues, err := validateTimeline(ctx, cat, src, typ, opts.BatchSize)
		if err != nil {
			return nil, err
		}
		issues = append(issues, timelineIssues...)
	}

	return &Report{Issues: issues}, nil
}

func validateActivities(ctx context.Context, cat Catalog, src Source, batch int) ([]Issue, error) {
	var issues []Issue
	for skip := 0; ; skip += batch {
		recs, err := src.QueryActivities(ctx, store.Filter{}, store.QueryOptions{Limit: batch, Skip: skip})
		if err != nil {
			return nil, fmt.Errorf("query activities: %w", err)
		}
		for _, rec := range recs {
			if _, ok := cat.ActivityType(rec.Kind); !ok {
				issues = append(issues, Issue{
					Severity: SeverityWarn,
					Code:     codeUnknownActivityKind,
					Message:  fmt.Sprintf("activity kind %q is not registered", rec.Kind),
					Record:   rec.ID,
				})
			}
		}
		if len(recs) < batch {
			return issues, nil
		}
	}
}

func validateTimeline(ctx context.Context, cat Catalog, src Source, typ *timeline.Type, batch int) ([]Issue, error) {
	var issues []Issue
	counts := make(map[string]int)
	sources := make(map[string]bool)

	for skip := 0; ; skip += batch {
		recs, err := src.QueryTimelineEntries(ctx, typ.Kind(), "", batch, skip)
		if err != nil {
			return nil, fmt.Errorf("query %s entries: %w", typ.Kind(), err)
		}
		for _, rec := range recs {
			counts[rec.RecipientID]++
			if issue, ok := checkEntry(cat, typ, rec); !ok {
				issues = append(issues, issue)
				continue
			}
			if rec.Activity.ID == "" {
				continue
			}
			exists, seen := sources[rec.Activity.ID]
			if !seen {
				found, err := src.FetchActivity(ctx, rec.Activity.ID)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return nil, fmt.Errorf("fetch activity %s: %w", rec.Activity.ID, err)
				}
				exists = found != nil
				sources[rec.Activity.ID] = exists
			}
			if !exists {
				issues = append(issues, entryIssue(typ, rec, SeverityWarn, codeMissingSource,
					fmt.Sprintf("source activity %s no longer exists", rec.Activity.ID)))
			}
		}
		if len(recs) < batch {
			break
		}
	}

	if limit := typ.MaxLength(); limit > 0 {
		recipients := make([]string, 0, len(counts))
		for id := range counts {
			recipients = append(recipients, id)
		}
		sort.Strings(recipients)
		for _, id := range recipients {
			if counts[id] <= limit {
				continue
			}
			issues = append(issues, Issue{
				Severity:  SeverityWarn,
				Code:      codeOverMaxLength,
				Message:   fmt.Sprintf("%d entries exceed max length %d", counts[id], limit),
				Timeline:  typ.Kind(),
				Recipient: id,
			})
		}
	}
	return issues, nil
}

func checkEntry(cat Catalog, typ *timeline.Type, rec store.EntryRecord) (Issue, bool) {
	if _, ok := cat.ActivityType(rec.Activity.Kind); !ok {
		return entryIssue(typ, rec, SeverityError, codeUnknownActivityKind,
			fmt.Sprintf("embedded activity kind %q is not registered", rec.Activity.Kind)), false
	}
	if _, ok := typ.RouteFor(rec.RoutingKind, rec.Activity.Kind); !ok {
		return entryIssue(typ, rec, SeverityError, codeMalformedEntry,
			fmt.Sprintf("no route for routing %q and activity %q", rec.RoutingKind, rec.Activity.Kind)), false
	}
	return Issue{}, true
}

func entryIssue(typ *timeline.Type, rec store.EntryRecord, severity Severity, code, message string) Issue {
	return Issue{
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timeline:  typ.Kind(),
		Recipient: rec.RecipientID,
		Record:    rec.ID,
	}
}
