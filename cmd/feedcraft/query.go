package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"feedcraft/internal/activity"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read activities and timelines from the CLI",
	}
	cmd.AddCommand(queryActivitiesCmd())
	cmd.AddCommand(queryTimelineCmd())
	cmd.AddCommand(queryEntityCmd())
	return cmd
}

// printActivity writes one line per activity: timestamp, kind, id, then the
// rendered text or the entity ids when the type has no template.
func printActivity(ctx context.Context, out io.Writer, a *activity.Activity) {
	text, err := a.Humanize(ctx)
	if err != nil {
		text = formatEntities(a.ToRecord().Entities)
	}
	fmt.Fprintf(out, "%s  %-20s %s  %s\n", a.At().Format("2006-01-02 15:04:05"), a.Kind(), a.ID(), text)
}

func formatEntities(entities map[string]string) string {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+entities[name])
	}
	return strings.Join(parts, " ")
}
