package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func queryTimelineCmd() *cobra.Command {
	var limit, skip int
	cmd := &cobra.Command{
		Use:   "timeline <kind> <recipient-id>",
		Short: "Show a recipient's timeline, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryTimeline(args[0], args[1], limit, skip)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to print (0 for all)")
	cmd.Flags().IntVar(&skip, "skip", 0, "Entries to skip")
	return cmd
}

func runQueryTimeline(kind, recipientID string, limit, skip int) error {
	ctx := context.Background()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	tl, err := a.Engine.Timeline(kind, recipientID)
	if err != nil {
		return err
	}
	entries, err := tl.Fetch(ctx, limit, skip)
	if err != nil {
		return err
	}
	total, err := tl.Count(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stdout, "Timeline %s of %s is empty.\n", kind, recipientID)
		return nil
	}

	for _, e := range entries {
		text, err := e.Humanize(ctx)
		if err != nil {
			text = fmt.Sprintf("(%v)", err)
		}
		fmt.Fprintf(os.Stdout, "%s  %-12s %s  %s\n",
			e.Activity.At().Format("2006-01-02 15:04:05"), e.RoutingKind, e.ID(), text)
	}
	fmt.Fprintf(os.Stdout, "\n%d of %d entries\n", len(entries), total)
	return nil
}
