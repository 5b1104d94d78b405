package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func recordCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "record <kind> [name=value ...]",
		Short: "Record one activity and fan it out",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(args[0], args[1:], id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Explicit activity id")
	return cmd
}

func runRecord(kind string, pairs []string, id string) error {
	ctx := context.Background()

	fields, err := parseFieldPairs(pairs)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	act, err := a.Engine.NewActivity(kind, fields)
	if err != nil {
		return err
	}
	if id != "" {
		if err := act.SetID(id); err != nil {
			return err
		}
	}

	res, err := a.Engine.Record(ctx, act)
	if !act.IsStored() {
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Activity was vetoed and not stored.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "Recorded %s %s at %s\n", act.Kind(), act.ID(), act.At().Format("2006-01-02T15:04:05.000000Z07:00"))
	if res != nil {
		fmt.Fprintf(os.Stdout, "  Entries stored:   %d\n", res.Stored)
		fmt.Fprintf(os.Stdout, "  Entries skipped:  %d\n", res.Skipped)
		fmt.Fprintf(os.Stdout, "  Deferred jobs:    %d\n", res.Deferred)
	}
	if err != nil {
		return fmt.Errorf("fan-out completed with errors: %w", err)
	}
	return nil
}
