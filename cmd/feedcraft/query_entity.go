package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func queryEntityCmd() *cobra.Command {
	var flags activityQueryFlags
	cmd := &cobra.Command{
		Use:   "entity <class> <id>",
		Short: "List activities referencing an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryEntity(args[0], args[1], &flags)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func runQueryEntity(className, id string, flags *activityQueryFlags) error {
	ctx := context.Background()

	q, err := flags.query()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, ok := a.Registry.Class(className); !ok {
		return fmt.Errorf("unknown entity class %q", className)
	}

	items, err := a.Engine.EntityActivities(ctx, className, id, q)
	if err != nil {
		return err
	}
	total, err := a.Engine.EntityActivitiesCount(ctx, className, id, q)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintf(os.Stdout, "No activities found for %s %s.\n", className, id)
		return nil
	}

	for _, item := range items {
		printActivity(ctx, os.Stdout, item)
	}
	fmt.Fprintf(os.Stdout, "\n%d of %d activities\n", len(items), total)
	return nil
}
