package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <class> <id>",
		Short: "Delete every activity and timeline entry referencing an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(args[0], args[1])
		},
	}
}

func runPurge(className, id string) error {
	ctx := context.Background()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if _, ok := a.Registry.Class(className); !ok {
		return fmt.Errorf("unknown entity class %q", className)
	}

	res, err := a.Engine.DeleteEntity(ctx, className, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Purged %s %s.\n", className, id)
	fmt.Fprintf(os.Stdout, "  Activities removed: %d\n", res.Activities)
	kinds := make([]string, 0, len(res.Entries))
	for kind := range res.Entries {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(os.Stdout, "  %s entries removed: %d\n", kind, res.Entries[kind])
	}
	return nil
}
