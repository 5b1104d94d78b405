package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedcraft/internal/engine"
)

type activityQueryFlags struct {
	entities  []string
	only      []string
	except    []string
	before    string
	after     string
	limit     int
	skip      int
	ascending bool
}

func (f *activityQueryFlags) register(cmd *cobra.Command, withEntities bool) {
	if withEntities {
		cmd.Flags().StringSliceVar(&f.entities, "entity", nil, "Entity constraint as name=id (repeatable)")
	}
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "Activity kinds to include")
	cmd.Flags().StringSliceVar(&f.except, "except", nil, "Activity kinds to exclude")
	cmd.Flags().StringVar(&f.before, "before", "", "Only activities before this RFC 3339 time")
	cmd.Flags().StringVar(&f.after, "after", "", "Only activities after this RFC 3339 time")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Maximum activities to print (0 for all)")
	cmd.Flags().IntVar(&f.skip, "skip", 0, "Activities to skip")
	cmd.Flags().BoolVar(&f.ascending, "ascending", false, "Oldest first")
}

func (f *activityQueryFlags) query() (engine.Query, error) {
	q := engine.Query{
		Only:      f.only,
		Except:    f.except,
		Limit:     f.limit,
		Skip:      f.skip,
		Ascending: f.ascending,
	}
	if len(f.entities) > 0 {
		pairs, err := parseFieldPairs(f.entities)
		if err != nil {
			return q, err
		}
		q.Entities = make(map[string]string, len(pairs))
		for name, id := range pairs {
			q.Entities[name] = fmt.Sprint(id)
		}
	}
	var err error
	if q.Before, err = parseTimeFlag("before", f.before); err != nil {
		return q, err
	}
	if q.After, err = parseTimeFlag("after", f.after); err != nil {
		return q, err
	}
	return q, nil
}

func queryActivitiesCmd() *cobra.Command {
	var flags activityQueryFlags
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List stored activities, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryActivities(&flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func runQueryActivities(flags *activityQueryFlags) error {
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

	items, err := a.Engine.Activities(ctx, q)
	if err != nil {
		return err
	}
	total, err := a.Engine.ActivitiesCount(ctx, q)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "No activities found.")
		return nil
	}

	for _, item := range items {
		printActivity(ctx, os.Stdout, item)
	}
	fmt.Fprintf(os.Stdout, "\n%d of %d activities\n", len(items), total)
	return nil
}
