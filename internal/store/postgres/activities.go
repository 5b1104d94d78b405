package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"feedcraft/internal/store"
)

var activitySelect = []string{"id", "kind", "at", "entities", "meta"}

func (c *Client) InsertActivity(ctx context.Context, rec store.ActivityRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	entities, err := encodeEntities(rec.Entities)
	if err != nil {
		return "", err
	}
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return "", err
	}

	insert := c.sb.Insert("activities").
		Columns("id", "kind", "at", "entities", "meta").
		Values(id, rec.Kind, rec.At.UTC(), entities, meta)
	if _, err := c.exec(ctx, insert); err != nil {
		return "", mapError(err, "inserting "+rec.Kind+" activity")
	}
	return id, nil
}

func (c *Client) FetchActivity(ctx context.Context, id string) (*store.ActivityRecord, error) {
	row, err := c.queryRow(ctx, c.sb.Select(activitySelect...).
		From("activities").
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	rec, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "fetching activity "+id)
	}
	return &rec, nil
}

func (c *Client) QueryActivities(ctx context.Context, filter store.Filter, opts store.QueryOptions) ([]store.ActivityRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	conds, err := where(filter, activityColumns)
	if err != nil {
		return nil, err
	}
	order := []string{"at DESC", "seq DESC"}
	if opts.Ascending {
		order = []string{"at ASC", "seq ASC"}
	}
	q := c.sb.Select(activitySelect...).From("activities").Where(conds).OrderBy(order...)

	rows, err := c.query(ctx, page(q, opts.Limit, opts.Skip))
	if err != nil {
		return nil, mapError(err, "querying activities")
	}
	defer rows.Close()

	out := make([]store.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterating activity rows")
	}
	return out, nil
}

func (c *Client) CountActivities(ctx context.Context, filter store.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	conds, err := where(filter, activityColumns)
	if err != nil {
		return 0, err
	}
	row, err := c.queryRow(ctx, c.sb.Select("COUNT(*)").From("activities").Where(conds))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapError(err, "counting activities")
	}
	return n, nil
}

func (c *Client) DeleteActivities(ctx context.Context, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	conds, err := where(filter, activityColumns)
	if err != nil {
		return 0, err
	}
	n, err := c.exec(ctx, c.sb.Delete("activities").Where(conds))
	if err != nil {
		return 0, mapError(err, "deleting activities")
	}
	return n, nil
}

func scanActivity(row pgx.Row) (store.ActivityRecord, error) {
	var (
		rec            store.ActivityRecord
		at             time.Time
		entities, meta []byte
	)
	if err := row.Scan(&rec.ID, &rec.Kind, &at, &entities, &meta); err != nil {
		return rec, err
	}
	rec.At = at.UTC()

	var err error
	if rec.Entities, err = decodeEntities(entities); err != nil {
		return rec, fmt.Errorf("activity %s: %w", rec.ID, err)
	}
	if rec.Meta, err = decodeMeta(meta); err != nil {
		return rec, fmt.Errorf("activity %s: %w", rec.ID, err)
	}
	return rec, nil
}
