package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

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
		Values(id, rec.Kind, rec.At.UnixNano(), entities, meta)
	if _, err := c.exec(ctx, insert); err != nil {
		return "", fmt.Errorf("inserting %s activity: %w", rec.Kind, err)
	}
	return id, nil
}

func (c *Client) FetchActivity(ctx context.Context, id string) (*store.ActivityRecord, error) {
	rows, err := c.query(ctx, c.sb.Select(activitySelect...).
		From("activities").
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("fetching activity: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanActivity(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) QueryActivities(ctx context.Context, filter store.Filter, opts store.QueryOptions) ([]store.ActivityRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	order := []string{"at DESC", "seq DESC"}
	if opts.Ascending {
		order = []string{"at ASC", "seq ASC"}
	}
	q := c.sb.Select(activitySelect...).
		From("activities").
		Where(where(filter, activityColumns)).
		OrderBy(order...)

	rows, err := c.query(ctx, page(q, opts.Limit, opts.Skip))
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	out := make([]store.ActivityRecord, 0)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}
	return out, nil
}

func (c *Client) CountActivities(ctx context.Context, filter store.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	n, err := c.count(ctx, c.sb.Select("COUNT(*)").
		From("activities").
		Where(where(filter, activityColumns)))
	if err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return n, nil
}

func (c *Client) DeleteActivities(ctx context.Context, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	n, err := c.exec(ctx, c.sb.Delete("activities").Where(where(filter, activityColumns)))
	if err != nil {
		return 0, fmt.Errorf("deleting activities: %w", err)
	}
	return n, nil
}

func scanActivity(rows *sql.Rows) (store.ActivityRecord, error) {
	var (
		rec            store.ActivityRecord
		at             int64
		entities, meta string
	)
	if err := rows.Scan(&rec.ID, &rec.Kind, &at, &entities, &meta); err != nil {
		return rec, fmt.Errorf("scanning activity: %w", err)
	}
	rec.At = time.Unix(0, at).UTC()

	var err error
	if rec.Entities, err = decodeEntities(entities); err != nil {
		return rec, fmt.Errorf("activity %s: %w", rec.ID, err)
	}
	if rec.Meta, err = decodeMeta(meta); err != nil {
		return rec, fmt.Errorf("activity %s: %w", rec.ID, err)
	}
	return rec, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
