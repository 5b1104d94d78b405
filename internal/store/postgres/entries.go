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

var entrySelect = []string{
	"id", "timeline_kind", "recipient_id", "routing_kind",
	"activity_id", "activity_kind", "activity_at", "activity_entities", "activity_meta",
	"meta",
}

func (c *Client) InsertTimelineEntry(ctx context.Context, timelineKind string, rec store.EntryRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	entities, err := encodeEntities(rec.Activity.Entities)
	if err != nil {
		return "", err
	}
	activityMeta, err := encodeMeta(rec.Activity.Meta)
	if err != nil {
		return "", err
	}
	meta, err := encodeMeta(rec.Meta)
	if err != nil {
		return "", err
	}

	insert := c.sb.Insert("timeline_entries").
		Columns(entrySelect...).
		Values(id, timelineKind, rec.RecipientID, rec.RoutingKind,
			rec.Activity.ID, rec.Activity.Kind, rec.Activity.At.UTC(), entities, activityMeta,
			meta)
	if _, err := c.exec(ctx, insert); err != nil {
		return "", mapError(err, "inserting "+timelineKind+" entry")
	}
	return id, nil
}

func (c *Client) FetchTimelineEntry(ctx context.Context, timelineKind, id string) (*store.EntryRecord, error) {
	row, err := c.queryRow(ctx, c.sb.Select(entrySelect...).
		From("timeline_entries").
		Where(squirrel.Eq{"timeline_kind": timelineKind, "id": id}))
	if err != nil {
		return nil, err
	}
	rec, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "fetching "+timelineKind+" entry "+id)
	}
	return &rec, nil
}

func (c *Client) QueryTimelineEntries(ctx context.Context, timelineKind, recipientID string, limit, skip int) ([]store.EntryRecord, error) {
	q := c.sb.Select(entrySelect...).
		From("timeline_entries").
		Where(recipientEq(timelineKind, recipientID)).
		OrderBy("activity_at DESC", "seq DESC")

	rows, err := c.query(ctx, page(q, limit, skip))
	if err != nil {
		return nil, mapError(err, "querying "+timelineKind+" entries")
	}
	defer rows.Close()

	out := make([]store.EntryRecord, 0)
	for rows.Next() {
		rec, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterating entry rows")
	}
	return out, nil
}

func (c *Client) CountTimelineEntries(ctx context.Context, timelineKind, recipientID string) (int, error) {
	row, err := c.queryRow(ctx, c.sb.Select("COUNT(*)").
		From("timeline_entries").
		Where(recipientEq(timelineKind, recipientID)))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapError(err, "counting "+timelineKind+" entries")
	}
	return n, nil
}

func (c *Client) DeleteTimelineEntries(ctx context.Context, timelineKind string, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	activityConds, err := where(filter, entryColumns)
	if err != nil {
		return 0, err
	}
	conds := squirrel.And{recipientEq(timelineKind, filter.RecipientID)}
	if len(filter.IDs) > 0 {
		conds = append(conds, squirrel.Eq{"id": filter.IDs})
	}
	conds = append(conds, activityConds)

	n, err := c.exec(ctx, c.sb.Delete("timeline_entries").Where(conds))
	if err != nil {
		return 0, mapError(err, "deleting "+timelineKind+" entries")
	}
	return n, nil
}

func (c *Client) HasTimelineEntry(ctx context.Context, timelineKind string, key store.EntryKey) (bool, error) {
	sub := c.sb.Select("1").
		From("timeline_entries").
		Where(squirrel.Eq{
			"timeline_kind": timelineKind,
			"recipient_id":  key.RecipientID,
			"activity_id":   key.ActivityID,
			"routing_kind":  key.RoutingKind,
		})
	query, args, err := sub.ToSql()
	if err != nil {
		return false, fmt.Errorf("building query: %w", err)
	}
	var exists bool
	if err := c.pool.QueryRow(ctx, "SELECT EXISTS ("+query+")", args...).Scan(&exists); err != nil {
		return false, mapError(err, "looking up "+timelineKind+" entry")
	}
	return exists, nil
}

func recipientEq(timelineKind, recipientID string) squirrel.Eq {
	eq := squirrel.Eq{"timeline_kind": timelineKind}
	if recipientID != "" {
		eq["recipient_id"] = recipientID
	}
	return eq
}

func scanEntry(row pgx.Row) (store.EntryRecord, error) {
	var (
		rec                          store.EntryRecord
		at                           time.Time
		entities, activityMeta, meta []byte
	)
	err := row.Scan(
		&rec.ID, &rec.TimelineKind, &rec.RecipientID, &rec.RoutingKind,
		&rec.Activity.ID, &rec.Activity.Kind, &at, &entities, &activityMeta,
		&meta,
	)
	if err != nil {
		return rec, err
	}
	rec.Activity.At = at.UTC()

	if rec.Activity.Entities, err = decodeEntities(entities); err != nil {
		return rec, fmt.Errorf("entry %s: %w", rec.ID, err)
	}
	if rec.Activity.Meta, err = decodeMeta(activityMeta); err != nil {
		return rec, fmt.Errorf("entry %s: %w", rec.ID, err)
	}
	if rec.Meta, err = decodeMeta(meta); err != nil {
		return rec, fmt.Errorf("entry %s: %w", rec.ID, err)
	}
	return rec, nil
}
