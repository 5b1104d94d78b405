package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

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
			rec.Activity.ID, rec.Activity.Kind, rec.Activity.At.UnixNano(), entities, activityMeta,
			meta)
	if _, err := c.exec(ctx, insert); err != nil {
		return "", fmt.Errorf("inserting %s entry: %w", timelineKind, err)
	}
	return id, nil
}

func (c *Client) FetchTimelineEntry(ctx context.Context, timelineKind, id string) (*store.EntryRecord, error) {
	rows, err := c.query(ctx, c.sb.Select(entrySelect...).
		From("timeline_entries").
		Where(squirrel.Eq{"timeline_kind": timelineKind, "id": id}))
	if err != nil {
		return nil, fmt.Errorf("fetching %s entry: %w", timelineKind, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanEntry(rows)
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("querying %s entries: %w", timelineKind, err)
	}
	defer rows.Close()

	out := make([]store.EntryRecord, 0)
	for rows.Next() {
		rec, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}
	return out, nil
}

func (c *Client) CountTimelineEntries(ctx context.Context, timelineKind, recipientID string) (int, error) {
	n, err := c.count(ctx, c.sb.Select("COUNT(*)").
		From("timeline_entries").
		Where(recipientEq(timelineKind, recipientID)))
	if err != nil {
		return 0, fmt.Errorf("counting %s entries: %w", timelineKind, err)
	}
	return n, nil
}

func (c *Client) DeleteTimelineEntries(ctx context.Context, timelineKind string, filter store.Filter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	conds := squirrel.And{recipientEq(timelineKind, filter.RecipientID)}
	if len(filter.IDs) > 0 {
		conds = append(conds, squirrel.Eq{"id": filter.IDs})
	}
	conds = append(conds, where(filter, entryColumns))

	n, err := c.exec(ctx, c.sb.Delete("timeline_entries").Where(conds))
	if err != nil {
		return 0, fmt.Errorf("deleting %s entries: %w", timelineKind, err)
	}
	return n, nil
}

func (c *Client) HasTimelineEntry(ctx context.Context, timelineKind string, key store.EntryKey) (bool, error) {
	query, args, err := c.sb.Select("1").
		From("timeline_entries").
		Where(squirrel.Eq{
			"timeline_kind": timelineKind,
			"recipient_id":  key.RecipientID,
			"activity_id":   key.ActivityID,
			"routing_kind":  key.RoutingKind,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building query: %w", err)
	}
	var one int
	switch err := c.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case isNoRows(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("looking up %s entry: %w", timelineKind, err)
	}
	return true, nil
}

// recipientEq scopes a statement to a timeline kind and, when set, one recipient.
func recipientEq(timelineKind, recipientID string) squirrel.Eq {
	eq := squirrel.Eq{"timeline_kind": timelineKind}
	if recipientID != "" {
		eq["recipient_id"] = recipientID
	}
	return eq
}

func scanEntry(rows *sql.Rows) (store.EntryRecord, error) {
	var (
		rec                          store.EntryRecord
		at                           int64
		entities, activityMeta, meta string
	)
	err := rows.Scan(
		&rec.ID, &rec.TimelineKind, &rec.RecipientID, &rec.RoutingKind,
		&rec.Activity.ID, &rec.Activity.Kind, &at, &entities, &activityMeta,
		&meta,
	)
	if err != nil {
		return rec, fmt.Errorf("scanning entry: %w", err)
	}
	rec.Activity.At = time.Unix(0, at).UTC()

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
