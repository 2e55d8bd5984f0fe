package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/mcdev12/flowminder/go/internal/sqlutil"
)

const listAgendaItemsSQL = `
SELECT id, agenda_item, duration_seconds, COALESCE(order_index, 2147483647), status, processed_at, created_at
FROM agenda_items
WHERE meeting_id = $1
ORDER BY order_index ASC NULLS LAST, created_at ASC NULLS LAST, id ASC`

const setAgendaItemStatusSQL = `
UPDATE agenda_items
SET status = $3, processed_at = $4
WHERE meeting_id = $1 AND id = $2`

// ListAgendaItems returns the meeting agenda in display order.
func (r *Repository) ListAgendaItems(ctx context.Context, meetingID string) ([]models.AgendaItem, error) {
	rows, err := r.pool.Query(ctx, listAgendaItemsSQL, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agenda items: %w", err)
	}
	defer rows.Close()

	var items []models.AgendaItem
	for rows.Next() {
		var (
			item        models.AgendaItem
			orderIndex  int32
			duration    int32
			status      string
			processedAt *time.Time
		)
		if err := rows.Scan(&item.ID, &item.Label, &duration, &orderIndex, &status, &processedAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agenda item: %w", err)
		}
		item.DurationSeconds = int(duration)
		item.OrderIndex = int(orderIndex)
		item.Processed = models.AgendaItemStatus(status) == models.AgendaItemStatusProcessed
		item.ProcessedAt = sqlutil.FromNullTime(processedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agenda items: %w", err)
	}
	return items, nil
}

// SetAgendaItemProcessed persists a single item's processed flag. A nil processedAt
// marks the item pending again.
func (r *Repository) SetAgendaItemProcessed(ctx context.Context, meetingID, itemID string, processedAt *time.Time) error {
	status := models.AgendaItemStatusPending
	if processedAt != nil {
		status = models.AgendaItemStatusProcessed
	}
	tag, err := r.pool.Exec(ctx, setAgendaItemStatusSQL, meetingID, itemID, string(status), processedAt)
	if err != nil {
		return fmt.Errorf("failed to update agenda item status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agenda item %s: %w", itemID, errs.ErrNotFound)
	}
	return nil
}
