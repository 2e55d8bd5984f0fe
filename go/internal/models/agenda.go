package models

import "time"

// AgendaItemStatus is the persisted status column of an agenda item.
type AgendaItemStatus string

const (
	AgendaItemStatusPending   AgendaItemStatus = "pending"
	AgendaItemStatusProcessed AgendaItemStatus = "processed"
)

// AgendaItem is one row of a meeting agenda.
type AgendaItem struct {
	ID              string     `json:"id"`
	Label           string     `json:"label"`
	DurationSeconds int        `json:"durationSeconds"`
	OrderIndex      int        `json:"orderIndex"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processedAt"`
	CreatedAt       time.Time  `json:"-"`
}

// Status returns the persisted status for the item.
func (a AgendaItem) Status() AgendaItemStatus {
	if a.Processed {
		return AgendaItemStatusProcessed
	}
	return AgendaItemStatusPending
}

// Less orders agenda items by order index, then creation time, then id.
func (a AgendaItem) Less(b AgendaItem) bool {
	if a.OrderIndex != b.OrderIndex {
		return a.OrderIndex < b.OrderIndex
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
