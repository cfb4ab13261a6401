package domain

import "time"

const (
	WeekArchived = "week-archived"
	DataImported = "data-imported"
	BoardChanged = "board-changed"
)

// ArchiveEvent announces an archived week to downstream consumers. It carries
// counts only; the archived records stay in the history document.
type ArchiveEvent struct {
	Type       string    `json:"type"`
	WeekKey    string    `json:"weekKey"`
	Week       int       `json:"week"`
	Year       int       `json:"year"`
	Projects   int       `json:"projects"`
	Tasks      int       `json:"tasks"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// NewArchiveEvent summarizes h.
func NewArchiveEvent(h HistoryEntry) ArchiveEvent {
	return ArchiveEvent{
		Type:       WeekArchived,
		WeekKey:    h.WeekKey,
		Week:       h.Week,
		Year:       h.Year,
		Projects:   len(h.Projects),
		Tasks:      len(h.Tasks),
		ArchivedAt: h.ArchivedAt,
	}
}
