package tracker

import (
	"context"
	"fmt"

	"chip-todo/domain"
)

// Ledger keeps one meeting record per week in its own document.
type Ledger struct {
	store *Store
}

func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store}
}

// Meeting returns the meeting of week w, or nil when none was saved.
func (l *Ledger) Meeting(ctx context.Context, w domain.Week) (*domain.Meeting, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	meetings, err := l.store.meetingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	key := w.Key()
	for _, m := range meetings {
		if m.WeekKey == key {
			return &m, nil
		}
	}
	return nil, nil
}

// SaveMeeting creates or replaces the meeting of week w. The creation time of
// an existing record is kept.
func (l *Ledger) SaveMeeting(ctx context.Context, w domain.Week, in domain.MeetingInput) (domain.Meeting, error) {
	if err := w.Validate(); err != nil {
		return domain.Meeting{}, err
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	meetings, err := l.store.meetingsLocked(ctx)
	if err != nil {
		return domain.Meeting{}, err
	}
	now := l.store.now()
	m := domain.Meeting{
		WeekKey:   w.Key(),
		Week:      w.Week,
		Year:      w.Year,
		Date:      in.Date,
		Attendees: append([]string{}, in.Attendees...),
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.Date == "" {
		m.Date = now.Format("2006-01-02")
	}
	replaced := false
	for i := range meetings {
		if meetings[i].WeekKey == m.WeekKey {
			m.CreatedAt = meetings[i].CreatedAt
			meetings[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		meetings = append(meetings, m)
	}
	rec, err := encode(MeetingsKey, meetings)
	if err != nil {
		return domain.Meeting{}, err
	}
	if err := l.store.backend.Save(ctx, rec); err != nil {
		return domain.Meeting{}, fmt.Errorf("persist: %w", err)
	}
	return m, nil
}

// Meetings lists every saved meeting in the order they were first saved.
func (l *Ledger) Meetings(ctx context.Context) ([]domain.Meeting, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.meetingsLocked(ctx)
}

func (s *Store) meetingsLocked(ctx context.Context) ([]domain.Meeting, error) {
	meetings, err := loadDocument(ctx, s.backend, MeetingsKey, []domain.Meeting{})
	if err != nil {
		return nil, err
	}
	if meetings == nil {
		meetings = []domain.Meeting{}
	}
	for i := range meetings {
		if meetings[i].Attendees == nil {
			meetings[i].Attendees = []string{}
		}
	}
	return meetings, nil
}
