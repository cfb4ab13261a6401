package tracker

import (
	"context"

	log "github.com/sirupsen/logrus"

	"chip-todo/domain"
)

// Notifier is told about every archived week.
type Notifier interface {
	WeekArchived(ctx context.Context, ev domain.ArchiveEvent) error
}

// Archiver moves the current week's projects and tasks into the history log.
type Archiver struct {
	store    *Store
	notifier Notifier
}

// NewArchiver creates an Archiver. notifier may be nil.
func NewArchiver(store *Store, notifier Notifier) *Archiver {
	return &Archiver{store: store, notifier: notifier}
}

// ArchiveCurrentWeek appends a snapshot of all members and the current week's
// projects and tasks to the history log and removes those projects and tasks
// from the store. Both documents are written in one backend call.
func (a *Archiver) ArchiveCurrentWeek(ctx context.Context) (domain.HistoryEntry, error) {
	entry, err := a.archive(ctx)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	log.WithFields(log.Fields{
		"week":     entry.WeekKey,
		"projects": len(entry.Projects),
		"tasks":    len(entry.Tasks),
	}).Info("week archived")
	if a.notifier != nil {
		if err := a.notifier.WeekArchived(ctx, domain.NewArchiveEvent(entry)); err != nil {
			log.WithError(err).WithField("week", entry.WeekKey).Warn("archive notification failed")
		}
	}
	return entry, nil
}

func (a *Archiver) archive(ctx context.Context) (domain.HistoryEntry, error) {
	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.historyLocked(ctx)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	next := s.data.Clone()
	w := next.Current()
	key := w.Key()

	entry := domain.HistoryEntry{
		WeekKey:    key,
		Week:       w.Week,
		Year:       w.Year,
		Members:    append([]domain.Member{}, next.Members...),
		Projects:   []domain.Project{},
		Tasks:      []domain.Task{},
		ArchivedAt: s.now(),
	}
	projects := []domain.Project{}
	for _, p := range next.Projects {
		if p.WeekKey == key {
			entry.Projects = append(entry.Projects, p)
		} else {
			projects = append(projects, p)
		}
	}
	tasks := []domain.Task{}
	for _, t := range next.Tasks {
		if t.WeekKey == key {
			entry.Tasks = append(entry.Tasks, t)
		} else {
			tasks = append(tasks, t)
		}
	}
	next.Projects, next.Tasks = projects, tasks

	rec, err := encode(HistoryKey, append(history, entry))
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	if err := s.commitLocked(ctx, next, rec); err != nil {
		return domain.HistoryEntry{}, err
	}
	return entry, nil
}

// History returns the archived weeks, oldest first.
func (a *Archiver) History(ctx context.Context) ([]domain.HistoryEntry, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return a.store.historyLocked(ctx)
}

func (s *Store) historyLocked(ctx context.Context) ([]domain.HistoryEntry, error) {
	history, err := loadDocument(ctx, s.backend, HistoryKey, []domain.HistoryEntry{})
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	return history, nil
}
