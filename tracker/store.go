// Package tracker holds the week-scoped task tracker: the entity store, the
// weekly meeting ledger, the archive engine and the import/export codec.
// Every mutation persists the affected documents before it becomes visible.
package tracker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"chip-todo/domain"
	"chip-todo/storage"
)

// Keys of the persisted documents.
const (
	DataKey     = "chip_todo_data"
	HistoryKey  = "chip_todo_history"
	MeetingsKey = "chip_todo_meetings"
)

// Unassigned groups tasks without an assignee in ActiveTasksByAssignee.
const Unassigned = "unassigned"

// Backend is the document storage the tracker persists to.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, records ...storage.Record) error
}

// Options customizes a Store. Zero values select the defaults.
type Options struct {
	Now   func() time.Time
	NewID func(prefix string) string
	// Pick returns an index in [0,n) used to choose a member color.
	Pick func(n int) int
}

// Store owns members, projects, tasks and the current-week pointer. The
// Ledger, Archiver and Codec built on a Store share its lock.
type Store struct {
	mu      sync.Mutex
	backend Backend
	data    domain.Data
	now     func() time.Time
	newID   func(prefix string) string
	pick    func(n int) int
}

// Open loads the entity document from backend. A missing or malformed
// document yields the default document.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("tracker: nil backend")
	}
	s := &Store{
		backend: backend,
		now:     opts.Now,
		newID:   opts.NewID,
		pick:    opts.Pick,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func(prefix string) string { return prefix + uuid.NewString() }
	}
	if s.pick == nil {
		s.pick = rand.Intn
	}
	data, err := loadDocument(ctx, backend, DataKey, domain.DefaultData())
	if err != nil {
		return nil, err
	}
	data.Normalize()
	if data.Current().IsZero() {
		def := domain.DefaultData()
		data.CurrentWeek, data.CurrentYear = def.CurrentWeek, def.CurrentYear
	}
	s.data = data
	return s, nil
}

// loadDocument decodes the document stored under key. A missing or
// malformed document yields def; the latter is logged.
func loadDocument[T any](ctx context.Context, backend Backend, key string, def T) (T, error) {
	raw, err := backend.Load(ctx, key)
	if err != nil {
		return def, fmt.Errorf("load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return def, nil
	}
	var v T
	if err := sonic.ConfigStd.Unmarshal(raw, &v); err != nil {
		log.WithError(err).WithField("key", key).Error("malformed document, using defaults")
		return def, nil
	}
	return v, nil
}

func encode(key string, v any) (storage.Record, error) {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return storage.Record{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return storage.Record{Key: key, Value: raw}, nil
}

// mutate runs fn on a copy of the document, persists the copy and only then
// makes it current. fn returning false means nothing changed.
func (s *Store) mutate(ctx context.Context, fn func(d *domain.Data) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.Clone()
	if !fn(&next) {
		return nil
	}
	return s.commitLocked(ctx, next)
}

func (s *Store) commitLocked(ctx context.Context, next domain.Data, extra ...storage.Record) error {
	next.Normalize()
	rec, err := encode(DataKey, next)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, append([]storage.Record{rec}, extra...)...); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	s.data = next
	return nil
}

func (s *Store) read() domain.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// AddMember creates a member and returns its id.
func (s *Store) AddMember(ctx context.Context, in domain.MemberInput) (string, error) {
	id := s.newID("m_")
	err := s.mutate(ctx, func(d *domain.Data) bool {
		m := domain.Member{
			ID:        id,
			Name:      in.Name,
			Role:      in.Role,
			Color:     in.Color,
			CreatedAt: s.now(),
		}
		if m.Role == "" {
			m.Role = domain.DefaultRole
		}
		if m.Color == "" {
			m.Color = domain.Palette[s.pick(len(domain.Palette))]
		}
		d.Members = append(d.Members, m)
		return true
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateMember merges c into the member. Unknown ids are ignored.
func (s *Store) UpdateMember(ctx context.Context, id string, c domain.MemberChanges) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i := range d.Members {
			if d.Members[i].ID == id {
				d.Members[i] = c.Apply(d.Members[i])
				return true
			}
		}
		return false
	})
}

// DeleteMember removes the member and unassigns its tasks.
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		idx := -1
		for i, m := range d.Members {
			if m.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}
		d.Members = append(d.Members[:idx], d.Members[idx+1:]...)
		for i := range d.Tasks {
			if d.Tasks[i].AssignedTo(id) {
				d.Tasks[i].Assignee = nil
			}
		}
		return true
	})
}

// AddProject creates a project in the current week and returns its id.
func (s *Store) AddProject(ctx context.Context, in domain.ProjectInput) (string, error) {
	id := s.newID("p_")
	err := s.mutate(ctx, func(d *domain.Data) bool {
		d.Projects = append(d.Projects, domain.Project{
			ID:          id,
			Name:        in.Name,
			Description: in.Description,
			Members:     append([]string{}, in.Members...),
			WeekKey:     d.Current().Key(),
			CreatedAt:   s.now(),
		})
		return true
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, c domain.ProjectChanges) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i := range d.Projects {
			if d.Projects[i].ID == id {
				d.Projects[i] = c.Apply(d.Projects[i])
				return true
			}
		}
		return false
	})
}

// DeleteProject removes the project together with its tasks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		kept := d.Projects[:0]
		found := false
		for _, p := range d.Projects {
			if p.ID == id {
				found = true
				continue
			}
			kept = append(kept, p)
		}
		if !found {
			return false
		}
		d.Projects = kept
		tasks := d.Tasks[:0]
		for _, t := range d.Tasks {
			if t.ProjectID != id {
				tasks = append(tasks, t)
			}
		}
		d.Tasks = tasks
		return true
	})
}

// AddProjectMember adds memberID to the project unless it is already there.
func (s *Store) AddProjectMember(ctx context.Context, projectID, memberID string) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i := range d.Projects {
			if d.Projects[i].ID != projectID {
				continue
			}
			for _, m := range d.Projects[i].Members {
				if m == memberID {
					return false
				}
			}
			d.Projects[i].Members = append(d.Projects[i].Members, memberID)
			return true
		}
		return false
	})
}

// RemoveProjectMember drops every occurrence of memberID from the project.
func (s *Store) RemoveProjectMember(ctx context.Context, projectID, memberID string) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i := range d.Projects {
			if d.Projects[i].ID != projectID {
				continue
			}
			members := make([]string, 0, len(d.Projects[i].Members))
			for _, m := range d.Projects[i].Members {
				if m != memberID {
					members = append(members, m)
				}
			}
			if len(members) == len(d.Projects[i].Members) {
				return false
			}
			d.Projects[i].Members = members
			return true
		}
		return false
	})
}

// AddTask creates a task in the current week and returns its id.
func (s *Store) AddTask(ctx context.Context, in domain.TaskInput) (string, error) {
	id := s.newID("t_")
	err := s.mutate(ctx, func(d *domain.Data) bool {
		d.Tasks = append(d.Tasks, domain.NewTask(id, d.Current().Key(), in, s.now()))
		return true
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTask applies c with status/progress synchronization. Unknown ids are
// ignored.
func (s *Store) UpdateTask(ctx context.Context, id string, c domain.TaskChanges) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i := range d.Tasks {
			if d.Tasks[i].ID == id {
				d.Tasks[i] = domain.ApplyTaskChanges(d.Tasks[i], c, s.now())
				return true
			}
		}
		return false
	})
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		for i, t := range d.Tasks {
			if t.ID == id {
				d.Tasks = append(d.Tasks[:i], d.Tasks[i+1:]...)
				return true
			}
		}
		return false
	})
}

// SetCurrentWeek moves the current-week pointer. Existing records keep their
// week keys.
func (s *Store) SetCurrentWeek(ctx context.Context, week, year int) error {
	w := domain.Week{Week: week, Year: year}
	if err := w.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(d *domain.Data) bool {
		if d.Current() == w {
			return false
		}
		d.CurrentWeek, d.CurrentYear = w.Week, w.Year
		return true
	})
}

func (s *Store) CurrentWeek() domain.Week {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Current()
}

// EnsureCurrentWeek points an untouched store at the ISO week of now. A store
// that already holds records or a moved pointer is left alone.
func (s *Store) EnsureCurrentWeek(ctx context.Context, now time.Time) error {
	return s.mutate(ctx, func(d *domain.Data) bool {
		if hasData(*d) || d.Current() != domain.DefaultData().Current() {
			return false
		}
		w := domain.ISOWeek(now)
		if d.Current() == w {
			return false
		}
		d.CurrentWeek, d.CurrentYear = w.Week, w.Year
		return true
	})
}

// Snapshot returns a copy of the whole entity document.
func (s *Store) Snapshot() domain.Data {
	return s.read()
}

// HasData reports whether any member, project or task exists.
func (s *Store) HasData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hasData(s.data)
}

func hasData(d domain.Data) bool {
	return len(d.Members) > 0 || len(d.Projects) > 0 || len(d.Tasks) > 0
}

func (s *Store) Members() []domain.Member {
	return s.read().Members
}

func (s *Store) Member(id string) (domain.Member, bool) {
	for _, m := range s.read().Members {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Member{}, false
}

func (s *Store) Projects() []domain.Project {
	return s.read().Projects
}

func (s *Store) Project(id string) (domain.Project, bool) {
	for _, p := range s.read().Projects {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Project{}, false
}

// ProjectsByWeek returns the projects created in week w.
func (s *Store) ProjectsByWeek(w domain.Week) []domain.Project {
	key := w.Key()
	out := []domain.Project{}
	for _, p := range s.read().Projects {
		if p.WeekKey == key {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Tasks() []domain.Task {
	return s.read().Tasks
}

func (s *Store) Task(id string) (domain.Task, bool) {
	for _, t := range s.read().Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// TasksByWeek returns the tasks stamped with week w.
func (s *Store) TasksByWeek(w domain.Week) []domain.Task {
	return s.filterTasks(func(t domain.Task) bool { return t.WeekKey == w.Key() })
}

func (s *Store) TasksByProject(projectID string) []domain.Task {
	return s.filterTasks(func(t domain.Task) bool { return t.ProjectID == projectID })
}

func (s *Store) TasksByMember(memberID string) []domain.Task {
	return s.filterTasks(func(t domain.Task) bool { return t.AssignedTo(memberID) })
}

// ActiveTasks returns the tasks of week w that are neither completed nor
// paused.
func (s *Store) ActiveTasks(w domain.Week) []domain.Task {
	key := w.Key()
	return s.filterTasks(func(t domain.Task) bool {
		return t.WeekKey == key && t.Status != domain.StatusCompleted && t.Status != domain.StatusPaused
	})
}

// ActiveTasksByAssignee groups ActiveTasks by assignee id for the meeting
// agenda. Tasks without an assignee are listed under Unassigned.
func (s *Store) ActiveTasksByAssignee(w domain.Week) map[string][]domain.Task {
	out := map[string][]domain.Task{}
	for _, t := range s.ActiveTasks(w) {
		key := Unassigned
		if t.Assignee != nil {
			key = *t.Assignee
		}
		out[key] = append(out[key], t)
	}
	return out
}

func (s *Store) filterTasks(keep func(domain.Task) bool) []domain.Task {
	out := []domain.Task{}
	for _, t := range s.read().Tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// ProjectMembers returns the members of a project in member-list order, each
// once. Dangling ids are skipped.
func (s *Store) ProjectMembers(projectID string) []domain.Member {
	d := s.read()
	out := []domain.Member{}
	ids := make(map[string]struct{})
	for _, p := range d.Projects {
		if p.ID == projectID {
			for _, id := range p.Members {
				ids[id] = struct{}{}
			}
			break
		}
	}
	for _, m := range d.Members {
		if _, ok := ids[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}

// ProjectSummary counts the tasks of a project.
func (s *Store) ProjectSummary(projectID string) domain.ProjectSummary {
	sum := domain.ProjectSummary{ProjectID: projectID}
	for _, t := range s.TasksByProject(projectID) {
		sum.Tasks++
		if t.Status == domain.StatusCompleted {
			sum.Completed++
		}
	}
	return sum
}

// Stats aggregates the tasks of week w.
func (s *Store) Stats(w domain.Week) domain.Stats {
	return domain.ComputeStats(s.TasksByWeek(w))
}
