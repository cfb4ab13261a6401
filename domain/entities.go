package domain

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks tasks on the board.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DefaultRole is assigned to members added without a role.
const DefaultRole = "成员"

// Palette holds the colors handed out to members added without one.
var Palette = []string{
	"#3B82F6", "#10B981", "#F59E0B", "#EF4444",
	"#8B5CF6", "#EC4899", "#06B6D4", "#84CC16",
}

// Member is a person tasks can be assigned to.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
}

// Project groups tasks. WeekKey is stamped once at creation.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	WeekKey     string    `json:"weekKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Task is a unit of work inside a project.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Assignee    *string    `json:"assignee"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Progress    int        `json:"progress"`
	WeekKey     string     `json:"weekKey"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	PausedAt    *time.Time `json:"pausedAt,omitempty"`
}

// AssignedTo reports whether the task is assigned to memberID.
func (t Task) AssignedTo(memberID string) bool {
	return t.Assignee != nil && *t.Assignee == memberID
}

// Meeting holds the notes of the weekly meeting. One per week key.
type Meeting struct {
	WeekKey   string    `json:"weekKey"`
	Week      int       `json:"week"`
	Year      int       `json:"year"`
	Date      string    `json:"date"`
	Attendees []string  `json:"attendees"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryEntry is an archived week. Entries are never modified once written.
type HistoryEntry struct {
	WeekKey    string    `json:"weekKey"`
	Week       int       `json:"week"`
	Year       int       `json:"year"`
	Members    []Member  `json:"members"`
	Projects   []Project `json:"projects"`
	Tasks      []Task    `json:"tasks"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Data is the entity-store document persisted as a whole on every change.
type Data struct {
	Members     []Member  `json:"members"`
	Projects    []Project `json:"projects"`
	Tasks       []Task    `json:"tasks"`
	CurrentWeek int       `json:"currentWeek"`
	CurrentYear int       `json:"currentYear"`
}

// DefaultData returns the document used when nothing has been stored yet.
func DefaultData() Data {
	return Data{
		Members:     []Member{},
		Projects:    []Project{},
		Tasks:       []Task{},
		CurrentWeek: 1,
		CurrentYear: 2026,
	}
}

// Current returns the current-week pointer.
func (d Data) Current() Week {
	return Week{Week: d.CurrentWeek, Year: d.CurrentYear}
}

// Normalize replaces nil collections with empty ones so documents always
// encode as arrays.
func (d *Data) Normalize() {
	if d.Members == nil {
		d.Members = []Member{}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	for i := range d.Projects {
		if d.Projects[i].Members == nil {
			d.Projects[i].Members = []string{}
		}
	}
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := Data{
		Members:     append([]Member{}, d.Members...),
		Projects:    make([]Project, len(d.Projects)),
		Tasks:       make([]Task, len(d.Tasks)),
		CurrentWeek: d.CurrentWeek,
		CurrentYear: d.CurrentYear,
	}
	for i, p := range d.Projects {
		out.Projects[i] = p.Clone()
	}
	for i, t := range d.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

// Clone returns a copy of p that shares no slices with it.
func (p Project) Clone() Project {
	p.Members = append([]string{}, p.Members...)
	return p
}

// Clone returns a copy of t that shares no pointers with it.
func (t Task) Clone() Task {
	t.Assignee = clonePtr(t.Assignee)
	t.CompletedAt = clonePtr(t.CompletedAt)
	t.PausedAt = clonePtr(t.PausedAt)
	return t
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
