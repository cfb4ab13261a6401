package api

import (
	"context"

	"chip-todo/domain"
)

// Board is the entity store as seen by handlers.
type Board interface {
	AddMember(ctx context.Context, in domain.MemberInput) (string, error)
	UpdateMember(ctx context.Context, id string, c domain.MemberChanges) error
	DeleteMember(ctx context.Context, id string) error
	AddProject(ctx context.Context, in domain.ProjectInput) (string, error)
	UpdateProject(ctx context.Context, id string, c domain.ProjectChanges) error
	DeleteProject(ctx context.Context, id string) error
	AddProjectMember(ctx context.Context, projectID, memberID string) error
	RemoveProjectMember(ctx context.Context, projectID, memberID string) error
	AddTask(ctx context.Context, in domain.TaskInput) (string, error)
	UpdateTask(ctx context.Context, id string, c domain.TaskChanges) error
	DeleteTask(ctx context.Context, id string) error
	SetCurrentWeek(ctx context.Context, week, year int) error
	CurrentWeek() domain.Week

	Members() []domain.Member
	Member(id string) (domain.Member, bool)
	Projects() []domain.Project
	Project(id string) (domain.Project, bool)
	ProjectsByWeek(w domain.Week) []domain.Project
	Tasks() []domain.Task
	Task(id string) (domain.Task, bool)
	TasksByWeek(w domain.Week) []domain.Task
	TasksByProject(projectID string) []domain.Task
	TasksByMember(memberID string) []domain.Task
	ActiveTasksByAssignee(w domain.Week) map[string][]domain.Task
	ProjectMembers(projectID string) []domain.Member
	ProjectSummary(projectID string) domain.ProjectSummary
	Stats(w domain.Week) domain.Stats
	HasData() bool
}

// MeetingLedger stores weekly meeting notes.
type MeetingLedger interface {
	Meeting(ctx context.Context, w domain.Week) (*domain.Meeting, error)
	SaveMeeting(ctx context.Context, w domain.Week, in domain.MeetingInput) (domain.Meeting, error)
	Meetings(ctx context.Context) ([]domain.Meeting, error)
}

// WeekArchiver moves finished weeks into history.
type WeekArchiver interface {
	ArchiveCurrentWeek(ctx context.Context) (domain.HistoryEntry, error)
	History(ctx context.Context) ([]domain.HistoryEntry, error)
}

// BackupCodec exports and imports the whole tracker state.
type BackupCodec interface {
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, raw []byte) bool
}

// Services bundles everything the routes need. Health is optional.
type Services struct {
	Board    Board
	Meetings MeetingLedger
	Archive  WeekArchiver
	Backups  BackupCodec
	Health   func(ctx context.Context) error
}
