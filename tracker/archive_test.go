package tracker

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"chip-todo/domain"
)

type recordingNotifier struct {
	events []domain.ArchiveEvent
	err    error
}

func (r *recordingNotifier) WeekArchived(_ context.Context, ev domain.ArchiveEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestArchiveMovesCurrentWeek(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()
	alice := mustAddMember(t, s, "Alice")
	p1 := mustAddProject(t, s, "P1")
	t1 := mustAddTask(t, s, domain.TaskInput{ProjectID: p1, Name: "a", Assignee: alice, Progress: progress(40)})
	if err := s.SetCurrentWeek(ctx, 2, 2026); err != nil {
		t.Fatalf("set week: %v", err)
	}
	p2 := mustAddProject(t, s, "P2")
	t2 := mustAddTask(t, s, domain.TaskInput{ProjectID: p2, Name: "b"})
	if err := s.SetCurrentWeek(ctx, 1, 2026); err != nil {
		t.Fatalf("set week: %v", err)
	}
	before := mustTask(t, s, t1)
	clk.Advance(time.Hour)

	notifier := &recordingNotifier{}
	a := NewArchiver(s, notifier)
	entry, err := a.ArchiveCurrentWeek(ctx)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if entry.WeekKey != "2026-W01" || entry.Week != 1 || entry.Year != 2026 || !entry.ArchivedAt.Equal(clk.Now()) {
		t.Fatalf("unexpected entry header %+v", entry)
	}
	if len(entry.Members) != 1 || len(entry.Projects) != 1 || len(entry.Tasks) != 1 {
		t.Fatalf("unexpected entry contents %+v", entry)
	}
	if !reflect.DeepEqual(entry.Tasks[0], before) {
		t.Fatalf("archived task differs:\n%+v\n%+v", entry.Tasks[0], before)
	}

	if _, ok := s.Task(t1); ok {
		t.Fatal("archived task still live")
	}
	if _, ok := s.Project(p1); ok {
		t.Fatal("archived project still live")
	}
	if _, ok := s.Task(t2); !ok {
		t.Fatal("other week's task was archived")
	}
	if len(s.Members()) != 1 {
		t.Fatal("members must stay live")
	}

	history, err := a.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].WeekKey != "2026-W01" {
		t.Fatalf("unexpected history %+v", history)
	}
	if len(notifier.events) != 1 || notifier.events[0].Tasks != 1 || notifier.events[0].Type != domain.WeekArchived {
		t.Fatalf("unexpected notifications %+v", notifier.events)
	}
}

func TestArchiveSnapshotsMembers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	alice := mustAddMember(t, s, "Alice")
	a := NewArchiver(s, nil)
	if _, err := a.ArchiveCurrentWeek(ctx); err != nil {
		t.Fatalf("archive: %v", err)
	}
	name := "Alicia"
	if err := s.UpdateMember(ctx, alice, domain.MemberChanges{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	history, _ := a.History(ctx)
	if history[0].Members[0].Name != "Alice" {
		t.Fatalf("history must not follow member edits, got %q", history[0].Members[0].Name)
	}
}

func TestArchiveAppends(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	a := NewArchiver(s, nil)
	for _, week := range []int{1, 2} {
		if err := s.SetCurrentWeek(ctx, week, 2026); err != nil {
			t.Fatalf("set week: %v", err)
		}
		if _, err := a.ArchiveCurrentWeek(ctx); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
	history, _ := a.History(ctx)
	if len(history) != 2 || history[0].WeekKey != "2026-W01" || history[1].WeekKey != "2026-W02" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestArchiveFailureChangesNothing(t *testing.T) {
	s, backend, _ := newTestStore(t)
	ctx := context.Background()
	p := mustAddProject(t, s, "P")
	id := mustAddTask(t, s, domain.TaskInput{ProjectID: p, Name: "a"})
	backend.fail = true

	notifier := &recordingNotifier{}
	a := NewArchiver(s, notifier)
	if _, err := a.ArchiveCurrentWeek(ctx); err == nil {
		t.Fatal("expected archive error")
	}
	if _, ok := s.Task(id); !ok {
		t.Fatal("task removed despite failed archive")
	}
	backend.fail = false
	history, _ := a.History(ctx)
	if len(history) != 0 {
		t.Fatalf("history written despite failure: %+v", history)
	}
	if len(notifier.events) != 0 {
		t.Fatal("failed archive must not notify")
	}
}

func TestArchiveIgnoresNotifierErrors(t *testing.T) {
	s, _, _ := newTestStore(t)
	a := NewArchiver(s, &recordingNotifier{err: errors.New("queue down")})
	if _, err := a.ArchiveCurrentWeek(context.Background()); err != nil {
		t.Fatalf("notifier errors must not fail the archive: %v", err)
	}
}
