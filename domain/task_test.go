package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func ptrString(s string) *string       { return &s }
func ptrInt(i int) *int                { return &i }
func ptrStatus(s Status) *Status       { return &s }
func ptrPriority(p Priority) *Priority { return &p }

var (
	created = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	later   = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
)

func pendingTask() Task {
	return NewTask("t1", "2026-W01", TaskInput{ProjectID: "p1", Name: "bring-up"}, created)
}

func assertInvariant(t *testing.T, task Task) {
	t.Helper()
	if task.Progress < 0 || task.Progress > 100 {
		t.Fatalf("progress out of range: %d", task.Progress)
	}
	if task.Status == StatusCompleted && task.Progress != 100 {
		t.Fatalf("completed task must be at 100, got %d", task.Progress)
	}
	if task.Progress == 100 && task.Status != StatusPaused && task.Status != StatusCompleted {
		t.Fatalf("task at 100 must be completed or paused, got %s", task.Status)
	}
}

func TestNewTaskDefaults(t *testing.T) {
	task := pendingTask()
	if task.Status != StatusPending || task.Priority != PriorityMedium || task.Progress != 0 {
		t.Fatalf("unexpected defaults: %#v", task)
	}
	if task.WeekKey != "2026-W01" || !task.CreatedAt.Equal(created) {
		t.Fatalf("unexpected stamps: %#v", task)
	}
	if task.Assignee != nil || task.CompletedAt != nil || task.PausedAt != nil {
		t.Fatalf("expected nil pointers: %#v", task)
	}
}

func TestNewTaskSyncsSuppliedFields(t *testing.T) {
	task := NewTask("t1", "2026-W01", TaskInput{Name: "x", Progress: ptrInt(100)}, created)
	if task.Status != StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("progress 100 should complete the task: %#v", task)
	}

	task = NewTask("t2", "2026-W01", TaskInput{Name: "x", Status: StatusCompleted}, created)
	if task.Progress != 100 {
		t.Fatalf("completed task should be at 100: %#v", task)
	}

	task = NewTask("t3", "2026-W01", TaskInput{Name: "x", Priority: "urgent", Progress: ptrInt(250)}, created)
	if task.Priority != PriorityMedium || task.Progress != 100 {
		t.Fatalf("unexpected task: %#v", task)
	}
}

func TestProgressDrivesStatus(t *testing.T) {
	task := pendingTask()

	task = ApplyTaskChanges(task, TaskChanges{Progress: ptrInt(100)}, later)
	if task.Status != StatusCompleted || task.Progress != 100 {
		t.Fatalf("expected completed at 100: %#v", task)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(later) {
		t.Fatalf("expected completedAt stamped: %#v", task.CompletedAt)
	}

	task = ApplyTaskChanges(task, TaskChanges{Progress: ptrInt(0)}, later)
	if task.Status != StatusPending || task.CompletedAt != nil || task.Progress != 0 {
		t.Fatalf("expected pending reset: %#v", task)
	}

	task = ApplyTaskChanges(task, TaskChanges{Progress: ptrInt(40)}, later)
	if task.Status != StatusInProgress || task.Progress != 40 {
		t.Fatalf("expected in_progress at 40: %#v", task)
	}
}

func TestProgressBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		start    Status
		progress int
		want     Status
		stored   int
	}{
		{"pending at 1", StatusPending, 1, StatusInProgress, 1},
		{"pending at 99", StatusPending, 99, StatusInProgress, 99},
		{"pending over range", StatusPending, 140, StatusCompleted, 100},
		{"pending under range", StatusPending, -5, StatusPending, 0},
		{"in progress at 0", StatusInProgress, 0, StatusInProgress, 0},
		{"paused at 100", StatusPaused, 100, StatusPaused, 100},
		{"paused at 30", StatusPaused, 30, StatusPaused, 30},
		{"completed at 0", StatusCompleted, 0, StatusPending, 0},
		{"completed at 60", StatusCompleted, 60, StatusInProgress, 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := pendingTask()
			task.Status = tc.start
			if tc.start == StatusCompleted {
				task.Progress = 100
				task.CompletedAt = &created
			}
			got := ApplyTaskChanges(task, TaskChanges{Progress: ptrInt(tc.progress)}, later)
			if got.Status != tc.want || got.Progress != tc.stored {
				t.Fatalf("got %s/%d, want %s/%d", got.Status, got.Progress, tc.want, tc.stored)
			}
			if got.Status != StatusCompleted && got.CompletedAt != nil {
				t.Fatalf("completedAt should be cleared: %#v", got)
			}
			assertInvariant(t, got)
		})
	}
}

func TestExplicitStatusWinsOverProgress(t *testing.T) {
	task := pendingTask()
	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusPaused), Progress: ptrInt(50)}, later)
	if task.Status != StatusPaused {
		t.Fatalf("explicit pause must not be overridden, got %s", task.Status)
	}
	if task.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", task.Progress)
	}
	if task.PausedAt == nil || !task.PausedAt.Equal(later) {
		t.Fatalf("expected pausedAt stamped: %#v", task.PausedAt)
	}
}

func TestStatusSideEffects(t *testing.T) {
	task := ApplyTaskChanges(pendingTask(), TaskChanges{Progress: ptrInt(30)}, created)
	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusPaused)}, later)
	if task.PausedAt == nil {
		t.Fatal("pausing should stamp pausedAt")
	}

	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusInProgress)}, later)
	if task.PausedAt != nil || task.Status != StatusInProgress || task.Progress != 30 {
		t.Fatalf("resume should clear pausedAt and keep progress: %#v", task)
	}

	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusCompleted), Progress: ptrInt(20)}, later)
	if task.Progress != 100 || task.CompletedAt == nil {
		t.Fatalf("completing forces progress 100: %#v", task)
	}

	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusPending)}, later)
	if task.Progress != 0 || task.CompletedAt != nil || task.PausedAt != nil {
		t.Fatalf("pending resets the task: %#v", task)
	}
}

func TestExplicitInProgressNeverHoldsHundred(t *testing.T) {
	task := ApplyTaskChanges(pendingTask(), TaskChanges{Status: ptrStatus(StatusInProgress), Progress: ptrInt(100)}, later)
	if task.Status != StatusInProgress || task.Progress != 99 {
		t.Fatalf("unexpected task: %#v", task)
	}
	assertInvariant(t, task)
}

func TestResubmittedStatusSuppressesProgressInference(t *testing.T) {
	task := ApplyTaskChanges(pendingTask(), TaskChanges{Status: ptrStatus(StatusPending), Progress: ptrInt(50)}, later)
	if task.Status != StatusPending || task.Progress != 50 {
		t.Fatalf("want pending/50, got %s/%d", task.Status, task.Progress)
	}
	assertInvariant(t, task)

	task = ApplyTaskChanges(pendingTask(), TaskChanges{Status: ptrStatus(StatusPending), Progress: ptrInt(-5)}, later)
	if task.Progress != 0 {
		t.Fatalf("resubmitted progress must be clamped, got %d", task.Progress)
	}

	task = ApplyTaskChanges(pendingTask(), TaskChanges{Progress: ptrInt(30)}, created)
	task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(StatusInProgress), Progress: ptrInt(100)}, later)
	if task.Status != StatusInProgress || task.Progress != 99 {
		t.Fatalf("same in_progress with 100 should cap at 99, got %s/%d", task.Status, task.Progress)
	}
	assertInvariant(t, task)

	task = ApplyTaskChanges(pendingTask(), TaskChanges{Status: ptrStatus(StatusPending), Progress: ptrInt(100)}, later)
	if task.Status != StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("pending at 100 must complete, got %#v", task)
	}
	assertInvariant(t, task)
}

func TestInvalidStatusAndPriorityAreIgnored(t *testing.T) {
	task := ApplyTaskChanges(pendingTask(), TaskChanges{Status: ptrStatus("archived"), Priority: ptrPriority("urgent")}, later)
	if task.Status != StatusPending || task.Priority != PriorityMedium {
		t.Fatalf("unexpected task: %#v", task)
	}
}

func TestFieldMergeAndUnassign(t *testing.T) {
	task := pendingTask()
	task = ApplyTaskChanges(task, TaskChanges{Name: ptrString("ate"), Assignee: ptrString("m1"), Priority: ptrPriority(PriorityHigh)}, later)
	if task.Name != "ate" || !task.AssignedTo("m1") || task.Priority != PriorityHigh {
		t.Fatalf("unexpected merge: %#v", task)
	}
	task = ApplyTaskChanges(task, TaskChanges{Assignee: ptrString("")}, later)
	if task.Assignee != nil {
		t.Fatalf("empty assignee should unassign: %#v", task)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	task := pendingTask()
	task.Assignee = ptrString("m1")
	_ = ApplyTaskChanges(task, TaskChanges{Assignee: ptrString("m2"), Status: ptrStatus(StatusCompleted)}, later)
	if *task.Assignee != "m1" || task.Status != StatusPending || task.CompletedAt != nil {
		t.Fatalf("input task mutated: %#v", task)
	}
}

func TestInvariantHoldsForAllInputs(t *testing.T) {
	statuses := []Status{StatusPending, StatusInProgress, StatusPaused, StatusCompleted}
	progresses := []int{-10, 0, 1, 50, 99, 100, 101}
	for _, start := range statuses {
		for _, next := range append([]Status{""}, statuses...) {
			for _, p := range append([]int{-1}, progresses...) {
				task := pendingTask()
				task = ApplyTaskChanges(task, TaskChanges{Status: ptrStatus(start)}, created)
				c := TaskChanges{}
				if next != "" {
					c.Status = ptrStatus(next)
				}
				if p != -1 {
					c.Progress = ptrInt(p)
				}
				assertInvariant(t, ApplyTaskChanges(task, c, later))
			}
		}
	}
}

func TestParseProgress(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{42, 42},
		{42.9, 42},
		{"73", 73},
		{" 12abc", 12},
		{"abc", 0},
		{"-4", -4},
		{nil, 0},
		{true, 0},
		{json.Number("55"), 55},
		{json.Number("55.5"), 55},
		{[]any{1}, 0},
	}
	for _, tc := range cases {
		if got := ParseProgress(tc.in); got != tc.want {
			t.Fatalf("ParseProgress(%#v) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := ClampProgress(ParseProgress("999")); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
}
