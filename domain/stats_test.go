package domain

import "testing"

func TestComputeStatsEmpty(t *testing.T) {
	if got := ComputeStats(nil); got != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}

func TestComputeStatsBucketsByProgress(t *testing.T) {
	m1, m2 := "m1", "m2"
	tasks := []Task{
		{ID: "a", Progress: 100, Status: StatusCompleted, Assignee: &m1},
		{ID: "b", Progress: 50, Status: StatusInProgress, Assignee: &m1},
		{ID: "c", Progress: 25, Status: StatusPaused, Assignee: &m2},
		{ID: "d", Progress: 0, Status: StatusPending},
	}
	got := ComputeStats(tasks)
	want := Stats{Total: 4, Completed: 1, InProgress: 2, Pending: 1, Progress: 44, MembersWithTasks: 2}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestComputeStatsRoundsMean(t *testing.T) {
	tasks := []Task{{Progress: 1}, {Progress: 2}}
	if got := ComputeStats(tasks).Progress; got != 2 {
		t.Fatalf("expected 1.5 to round to 2, got %d", got)
	}
	tasks = []Task{{Progress: 1}, {Progress: 1}, {Progress: 2}}
	if got := ComputeStats(tasks).Progress; got != 1 {
		t.Fatalf("expected 1.33 to round to 1, got %d", got)
	}
}
