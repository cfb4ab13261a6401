package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// TaskInput carries the fields of a new task. Zero values select defaults.
type TaskInput struct {
	ProjectID   string
	Name        string
	Description string
	Assignee    string
	Status      Status
	Priority    Priority
	Progress    *int
}

// TaskChanges carries a partial task update. Nil fields are left untouched.
// An Assignee pointing at "" unassigns the task.
type TaskChanges struct {
	ProjectID   *string
	Name        *string
	Description *string
	Assignee    *string
	Status      *Status
	Priority    *Priority
	Progress    *int
}

// NewTask builds a pending task stamped with weekKey and runs any supplied
// status or progress through the same rules as an update.
func NewTask(id, weekKey string, in TaskInput, now time.Time) Task {
	priority := in.Priority
	if !priority.Valid() {
		priority = PriorityMedium
	}
	t := Task{
		ID:          id,
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Description: in.Description,
		Status:      StatusPending,
		Priority:    priority,
		WeekKey:     weekKey,
		CreatedAt:   now,
	}
	if in.Assignee != "" {
		assignee := in.Assignee
		t.Assignee = &assignee
	}
	var c TaskChanges
	if in.Status.Valid() && in.Status != StatusPending {
		status := in.Status
		c.Status = &status
	}
	c.Progress = in.Progress
	return ApplyTaskChanges(t, c, now)
}

// ApplyTaskChanges merges c into t and keeps status and progress consistent.
//
// An explicit status change wins: it is handled first and suppresses progress
// inference. A supplied status that equals the current one also suppresses
// inference. Otherwise a supplied progress drives the status. Afterwards the
// pair is reconciled so that completed implies 100 and 100 implies completed
// unless the task is paused.
func ApplyTaskChanges(t Task, c TaskChanges, now time.Time) Task {
	t = t.Clone()

	if c.ProjectID != nil {
		t.ProjectID = *c.ProjectID
	}
	if c.Name != nil {
		t.Name = *c.Name
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Assignee != nil {
		if *c.Assignee == "" {
			t.Assignee = nil
		} else {
			assignee := *c.Assignee
			t.Assignee = &assignee
		}
	}
	if c.Priority != nil && c.Priority.Valid() {
		t.Priority = *c.Priority
	}

	var progress *int
	if c.Progress != nil {
		p := ClampProgress(*c.Progress)
		progress = &p
	}

	statusSupplied := c.Status != nil && c.Status.Valid()
	statusChanged := statusSupplied && *c.Status != t.Status
	if statusChanged {
		prev := t.Status
		next := *c.Status
		switch {
		case next == StatusPaused:
			t.PausedAt = timePtr(now)
		case prev == StatusPaused && next == StatusInProgress:
			t.PausedAt = nil
		case next == StatusCompleted:
			progress = intPtr(100)
			t.CompletedAt = timePtr(now)
		case next == StatusPending:
			progress = intPtr(0)
			t.CompletedAt = nil
			t.PausedAt = nil
		}
		t.Status = next
		if progress != nil {
			t.Progress = *progress
		}
		if next == StatusInProgress && t.Progress >= 100 {
			t.Progress = 99
		}
	} else if statusSupplied {
		// The current status resubmitted alongside progress: store the
		// progress without inferring a new status.
		if progress != nil {
			t.Progress = *progress
		}
		switch {
		case t.Status == StatusInProgress && t.Progress >= 100:
			t.Progress = 99
		case t.Status == StatusPending && t.Progress >= 100:
			t.Status = StatusCompleted
			t.CompletedAt = timePtr(now)
		}
	} else if progress != nil {
		p := *progress
		switch {
		case p >= 100 && t.Status != StatusCompleted && t.Status != StatusPaused:
			t.Status = StatusCompleted
			t.CompletedAt = timePtr(now)
		case p > 0 && p < 100 && t.Status == StatusPending:
			t.Status = StatusInProgress
		case p > 0 && p < 100 && t.Status == StatusCompleted:
			t.Status = StatusInProgress
			t.CompletedAt = nil
		case p == 0 && t.Status == StatusCompleted:
			t.Status = StatusPending
			t.CompletedAt = nil
		}
		t.Progress = p
	}

	if t.Status == StatusCompleted {
		t.Progress = 100
	}
	return t
}

// ClampProgress bounds p to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ParseProgress converts a loosely typed progress value (as found in JSON
// bodies and imported documents) to an integer. Numbers are truncated, strings
// contribute their leading integer, and anything else counts as 0. The result
// is not clamped.
func ParseProgress(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return clampInt64(n)
	case float64:
		return truncFloat(n)
	case float32:
		return truncFloat(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clampInt64(i)
		}
		if f, err := n.Float64(); err == nil {
			return truncFloat(f)
		}
		return leadingInt(n.String())
	case string:
		return leadingInt(n)
	}
	return 0
}

func truncFloat(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Trunc(f))
}

func clampInt64(i int64) int {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	return int(i)
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	i, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		if strings.HasPrefix(s, "-") {
			return math.MinInt32
		}
		return math.MaxInt32
	}
	return clampInt64(i)
}

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(i int) *int              { return &i }
