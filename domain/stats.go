package domain

import "math"

// Stats summarizes the tasks of one week.
type Stats struct {
	Total            int `json:"total"`
	Completed        int `json:"completed"`
	InProgress       int `json:"inProgress"`
	Pending          int `json:"pending"`
	Progress         int `json:"progress"`
	MembersWithTasks int `json:"membersWithTasks"`
}

// ComputeStats buckets tasks by progress, not by status, so a paused task
// counts wherever its progress puts it.
func ComputeStats(tasks []Task) Stats {
	s := Stats{Total: len(tasks)}
	assignees := make(map[string]struct{})
	sum := 0
	for _, t := range tasks {
		switch {
		case t.Progress >= 100:
			s.Completed++
		case t.Progress > 0:
			s.InProgress++
		default:
			s.Pending++
		}
		if t.Assignee != nil && *t.Assignee != "" {
			assignees[*t.Assignee] = struct{}{}
		}
		sum += t.Progress
	}
	s.MembersWithTasks = len(assignees)
	if s.Total > 0 {
		s.Progress = int(math.Round(float64(sum) / float64(s.Total)))
	}
	return s
}

// ProjectSummary counts a project's tasks for the project cards.
type ProjectSummary struct {
	ProjectID string `json:"projectId"`
	Tasks     int    `json:"tasks"`
	Completed int    `json:"completed"`
}
