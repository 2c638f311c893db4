package derive

import (
	"time"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

type TaskCounts struct {
	Total     int                       `json:"total"`
	ByStatus  map[domain.TaskStatus]int `json:"by_status"`
	Open      int                       `json:"open"`
	Completed int                       `json:"completed"`
	Overdue   int                       `json:"overdue"`
}

// CountTasks aggregates a task set. Open excludes completed and cancelled tasks.
func CountTasks(tasks []viewmodel.Task, now time.Time) TaskCounts {
	c := TaskCounts{ByStatus: map[domain.TaskStatus]int{}}
	for _, s := range domain.TaskStatuses {
		c.ByStatus[s] = 0
	}
	for _, t := range tasks {
		c.Total++
		c.ByStatus[t.Status]++
		switch t.Status {
		case domain.TaskCompleted:
			c.Completed++
		case domain.TaskCancelled:
		default:
			c.Open++
		}
		if IsOverdue(t, now) {
			c.Overdue++
		}
	}
	return c
}

type MemberLoad struct {
	MemberID  string      `json:"member_id"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	Assigned  int         `json:"assigned"`
	Open      int         `json:"open"`
	Completed int         `json:"completed"`
	Overdue   int         `json:"overdue"`
}

// Workload returns per-member task counts in member order.
func Workload(tasks []viewmodel.Task, members []viewmodel.Member, now time.Time) []MemberLoad {
	byAssignee := map[string][]viewmodel.Task{}
	for _, t := range tasks {
		if t.Assignee != nil {
			byAssignee[t.Assignee.ID] = append(byAssignee[t.Assignee.ID], t)
		}
	}
	loads := make([]MemberLoad, 0, len(members))
	for _, m := range members {
		c := CountTasks(byAssignee[m.ID], now)
		loads = append(loads, MemberLoad{
			MemberID:  m.ID,
			Name:      m.Name,
			Role:      m.Role,
			Assigned:  c.Total,
			Open:      c.Open,
			Completed: c.Completed,
			Overdue:   c.Overdue,
		})
	}
	return loads
}
