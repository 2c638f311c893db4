// Package derive computes values that follow from stored state and are never persisted:
// board columns, overdue flags, completion timeliness, progress signals, issue groups,
// primary roles and aggregate counts.
package derive

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

const day = 24 * time.Hour

// BoardColumns are the board's columns in display order. On-hold and cancelled tasks have no column.
var BoardColumns = []domain.TaskStatus{domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted, domain.TaskBlocked}

// ColumnFor returns the board column for a status.
func ColumnFor(status domain.TaskStatus) (domain.TaskStatus, bool) {
	for _, c := range BoardColumns {
		if c == status {
			return c, true
		}
	}
	return "", false
}

type BoardColumn struct {
	Status domain.TaskStatus `json:"status"`
	Tasks  []viewmodel.Task  `json:"tasks"`
}

// Board places every task in at most one column, keeping input order within a column.
func Board(tasks []viewmodel.Task) []BoardColumn {
	cols := make([]BoardColumn, len(BoardColumns))
	index := map[domain.TaskStatus]int{}
	for i, s := range BoardColumns {
		cols[i] = BoardColumn{Status: s, Tasks: []viewmodel.Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.Status]; ok {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols
}

// IsOverdue holds iff the task has a due date before now and is neither completed nor cancelled.
func IsOverdue(t viewmodel.Task, now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	if t.Status == domain.TaskCompleted || t.Status == domain.TaskCancelled {
		return false
	}
	return t.DueDate.Before(now)
}

// DaysOverdue is floor((now - due) / 1 day); zero when no due date.
func DaysOverdue(t viewmodel.Task, now time.Time) int {
	if t.DueDate == nil {
		return 0
	}
	return int(math.Floor(float64(now.Sub(*t.DueDate)) / float64(day)))
}

type OverdueItem struct {
	Task        viewmodel.Task `json:"task"`
	DaysOverdue int            `json:"days_overdue"`
}

type OverdueGroup struct {
	Priority domain.Priority `json:"priority"`
	Items    []OverdueItem   `json:"items"`
}

// OverdueReport groups overdue tasks by priority (critical first), due date ascending within a group.
// Empty groups are omitted.
func OverdueReport(tasks []viewmodel.Task, now time.Time) []OverdueGroup {
	byPriority := map[domain.Priority][]OverdueItem{}
	for _, t := range tasks {
		if !IsOverdue(t, now) {
			continue
		}
		byPriority[t.Priority] = append(byPriority[t.Priority], OverdueItem{Task: t, DaysOverdue: DaysOverdue(t, now)})
	}
	groups := []OverdueGroup{}
	for _, p := range domain.Priorities {
		items := byPriority[p]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Task.DueDate.Before(*items[j].Task.DueDate)
		})
		groups = append(groups, OverdueGroup{Priority: p, Items: items})
	}
	return groups
}

type TimelinessKind string

const (
	OnTime TimelinessKind = "on_time"
	Late   TimelinessKind = "late"
	Early  TimelinessKind = "early"
)

type Timeliness struct {
	Kind TimelinessKind `json:"kind"`
	Days int            `json:"days"`
}

func (t Timeliness) String() string {
	switch t.Kind {
	case Late:
		return fmt.Sprintf("%d %s late", t.Days, dayWord(t.Days))
	case Early:
		return fmt.Sprintf("%d %s early", t.Days, dayWord(t.Days))
	default:
		return "On-Time"
	}
}

func dayWord(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

// ClassifyTimeliness compares completion and due dates of a completed task.
// It returns nil when the task is not completed or either date is missing.
func ClassifyTimeliness(t viewmodel.Task) *Timeliness {
	if t.Status != domain.TaskCompleted || t.DueDate == nil || t.CompletionDate == nil {
		return nil
	}
	diff := int(math.Round(float64(t.CompletionDate.Sub(*t.DueDate)) / float64(day)))
	switch {
	case diff > 0:
		return &Timeliness{Kind: Late, Days: diff}
	case diff < 0:
		return &Timeliness{Kind: Early, Days: -diff}
	default:
		return &Timeliness{Kind: OnTime}
	}
}

type Progress struct {
	Percent        int     `json:"percent"`
	RemainingHours float64 `json:"remaining_hours"`
	OverBudget     bool    `json:"over_budget"`
}

// ProgressOf reports stored percent-complete with the hours budget signal.
func ProgressOf(t viewmodel.Task) Progress {
	return Progress{
		Percent:        t.PercentComplete,
		RemainingHours: math.Max(0, t.EstimatedHours-t.ActualHours),
		OverBudget:     t.ActualHours > t.EstimatedHours,
	}
}

// ResolvePrimaryRole picks the highest-priority role; no roles means team_member.
func ResolvePrimaryRole(roles []domain.Role) domain.Role {
	for _, candidate := range domain.Roles {
		for _, r := range roles {
			if r == candidate {
				return candidate
			}
		}
	}
	return domain.RoleTeamMember
}

// TaskFilter selects the visible task set. Zero values match everything.
type TaskFilter struct {
	Status      domain.TaskStatus
	Priority    domain.Priority
	ProjectID   string
	AssigneeID  string
	OverdueOnly bool
	Search      string
}

func (f TaskFilter) Match(t viewmodel.Task, now time.Time) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.ProjectID != "" && t.Project.ID != f.ProjectID {
		return false
	}
	if f.AssigneeID != "" && (t.Assignee == nil || t.Assignee.ID != f.AssigneeID) {
		return false
	}
	if f.OverdueOnly && !IsOverdue(t, now) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

func (f TaskFilter) Apply(tasks []viewmodel.Task, now time.Time) []viewmodel.Task {
	out := []viewmodel.Task{}
	for _, t := range tasks {
		if f.Match(t, now) {
			out = append(out, t)
		}
	}
	return out
}
