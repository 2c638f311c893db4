package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func task(id string, status domain.TaskStatus, priority domain.Priority, due *time.Time) viewmodel.Task {
	return viewmodel.Task{ID: id, Title: id, Status: status, Priority: priority, DueDate: due, Project: viewmodel.ProjectRef{ID: "p1", Name: "Apollo"}}
}

func TestBoardPlacesEachTaskInAtMostOneColumn(t *testing.T) {
	tasks := []viewmodel.Task{}
	for i, s := range domain.TaskStatuses {
		tasks = append(tasks, task(string(s)+"-"+string(rune('a'+i)), s, domain.PriorityMedium, nil))
	}
	cols := Board(tasks)
	require.Len(t, cols, 4)
	seen := map[string]int{}
	for _, c := range cols {
		for _, tk := range c.Tasks {
			assert.Equal(t, c.Status, tk.Status)
			seen[tk.ID]++
		}
	}
	for _, tk := range tasks {
		_, onBoard := ColumnFor(tk.Status)
		if onBoard {
			assert.Equal(t, 1, seen[tk.ID], tk.ID)
		} else {
			assert.Equal(t, 0, seen[tk.ID], tk.ID)
		}
	}
	_, ok := ColumnFor(domain.TaskOnHold)
	assert.False(t, ok)
	_, ok = ColumnFor(domain.TaskCancelled)
	assert.False(t, ok)
}

func TestIsOverdue(t *testing.T) {
	past := date(2024, 3, 10)
	future := date(2024, 3, 20)
	assert.True(t, IsOverdue(task("a", domain.TaskTodo, domain.PriorityLow, past), now))
	assert.True(t, IsOverdue(task("b", domain.TaskBlocked, domain.PriorityLow, past), now))
	assert.False(t, IsOverdue(task("c", domain.TaskTodo, domain.PriorityLow, future), now))
	assert.False(t, IsOverdue(task("d", domain.TaskTodo, domain.PriorityLow, nil), now))
	assert.False(t, IsOverdue(task("e", domain.TaskCompleted, domain.PriorityLow, past), now))
	assert.False(t, IsOverdue(task("f", domain.TaskCancelled, domain.PriorityLow, past), now))
}

func TestOverdueReportGroupsAndSorts(t *testing.T) {
	tasks := []viewmodel.Task{
		task("low-1", domain.TaskTodo, domain.PriorityLow, date(2024, 3, 1)),
		task("crit-late", domain.TaskInProgress, domain.PriorityCritical, date(2024, 3, 12)),
		task("crit-early", domain.TaskTodo, domain.PriorityCritical, date(2024, 3, 5)),
		task("high-done", domain.TaskCompleted, domain.PriorityHigh, date(2024, 3, 1)),
		task("med-future", domain.TaskTodo, domain.PriorityMedium, date(2024, 4, 1)),
	}
	groups := OverdueReport(tasks, now)
	require.Len(t, groups, 2)
	assert.Equal(t, domain.PriorityCritical, groups[0].Priority)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "crit-early", groups[0].Items[0].Task.ID)
	assert.Equal(t, 10, groups[0].Items[0].DaysOverdue)
	assert.Equal(t, "crit-late", groups[0].Items[1].Task.ID)
	assert.Equal(t, 3, groups[0].Items[1].DaysOverdue)
	assert.Equal(t, domain.PriorityLow, groups[1].Priority)
	assert.Equal(t, 14, groups[1].Items[0].DaysOverdue)
}

func TestClassifyTimeliness(t *testing.T) {
	due := date(2024, 3, 10)
	cases := []struct {
		name       string
		status     domain.TaskStatus
		completion *time.Time
		due        *time.Time
		want       string
	}{
		{"on time", domain.TaskCompleted, date(2024, 3, 10), due, "On-Time"},
		{"one day late", domain.TaskCompleted, date(2024, 3, 11), due, "1 day late"},
		{"three days late", domain.TaskCompleted, date(2024, 3, 13), due, "3 days late"},
		{"two days early", domain.TaskCompleted, date(2024, 3, 8), due, "2 days early"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := task("x", tc.status, domain.PriorityLow, tc.due)
			tk.CompletionDate = tc.completion
			got := ClassifyTimeliness(tk)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.String())
		})
	}

	missing := task("x", domain.TaskCompleted, domain.PriorityLow, nil)
	missing.CompletionDate = date(2024, 3, 10)
	assert.Nil(t, ClassifyTimeliness(missing))
	noCompletion := task("y", domain.TaskCompleted, domain.PriorityLow, due)
	assert.Nil(t, ClassifyTimeliness(noCompletion))
	notDone := task("z", domain.TaskInProgress, domain.PriorityLow, due)
	notDone.CompletionDate = date(2024, 3, 10)
	assert.Nil(t, ClassifyTimeliness(notDone))
}

func TestProgressOf(t *testing.T) {
	tk := viewmodel.Task{PercentComplete: 40, EstimatedHours: 10, ActualHours: 4}
	assert.Equal(t, Progress{Percent: 40, RemainingHours: 6, OverBudget: false}, ProgressOf(tk))
	tk.ActualHours = 12
	assert.Equal(t, Progress{Percent: 40, RemainingHours: 0, OverBudget: true}, ProgressOf(tk))
}

func TestResolvePrimaryRole(t *testing.T) {
	assert.Equal(t, domain.RoleTeamMember, ResolvePrimaryRole(nil))
	roles := []domain.Role{domain.RoleDeveloper, domain.RoleProductOwner, domain.RoleDevLead}
	first := ResolvePrimaryRole(roles)
	assert.Equal(t, domain.RoleDevLead, first)
	assert.Equal(t, first, ResolvePrimaryRole(roles))
	assert.Equal(t, domain.RoleAdministrator, ResolvePrimaryRole([]domain.Role{domain.RoleTeamMember, domain.RoleAdministrator}))
}

func TestTaskFilter(t *testing.T) {
	a := task("Write docs", domain.TaskTodo, domain.PriorityHigh, date(2024, 3, 1))
	a.Assignee = &viewmodel.Person{ID: "u1", Name: "Ana"}
	b := task("Ship release", domain.TaskCompleted, domain.PriorityLow, nil)
	tasks := []viewmodel.Task{a, b}

	assert.Len(t, TaskFilter{}.Apply(tasks, now), 2)
	assert.Equal(t, []viewmodel.Task{a}, TaskFilter{OverdueOnly: true}.Apply(tasks, now))
	assert.Equal(t, []viewmodel.Task{a}, TaskFilter{AssigneeID: "u1"}.Apply(tasks, now))
	assert.Equal(t, []viewmodel.Task{b}, TaskFilter{Search: "SHIP"}.Apply(tasks, now))
	assert.Empty(t, TaskFilter{ProjectID: "other"}.Apply(tasks, now))
}

func TestCountsAndWorkload(t *testing.T) {
	a := task("a", domain.TaskTodo, domain.PriorityHigh, date(2024, 3, 1))
	a.Assignee = &viewmodel.Person{ID: "u1"}
	b := task("b", domain.TaskCompleted, domain.PriorityLow, nil)
	b.Assignee = &viewmodel.Person{ID: "u1"}
	c := task("c", domain.TaskCancelled, domain.PriorityLow, nil)
	counts := CountTasks([]viewmodel.Task{a, b, c}, now)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.Open)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Overdue)
	assert.Equal(t, 1, counts.ByStatus[domain.TaskCancelled])
	assert.Equal(t, 0, counts.ByStatus[domain.TaskBlocked])

	loads := Workload([]viewmodel.Task{a, b, c}, []viewmodel.Member{{ID: "u1", Name: "Ana"}, {ID: "u2", Name: "Bo"}}, now)
	require.Len(t, loads, 2)
	assert.Equal(t, MemberLoad{MemberID: "u1", Name: "Ana", Assigned: 2, Open: 1, Completed: 1, Overdue: 1}, loads[0])
	assert.Equal(t, 0, loads[1].Assigned)
}
