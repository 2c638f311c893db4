package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teaminova/internal/authz"
	"teaminova/internal/db"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/events"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

var (
	cmdCreateTask   = command{"task.create", "task", "Task created", "Could not create task"}
	cmdChangeStatus = command{"task.status", "task", "Task status updated", "Could not update task status"}
	cmdUpdateTask   = command{"task.update", "task", "Task updated", "Could not update task"}
	cmdAppendUpdate = command{"task.log", "task", "Update added", "Could not add update"}
	cmdCancelTask   = command{"task.cancel", "task", "Task cancelled", "Could not cancel task"}
	cmdLinkTasks    = command{"task.link", "task", "Related task added", "Could not link tasks"}
	cmdUnlinkTasks  = command{"task.unlink", "task", "Related task removed", "Could not unlink tasks"}
	cmdDeleteTask   = command{"task.delete", "task", "Task deleted", "Could not delete task"}
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	// Project is an id or a name. Empty falls back to the configured default.
	Project  string
	Status   domain.TaskStatus
	Priority domain.Priority
	// Assignee is a profile id, email or name. Unresolvable values leave the task unassigned.
	Assignee        string
	StartDate       string
	DueDate         string
	PercentComplete int
	EstimatedHours  float64
	ActualHours     float64
	ReferenceURL    string
}

func (e Engine) defaultProject() string {
	if e.Config == nil {
		return ""
	}
	return strings.TrimSpace(e.Config.Defaults.Project)
}

func (e Engine) newTask(opts TaskCreateOptions) (domain.Task, string, error) {
	if err := required("title", opts.Title); err != nil {
		return domain.Task{}, "", err
	}
	if err := required("description", opts.Description); err != nil {
		return domain.Task{}, "", err
	}
	project := strings.TrimSpace(opts.Project)
	if project == "" {
		project = e.defaultProject()
	}
	if project == "" {
		return domain.Task{}, "", invalid("project", "is required")
	}
	status := opts.Status
	if status == "" {
		status = domain.TaskTodo
	}
	if !status.Valid() {
		return domain.Task{}, "", invalid("status", "unknown status %q", status)
	}
	if status == domain.TaskCancelled {
		return domain.Task{}, "", invalid("status", "a task cannot be created as cancelled")
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, "", invalid("priority", "unknown priority %q", priority)
	}
	if err := checkProgress(opts.PercentComplete, opts.EstimatedHours, opts.ActualHours); err != nil {
		return domain.Task{}, "", err
	}
	start, err := checkDate("start_date", &opts.StartDate)
	if err != nil {
		return domain.Task{}, "", err
	}
	due, err := checkDate("due_date", &opts.DueDate)
	if err != nil {
		return domain.Task{}, "", err
	}
	now := e.timestamp()
	t := domain.Task{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(opts.Title),
		Description:     strings.TrimSpace(opts.Description),
		Status:          status,
		Priority:        priority,
		StartDate:       start,
		DueDate:         due,
		PercentComplete: opts.PercentComplete,
		EstimatedHours:  opts.EstimatedHours,
		ActualHours:     opts.ActualHours,
		ReferenceURL:    stringPtr(opts.ReferenceURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == domain.TaskCompleted {
		today := e.today()
		t.CompletionDate = &today
	}
	return t, project, nil
}

func checkProgress(percent int, estimated, actual float64) error {
	if percent < 0 || percent > 100 {
		return invalid("percent_complete", "must be between 0 and 100")
	}
	if estimated < 0 {
		return invalid("estimated_hours", "must not be negative")
	}
	if actual < 0 {
		return invalid("actual_hours", "must not be negative")
	}
	return nil
}

// CreateTask inserts a task. The assignee is resolved by id first, then by
// email or name.
func (e Engine) CreateTask(ctx context.Context, v authz.Viewer, opts TaskCreateOptions) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmdCreateTask, func(ctx context.Context) (string, error) {
		t, project, err := e.newTask(opts)
		if err != nil {
			return "", err
		}
		out, err = e.insertTask(ctx, v, t, project, opts.Assignee)
		return t.ID, err
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.statePrepend(out)
	return e.shownTask(ctx, v, out), nil
}

// insertTask resolves the project and assignee and stores t in one transaction.
func (e Engine) insertTask(ctx context.Context, v authz.Viewer, t domain.Task, project, assignee string) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
		projectID, err := resolveProject(ctx, r, project)
		if err != nil {
			return err
		}
		assigneeID, err := resolveProfile(ctx, r, assignee)
		if err != nil {
			return err
		}
		t.ProjectID = &projectID
		t.AssigneeID = assigneeID
		if err := r.InsertTask(ctx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		// Only imports reach here cancelled; the log still records why.
		if t.Status == domain.TaskCancelled {
			if err := e.appendLog(ctx, r, v, t.ID, cancellationNote(importedCancelled)); err != nil {
				return fmt.Errorf("insert cancellation note: %w", err)
			}
		}
		if err := e.events().Append(ctx, tx, "task.created", projectID, "task", t.ID, v.ProfileID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
			return err
		}
		out, err = loadTask(ctx, r, t.ID)
		return err
	})
	return out, err
}

func resolveProject(ctx context.Context, r repo.Repo, value string) (string, error) {
	value = strings.TrimSpace(value)
	p, err := r.GetProject(ctx, value)
	if err == nil {
		return p.ID, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	p, err = r.FindProjectByName(ctx, value)
	if errors.Is(err, repo.ErrNotFound) {
		return "", invalid("project", "unknown project %q", value)
	}
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// resolveProfile returns nil when value is blank or matches nobody.
func resolveProfile(ctx context.Context, r repo.Repo, value string) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	p, err := r.GetProfile(ctx, value)
	if err == nil {
		return &p.ID, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	p, err = r.FindProfile(ctx, value)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p.ID, nil
}

func loadTask(ctx context.Context, r repo.Repo, id string) (viewmodel.Task, error) {
	row, err := r.GetTask(ctx, id)
	if err != nil {
		return viewmodel.Task{}, wrapNotFound(err, "task", id)
	}
	updates, err := r.ListTaskUpdates(ctx, []string{id})
	if err != nil {
		return viewmodel.Task{}, err
	}
	related, err := r.ListRelatedTasks(ctx, []string{id})
	if err != nil {
		return viewmodel.Task{}, err
	}
	return viewmodel.ConvertTask(row, updates[id], related[id])
}

func loadTasks(ctx context.Context, r repo.Repo, f repo.TaskFilters) ([]viewmodel.Task, error) {
	rows, err := r.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	updates, err := r.ListTaskUpdates(ctx, ids)
	if err != nil {
		return nil, err
	}
	related, err := r.ListRelatedTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]viewmodel.Task, 0, len(rows))
	for _, row := range rows {
		t, err := viewmodel.ConvertTask(row, updates[row.ID], related[row.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// statusChanges keeps the completion date in step with the completed status.
func statusChanges(from, to domain.TaskStatus, today string) []repo.Change {
	changes := []repo.Change{{Column: "status", Value: string(to)}}
	switch {
	case to == domain.TaskCompleted && from != domain.TaskCompleted:
		changes = append(changes, repo.Change{Column: "completion_date", Value: today})
	case from == domain.TaskCompleted && to != domain.TaskCompleted:
		changes = append(changes, repo.Change{Column: "completion_date", Value: nil})
	}
	return changes
}

func checkStatus(status domain.TaskStatus) error {
	if strings.TrimSpace(string(status)) == "" {
		return invalid("status", "is required")
	}
	if !status.Valid() {
		return invalid("status", "unknown status %q", status)
	}
	if status == domain.TaskCancelled {
		return invalid("status", "cancelling a task requires a justification; use the cancel command")
	}
	return nil
}

// ChangeStatus moves a task to any status except cancelled.
func (e Engine) ChangeStatus(ctx context.Context, v authz.Viewer, taskID string, status domain.TaskStatus) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmdChangeStatus, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		if err := checkStatus(status); err != nil {
			return taskID, err
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetTask(ctx, taskID)
			if err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			changes := append(statusChanges(row.Status, status, e.today()), repo.Change{Column: "updated_at", Value: e.timestamp()})
			if err := r.UpdateTask(ctx, taskID, changes); err != nil {
				return fmt.Errorf("update task status: %w", err)
			}
			if err := e.events().Append(ctx, tx, "task.status", deref(row.ProjectID), "task", taskID, v.ProfileID, events.EventPayload{"from": row.Status, "to": status}); err != nil {
				return err
			}
			out, err = loadTask(ctx, r, taskID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.stateReplace(out)
	return e.shownTask(ctx, v, out), nil
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched; an empty string clears an optional field.
type TaskPatch struct {
	Title           *string
	Description     *string
	Status          *domain.TaskStatus
	Priority        *domain.Priority
	Assignee        *string
	Project         *string
	StartDate       *string
	DueDate         *string
	PercentComplete *int
	EstimatedHours  *float64
	ActualHours     *float64
	ReferenceURL    *string
}

// taskPatchColumns maps patch fields one-to-one onto task columns. Assignee
// and project need resolution and are handled separately.
var taskPatchColumns = []struct {
	column string
	value  func(TaskPatch) (any, bool)
}{
	{"title", func(p TaskPatch) (any, bool) { return trimmed(p.Title) }},
	{"description", func(p TaskPatch) (any, bool) { return trimmed(p.Description) }},
	{"status", func(p TaskPatch) (any, bool) {
		if p.Status == nil {
			return nil, false
		}
		return string(*p.Status), true
	}},
	{"priority", func(p TaskPatch) (any, bool) {
		if p.Priority == nil {
			return nil, false
		}
		return string(*p.Priority), true
	}},
	{"start_date", func(p TaskPatch) (any, bool) { return clearable(p.StartDate) }},
	{"due_date", func(p TaskPatch) (any, bool) { return clearable(p.DueDate) }},
	{"percent_complete", func(p TaskPatch) (any, bool) { return present(p.PercentComplete) }},
	{"estimated_hours", func(p TaskPatch) (any, bool) { return present(p.EstimatedHours) }},
	{"actual_hours", func(p TaskPatch) (any, bool) { return present(p.ActualHours) }},
	{"reference_url", func(p TaskPatch) (any, bool) { return clearable(p.ReferenceURL) }},
}

func trimmed(v *string) (any, bool) {
	if v == nil {
		return nil, false
	}
	return strings.TrimSpace(*v), true
}

func clearable(v *string) (any, bool) {
	if v == nil {
		return nil, false
	}
	if s := strings.TrimSpace(*v); s != "" {
		return s, true
	}
	return nil, true
}

func present[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (p TaskPatch) empty() bool {
	for _, c := range taskPatchColumns {
		if _, ok := c.value(p); ok {
			return false
		}
	}
	return p.Assignee == nil && p.Project == nil
}

// normalize validates the patch and rewrites dates to YYYY-MM-DD.
func (p TaskPatch) normalize() (TaskPatch, error) {
	if p.empty() {
		return p, invalid("", "nothing to update")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return p, invalid("title", "must not be empty")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return p, invalid("description", "must not be empty")
	}
	if p.Project != nil && strings.TrimSpace(*p.Project) == "" {
		return p, invalid("project", "must not be empty")
	}
	if p.Status != nil {
		if err := checkStatus(*p.Status); err != nil {
			return p, err
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return p, invalid("priority", "unknown priority %q", *p.Priority)
	}
	var percent int
	var est, act float64
	if p.PercentComplete != nil {
		percent = *p.PercentComplete
	}
	if p.EstimatedHours != nil {
		est = *p.EstimatedHours
	}
	if p.ActualHours != nil {
		act = *p.ActualHours
	}
	if err := checkProgress(percent, est, act); err != nil {
		return p, err
	}
	for _, d := range []struct {
		field string
		v     **string
	}{{"start_date", &p.StartDate}, {"due_date", &p.DueDate}} {
		if *d.v == nil {
			continue
		}
		norm, err := checkDate(d.field, *d.v)
		if err != nil {
			return p, err
		}
		if norm == nil {
			empty := ""
			norm = &empty
		}
		*d.v = norm
	}
	return p, nil
}

// UpdateTask writes only the fields present in the patch.
func (e Engine) UpdateTask(ctx context.Context, v authz.Viewer, taskID string, patch TaskPatch) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmdUpdateTask, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		p, err := patch.normalize()
		if err != nil {
			return taskID, err
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetTask(ctx, taskID)
			if err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			var changes []repo.Change
			var fields []string
			for _, c := range taskPatchColumns {
				if val, ok := c.value(p); ok {
					changes = append(changes, repo.Change{Column: c.column, Value: val})
					fields = append(fields, c.column)
				}
			}
			if p.Status != nil {
				for _, c := range statusChanges(row.Status, *p.Status, e.today()) {
					if c.Column == "completion_date" {
						changes = append(changes, c)
					}
				}
			}
			if p.Assignee != nil {
				assignee, err := resolveProfile(ctx, r, *p.Assignee)
				if err != nil {
					return err
				}
				changes = append(changes, repo.Change{Column: "assignee_id", Value: nullableID(assignee)})
				fields = append(fields, "assignee_id")
			}
			if p.Project != nil {
				projectID, err := resolveProject(ctx, r, *p.Project)
				if err != nil {
					return err
				}
				changes = append(changes, repo.Change{Column: "project_id", Value: projectID})
				fields = append(fields, "project_id")
			}
			changes = append(changes, repo.Change{Column: "updated_at", Value: e.timestamp()})
			if err := r.UpdateTask(ctx, taskID, changes); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			if err := e.events().Append(ctx, tx, "task.updated", deref(row.ProjectID), "task", taskID, v.ProfileID, events.EventPayload{"fields": fields}); err != nil {
				return err
			}
			out, err = loadTask(ctx, r, taskID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.stateReplace(out)
	return e.shownTask(ctx, v, out), nil
}

func nullableID(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func (e Engine) appendLog(ctx context.Context, r repo.Repo, v authz.Viewer, taskID, body string) error {
	var author *string
	if v.ProfileID != "" {
		author = &v.ProfileID
	}
	return r.InsertTaskUpdate(ctx, domain.TaskUpdate{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Body:      body,
		AuthorID:  author,
		CreatedAt: e.timestamp(),
	})
}

// AppendUpdate adds an entry to a task's update log.
func (e Engine) AppendUpdate(ctx context.Context, v authz.Viewer, taskID, text string) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmdAppendUpdate, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		if err := required("text", text); err != nil {
			return taskID, err
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetTask(ctx, taskID)
			if err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			if err := e.appendLog(ctx, r, v, taskID, strings.TrimSpace(text)); err != nil {
				return fmt.Errorf("insert task update: %w", err)
			}
			if err := e.events().Append(ctx, tx, "task.update.appended", deref(row.ProjectID), "task", taskID, v.ProfileID, nil); err != nil {
				return err
			}
			out, err = loadTask(ctx, r, taskID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.stateReplace(out)
	return e.shownTask(ctx, v, out), nil
}

// importedCancelled justifies rows that arrive from a spreadsheet already cancelled.
const importedCancelled = "imported as cancelled"

func cancellationNote(justification string) string {
	return "Task cancelled: " + strings.TrimSpace(justification)
}

// CancelTask logs the justification and marks the task cancelled in one transaction.
func (e Engine) CancelTask(ctx context.Context, v authz.Viewer, taskID, justification string) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmdCancelTask, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		if err := required("justification", justification); err != nil {
			return taskID, err
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetTask(ctx, taskID)
			if err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			if row.Status == domain.TaskCancelled {
				return invalid("status", "task is already cancelled")
			}
			if err := e.appendLog(ctx, r, v, taskID, cancellationNote(justification)); err != nil {
				return fmt.Errorf("insert cancellation note: %w", err)
			}
			changes := []repo.Change{
				{Column: "status", Value: string(domain.TaskCancelled)},
				{Column: "completion_date", Value: nil},
				{Column: "updated_at", Value: e.timestamp()},
			}
			if err := r.UpdateTask(ctx, taskID, changes); err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}
			if err := e.events().Append(ctx, tx, "task.cancelled", deref(row.ProjectID), "task", taskID, v.ProfileID, events.EventPayload{"from": row.Status, "justification": justification}); err != nil {
				return err
			}
			out, err = loadTask(ctx, r, taskID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.stateReplace(out)
	return e.shownTask(ctx, v, out), nil
}

// LinkTasks records that taskID relates to relatedID. The reverse link is not implied.
func (e Engine) LinkTasks(ctx context.Context, v authz.Viewer, taskID, relatedID string) (viewmodel.Task, error) {
	return e.changeLink(ctx, v, cmdLinkTasks, taskID, relatedID, true)
}

func (e Engine) UnlinkTasks(ctx context.Context, v authz.Viewer, taskID, relatedID string) (viewmodel.Task, error) {
	return e.changeLink(ctx, v, cmdUnlinkTasks, taskID, relatedID, false)
}

func (e Engine) changeLink(ctx context.Context, v authz.Viewer, cmd command, taskID, relatedID string, add bool) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.run(ctx, v, cmd, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		if err := required("related_task_id", relatedID); err != nil {
			return taskID, err
		}
		if taskID == relatedID {
			return taskID, invalid("related_task_id", "a task cannot be related to itself")
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetTask(ctx, taskID)
			if err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			evt := "task.unlinked"
			if add {
				if _, err := r.GetTask(ctx, relatedID); err != nil {
					return wrapNotFound(err, "task", relatedID)
				}
				if err := r.AddRelatedTask(ctx, domain.RelatedTask{TaskID: taskID, RelatedTaskID: relatedID, CreatedAt: e.timestamp()}); err != nil {
					return fmt.Errorf("add related task: %w", err)
				}
				evt = "task.linked"
			} else if err := r.RemoveRelatedTask(ctx, taskID, relatedID); err != nil {
				return wrapNotFound(err, "related task link", taskID+"->"+relatedID)
			}
			if err := e.events().Append(ctx, tx, evt, deref(row.ProjectID), "task", taskID, v.ProfileID, events.EventPayload{"related_task_id": relatedID}); err != nil {
				return err
			}
			out, err = loadTask(ctx, r, taskID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Task{}, err
	}
	e.stateReplace(out)
	return e.shownTask(ctx, v, out), nil
}

// RelatedTasks returns the tasks taskID links to.
func (e Engine) RelatedTasks(ctx context.Context, v authz.Viewer, taskID string) ([]viewmodel.Task, error) {
	var out []viewmodel.Task
	err := e.read(ctx, "task.related", func(ctx context.Context) error {
		links, err := e.Repo.ListRelatedTasks(ctx, []string{taskID})
		if err != nil {
			return err
		}
		out = make([]viewmodel.Task, 0, len(links[taskID]))
		for _, id := range links[taskID] {
			t, err := loadTask(ctx, e.Repo, id)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		out, err = e.maskTasks(ctx, v, out)
		return err
	})
	return out, err
}

// canManageProject reports whether v administers the store or manages the project.
func (e Engine) canManageProject(ctx context.Context, v authz.Viewer, projectID string) (bool, error) {
	admin, err := e.Authz.IsAdministrator(ctx, v)
	if err != nil || admin {
		return admin, err
	}
	if projectID == "" || v.ProfileID == "" {
		return false, nil
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, wrapNotFound(err, "project", projectID)
	}
	return p.ManagerID != nil && *p.ManagerID == v.ProfileID, nil
}

// DeleteTask permanently removes a task with its log and outgoing links.
func (e Engine) DeleteTask(ctx context.Context, v authz.Viewer, taskID string) error {
	err := e.run(ctx, v, cmdDeleteTask, func(ctx context.Context) (string, error) {
		if err := required("task_id", taskID); err != nil {
			return "", err
		}
		row, err := e.Repo.GetTask(ctx, taskID)
		if err != nil {
			return taskID, wrapNotFound(err, "task", taskID)
		}
		ok, err := e.canManageProject(ctx, v, deref(row.ProjectID))
		if err != nil {
			return taskID, err
		}
		if !ok {
			return taskID, authz.ForbiddenError{Action: "delete this task"}
		}
		return taskID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			if err := r.DeleteTask(ctx, taskID); err != nil {
				return wrapNotFound(err, "task", taskID)
			}
			return e.events().Append(ctx, tx, "task.deleted", deref(row.ProjectID), "task", taskID, v.ProfileID, events.EventPayload{"title": row.Title})
		})
	})
	if err != nil {
		return err
	}
	e.stateRemove(taskID)
	return nil
}

func (e Engine) GetTask(ctx context.Context, v authz.Viewer, taskID string) (viewmodel.Task, error) {
	var out viewmodel.Task
	err := e.read(ctx, "task.get", func(ctx context.Context) error {
		t, err := loadTask(ctx, e.Repo, taskID)
		if err != nil {
			return err
		}
		out, err = e.maskTask(ctx, v, t)
		return err
	})
	return out, err
}

// ListTasks returns the tasks visible under f, newest first.
func (e Engine) ListTasks(ctx context.Context, v authz.Viewer, f derive.TaskFilter) ([]viewmodel.Task, error) {
	var out []viewmodel.Task
	err := e.read(ctx, "task.list", func(ctx context.Context) error {
		tasks, err := loadTasks(ctx, e.Repo, repo.TaskFilters{
			ProjectID:  f.ProjectID,
			Status:     string(f.Status),
			AssigneeID: f.AssigneeID,
			Search:     strings.TrimSpace(f.Search),
		})
		if err != nil {
			return err
		}
		out, err = e.maskTasks(ctx, v, f.Apply(tasks, e.now()))
		return err
	})
	return out, err
}
