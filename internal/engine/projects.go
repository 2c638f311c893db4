package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teaminova/internal/authz"
	"teaminova/internal/db"
	"teaminova/internal/domain"
	"teaminova/internal/events"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

var (
	cmdCreateProject   = command{"project.create", "project", "Project created", "Could not create project"}
	cmdUpdateProject   = command{"project.update", "project", "Project updated", "Could not update project"}
	cmdDeleteProject   = command{"project.delete", "project", "Project deleted", "Could not delete project"}
	cmdAddMilestone    = command{"project.milestone.add", "project", "Milestone added", "Could not add milestone"}
	cmdToggleMilestone = command{"project.milestone.toggle", "project", "Milestone updated", "Could not update milestone"}
	cmdRemoveMilestone = command{"project.milestone.remove", "project", "Milestone removed", "Could not remove milestone"}
)

type ProjectCreateOptions struct {
	Name        string
	Description string
	Status      domain.ProjectStatus
	// Manager is a profile id, email or name; empty makes the creator the manager.
	Manager    string
	StartDate  string
	TargetDate string
	Color      string
}

func (e Engine) CreateProject(ctx context.Context, v authz.Viewer, opts ProjectCreateOptions) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.run(ctx, v, cmdCreateProject, func(ctx context.Context) (string, error) {
		if err := required("name", opts.Name); err != nil {
			return "", err
		}
		status := opts.Status
		if status == "" {
			status = domain.ProjectPlanned
		}
		if !status.Valid() {
			return "", invalid("status", "unknown status %q", status)
		}
		start, err := checkDate("start_date", &opts.StartDate)
		if err != nil {
			return "", err
		}
		target, err := checkDate("target_date", &opts.TargetDate)
		if err != nil {
			return "", err
		}
		now := e.timestamp()
		p := domain.Project{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(opts.Name),
			Description: stringPtr(opts.Description),
			Status:      status,
			StartDate:   start,
			TargetDate:  target,
			Color:       stringPtr(opts.Color),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if status == domain.ProjectCompleted {
			today := e.today()
			p.ActualCompletionDate = &today
		}
		err = e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			if _, err := r.FindProjectByName(ctx, p.Name); err == nil {
				return invalid("name", "a project named %q already exists", p.Name)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			manager := strings.TrimSpace(opts.Manager)
			if manager == "" {
				manager = v.ProfileID
			}
			managerID, err := resolveProfile(ctx, r, manager)
			if err != nil {
				return err
			}
			if managerID == nil && strings.TrimSpace(opts.Manager) != "" {
				return invalid("manager", "unknown member %q", opts.Manager)
			}
			p.ManagerID = managerID
			if err := r.InsertProject(ctx, p); err != nil {
				return fmt.Errorf("insert project: %w", err)
			}
			if err := e.events().Append(ctx, tx, "project.created", p.ID, "project", p.ID, v.ProfileID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
				return err
			}
			out, err = loadProject(ctx, r, p.ID)
			return err
		})
		return p.ID, err
	})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return e.shownProject(ctx, v, out), nil
}

func loadProject(ctx context.Context, r repo.Repo, id string) (viewmodel.Project, error) {
	row, err := r.GetProject(ctx, id)
	if err != nil {
		return viewmodel.Project{}, wrapNotFound(err, "project", id)
	}
	return viewmodel.ConvertProject(row)
}

// ProjectPatch carries a partial project update. Empty strings clear optional fields.
type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *domain.ProjectStatus
	Manager     *string
	StartDate   *string
	TargetDate  *string
	Color       *string
}

func (e Engine) requireProjectManager(ctx context.Context, v authz.Viewer, projectID, action string) error {
	ok, err := e.canManageProject(ctx, v, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return authz.ForbiddenError{Action: action}
	}
	return nil
}

// UpdateProject is limited to administrators and the project's manager.
func (e Engine) UpdateProject(ctx context.Context, v authz.Viewer, projectID string, patch ProjectPatch) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.run(ctx, v, cmdUpdateProject, func(ctx context.Context) (string, error) {
		if err := required("project_id", projectID); err != nil {
			return "", err
		}
		var changes []repo.Change
		if patch.Name != nil {
			if err := required("name", *patch.Name); err != nil {
				return projectID, err
			}
			changes = append(changes, repo.Change{Column: "name", Value: strings.TrimSpace(*patch.Name)})
		}
		if val, ok := clearable(patch.Description); ok {
			changes = append(changes, repo.Change{Column: "description", Value: val})
		}
		if val, ok := clearable(patch.Color); ok {
			changes = append(changes, repo.Change{Column: "color", Value: val})
		}
		for _, d := range []struct {
			column string
			value  *string
		}{{"start_date", patch.StartDate}, {"target_date", patch.TargetDate}} {
			if d.value == nil {
				continue
			}
			norm, err := checkDate(d.column, d.value)
			if err != nil {
				return projectID, err
			}
			changes = append(changes, repo.Change{Column: d.column, Value: nullableID(norm)})
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return projectID, invalid("status", "unknown status %q", *patch.Status)
			}
			changes = append(changes, repo.Change{Column: "status", Value: string(*patch.Status)})
		}
		if len(changes) == 0 && patch.Manager == nil {
			return projectID, invalid("", "nothing to update")
		}
		if err := e.requireProjectManager(ctx, v, projectID, "edit this project"); err != nil {
			return projectID, err
		}
		return projectID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			current, err := r.GetProject(ctx, projectID)
			if err != nil {
				return wrapNotFound(err, "project", projectID)
			}
			if patch.Name != nil {
				other, err := r.FindProjectByName(ctx, *patch.Name)
				if err == nil && other.ID != projectID {
					return invalid("name", "a project named %q already exists", strings.TrimSpace(*patch.Name))
				}
				if err != nil && !errors.Is(err, repo.ErrNotFound) {
					return err
				}
			}
			if patch.Manager != nil {
				managerID, err := resolveProfile(ctx, r, *patch.Manager)
				if err != nil {
					return err
				}
				if managerID == nil && strings.TrimSpace(*patch.Manager) != "" {
					return invalid("manager", "unknown member %q", *patch.Manager)
				}
				changes = append(changes, repo.Change{Column: "manager_id", Value: nullableID(managerID)})
			}
			if patch.Status != nil {
				switch {
				case *patch.Status == domain.ProjectCompleted && current.Status != domain.ProjectCompleted:
					changes = append(changes, repo.Change{Column: "actual_completion_date", Value: e.today()})
				case *patch.Status != domain.ProjectCompleted && current.Status == domain.ProjectCompleted:
					changes = append(changes, repo.Change{Column: "actual_completion_date", Value: nil})
				}
			}
			changes = append(changes, repo.Change{Column: "updated_at", Value: e.timestamp()})
			if err := r.UpdateProject(ctx, projectID, changes); err != nil {
				return fmt.Errorf("update project: %w", err)
			}
			if err := e.events().Append(ctx, tx, "project.updated", projectID, "project", projectID, v.ProfileID, nil); err != nil {
				return err
			}
			out, err = loadProject(ctx, r, projectID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return e.shownProject(ctx, v, out), nil
}

// DeleteProject refuses while any task still belongs to the project.
func (e Engine) DeleteProject(ctx context.Context, v authz.Viewer, projectID string) error {
	return e.run(ctx, v, cmdDeleteProject, func(ctx context.Context) (string, error) {
		if err := required("project_id", projectID); err != nil {
			return "", err
		}
		if err := e.requireProjectManager(ctx, v, projectID, "delete this project"); err != nil {
			return projectID, err
		}
		return projectID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			n, err := r.CountTasksInProject(ctx, projectID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ProjectHasTasksError{ProjectID: projectID, Count: n}
			}
			if err := r.DeleteProject(ctx, projectID); err != nil {
				return wrapNotFound(err, "project", projectID)
			}
			return e.events().Append(ctx, tx, "project.deleted", projectID, "project", projectID, v.ProfileID, nil)
		})
	})
}

func (e Engine) AddMilestone(ctx context.Context, v authz.Viewer, projectID, title, dueDate string) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.run(ctx, v, cmdAddMilestone, func(ctx context.Context) (string, error) {
		if err := required("project_id", projectID); err != nil {
			return "", err
		}
		if err := required("title", title); err != nil {
			return projectID, err
		}
		due, err := checkDate("due_date", &dueDate)
		if err != nil {
			return projectID, err
		}
		if err := e.requireProjectManager(ctx, v, projectID, "edit this project"); err != nil {
			return projectID, err
		}
		return projectID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			m := domain.Milestone{ID: uuid.NewString(), ProjectID: projectID, Title: strings.TrimSpace(title), DueDate: due}
			if err := r.InsertMilestone(ctx, m); err != nil {
				return fmt.Errorf("insert milestone: %w", err)
			}
			if err := e.events().Append(ctx, tx, "project.milestone.added", projectID, "milestone", m.ID, v.ProfileID, events.EventPayload{"title": m.Title}); err != nil {
				return err
			}
			out, err = loadProject(ctx, r, projectID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return e.shownProject(ctx, v, out), nil
}

// ToggleMilestone flips the milestone's completed flag.
func (e Engine) ToggleMilestone(ctx context.Context, v authz.Viewer, projectID, milestoneID string) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.run(ctx, v, cmdToggleMilestone, func(ctx context.Context) (string, error) {
		if err := required("project_id", projectID); err != nil {
			return "", err
		}
		if err := required("milestone_id", milestoneID); err != nil {
			return projectID, err
		}
		if err := e.requireProjectManager(ctx, v, projectID, "edit this project"); err != nil {
			return projectID, err
		}
		return projectID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			m, err := r.GetMilestone(ctx, projectID, milestoneID)
			if err != nil {
				return wrapNotFound(err, "milestone", milestoneID)
			}
			if err := r.SetMilestoneCompleted(ctx, projectID, milestoneID, !m.Completed); err != nil {
				return err
			}
			if err := e.events().Append(ctx, tx, "project.milestone.toggled", projectID, "milestone", milestoneID, v.ProfileID, events.EventPayload{"completed": !m.Completed}); err != nil {
				return err
			}
			out, err = loadProject(ctx, r, projectID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return e.shownProject(ctx, v, out), nil
}

func (e Engine) RemoveMilestone(ctx context.Context, v authz.Viewer, projectID, milestoneID string) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.run(ctx, v, cmdRemoveMilestone, func(ctx context.Context) (string, error) {
		if err := required("project_id", projectID); err != nil {
			return "", err
		}
		if err := required("milestone_id", milestoneID); err != nil {
			return projectID, err
		}
		if err := e.requireProjectManager(ctx, v, projectID, "edit this project"); err != nil {
			return projectID, err
		}
		return projectID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			if err := r.DeleteMilestone(ctx, projectID, milestoneID); err != nil {
				return wrapNotFound(err, "milestone", milestoneID)
			}
			if err := e.events().Append(ctx, tx, "project.milestone.removed", projectID, "milestone", milestoneID, v.ProfileID, nil); err != nil {
				return err
			}
			var err error
			out, err = loadProject(ctx, r, projectID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return e.shownProject(ctx, v, out), nil
}

func (e Engine) GetProject(ctx context.Context, v authz.Viewer, projectID string) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.read(ctx, "project.get", func(ctx context.Context) error {
		p, err := loadProject(ctx, e.Repo, projectID)
		if err != nil {
			return err
		}
		out, err = e.maskProject(ctx, v, p)
		return err
	})
	return out, err
}

// ResolveProject accepts a project id or name.
func (e Engine) ResolveProject(ctx context.Context, v authz.Viewer, value string) (viewmodel.Project, error) {
	var out viewmodel.Project
	err := e.read(ctx, "project.resolve", func(ctx context.Context) error {
		id, err := resolveProject(ctx, e.Repo, value)
		if err != nil {
			return err
		}
		p, err := loadProject(ctx, e.Repo, id)
		if err != nil {
			return err
		}
		out, err = e.maskProject(ctx, v, p)
		return err
	})
	return out, err
}

func (e Engine) ListProjects(ctx context.Context, v authz.Viewer) ([]viewmodel.Project, error) {
	var out []viewmodel.Project
	err := e.read(ctx, "project.list", func(ctx context.Context) error {
		rows, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return err
		}
		out = make([]viewmodel.Project, 0, len(rows))
		for _, row := range rows {
			p, err := viewmodel.ConvertProject(row)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		out, err = e.maskProjects(ctx, v, out)
		return err
	})
	return out, err
}
