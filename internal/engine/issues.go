package engine

import (
	"context"
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
	cmdCreateIssue = command{"issue.create", "issue", "Issue logged", "Could not log issue"}
	cmdUpdateIssue = command{"issue.update", "issue", "Issue updated", "Could not update issue"}
	cmdDeleteIssue = command{"issue.delete", "issue", "Issue deleted", "Could not delete issue"}
)

type IssueCreateOptions struct {
	Project              string
	Title                string
	Description          string
	Severity             domain.Severity
	ItemType             domain.IssueType
	Status               domain.IssueStatus
	DateIdentified       string
	Owner                string
	TargetResolutionDate string
	RecommendedAction    string
	Comments             string
}

func checkIssueEnums(sev *domain.Severity, typ *domain.IssueType, status *domain.IssueStatus) error {
	if sev != nil && !sev.Valid() {
		return invalid("severity", "unknown severity %q", *sev)
	}
	if typ != nil && !typ.Valid() {
		return invalid("item_type", "unknown item type %q", *typ)
	}
	if status != nil && !status.Valid() {
		return invalid("status", "unknown status %q", *status)
	}
	return nil
}

// CreateIssue logs an issue authored by the viewer.
func (e Engine) CreateIssue(ctx context.Context, v authz.Viewer, opts IssueCreateOptions) (viewmodel.Issue, error) {
	var out viewmodel.Issue
	err := e.run(ctx, v, cmdCreateIssue, func(ctx context.Context) (string, error) {
		if v.ProfileID == "" {
			return "", authz.ForbiddenError{Action: "log issues without a profile"}
		}
		if err := required("title", opts.Title); err != nil {
			return "", err
		}
		project := strings.TrimSpace(opts.Project)
		if project == "" {
			project = e.defaultProject()
		}
		if project == "" {
			return "", invalid("project", "is required")
		}
		if opts.Severity == "" {
			opts.Severity = domain.SeverityMedium
		}
		if opts.ItemType == "" {
			opts.ItemType = domain.IssueTypeIssue
		}
		if opts.Status == "" {
			opts.Status = domain.IssueOpen
		}
		if err := checkIssueEnums(&opts.Severity, &opts.ItemType, &opts.Status); err != nil {
			return "", err
		}
		identified, err := checkDate("date_identified", &opts.DateIdentified)
		if err != nil {
			return "", err
		}
		if identified == nil {
			today := e.today()
			identified = &today
		}
		target, err := checkDate("target_resolution_date", &opts.TargetResolutionDate)
		if err != nil {
			return "", err
		}
		now := e.timestamp()
		issue := domain.Issue{
			ID:                   uuid.NewString(),
			AuthorID:             v.ProfileID,
			Title:                strings.TrimSpace(opts.Title),
			Description:          stringPtr(opts.Description),
			Severity:             opts.Severity,
			ItemType:             opts.ItemType,
			Status:               opts.Status,
			DateIdentified:       *identified,
			TargetResolutionDate: target,
			RecommendedAction:    stringPtr(opts.RecommendedAction),
			Comments:             stringPtr(opts.Comments),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		err = e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			projectID, err := resolveProject(ctx, r, project)
			if err != nil {
				return err
			}
			owner, err := resolveProfile(ctx, r, opts.Owner)
			if err != nil {
				return err
			}
			issue.ProjectID = projectID
			issue.OwnerID = owner
			if err := r.InsertIssue(ctx, issue); err != nil {
				return fmt.Errorf("insert issue: %w", err)
			}
			if err := e.events().Append(ctx, tx, "issue.created", projectID, "issue", issue.ID, v.ProfileID, events.EventPayload{"title": issue.Title, "severity": issue.Severity}); err != nil {
				return err
			}
			out, err = loadIssue(ctx, r, issue.ID)
			return err
		})
		return issue.ID, err
	})
	if err != nil {
		return viewmodel.Issue{}, err
	}
	return e.shownIssue(ctx, v, out), nil
}

func loadIssue(ctx context.Context, r repo.Repo, id string) (viewmodel.Issue, error) {
	row, err := r.GetIssue(ctx, id)
	if err != nil {
		return viewmodel.Issue{}, wrapNotFound(err, "issue", id)
	}
	return viewmodel.ConvertIssue(row)
}

// IssuePatch carries a partial issue update. The author cannot be changed.
type IssuePatch struct {
	Project              *string
	Title                *string
	Description          *string
	Severity             *domain.Severity
	ItemType             *domain.IssueType
	Status               *domain.IssueStatus
	DateIdentified       *string
	Owner                *string
	TargetResolutionDate *string
	RecommendedAction    *string
	Comments             *string
	ResolutionNotes      *string
}

func (p IssuePatch) changes() ([]repo.Change, error) {
	var changes []repo.Change
	if p.Title != nil {
		if err := required("title", *p.Title); err != nil {
			return nil, err
		}
		changes = append(changes, repo.Change{Column: "title", Value: strings.TrimSpace(*p.Title)})
	}
	if err := checkIssueEnums(p.Severity, p.ItemType, p.Status); err != nil {
		return nil, err
	}
	if p.Severity != nil {
		changes = append(changes, repo.Change{Column: "severity", Value: string(*p.Severity)})
	}
	if p.ItemType != nil {
		changes = append(changes, repo.Change{Column: "item_type", Value: string(*p.ItemType)})
	}
	if p.Status != nil {
		changes = append(changes, repo.Change{Column: "status", Value: string(*p.Status)})
	}
	if p.DateIdentified != nil {
		d, err := checkDate("date_identified", p.DateIdentified)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, invalid("date_identified", "must not be empty")
		}
		changes = append(changes, repo.Change{Column: "date_identified", Value: *d})
	}
	if p.TargetResolutionDate != nil {
		d, err := checkDate("target_resolution_date", p.TargetResolutionDate)
		if err != nil {
			return nil, err
		}
		changes = append(changes, repo.Change{Column: "target_resolution_date", Value: nullableID(d)})
	}
	for _, c := range []struct {
		column string
		value  *string
	}{
		{"description", p.Description},
		{"recommended_action", p.RecommendedAction},
		{"comments", p.Comments},
		{"resolution_notes", p.ResolutionNotes},
	} {
		if val, ok := clearable(c.value); ok {
			changes = append(changes, repo.Change{Column: c.column, Value: val})
		}
	}
	if p.Project != nil && strings.TrimSpace(*p.Project) == "" {
		return nil, invalid("project", "must not be empty")
	}
	if len(changes) == 0 && p.Project == nil && p.Owner == nil {
		return nil, invalid("", "nothing to update")
	}
	return changes, nil
}

// UpdateIssue applies a patch. Only the issue's author may edit it.
func (e Engine) UpdateIssue(ctx context.Context, v authz.Viewer, issueID string, patch IssuePatch) (viewmodel.Issue, error) {
	var out viewmodel.Issue
	err := e.run(ctx, v, cmdUpdateIssue, func(ctx context.Context) (string, error) {
		if err := required("issue_id", issueID); err != nil {
			return "", err
		}
		changes, err := patch.changes()
		if err != nil {
			return issueID, err
		}
		return issueID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			current, err := loadIssue(ctx, r, issueID)
			if err != nil {
				return err
			}
			if !authz.CanEditIssue(v, current) {
				return authz.ForbiddenError{Action: "edit this issue"}
			}
			if patch.Project != nil {
				projectID, err := resolveProject(ctx, r, *patch.Project)
				if err != nil {
					return err
				}
				changes = append(changes, repo.Change{Column: "project_id", Value: projectID})
			}
			if patch.Owner != nil {
				owner, err := resolveProfile(ctx, r, *patch.Owner)
				if err != nil {
					return err
				}
				changes = append(changes, repo.Change{Column: "owner_id", Value: nullableID(owner)})
			}
			changes = append(changes, repo.Change{Column: "updated_at", Value: e.timestamp()})
			if err := r.UpdateIssue(ctx, issueID, changes); err != nil {
				return fmt.Errorf("update issue: %w", err)
			}
			if err := e.events().Append(ctx, tx, "issue.updated", current.Project.ID, "issue", issueID, v.ProfileID, nil); err != nil {
				return err
			}
			out, err = loadIssue(ctx, r, issueID)
			return err
		})
	})
	if err != nil {
		return viewmodel.Issue{}, err
	}
	return e.shownIssue(ctx, v, out), nil
}

// DeleteIssue is gated by the store-side deletion policy.
func (e Engine) DeleteIssue(ctx context.Context, v authz.Viewer, issueID string) error {
	return e.run(ctx, v, cmdDeleteIssue, func(ctx context.Context) (string, error) {
		if err := required("issue_id", issueID); err != nil {
			return "", err
		}
		ok, err := e.Authz.CanDeleteIssue(ctx, v, issueID)
		if err != nil {
			return issueID, err
		}
		if !ok {
			return issueID, authz.ForbiddenError{Action: "delete this issue"}
		}
		return issueID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			row, err := r.GetIssue(ctx, issueID)
			if err != nil {
				return wrapNotFound(err, "issue", issueID)
			}
			if err := r.DeleteIssue(ctx, issueID); err != nil {
				return wrapNotFound(err, "issue", issueID)
			}
			return e.events().Append(ctx, tx, "issue.deleted", row.ProjectID, "issue", issueID, v.ProfileID, events.EventPayload{"title": row.Title})
		})
	})
}

func (e Engine) GetIssue(ctx context.Context, v authz.Viewer, issueID string) (viewmodel.Issue, error) {
	var out viewmodel.Issue
	err := e.read(ctx, "issue.get", func(ctx context.Context) error {
		issue, err := loadIssue(ctx, e.Repo, issueID)
		if err != nil {
			return err
		}
		out, err = e.maskIssue(ctx, v, issue)
		return err
	})
	return out, err
}

func (e Engine) ListIssues(ctx context.Context, v authz.Viewer, f repo.IssueFilters) ([]viewmodel.Issue, error) {
	var out []viewmodel.Issue
	err := e.read(ctx, "issue.list", func(ctx context.Context) error {
		rows, err := e.Repo.ListIssues(ctx, f)
		if err != nil {
			return err
		}
		out = make([]viewmodel.Issue, 0, len(rows))
		for _, row := range rows {
			i, err := viewmodel.ConvertIssue(row)
			if err != nil {
				return err
			}
			out = append(out, i)
		}
		out, err = e.maskIssues(ctx, v, out)
		return err
	})
	return out, err
}

// GroupedIssues lists issues and buckets them by key.
func (e Engine) GroupedIssues(ctx context.Context, v authz.Viewer, f repo.IssueFilters, key derive.GroupKey) ([]derive.IssueGroup, error) {
	issues, err := e.ListIssues(ctx, v, f)
	if err != nil {
		return nil, err
	}
	return derive.GroupIssues(issues, key), nil
}
