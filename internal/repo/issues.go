package repo

import (
	"context"
	"database/sql"
	"strings"

	"teaminova/internal/domain"
)

const issueSelect = `SELECT i.id,i.project_id,i.author_id,i.title,i.description,i.severity,i.item_type,i.status,i.date_identified,i.owner_id,
i.target_resolution_date,i.recommended_action,i.comments,i.resolution_notes,i.created_at,i.updated_at,
p.id,p.name,p.color,a.id,a.name,a.email,o.id,o.name,o.email
FROM issues i
LEFT JOIN projects p ON p.id=i.project_id
LEFT JOIN profiles a ON a.id=i.author_id
LEFT JOIN profiles o ON o.id=i.owner_id`

func scanIssueRow(s scanner) (domain.IssueRow, error) {
	var row domain.IssueRow
	var desc, owner, target, action, comments, notes sql.NullString
	var pID, pName, pColor, aID, aName, aEmail, oID, oName, oEmail sql.NullString
	err := s.Scan(&row.ID, &row.ProjectID, &row.AuthorID, &row.Title, &desc, &row.Severity, &row.ItemType, &row.Status, &row.DateIdentified, &owner,
		&target, &action, &comments, &notes, &row.CreatedAt, &row.UpdatedAt,
		&pID, &pName, &pColor, &aID, &aName, &aEmail, &oID, &oName, &oEmail)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.Description = ptr(desc)
	row.OwnerID = ptr(owner)
	row.TargetResolutionDate = ptr(target)
	row.RecommendedAction = ptr(action)
	row.Comments = ptr(comments)
	row.ResolutionNotes = ptr(notes)
	if pID.Valid {
		row.Project = &domain.ProjectRef{ID: pID.String, Name: pName.String, Color: ptr(pColor)}
	}
	if aID.Valid {
		row.Author = &domain.ProfileRef{ID: aID.String, Name: aName.String, Email: aEmail.String}
	}
	if oID.Valid {
		row.Owner = &domain.ProfileRef{ID: oID.String, Name: oName.String, Email: oEmail.String}
	}
	return row, nil
}

func (r Repo) InsertIssue(ctx context.Context, i domain.Issue) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO issues(id,project_id,author_id,title,description,severity,item_type,status,date_identified,owner_id,target_resolution_date,recommended_action,comments,resolution_notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		i.ID, i.ProjectID, i.AuthorID, i.Title, nullableStringPtr(i.Description), string(i.Severity), string(i.ItemType), string(i.Status), i.DateIdentified,
		nullableStringPtr(i.OwnerID), nullableStringPtr(i.TargetResolutionDate), nullableStringPtr(i.RecommendedAction),
		nullableStringPtr(i.Comments), nullableStringPtr(i.ResolutionNotes), i.CreatedAt, i.UpdatedAt)
	return err
}

// issueColumns omits author_id; the author is fixed at creation.
var issueColumns = map[string]bool{
	"project_id": true, "title": true, "description": true, "severity": true, "item_type": true, "status": true,
	"date_identified": true, "owner_id": true, "target_resolution_date": true, "recommended_action": true,
	"comments": true, "resolution_notes": true, "updated_at": true,
}

func (r Repo) UpdateIssue(ctx context.Context, id string, changes []Change) error {
	return r.applyChanges(ctx, "issues", id, issueColumns, changes)
}

func (r Repo) DeleteIssue(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "issues", id)
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.IssueRow, error) {
	return scanIssueRow(r.DB.QueryRowContext(ctx, issueSelect+` WHERE i.id=?`, id))
}

type IssueFilters struct {
	ProjectID string
	Status    string
	Severity  string
	OwnerID   string
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.IssueRow, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "i.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "i.status=?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "i.severity=?")
		args = append(args, f.Severity)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "i.owner_id=?")
		args = append(args, f.OwnerID)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, issueSelect+where+` ORDER BY i.created_at DESC, i.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IssueRow
	for rows.Next() {
		i, err := scanIssueRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) CountIssuesByAuthor(ctx context.Context, profileID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM issues WHERE author_id=?`, profileID).Scan(&n)
	return n, err
}
