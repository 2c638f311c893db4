package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"teaminova/internal/db"
	"teaminova/internal/domain"
)

// Repo issues typed reads and writes against the record store. DB may be a pool or a transaction.
type Repo struct {
	DB db.DBTX
}

var ErrNotFound = errors.New("not found")

type scanner interface {
	Scan(dest ...any) error
}

// Change assigns Value to Column in a partial update.
type Change struct {
	Column string
	Value  any
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if strings.TrimSpace(*v) == "" {
		return nil
	}
	return *v
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// applyChanges runs UPDATE table SET ... WHERE id=? restricted to allowed columns.
func (r Repo) applyChanges(ctx context.Context, table, id string, allowed map[string]bool, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	var (
		fields []string
		args   []any
	)
	for _, c := range changes {
		if !allowed[c.Column] {
			return fmt.Errorf("%s.%s is not updatable", table, c.Column)
		}
		fields = append(fields, c.Column+"=?")
		args = append(args, c.Value)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) deleteByID(ctx context.Context, table, id string) error {
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskSelect = `SELECT t.id,t.title,t.description,t.status,t.priority,t.assignee_id,t.project_id,t.start_date,t.due_date,t.completion_date,
t.percent_complete,t.estimated_hours,t.actual_hours,t.reference_url,t.created_at,t.updated_at,
a.id,a.name,a.email,p.id,p.name,p.color
FROM tasks t
LEFT JOIN profiles a ON a.id=t.assignee_id
LEFT JOIN projects p ON p.id=t.project_id`

func scanTaskRow(s scanner) (domain.TaskRow, error) {
	var row domain.TaskRow
	var assigneeID, projectID, start, due, completion, refURL sql.NullString
	var aID, aName, aEmail, pID, pName, pColor sql.NullString
	err := s.Scan(&row.ID, &row.Title, &row.Description, &row.Status, &row.Priority, &assigneeID, &projectID, &start, &due, &completion,
		&row.PercentComplete, &row.EstimatedHours, &row.ActualHours, &refURL, &row.CreatedAt, &row.UpdatedAt,
		&aID, &aName, &aEmail, &pID, &pName, &pColor)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.AssigneeID = ptr(assigneeID)
	row.ProjectID = ptr(projectID)
	row.StartDate = ptr(start)
	row.DueDate = ptr(due)
	row.CompletionDate = ptr(completion)
	row.ReferenceURL = ptr(refURL)
	if aID.Valid {
		row.Assignee = &domain.ProfileRef{ID: aID.String, Name: aName.String, Email: aEmail.String}
	}
	if pID.Valid {
		row.Project = &domain.ProjectRef{ID: pID.String, Name: pName.String, Color: ptr(pColor)}
	}
	return row, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,title,description,status,priority,assignee_id,project_id,start_date,due_date,completion_date,percent_complete,estimated_hours,actual_hours,reference_url,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), nullableStringPtr(t.AssigneeID), nullableStringPtr(t.ProjectID),
		nullableStringPtr(t.StartDate), nullableStringPtr(t.DueDate), nullableStringPtr(t.CompletionDate),
		t.PercentComplete, t.EstimatedHours, t.ActualHours, nullableStringPtr(t.ReferenceURL), t.CreatedAt, t.UpdatedAt)
	return err
}

var taskColumns = map[string]bool{
	"title": true, "description": true, "status": true, "priority": true, "assignee_id": true, "project_id": true,
	"start_date": true, "due_date": true, "completion_date": true, "percent_complete": true,
	"estimated_hours": true, "actual_hours": true, "reference_url": true, "updated_at": true,
}

// UpdateTask writes only the given columns.
func (r Repo) UpdateTask(ctx context.Context, id string, changes []Change) error {
	return r.applyChanges(ctx, "tasks", id, taskColumns, changes)
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "tasks", id)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.TaskRow, error) {
	return scanTaskRow(r.DB.QueryRowContext(ctx, taskSelect+` WHERE t.id=?`, id))
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	AssigneeID      string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.TaskRow, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "t.assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Search != "" {
		clauses = append(clauses, "(LOWER(t.title) LIKE ? OR LOWER(t.description) LIKE ?)")
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(t.created_at < ? OR (t.created_at = ? AND t.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	query := taskSelect + where + ` ORDER BY t.created_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRow
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksInProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}
