package repo

import (
	"context"
	"database/sql"
	"strings"

	"teaminova/internal/domain"
)

const projectSelect = `SELECT p.id,p.name,p.description,p.status,p.manager_id,p.start_date,p.target_date,p.actual_completion_date,p.color,p.created_at,p.updated_at,
m.id,m.name,m.email
FROM projects p
LEFT JOIN profiles m ON m.id=p.manager_id`

func scanProjectRow(s scanner) (domain.ProjectRow, error) {
	var row domain.ProjectRow
	var desc, manager, start, target, actual, color sql.NullString
	var mID, mName, mEmail sql.NullString
	err := s.Scan(&row.ID, &row.Name, &desc, &row.Status, &manager, &start, &target, &actual, &color, &row.CreatedAt, &row.UpdatedAt,
		&mID, &mName, &mEmail)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.Description = ptr(desc)
	row.ManagerID = ptr(manager)
	row.StartDate = ptr(start)
	row.TargetDate = ptr(target)
	row.ActualCompletionDate = ptr(actual)
	row.Color = ptr(color)
	if mID.Valid {
		row.Manager = &domain.ProfileRef{ID: mID.String, Name: mName.String, Email: mEmail.String}
	}
	return row, nil
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,manager_id,start_date,target_date,actual_completion_date,color,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullableStringPtr(p.Description), string(p.Status), nullableStringPtr(p.ManagerID), nullableStringPtr(p.StartDate),
		nullableStringPtr(p.TargetDate), nullableStringPtr(p.ActualCompletionDate), nullableStringPtr(p.Color), p.CreatedAt, p.UpdatedAt)
	return err
}

var projectColumns = map[string]bool{
	"name": true, "description": true, "status": true, "manager_id": true, "start_date": true,
	"target_date": true, "actual_completion_date": true, "color": true, "updated_at": true,
}

func (r Repo) UpdateProject(ctx context.Context, id string, changes []Change) error {
	return r.applyChanges(ctx, "projects", id, projectColumns, changes)
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "projects", id)
}

// GetProject returns the project with its manager and ordered milestones.
func (r Repo) GetProject(ctx context.Context, id string) (domain.ProjectRow, error) {
	row, err := scanProjectRow(r.DB.QueryRowContext(ctx, projectSelect+` WHERE p.id=?`, id))
	if err != nil {
		return row, err
	}
	ms, err := r.ListMilestones(ctx, []string{id})
	if err != nil {
		return row, err
	}
	row.Milestones = ms[id]
	return row, nil
}

// FindProjectByName matches the name case-insensitively and exactly.
func (r Repo) FindProjectByName(ctx context.Context, name string) (domain.ProjectRow, error) {
	return scanProjectRow(r.DB.QueryRowContext(ctx, projectSelect+` WHERE LOWER(p.name)=LOWER(?) ORDER BY p.created_at LIMIT 1`, strings.TrimSpace(name)))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.ProjectRow, error) {
	rows, err := r.DB.QueryContext(ctx, projectSelect+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, err
	}
	var res []domain.ProjectRow
	var ids []string
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	ms, err := r.ListMilestones(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Milestones = ms[res[i].ID]
	}
	return res, nil
}

func (r Repo) ListMilestones(ctx context.Context, projectIDs []string) (map[string][]domain.Milestone, error) {
	res := map[string][]domain.Milestone{}
	if len(projectIDs) == 0 {
		return res, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,title,due_date,completed,position FROM milestones WHERE project_id IN (`+placeholders(len(projectIDs))+`) ORDER BY project_id, position`, stringArgs(projectIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.Milestone
		var due sql.NullString
		var completed int
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &due, &completed, &m.Position); err != nil {
			return nil, err
		}
		m.DueDate = ptr(due)
		m.Completed = completed != 0
		res[m.ProjectID] = append(res[m.ProjectID], m)
	}
	return res, rows.Err()
}

// InsertMilestone appends the milestone after the project's last one.
func (r Repo) InsertMilestone(ctx context.Context, m domain.Milestone) error {
	completed := 0
	if m.Completed {
		completed = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO milestones(id,project_id,title,due_date,completed,position)
VALUES (?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM milestones WHERE project_id=?))`,
		m.ID, m.ProjectID, m.Title, nullableStringPtr(m.DueDate), completed, m.ProjectID)
	return err
}

func (r Repo) SetMilestoneCompleted(ctx context.Context, projectID, id string, completed bool) error {
	v := 0
	if completed {
		v = 1
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE milestones SET completed=? WHERE id=? AND project_id=?`, v, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMilestone(ctx context.Context, projectID, id string) (domain.Milestone, error) {
	var m domain.Milestone
	var due sql.NullString
	var completed int
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,title,due_date,completed,position FROM milestones WHERE id=? AND project_id=?`, id, projectID).
		Scan(&m.ID, &m.ProjectID, &m.Title, &due, &completed, &m.Position)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.DueDate = ptr(due)
	m.Completed = completed != 0
	return m, err
}

func (r Repo) DeleteMilestone(ctx context.Context, projectID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM milestones WHERE id=? AND project_id=?`, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
