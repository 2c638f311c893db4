package repo

import (
	"context"
	"database/sql"

	"teaminova/internal/domain"
)

// InsertTaskUpdate appends a log entry; Seq is assigned by the store.
func (r Repo) InsertTaskUpdate(ctx context.Context, u domain.TaskUpdate) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_updates(id,task_id,seq,body,author_id,created_at)
VALUES (?,?,(SELECT COALESCE(MAX(seq),0)+1 FROM task_updates WHERE task_id=?),?,?,?)`,
		u.ID, u.TaskID, u.TaskID, u.Body, nullableStringPtr(u.AuthorID), u.CreatedAt)
	return err
}

// ListTaskUpdates returns log entries keyed by task id, in insertion order.
func (r Repo) ListTaskUpdates(ctx context.Context, taskIDs []string) (map[string][]domain.TaskUpdate, error) {
	res := map[string][]domain.TaskUpdate{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,seq,body,author_id,created_at FROM task_updates WHERE task_id IN (`+placeholders(len(taskIDs))+`) ORDER BY task_id, seq`, stringArgs(taskIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u domain.TaskUpdate
		var author sql.NullString
		if err := rows.Scan(&u.ID, &u.TaskID, &u.Seq, &u.Body, &author, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.AuthorID = ptr(author)
		res[u.TaskID] = append(res[u.TaskID], u)
	}
	return res, rows.Err()
}

// AddRelatedTask stores a one-directional link; an existing link is left untouched.
func (r Repo) AddRelatedTask(ctx context.Context, link domain.RelatedTask) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO related_tasks(task_id,related_task_id,created_at) VALUES (?,?,?) ON CONFLICT(task_id,related_task_id) DO NOTHING`,
		link.TaskID, link.RelatedTaskID, link.CreatedAt)
	return err
}

func (r Repo) RemoveRelatedTask(ctx context.Context, taskID, relatedID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM related_tasks WHERE task_id=? AND related_task_id=?`, taskID, relatedID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRelatedTasks returns outgoing link targets keyed by source task id.
func (r Repo) ListRelatedTasks(ctx context.Context, taskIDs []string) (map[string][]string, error) {
	res := map[string][]string{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,related_task_id FROM related_tasks WHERE task_id IN (`+placeholders(len(taskIDs))+`) ORDER BY task_id, created_at, related_task_id`, stringArgs(taskIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		res[from] = append(res[from], to)
	}
	return res, rows.Err()
}
