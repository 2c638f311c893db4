package engine

import (
	"context"

	"teaminova/internal/authz"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	var out []domain.Event
	err := e.read(ctx, "event.list", func(ctx context.Context) error {
		var err error
		out, err = e.Repo.LatestEvents(ctx, f)
		return err
	})
	return out, err
}

// Board loads the filtered task set and lays it out in board columns.
func (e Engine) Board(ctx context.Context, v authz.Viewer, f derive.TaskFilter) ([]derive.BoardColumn, error) {
	tasks, err := e.ListTasks(ctx, v, f)
	if err != nil {
		return nil, err
	}
	return derive.Board(tasks), nil
}

func (e Engine) Overdue(ctx context.Context, v authz.Viewer, f derive.TaskFilter) ([]derive.OverdueGroup, error) {
	tasks, err := e.ListTasks(ctx, v, f)
	if err != nil {
		return nil, err
	}
	return derive.OverdueReport(tasks, e.now()), nil
}

type Stats struct {
	Tasks    derive.TaskCounts   `json:"tasks"`
	Workload []derive.MemberLoad `json:"workload"`
}

// Stats aggregates task counts and per-member workload for the viewer.
func (e Engine) Stats(ctx context.Context, v authz.Viewer, members []viewmodel.Member, f derive.TaskFilter) (Stats, error) {
	tasks, err := e.ListTasks(ctx, v, f)
	if err != nil {
		return Stats{}, err
	}
	now := e.now()
	return Stats{
		Tasks:    derive.CountTasks(tasks, now),
		Workload: derive.Workload(tasks, members, now),
	}, nil
}
