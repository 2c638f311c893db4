package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/sheet"
	"teaminova/internal/viewmodel"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type taskPath struct {
	ID string `path:"id"`
}

// taskQuery is the shared filter for task list views.
type taskQuery struct {
	Status     string `query:"status"`
	Priority   string `query:"priority"`
	ProjectID  string `query:"project_id"`
	AssigneeID string `query:"assignee_id"`
	Overdue    bool   `query:"overdue"`
	Search     string `query:"q"`
}

func (q taskQuery) filter() derive.TaskFilter {
	return derive.TaskFilter{
		Status:      domain.TaskStatus(q.Status),
		Priority:    domain.Priority(q.Priority),
		ProjectID:   q.ProjectID,
		AssigneeID:  q.AssigneeID,
		OverdueOnly: q.Overdue,
		Search:      q.Search,
	}
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *taskQuery) (*bodyOutput[TaskList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, v, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []viewmodel.Task{}
		}
		return respond(TaskList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		t, err := e.CreateTask(ctx, v, engine.TaskCreateOptions{
			Title:           b.Title,
			Description:     b.Description,
			Project:         b.Project,
			Status:          domain.TaskStatus(b.Status),
			Priority:        domain.Priority(b.Priority),
			Assignee:        b.Assignee,
			StartDate:       b.StartDate,
			DueDate:         b.DueDate,
			PercentComplete: b.PercentComplete,
			EstimatedHours:  b.EstimatedHours,
			ActualHours:     b.ActualHours,
			ReferenceURL:    b.ReferenceURL,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, v, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateTaskRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, v, input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, v, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/status",
		Summary:     "Change task status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ChangeStatusRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ChangeStatus(ctx, v, input.ID, domain.TaskStatus(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-task-update",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/updates",
		Summary:       "Append progress note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AppendUpdateRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AppendUpdate(ctx, v, input.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/cancel",
		Summary:     "Cancel task with a justification",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CancelTaskRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CancelTask(ctx, v, input.ID, input.Body.Justification)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-related-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/related",
		Summary:     "List related tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*bodyOutput[TaskList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.RelatedTasks(ctx, v, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []viewmodel.Task{}
		}
		return respond(TaskList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/related",
		Summary:     "Add related task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body LinkTaskRequest
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.LinkTasks(ctx, v, input.ID, input.Body.RelatedID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/related/{rid}",
		Summary:     "Remove related task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		RelatedID string `path:"rid"`
	}) (*bodyOutput[viewmodel.Task], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnlinkTasks(ctx, v, input.ID, input.RelatedID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})
}

func registerTaskViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Tasks grouped into board columns",
	}, func(ctx context.Context, input *taskQuery) (*bodyOutput[BoardResponse], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cols, err := e.Board(ctx, v, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(BoardResponse{Columns: cols}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "overdue-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/overdue",
		Summary:     "Overdue tasks grouped by priority",
	}, func(ctx context.Context, input *taskQuery) (*bodyOutput[OverdueResponse], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		groups, err := e.Overdue(ctx, v, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		if groups == nil {
			groups = []derive.OverdueGroup{}
		}
		return respond(OverdueResponse{Groups: groups}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Task counts and team workload",
	}, func(ctx context.Context, input *taskQuery) (*bodyOutput[engine.Stats], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		members, err := e.ListMembers(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Stats(ctx, v, members, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(stats), nil
	})
}

func registerSpreadsheet(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:  "import-tasks",
		Method:       http.MethodPost,
		Path:         "/tasks/import",
		Summary:      "Import tasks from a spreadsheet",
		MaxBodyBytes: 10 << 20,
		Errors:       []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"`
	}) (*bodyOutput[engine.ImportSummary], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := sheet.Read(bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		summary, err := e.ImportTasks(ctx, v, rows)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(summary), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/export",
		Summary:     "Export tasks as a spreadsheet",
	}, func(ctx context.Context, input *taskQuery) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, v, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := sheet.Write(&buf, engine.ExportTasks(tasks)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        xlsxContentType,
			ContentDisposition: fmt.Sprintf(`attachment; filename="tasks-%s.xlsx"`, time.Now().Format(viewmodel.DateLayout)),
			Body:               buf.Bytes(),
		}, nil
	})
}
