package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/viewmodel"
)

type projectPath struct {
	ID string `path:"id"`
}

type milestonePath struct {
	ID          string `path:"id"`
	MilestoneID string `path:"mid"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[ProjectList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []viewmodel.Project{}
		}
		return respond(ProjectList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProjectCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Manager:     input.Body.Manager,
			StartDate:   input.Body.StartDate,
			TargetDate:  input.Body.TargetDate,
			Color:       input.Body.Color,
		}
		if input.Body.Status != nil {
			opts.Status = domain.ProjectStatus(*input.Body.Status)
		}
		p, err := e.CreateProject(ctx, v, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, v, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateProjectRequest
	}) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		patch := engine.ProjectPatch{
			Name:        b.Name,
			Description: b.Description,
			Manager:     b.Manager,
			StartDate:   b.StartDate,
			TargetDate:  b.TargetDate,
			Color:       b.Color,
		}
		if b.Status != nil {
			s := domain.ProjectStatus(*b.Status)
			patch.Status = &s
		}
		p, err := e.UpdateProject(ctx, v, input.ID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, v, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/milestones",
		Summary:       "Add milestone",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AddMilestoneRequest
	}) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddMilestone(ctx, v, input.ID, input.Body.Title, input.Body.DueDate)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-milestone",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/milestones/{mid}/toggle",
		Summary:     "Toggle milestone completion",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *milestonePath) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ToggleMilestone(ctx, v, input.ID, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-milestone",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}/milestones/{mid}",
		Summary:     "Remove milestone",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *milestonePath) (*bodyOutput[viewmodel.Project], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RemoveMilestone(ctx, v, input.ID, input.MilestoneID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})
}
