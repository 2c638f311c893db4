package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/repo"
	"teaminova/internal/viewmodel"
)

type issuePath struct {
	ID string `path:"id"`
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues, optionally grouped",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
		Severity  string `query:"severity"`
		OwnerID   string `query:"owner_id"`
		Group     string `query:"group" doc:"project, severity, date, owner or none"`
	}) (*bodyOutput[IssueList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := derive.ParseGroupKey(input.Group)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "group"})
		}
		f := repo.IssueFilters{ProjectID: input.ProjectID, Status: input.Status, Severity: input.Severity, OwnerID: input.OwnerID}
		items, err := e.ListIssues(ctx, v, f)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []viewmodel.Issue{}
		}
		resp := IssueList{Items: items}
		if key != derive.GroupByNone {
			resp.Groups = derive.GroupIssues(items, key)
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Log issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateIssueRequest
	}) (*bodyOutput[viewmodel.Issue], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		issue, err := e.CreateIssue(ctx, v, engine.IssueCreateOptions{
			Project:              b.Project,
			Title:                b.Title,
			Description:          b.Description,
			Severity:             domain.Severity(b.Severity),
			ItemType:             domain.IssueType(b.ItemType),
			Status:               domain.IssueStatus(b.Status),
			DateIdentified:       b.DateIdentified,
			Owner:                b.Owner,
			TargetResolutionDate: b.TargetResolutionDate,
			RecommendedAction:    b.RecommendedAction,
			Comments:             b.Comments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issue), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*bodyOutput[viewmodel.Issue], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.GetIssue(ctx, v, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issue), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/issues/{id}",
		Summary:     "Update issue",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateIssueRequest
	}) (*bodyOutput[viewmodel.Issue], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.UpdateIssue(ctx, v, input.ID, input.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return respond(issue), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-issue",
		Method:        http.MethodDelete,
		Path:          "/issues/{id}",
		Summary:       "Delete issue",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*struct{}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIssue(ctx, v, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
