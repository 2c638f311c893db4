package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/viewmodel"
)

type memberPath struct {
	ID string `path:"id"`
}

// Member administration keeps raw failure messages; the callers are administrators.
func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "Team directory",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[MemberList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMembers(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []viewmodel.Member{}
		}
		return respond(MemberList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{id}",
		Summary:     "Get member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *memberPath) (*bodyOutput[viewmodel.Member], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.GetMember(ctx, v, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Register the caller's profile",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterMemberRequest
	}) (*bodyOutput[viewmodel.Member], error) {
		v, authErr := viewerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if v.ProfileID != "" {
			return nil, newAPIError(http.StatusConflict, "already_registered", "this account already has a profile", nil)
		}
		email := input.Body.Email
		if email == "" {
			email = v.Email
		}
		m, err := e.RegisterMember(ctx, v, engine.RegisterOptions{
			AccountID: v.AccountID,
			Name:      input.Body.Name,
			Email:     email,
			AvatarURL: input.Body.AvatarURL,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-member-role",
		Method:      http.MethodPut,
		Path:        "/members/{id}/role",
		Summary:     "Replace a member's role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SetRoleRequest
	}) (*bodyOutput[viewmodel.Member], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetRole(ctx, v, input.ID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleAdminError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-password-reset",
		Method:      http.MethodPost,
		Path:        "/members/{id}/password-reset",
		Summary:     "Send a password reset link",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *memberPath) (*bodyOutput[PasswordResetResponse], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		link, err := e.SendPasswordReset(ctx, v, input.ID)
		if err != nil {
			return nil, handleAdminError(err)
		}
		return respond(PasswordResetResponse{Link: link}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-member",
		Method:        http.MethodDelete,
		Path:          "/members/{id}",
		Summary:       "Delete member",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *memberPath) (*struct{}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMember(ctx, v, input.ID); err != nil {
			return nil, handleAdminError(err)
		}
		return nil, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[APIKeyList], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, v)
		if err != nil {
			return nil, handleError(err)
		}
		resp := APIKeyList{Items: []APIKeyResponse{}}
		for _, k := range keys {
			resp.Items = append(resp.Items, apiKeyResponse(k))
		}
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		Description:   "The secret is returned once and cannot be retrieved later.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*bodyOutput[APIKeyResponse], error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := e.CreateAPIKey(ctx, v, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Secret = secret
		return respond(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		v, authErr := requireMember(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, v, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
