package server

import (
	"encoding/json"

	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/viewmodel"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Manager     string  `json:"manager,omitempty" doc:"Profile id, email or name. Defaults to the caller."`
	StartDate   string  `json:"start_date,omitempty" example:"2024-03-01"`
	TargetDate  string  `json:"target_date,omitempty" example:"2024-06-30"`
	Color       string  `json:"color,omitempty" example:"#3b82f6"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Manager     *string `json:"manager,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	TargetDate  *string `json:"target_date,omitempty"`
	Color       *string `json:"color,omitempty"`
}

type AddMilestoneRequest struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty" example:"2024-04-15"`
}

type CreateTaskRequest struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Project         string  `json:"project,omitempty" doc:"Project id or name. Defaults to the configured project."`
	Status          string  `json:"status,omitempty"`
	Priority        string  `json:"priority,omitempty"`
	Assignee        string  `json:"assignee,omitempty" doc:"Profile id, email or name."`
	StartDate       string  `json:"start_date,omitempty"`
	DueDate         string  `json:"due_date,omitempty"`
	PercentComplete int     `json:"percent_complete,omitempty"`
	EstimatedHours  float64 `json:"estimated_hours,omitempty"`
	ActualHours     float64 `json:"actual_hours,omitempty"`
	ReferenceURL    string  `json:"reference_url,omitempty"`
}

type UpdateTaskRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Status          *string  `json:"status,omitempty"`
	Priority        *string  `json:"priority,omitempty"`
	Assignee        *string  `json:"assignee,omitempty" doc:"Empty string unassigns."`
	Project         *string  `json:"project,omitempty"`
	StartDate       *string  `json:"start_date,omitempty"`
	DueDate         *string  `json:"due_date,omitempty"`
	PercentComplete *int     `json:"percent_complete,omitempty"`
	EstimatedHours  *float64 `json:"estimated_hours,omitempty"`
	ActualHours     *float64 `json:"actual_hours,omitempty"`
	ReferenceURL    *string  `json:"reference_url,omitempty"`
}

func (r UpdateTaskRequest) patch() engine.TaskPatch {
	p := engine.TaskPatch{
		Title:           r.Title,
		Description:     r.Description,
		Assignee:        r.Assignee,
		Project:         r.Project,
		StartDate:       r.StartDate,
		DueDate:         r.DueDate,
		PercentComplete: r.PercentComplete,
		EstimatedHours:  r.EstimatedHours,
		ActualHours:     r.ActualHours,
		ReferenceURL:    r.ReferenceURL,
	}
	if r.Status != nil {
		s := domain.TaskStatus(*r.Status)
		p.Status = &s
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	return p
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type AppendUpdateRequest struct {
	Text string `json:"text"`
}

type CancelTaskRequest struct {
	Justification string `json:"justification"`
}

type LinkTaskRequest struct {
	RelatedID string `json:"related_id"`
}

type CreateIssueRequest struct {
	Project              string `json:"project,omitempty"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	Severity             string `json:"severity,omitempty"`
	ItemType             string `json:"item_type,omitempty"`
	Status               string `json:"status,omitempty"`
	DateIdentified       string `json:"date_identified,omitempty"`
	Owner                string `json:"owner,omitempty"`
	TargetResolutionDate string `json:"target_resolution_date,omitempty"`
	RecommendedAction    string `json:"recommended_action,omitempty"`
	Comments             string `json:"comments,omitempty"`
}

type UpdateIssueRequest struct {
	Project              *string `json:"project,omitempty"`
	Title                *string `json:"title,omitempty"`
	Description          *string `json:"description,omitempty"`
	Severity             *string `json:"severity,omitempty"`
	ItemType             *string `json:"item_type,omitempty"`
	Status               *string `json:"status,omitempty"`
	DateIdentified       *string `json:"date_identified,omitempty"`
	Owner                *string `json:"owner,omitempty"`
	TargetResolutionDate *string `json:"target_resolution_date,omitempty"`
	RecommendedAction    *string `json:"recommended_action,omitempty"`
	Comments             *string `json:"comments,omitempty"`
	ResolutionNotes      *string `json:"resolution_notes,omitempty"`
}

func (r UpdateIssueRequest) patch() engine.IssuePatch {
	p := engine.IssuePatch{
		Project:              r.Project,
		Title:                r.Title,
		Description:          r.Description,
		DateIdentified:       r.DateIdentified,
		Owner:                r.Owner,
		TargetResolutionDate: r.TargetResolutionDate,
		RecommendedAction:    r.RecommendedAction,
		Comments:             r.Comments,
		ResolutionNotes:      r.ResolutionNotes,
	}
	if r.Severity != nil {
		s := domain.Severity(*r.Severity)
		p.Severity = &s
	}
	if r.ItemType != nil {
		t := domain.IssueType(*r.ItemType)
		p.ItemType = &t
	}
	if r.Status != nil {
		s := domain.IssueStatus(*r.Status)
		p.Status = &s
	}
	return p
}

type RegisterMemberRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty" doc:"Defaults to the email on the caller's token."`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"administrator,project_manager,dev_lead,developer,product_owner,team_member"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// Response payloads

type MeResponse struct {
	AccountID     string            `json:"account_id"`
	Registered    bool              `json:"registered"`
	Member        *viewmodel.Member `json:"member,omitempty"`
	Administrator bool              `json:"administrator"`
}

type ProjectList struct {
	Items []viewmodel.Project `json:"items"`
}

type TaskList struct {
	Items []viewmodel.Task `json:"items"`
}

type IssueList struct {
	Items  []viewmodel.Issue  `json:"items"`
	Groups []derive.IssueGroup `json:"groups,omitempty"`
}

type MemberList struct {
	Items []viewmodel.Member `json:"items"`
}

type BoardResponse struct {
	Columns []derive.BoardColumn `json:"columns"`
}

type OverdueResponse struct {
	Groups []derive.OverdueGroup `json:"groups"`
}

type PasswordResetResponse struct {
	Link string `json:"link,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Secret is only returned when the key is created.
	Secret string `json:"secret,omitempty"`
}

type APIKeyList struct {
	Items []APIKeyResponse `json:"items"`
}

type EventResponse struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type EventList struct {
	Items []EventResponse `json:"items"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ProfileID: k.ProfileID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.PayloadJSON != "" {
		_ = json.Unmarshal([]byte(evt.PayloadJSON), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

type bodyOutput[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *bodyOutput[T] {
	return &bodyOutput[T]{Body: v}
}
