package domain

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOnHold     TaskStatus = "on-hold"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
)

var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskCompleted, TaskOnHold, TaskBlocked, TaskCancelled}

func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities is ordered most urgent first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

type ProjectStatus string

const (
	ProjectPlanned    ProjectStatus = "planned"
	ProjectStarted    ProjectStatus = "started"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanned, ProjectStarted, ProjectInProgress, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities is the fixed display order.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	for _, v := range Severities {
		if v == s {
			return true
		}
	}
	return false
}

type IssueType string

const (
	IssueTypeIssue      IssueType = "issue"
	IssueTypeBug        IssueType = "bug"
	IssueTypeDependency IssueType = "dependency"
	IssueTypeBlocker    IssueType = "blocker"
	IssueTypeRisk       IssueType = "risk"
	IssueTypeOther      IssueType = "other"
)

func (t IssueType) Valid() bool {
	switch t {
	case IssueTypeIssue, IssueTypeBug, IssueTypeDependency, IssueTypeBlocker, IssueTypeRisk, IssueTypeOther:
		return true
	}
	return false
}

type IssueStatus string

const (
	IssueOpen               IssueStatus = "open"
	IssueUnderInvestigation IssueStatus = "under_investigation"
	IssueBeingWorked        IssueStatus = "being_worked"
	IssueClosed             IssueStatus = "closed"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueUnderInvestigation, IssueBeingWorked, IssueClosed:
		return true
	}
	return false
}

type Role string

const (
	RoleAdministrator  Role = "administrator"
	RoleProjectManager Role = "project_manager"
	RoleDevLead        Role = "dev_lead"
	RoleDeveloper      Role = "developer"
	RoleProductOwner   Role = "product_owner"
	RoleTeamMember     Role = "team_member"
)

// Roles is ordered by display priority, highest first.
var Roles = []Role{RoleAdministrator, RoleProjectManager, RoleDevLead, RoleDeveloper, RoleProductOwner, RoleTeamMember}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// AccessAdministrator is the profile access level that grants administration.
const AccessAdministrator = "administrator"

// ProfileRef is a joined profile reference.
type ProfileRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ProjectRef is a joined project reference.
type ProjectRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color,omitempty"`
}

type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          TaskStatus `json:"status"`
	Priority        Priority   `json:"priority"`
	AssigneeID      *string    `json:"assignee_id,omitempty"`
	ProjectID       *string    `json:"project_id,omitempty"`
	StartDate       *string    `json:"start_date,omitempty" format:"date"`
	DueDate         *string    `json:"due_date,omitempty" format:"date"`
	CompletionDate  *string    `json:"completion_date,omitempty" format:"date"`
	PercentComplete int        `json:"percent_complete"`
	EstimatedHours  float64    `json:"estimated_hours"`
	ActualHours     float64    `json:"actual_hours"`
	ReferenceURL    *string    `json:"reference_url,omitempty"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
	UpdatedAt       string     `json:"updated_at" format:"date-time"`
}

// TaskRow is a task with its joined assignee and project.
type TaskRow struct {
	Task
	Assignee *ProfileRef `json:"assignee,omitempty"`
	Project  *ProjectRef `json:"project,omitempty"`
}

// TaskUpdate is an append-only log entry on a task.
type TaskUpdate struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	Seq       int     `json:"seq"`
	Body      string  `json:"body"`
	AuthorID  *string `json:"author_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// RelatedTask is a one-directional link from TaskID to RelatedTaskID.
type RelatedTask struct {
	TaskID        string `json:"task_id"`
	RelatedTaskID string `json:"related_task_id"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Description          *string       `json:"description,omitempty"`
	Status               ProjectStatus `json:"status"`
	ManagerID            *string       `json:"manager_id,omitempty"`
	StartDate            *string       `json:"start_date,omitempty" format:"date"`
	TargetDate           *string       `json:"target_date,omitempty" format:"date"`
	ActualCompletionDate *string       `json:"actual_completion_date,omitempty" format:"date"`
	Color                *string       `json:"color,omitempty"`
	CreatedAt            string        `json:"created_at" format:"date-time"`
	UpdatedAt            string        `json:"updated_at" format:"date-time"`
}

type Milestone struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	DueDate   *string `json:"due_date,omitempty" format:"date"`
	Completed bool    `json:"completed"`
	Position  int     `json:"position"`
}

// ProjectRow is a project with its joined manager and milestones.
type ProjectRow struct {
	Project
	Manager    *ProfileRef `json:"manager,omitempty"`
	Milestones []Milestone `json:"milestones"`
}

type Issue struct {
	ID                   string      `json:"id"`
	ProjectID            string      `json:"project_id"`
	AuthorID             string      `json:"author_id"`
	Title                string      `json:"title"`
	Description          *string     `json:"description,omitempty"`
	Severity             Severity    `json:"severity"`
	ItemType             IssueType   `json:"item_type"`
	Status               IssueStatus `json:"status"`
	DateIdentified       string      `json:"date_identified" format:"date"`
	OwnerID              *string     `json:"owner_id,omitempty"`
	TargetResolutionDate *string     `json:"target_resolution_date,omitempty" format:"date"`
	RecommendedAction    *string     `json:"recommended_action,omitempty"`
	Comments             *string     `json:"comments,omitempty"`
	ResolutionNotes      *string     `json:"resolution_notes,omitempty"`
	CreatedAt            string      `json:"created_at" format:"date-time"`
	UpdatedAt            string      `json:"updated_at" format:"date-time"`
}

// IssueRow is an issue with its joined project, author and owner.
type IssueRow struct {
	Issue
	Project *ProjectRef `json:"project,omitempty"`
	Author  *ProfileRef `json:"author,omitempty"`
	Owner   *ProfileRef `json:"owner,omitempty"`
}

type Profile struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	AccessLevel string  `json:"access_level"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type RoleAssignment struct {
	ProfileID string `json:"profile_id"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID          string `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	ProjectID   string `json:"project_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	PayloadJSON string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
