// Package viewmodel converts joined store rows into flat view entities.
//
// Every optional value is either set or nil: SQL NULL, empty and whitespace-only
// strings all become nil, so display code has a single "not set" case.
package viewmodel

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"teaminova/internal/domain"
)

const DateLayout = "2006-01-02"

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ProjectRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

type Update struct {
	ID       string    `json:"id"`
	Seq      int       `json:"seq"`
	Text     string    `json:"text"`
	AuthorID *string   `json:"author_id"`
	At       time.Time `json:"at"`
}

type Task struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Status          domain.TaskStatus `json:"status"`
	Priority        domain.Priority   `json:"priority"`
	AssigneeID      *string           `json:"assignee_id"`
	Assignee        *Person           `json:"assignee"`
	Project         ProjectRef        `json:"project"`
	StartDate       *time.Time        `json:"start_date"`
	DueDate         *time.Time        `json:"due_date"`
	CompletionDate  *time.Time        `json:"completion_date"`
	PercentComplete int               `json:"percent_complete"`
	EstimatedHours  float64           `json:"estimated_hours"`
	ActualHours     float64           `json:"actual_hours"`
	ReferenceURL    *string           `json:"reference_url"`
	Updates         []Update          `json:"updates"`
	RelatedTaskIDs  []string          `json:"related_task_ids"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// AssigneeName returns the joined assignee's name or "".
func (t Task) AssigneeName() string {
	if t.Assignee == nil {
		return ""
	}
	return t.Assignee.Name
}

type Milestone struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	DueDate   *time.Time `json:"due_date"`
	Completed bool       `json:"completed"`
}

type Project struct {
	ID                   string               `json:"id"`
	Name                 string               `json:"name"`
	Description          *string              `json:"description"`
	Status               domain.ProjectStatus `json:"status"`
	ManagerID            *string              `json:"manager_id"`
	Manager              *Person              `json:"manager"`
	StartDate            *time.Time           `json:"start_date"`
	TargetDate           *time.Time           `json:"target_date"`
	ActualCompletionDate *time.Time           `json:"actual_completion_date"`
	Color                *string              `json:"color"`
	Milestones           []Milestone          `json:"milestones"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type Issue struct {
	ID                   string             `json:"id"`
	Project              ProjectRef         `json:"project"`
	Author               Person             `json:"author"`
	Owner                *Person            `json:"owner"`
	Title                string             `json:"title"`
	Description          *string            `json:"description"`
	Severity             domain.Severity    `json:"severity"`
	ItemType             domain.IssueType   `json:"item_type"`
	Status               domain.IssueStatus `json:"status"`
	DateIdentified       time.Time          `json:"date_identified"`
	TargetResolutionDate *time.Time         `json:"target_resolution_date"`
	RecommendedAction    *string            `json:"recommended_action"`
	Comments             *string            `json:"comments"`
	ResolutionNotes      *string            `json:"resolution_notes"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Member is a profile as shown in the team directory. Role is filled by role resolution.
type Member struct {
	ID           string        `json:"id"`
	AccountID    string        `json:"account_id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	EmailVisible bool          `json:"email_visible"`
	AccessLevel  string        `json:"access_level"`
	AvatarURL    *string       `json:"avatar_url"`
	Roles        []domain.Role `json:"roles"`
	Role         domain.Role   `json:"role"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ConvertTask builds a task view. The joined project is required.
func ConvertTask(row domain.TaskRow, updates []domain.TaskUpdate, related []string) (Task, error) {
	if row.Project == nil {
		return Task{}, domain.MissingReferenceError{Entity: "task", ID: row.ID, Reference: "project"}
	}
	t := Task{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description,
		Status:          row.Status,
		Priority:        row.Priority,
		AssigneeID:      Text(row.AssigneeID),
		Project:         projectRef(*row.Project),
		PercentComplete: row.PercentComplete,
		EstimatedHours:  row.EstimatedHours,
		ActualHours:     row.ActualHours,
		ReferenceURL:    Text(row.ReferenceURL),
		Updates:         []Update{},
		RelatedTaskIDs:  append([]string{}, related...),
	}
	if row.Assignee != nil {
		t.Assignee = &Person{ID: row.Assignee.ID, Name: row.Assignee.Name, Email: row.Assignee.Email}
	}
	var err error
	if t.StartDate, err = Date(row.StartDate); err != nil {
		return Task{}, fmt.Errorf("task %s start_date: %w", row.ID, err)
	}
	if t.DueDate, err = Date(row.DueDate); err != nil {
		return Task{}, fmt.Errorf("task %s due_date: %w", row.ID, err)
	}
	if t.CompletionDate, err = Date(row.CompletionDate); err != nil {
		return Task{}, fmt.Errorf("task %s completion_date: %w", row.ID, err)
	}
	if t.CreatedAt, err = Timestamp(row.CreatedAt); err != nil {
		return Task{}, fmt.Errorf("task %s created_at: %w", row.ID, err)
	}
	if t.UpdatedAt, err = Timestamp(row.UpdatedAt); err != nil {
		return Task{}, fmt.Errorf("task %s updated_at: %w", row.ID, err)
	}
	for _, u := range updates {
		at, err := Timestamp(u.CreatedAt)
		if err != nil {
			return Task{}, fmt.Errorf("task %s update %s: %w", row.ID, u.ID, err)
		}
		t.Updates = append(t.Updates, Update{ID: u.ID, Seq: u.Seq, Text: u.Body, AuthorID: Text(u.AuthorID), At: at})
	}
	sort.SliceStable(t.Updates, func(i, j int) bool {
		if !t.Updates[i].At.Equal(t.Updates[j].At) {
			return t.Updates[i].At.After(t.Updates[j].At)
		}
		return t.Updates[i].Seq > t.Updates[j].Seq
	})
	return t, nil
}

// ConvertProject builds a project view; Milestones is never nil.
func ConvertProject(row domain.ProjectRow) (Project, error) {
	p := Project{
		ID:          row.ID,
		Name:        row.Name,
		Description: Text(row.Description),
		Status:      row.Status,
		ManagerID:   Text(row.ManagerID),
		Color:       Text(row.Color),
		Milestones:  make([]Milestone, 0, len(row.Milestones)),
	}
	if row.Manager != nil {
		p.Manager = &Person{ID: row.Manager.ID, Name: row.Manager.Name, Email: row.Manager.Email}
	}
	var err error
	if p.StartDate, err = Date(row.StartDate); err != nil {
		return Project{}, fmt.Errorf("project %s start_date: %w", row.ID, err)
	}
	if p.TargetDate, err = Date(row.TargetDate); err != nil {
		return Project{}, fmt.Errorf("project %s target_date: %w", row.ID, err)
	}
	if p.ActualCompletionDate, err = Date(row.ActualCompletionDate); err != nil {
		return Project{}, fmt.Errorf("project %s actual_completion_date: %w", row.ID, err)
	}
	if p.CreatedAt, err = Timestamp(row.CreatedAt); err != nil {
		return Project{}, fmt.Errorf("project %s created_at: %w", row.ID, err)
	}
	if p.UpdatedAt, err = Timestamp(row.UpdatedAt); err != nil {
		return Project{}, fmt.Errorf("project %s updated_at: %w", row.ID, err)
	}
	for _, m := range row.Milestones {
		due, err := Date(m.DueDate)
		if err != nil {
			return Project{}, fmt.Errorf("milestone %s due_date: %w", m.ID, err)
		}
		p.Milestones = append(p.Milestones, Milestone{ID: m.ID, Title: m.Title, DueDate: due, Completed: m.Completed})
	}
	return p, nil
}

// ConvertIssue builds an issue view. The joined project and author are required.
func ConvertIssue(row domain.IssueRow) (Issue, error) {
	if row.Project == nil {
		return Issue{}, domain.MissingReferenceError{Entity: "issue", ID: row.ID, Reference: "project"}
	}
	if row.Author == nil {
		return Issue{}, domain.MissingReferenceError{Entity: "issue", ID: row.ID, Reference: "author"}
	}
	i := Issue{
		ID:                row.ID,
		Project:           projectRef(*row.Project),
		Author:            Person{ID: row.Author.ID, Name: row.Author.Name, Email: row.Author.Email},
		Title:             row.Title,
		Description:       Text(row.Description),
		Severity:          row.Severity,
		ItemType:          row.ItemType,
		Status:            row.Status,
		RecommendedAction: Text(row.RecommendedAction),
		Comments:          Text(row.Comments),
		ResolutionNotes:   Text(row.ResolutionNotes),
	}
	if row.Owner != nil {
		i.Owner = &Person{ID: row.Owner.ID, Name: row.Owner.Name, Email: row.Owner.Email}
	}
	identified, err := Date(&row.DateIdentified)
	if err != nil {
		return Issue{}, fmt.Errorf("issue %s date_identified: %w", row.ID, err)
	}
	if identified == nil {
		return Issue{}, fmt.Errorf("issue %s date_identified is empty", row.ID)
	}
	i.DateIdentified = *identified
	if i.TargetResolutionDate, err = Date(row.TargetResolutionDate); err != nil {
		return Issue{}, fmt.Errorf("issue %s target_resolution_date: %w", row.ID, err)
	}
	if i.CreatedAt, err = Timestamp(row.CreatedAt); err != nil {
		return Issue{}, fmt.Errorf("issue %s created_at: %w", row.ID, err)
	}
	if i.UpdatedAt, err = Timestamp(row.UpdatedAt); err != nil {
		return Issue{}, fmt.Errorf("issue %s updated_at: %w", row.ID, err)
	}
	return i, nil
}

// ConvertProfile builds a member view with the full email; masking is applied by authz.
func ConvertProfile(p domain.Profile, roles []domain.Role) (Member, error) {
	created, err := Timestamp(p.CreatedAt)
	if err != nil {
		return Member{}, fmt.Errorf("profile %s created_at: %w", p.ID, err)
	}
	return Member{
		ID:           p.ID,
		AccountID:    p.AccountID,
		Name:         p.Name,
		Email:        p.Email,
		EmailVisible: true,
		AccessLevel:  p.AccessLevel,
		AvatarURL:    Text(p.AvatarURL),
		Roles:        append([]domain.Role{}, roles...),
		CreatedAt:    created,
	}, nil
}

func projectRef(p domain.ProjectRef) ProjectRef {
	return ProjectRef{ID: p.ID, Name: p.Name, Color: Text(p.Color)}
}

// Text normalizes an optional string: nil, empty and blank values become nil.
func Text(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := *v
	return &s
}

// Date parses an optional calendar date stored as YYYY-MM-DD or RFC3339.
// The result is midnight UTC of that day.
func Date(v *string) (*time.Time, error) {
	s := Text(v)
	if s == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*s)
	if d, err := time.Parse(DateLayout, raw); err == nil {
		return &d, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", raw)
	}
	ts = ts.UTC()
	d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

// Timestamp parses a stored RFC3339 timestamp.
func Timestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
	}
	return ts.UTC(), nil
}

// FormatDate renders an optional date for storage, nil for unset.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(DateLayout)
	return &s
}
