package engine

import (
	"context"

	"teaminova/internal/authz"
	"teaminova/internal/report"
	"teaminova/internal/viewmodel"
)

// Views returned to callers carry people's emails masked for the viewer.
// LocalState and the authorization checks keep working on unmasked rows.

func clonePerson(p *viewmodel.Person) *viewmodel.Person {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (e Engine) maskTasks(ctx context.Context, v authz.Viewer, tasks []viewmodel.Task) ([]viewmodel.Task, error) {
	out := make([]viewmodel.Task, len(tasks))
	people := make([]*viewmodel.Person, 0, len(tasks))
	for i, t := range tasks {
		t.Assignee = clonePerson(t.Assignee)
		out[i] = t
		people = append(people, t.Assignee)
	}
	if err := e.Authz.MaskPeople(ctx, v, people...); err != nil {
		return nil, err
	}
	return out, nil
}

func (e Engine) maskProjects(ctx context.Context, v authz.Viewer, projects []viewmodel.Project) ([]viewmodel.Project, error) {
	out := make([]viewmodel.Project, len(projects))
	people := make([]*viewmodel.Person, 0, len(projects))
	for i, p := range projects {
		p.Manager = clonePerson(p.Manager)
		out[i] = p
		people = append(people, p.Manager)
	}
	if err := e.Authz.MaskPeople(ctx, v, people...); err != nil {
		return nil, err
	}
	return out, nil
}

func (e Engine) maskIssues(ctx context.Context, v authz.Viewer, issues []viewmodel.Issue) ([]viewmodel.Issue, error) {
	out := make([]viewmodel.Issue, len(issues))
	people := make([]*viewmodel.Person, 0, 2*len(issues))
	for i, issue := range issues {
		issue.Owner = clonePerson(issue.Owner)
		out[i] = issue
		people = append(people, &out[i].Author, out[i].Owner)
	}
	if err := e.Authz.MaskPeople(ctx, v, people...); err != nil {
		return nil, err
	}
	return out, nil
}

func (e Engine) maskTask(ctx context.Context, v authz.Viewer, t viewmodel.Task) (viewmodel.Task, error) {
	out, err := e.maskTasks(ctx, v, []viewmodel.Task{t})
	if err != nil {
		return viewmodel.Task{}, err
	}
	return out[0], nil
}

func (e Engine) maskProject(ctx context.Context, v authz.Viewer, p viewmodel.Project) (viewmodel.Project, error) {
	out, err := e.maskProjects(ctx, v, []viewmodel.Project{p})
	if err != nil {
		return viewmodel.Project{}, err
	}
	return out[0], nil
}

func (e Engine) maskIssue(ctx context.Context, v authz.Viewer, issue viewmodel.Issue) (viewmodel.Issue, error) {
	out, err := e.maskIssues(ctx, v, []viewmodel.Issue{issue})
	if err != nil {
		return viewmodel.Issue{}, err
	}
	return out[0], nil
}

// The shown* helpers run after a command has committed. A failed policy
// lookup masks every email instead of failing the command.

func (e Engine) shownTask(ctx context.Context, v authz.Viewer, t viewmodel.Task) viewmodel.Task {
	out, err := e.maskTask(ctx, v, t)
	if err != nil {
		e.reportMaskFailure(ctx, err, "task", t.ID)
		out, _ = e.maskTask(ctx, authz.Viewer{}, t)
	}
	return out
}

func (e Engine) shownProject(ctx context.Context, v authz.Viewer, p viewmodel.Project) viewmodel.Project {
	out, err := e.maskProject(ctx, v, p)
	if err != nil {
		e.reportMaskFailure(ctx, err, "project", p.ID)
		out, _ = e.maskProject(ctx, authz.Viewer{}, p)
	}
	return out
}

func (e Engine) shownIssue(ctx context.Context, v authz.Viewer, issue viewmodel.Issue) viewmodel.Issue {
	out, err := e.maskIssue(ctx, v, issue)
	if err != nil {
		e.reportMaskFailure(ctx, err, "issue", issue.ID)
		out, _ = e.maskIssue(ctx, authz.Viewer{}, issue)
	}
	return out
}

func (e Engine) reportMaskFailure(ctx context.Context, err error, kind, id string) {
	e.reporter().LogError(ctx, err, report.CategoryAuthorization, report.SeverityWarning, map[string]any{
		"operation": "mask emails",
		"entity":    kind,
		"id":        id,
	})
}
