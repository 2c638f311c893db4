package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"teaminova/internal/authz"
	"teaminova/internal/config"
	"teaminova/internal/db"
	"teaminova/internal/derive"
	"teaminova/internal/domain"
	"teaminova/internal/engine"
	"teaminova/internal/identity"
	"teaminova/internal/migrate"
	"teaminova/internal/notify"
	"teaminova/internal/report"
	"teaminova/internal/repo"
	"teaminova/internal/sheet"
)

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Notices  *notify.Recorder
	Reports  *report.Recorder
	Identity *identity.Local
	Admin    authz.Viewer
	Dev      authz.Viewer
	Project  string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Defaults.Project = "Apollo"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return fixedNow }
	notices := &notify.Recorder{}
	reports := &report.Recorder{}
	local := identity.NewLocal()
	eng.Notifier = notices
	eng.Reporter = reports
	eng.Identity = local
	eng.State = engine.NewLocalState(nil)

	admin, err := eng.RegisterMember(ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Ada Admin", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	dev, err := eng.RegisterMember(ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Dev Eloper", Email: "dev@example.com"})
	if err != nil {
		t.Fatalf("register dev: %v", err)
	}
	adminViewer := authz.Viewer{ProfileID: admin.ID, AccountID: admin.AccountID, Email: admin.Email}
	devViewer := authz.Viewer{ProfileID: dev.ID, AccountID: dev.AccountID, Email: dev.Email}
	project, err := eng.CreateProject(ctx, adminViewer, engine.ProjectCreateOptions{Name: "Apollo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{
		Engine:   eng,
		Ctx:      ctx,
		Notices:  notices,
		Reports:  reports,
		Identity: local,
		Admin:    adminViewer,
		Dev:      devViewer,
		Project:  project.ID,
	}
}

func (env testEnv) createTask(t *testing.T, title string, opts engine.TaskCreateOptions) string {
	t.Helper()
	opts.Title = title
	if opts.Description == "" {
		opts.Description = title + " details"
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Dev, opts)
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task.ID
}

func TestCreateTaskUsesDefaultProjectAndResolvesAssignee(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, env.Dev, engine.TaskCreateOptions{
		Title:       "Write docs",
		Description: "User guide",
		Assignee:    "DEV@example.com",
		DueDate:     "2024-01-10",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Project.ID != env.Project {
		t.Fatalf("expected default project %s, got %s", env.Project, task.Project.ID)
	}
	if task.Assignee == nil || task.Assignee.ID != env.Dev.ProfileID {
		t.Fatalf("expected assignee %s, got %+v", env.Dev.ProfileID, task.Assignee)
	}
	if task.Status != domain.TaskTodo || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults: %s %s", task.Status, task.Priority)
	}
	if got := env.Engine.State.Tasks(); len(got) != 1 || got[0].ID != task.ID {
		t.Fatalf("expected task prepended to local state, got %+v", got)
	}
	if last := env.Notices.Last(); last.Kind != notify.KindSuccess || last.Action != "task.create" {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestCreateTaskUnknownAssigneeLeavesTaskUnassigned(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, env.Dev, engine.TaskCreateOptions{
		Title: "Orphan", Description: "d", Assignee: "nobody",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Assignee != nil {
		t.Fatalf("expected no assignee, got %+v", task.Assignee)
	}
}

func TestCreateTaskValidationMakesNoStoreCall(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{Description: "no title"},
		{Title: "no description"},
		{Title: "bad status", Description: "d", Status: "doing"},
		{Title: "bad due", Description: "d", DueDate: "10/01/2024"},
		{Title: "cancelled", Description: "d", Status: domain.TaskCancelled},
		{Title: "unknown project", Description: "d", Project: "Gemini"},
	}
	for _, opts := range cases {
		_, err := env.Engine.CreateTask(env.Ctx, env.Dev, opts)
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%+v: expected validation error, got %v", opts, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, env.Admin, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
	last := env.Notices.Last()
	if last.Kind != notify.KindFailure || !strings.Contains(last.Message, "project") {
		t.Fatalf("expected failure notice naming the field, got %+v", last)
	}
	for _, entry := range env.Reports.Entries() {
		if entry.Category != report.CategoryValidation {
			t.Fatalf("expected validation category, got %s", entry.Category)
		}
	}
}

func TestChangeStatusMaintainsCompletionDate(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Ship", engine.TaskCreateOptions{})
	task, err := env.Engine.ChangeStatus(env.Ctx, env.Dev, id, domain.TaskCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletionDate == nil || !task.CompletionDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected completion date today, got %v", task.CompletionDate)
	}
	task, err = env.Engine.ChangeStatus(env.Ctx, env.Dev, id, domain.TaskInProgress)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if task.CompletionDate != nil {
		t.Fatalf("expected completion date cleared, got %v", task.CompletionDate)
	}
	local, ok := env.Engine.State.Get(id)
	if !ok || local.Status != domain.TaskInProgress {
		t.Fatalf("expected local state updated in place, got %+v", local)
	}
	if _, err := env.Engine.ChangeStatus(env.Ctx, env.Dev, id, domain.TaskCancelled); err == nil {
		t.Fatalf("expected cancelled to require the cancel command")
	}
	if _, err := env.Engine.ChangeStatus(env.Ctx, env.Dev, "missing", domain.TaskBlocked); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocalStateUntouchedOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Stable", engine.TaskCreateOptions{})
	before, _ := env.Engine.State.Get(id)
	title := "Renamed"
	project := "Nowhere"
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Dev, id, engine.TaskPatch{Title: &title, Project: &project}); err == nil {
		t.Fatalf("expected unknown project to fail")
	}
	after, _ := env.Engine.State.Get(id)
	if after.Title != before.Title {
		t.Fatalf("local state changed on failure: %q", after.Title)
	}
	stored, err := env.Engine.GetTask(env.Ctx, env.Admin, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Title != "Stable" {
		t.Fatalf("store changed on failure: %q", stored.Title)
	}
}

func TestUpdateTaskOnlyTouchesProvidedFields(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Draft", engine.TaskCreateOptions{Priority: domain.PriorityHigh, DueDate: "2024-02-01"})
	progress := 40
	empty := ""
	task, err := env.Engine.UpdateTask(env.Ctx, env.Dev, id, engine.TaskPatch{PercentComplete: &progress, DueDate: &empty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.PercentComplete != 40 || task.DueDate != nil {
		t.Fatalf("patch not applied: %+v", task)
	}
	if task.Priority != domain.PriorityHigh || task.Title != "Draft" {
		t.Fatalf("unpatched fields changed: %+v", task)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Dev, id, engine.TaskPatch{}); err == nil {
		t.Fatalf("expected empty patch to be rejected")
	}
}

func TestCancelTaskIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Obsolete", engine.TaskCreateOptions{})
	if _, err := env.Engine.CancelTask(env.Ctx, env.Dev, id, "  "); err == nil {
		t.Fatalf("expected justification to be required")
	}
	task, err := env.Engine.CancelTask(env.Ctx, env.Dev, id, "scope cut")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if task.Status != domain.TaskCancelled {
		t.Fatalf("expected cancelled, got %s", task.Status)
	}
	if len(task.Updates) != 1 || task.Updates[0].Text != "Task cancelled: scope cut" {
		t.Fatalf("expected cancellation note, got %+v", task.Updates)
	}
	if _, err := env.Engine.CancelTask(env.Ctx, env.Dev, id, "again"); err == nil {
		t.Fatalf("expected second cancellation to be rejected")
	}
	task, err = env.Engine.GetTask(env.Ctx, env.Admin, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(task.Updates) != 1 {
		t.Fatalf("rejected cancellation left a log entry: %+v", task.Updates)
	}
}

func TestAppendUpdateKeepsOrder(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Log", engine.TaskCreateOptions{})
	for _, text := range []string{"first", "second"} {
		if _, err := env.Engine.AppendUpdate(env.Ctx, env.Dev, id, text); err != nil {
			t.Fatalf("append %s: %v", text, err)
		}
	}
	task, err := env.Engine.GetTask(env.Ctx, env.Admin, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(task.Updates) != 2 || task.Updates[0].Text != "first" || task.Updates[1].Text != "second" {
		t.Fatalf("unexpected updates %+v", task.Updates)
	}
	if task.Status != domain.TaskTodo {
		t.Fatalf("append must not change status, got %s", task.Status)
	}
}

func TestLinkTasksIsOneDirectional(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, "A", engine.TaskCreateOptions{})
	b := env.createTask(t, "B", engine.TaskCreateOptions{})
	if _, err := env.Engine.LinkTasks(env.Ctx, env.Dev, a, a); err == nil {
		t.Fatalf("expected self link to be rejected")
	}
	if _, err := env.Engine.LinkTasks(env.Ctx, env.Dev, a, b); err != nil {
		t.Fatalf("link: %v", err)
	}
	task, err := env.Engine.LinkTasks(env.Ctx, env.Dev, a, b)
	if err != nil {
		t.Fatalf("duplicate link: %v", err)
	}
	if len(task.RelatedTaskIDs) != 1 || task.RelatedTaskIDs[0] != b {
		t.Fatalf("unexpected links %+v", task.RelatedTaskIDs)
	}
	related, err := env.Engine.RelatedTasks(env.Ctx, env.Admin, b)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("reverse link implied: %+v", related)
	}
	if _, err := env.Engine.UnlinkTasks(env.Ctx, env.Dev, a, b); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := env.Engine.UnlinkTasks(env.Ctx, env.Dev, a, b); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second unlink, got %v", err)
	}
}

func TestDeleteTaskRequiresManagerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Temp", engine.TaskCreateOptions{})
	err := env.Engine.DeleteTask(env.Ctx, env.Dev, id)
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Admin, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.Engine.State.Get(id); ok {
		t.Fatalf("expected task removed from local state")
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Admin, id); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected deleted task to be gone, got %v", err)
	}
}

func TestDeleteProjectBlockedByTasks(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Keep", engine.TaskCreateOptions{})
	err := env.Engine.DeleteProject(env.Ctx, env.Admin, env.Project)
	var hasTasks engine.ProjectHasTasksError
	if !errors.As(err, &hasTasks) || hasTasks.Count != 1 {
		t.Fatalf("expected ProjectHasTasksError, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Admin, id); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, env.Admin, env.Project); err != nil {
		t.Fatalf("delete project: %v", err)
	}
}

func TestProjectMilestones(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, env.Dev, engine.ProjectCreateOptions{Name: "apollo"}); err == nil {
		t.Fatalf("expected duplicate project name to be rejected")
	}
	p, err := env.Engine.AddMilestone(env.Ctx, env.Admin, env.Project, "Beta", "2024-03-01")
	if err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if len(p.Milestones) != 1 || p.Milestones[0].Completed {
		t.Fatalf("unexpected milestones %+v", p.Milestones)
	}
	p, err = env.Engine.ToggleMilestone(env.Ctx, env.Admin, env.Project, p.Milestones[0].ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !p.Milestones[0].Completed {
		t.Fatalf("expected milestone completed")
	}
	if _, err := env.Engine.AddMilestone(env.Ctx, env.Dev, env.Project, "Gamma", ""); err == nil {
		t.Fatalf("expected non-manager to be forbidden")
	}
	p, err = env.Engine.RemoveMilestone(env.Ctx, env.Admin, env.Project, p.Milestones[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(p.Milestones) != 0 {
		t.Fatalf("expected no milestones, got %+v", p.Milestones)
	}
}

func TestIssuesAuthorOnlyEditAndAdminDelete(t *testing.T) {
	env := newTestEnv(t)
	issue, err := env.Engine.CreateIssue(env.Ctx, env.Dev, engine.IssueCreateOptions{
		Title:    "Flaky deploy",
		Severity: domain.SeverityHigh,
		Owner:    "Ada Admin",
	})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if issue.Author.ID != env.Dev.ProfileID || issue.Status != domain.IssueOpen {
		t.Fatalf("unexpected issue %+v", issue)
	}
	if issue.Owner == nil || issue.Owner.ID != env.Admin.ProfileID {
		t.Fatalf("expected owner resolved by name, got %+v", issue.Owner)
	}
	notes := "retry budget raised"
	closed := domain.IssueClosed
	var forbidden authz.ForbiddenError
	if _, err := env.Engine.UpdateIssue(env.Ctx, env.Admin, issue.ID, engine.IssuePatch{Status: &closed}); !errors.As(err, &forbidden) {
		t.Fatalf("expected non-author edit to be forbidden, got %v", err)
	}
	author := authz.Viewer{ProfileID: env.Dev.ProfileID, Email: strings.ToUpper(env.Dev.Email)}
	updated, err := env.Engine.UpdateIssue(env.Ctx, author, issue.ID, engine.IssuePatch{Status: &closed, ResolutionNotes: &notes})
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	if updated.Status != domain.IssueClosed || updated.ResolutionNotes == nil || updated.Author.ID != env.Dev.ProfileID {
		t.Fatalf("unexpected update %+v", updated)
	}
	if err := env.Engine.DeleteIssue(env.Ctx, env.Dev, issue.ID); !errors.As(err, &forbidden) {
		t.Fatalf("expected author delete to be forbidden, got %v", err)
	}
	if err := env.Engine.DeleteIssue(env.Ctx, env.Admin, issue.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestGroupedIssuesBySeverity(t *testing.T) {
	env := newTestEnv(t)
	for _, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityCritical, domain.SeverityLow} {
		if _, err := env.Engine.CreateIssue(env.Ctx, env.Dev, engine.IssueCreateOptions{Title: "i", Severity: sev}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	groups, err := env.Engine.GroupedIssues(env.Ctx, env.Admin, repo.IssueFilters{}, derive.GroupBySeverity)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != string(domain.SeverityCritical) || len(groups[1].Issues) != 2 {
		t.Fatalf("unexpected groups %+v", groups)
	}
}

func TestViewsMaskPeopleEmailsForViewer(t *testing.T) {
	env := newTestEnv(t)
	const masked = "a***@example.com"
	created, err := env.Engine.CreateTask(env.Ctx, env.Dev, engine.TaskCreateOptions{
		Title: "Review budget", Description: "Q1", Assignee: "ada@example.com", DueDate: "2023-12-01",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if created.Assignee == nil || created.Assignee.Email != masked {
		t.Fatalf("expected masked assignee on create, got %+v", created.Assignee)
	}
	if local, _ := env.Engine.State.Get(created.ID); local.Assignee == nil || local.Assignee.Email != "ada@example.com" {
		t.Fatalf("local state should keep the stored email, got %+v", local.Assignee)
	}

	task, err := env.Engine.GetTask(env.Ctx, env.Dev, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Assignee.Email != masked {
		t.Fatalf("expected masked email from GetTask, got %q", task.Assignee.Email)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, env.Dev, derive.TaskFilter{})
	if err != nil || len(tasks) != 1 || tasks[0].Assignee.Email != masked {
		t.Fatalf("expected masked email from ListTasks, got %+v (%v)", tasks, err)
	}
	board, err := env.Engine.Board(env.Ctx, env.Dev, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	for _, col := range board {
		for _, bt := range col.Tasks {
			if bt.Assignee != nil && bt.Assignee.Email != masked {
				t.Fatalf("expected masked email on board, got %q", bt.Assignee.Email)
			}
		}
	}
	overdue, err := env.Engine.Overdue(env.Ctx, env.Dev, derive.TaskFilter{})
	if err != nil || len(overdue) != 1 || overdue[0].Items[0].Task.Assignee.Email != masked {
		t.Fatalf("expected masked email in overdue report, got %+v (%v)", overdue, err)
	}
	task, err = env.Engine.GetTask(env.Ctx, env.Admin, created.ID)
	if err != nil || task.Assignee.Email != "ada@example.com" {
		t.Fatalf("assignee should see their own email, got %+v (%v)", task.Assignee, err)
	}

	project, err := env.Engine.GetProject(env.Ctx, env.Dev, env.Project)
	if err != nil || project.Manager == nil || project.Manager.Email != masked {
		t.Fatalf("expected masked manager, got %+v (%v)", project.Manager, err)
	}
	projects, err := env.Engine.ListProjects(env.Ctx, env.Dev)
	if err != nil || projects[0].Manager.Email != masked {
		t.Fatalf("expected masked manager in list, got %+v (%v)", projects, err)
	}

	issue, err := env.Engine.CreateIssue(env.Ctx, env.Dev, engine.IssueCreateOptions{Title: "Vendor delay", Owner: "Ada Admin"})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if issue.Owner.Email != masked || issue.Author.Email != "dev@example.com" {
		t.Fatalf("unexpected people on created issue: owner %q author %q", issue.Owner.Email, issue.Author.Email)
	}
	issues, err := env.Engine.ListIssues(env.Ctx, env.Dev, repo.IssueFilters{})
	if err != nil || issues[0].Owner.Email != masked {
		t.Fatalf("expected masked owner in list, got %+v (%v)", issues, err)
	}
	adminIssue, err := env.Engine.CreateIssue(env.Ctx, env.Admin, engine.IssueCreateOptions{Title: "License audit"})
	if err != nil {
		t.Fatalf("create admin issue: %v", err)
	}
	seen, err := env.Engine.GetIssue(env.Ctx, env.Dev, adminIssue.ID)
	if err != nil || seen.Author.Email != masked {
		t.Fatalf("expected masked author, got %+v (%v)", seen.Author, err)
	}
	title := "License audit 2024"
	updated, err := env.Engine.UpdateIssue(env.Ctx, env.Admin, adminIssue.ID, engine.IssuePatch{Title: &title})
	if err != nil {
		t.Fatalf("author edit must still match the stored email: %v", err)
	}
	if updated.Author.Email != "ada@example.com" {
		t.Fatalf("author should see their own email, got %q", updated.Author.Email)
	}
}

func TestMembersMaskingAndRoles(t *testing.T) {
	env := newTestEnv(t)
	members, err := env.Engine.ListMembers(env.Ctx, env.Dev)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byID := map[string]string{}
	for _, m := range members {
		byID[m.ID] = m.Email
		if m.Role != domain.RoleTeamMember {
			t.Fatalf("expected team_member primary role, got %s", m.Role)
		}
	}
	if byID[env.Dev.ProfileID] != "dev@example.com" {
		t.Fatalf("own email should be visible, got %q", byID[env.Dev.ProfileID])
	}
	if byID[env.Admin.ProfileID] != "a***@example.com" {
		t.Fatalf("other email should be masked, got %q", byID[env.Admin.ProfileID])
	}

	var forbidden authz.ForbiddenError
	if _, err := env.Engine.SetRole(env.Ctx, env.Dev, env.Dev.ProfileID, domain.RoleAdministrator); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	m, err := env.Engine.SetRole(env.Ctx, env.Admin, env.Dev.ProfileID, domain.RoleDevLead)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if m.Role != domain.RoleDevLead {
		t.Fatalf("expected dev_lead, got %s", m.Role)
	}

	admins, err := env.Engine.ListMembers(env.Ctx, env.Admin)
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	for _, m := range admins {
		if strings.Contains(m.Email, "***") {
			t.Fatalf("administrator should see full emails, got %q", m.Email)
		}
	}
}

func TestDeleteMember(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.DeleteMember(env.Ctx, env.Admin, env.Admin.ProfileID); err == nil {
		t.Fatalf("expected self deletion to be rejected")
	}
	if _, err := env.Engine.CreateIssue(env.Ctx, env.Dev, engine.IssueCreateOptions{Title: "mine"}); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	err := env.Engine.DeleteMember(env.Ctx, env.Admin, env.Dev.ProfileID)
	var hasIssues engine.MemberHasIssuesError
	if !errors.As(err, &hasIssues) {
		t.Fatalf("expected MemberHasIssuesError, got %v", err)
	}

	other, err := env.Engine.RegisterMember(env.Ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Temp", Email: "temp@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !env.Identity.Has(other.AccountID) {
		t.Fatalf("expected hosted account to be created")
	}
	if err := env.Engine.DeleteMember(env.Ctx, env.Admin, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if env.Identity.Has(other.AccountID) {
		t.Fatalf("expected hosted account to be deleted")
	}
}

func TestRegisterRemovesAccountWhenProfileInsertFails(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `CREATE TRIGGER reject_profiles BEFORE INSERT ON profiles BEGIN SELECT RAISE(ABORT, 'profiles locked'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := env.Engine.RegisterMember(env.Ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Late", Email: "late@example.com"}); err == nil {
		t.Fatalf("expected the profile insert to fail")
	}
	if _, err := env.Identity.CreateAccount(env.Ctx, "late@example.com", "", ""); err != nil {
		t.Fatalf("expected the orphaned account to be removed, got %v", err)
	}

	linked, err := env.Identity.CreateAccount(env.Ctx, "linked@example.com", "", "")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := env.Engine.RegisterMember(env.Ctx, authz.Viewer{}, engine.RegisterOptions{AccountID: linked, Name: "Linked", Email: "linked@example.com"}); err == nil {
		t.Fatalf("expected the profile insert to fail")
	}
	if !env.Identity.Has(linked) {
		t.Fatalf("an account the call did not create must be kept")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterMember(env.Ctx, authz.Viewer{}, engine.RegisterOptions{Name: "Copy", Email: "ADA@example.com"})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	link, err := env.Engine.SendPasswordReset(env.Ctx, env.Admin, env.Dev.ProfileID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(link, "dev%40example.com") {
		t.Fatalf("unexpected link %q", link)
	}
	if _, err := env.Engine.SendPasswordReset(env.Ctx, env.Dev, env.Admin.ProfileID); err == nil {
		t.Fatalf("expected non-admin reset to be forbidden")
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, env.Dev, "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if !strings.HasPrefix(secret, "tm_") || key.KeyHash == secret {
		t.Fatalf("unexpected key material")
	}
	v, err := env.Engine.ViewerForAPIKey(env.Ctx, secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if v.ProfileID != env.Dev.ProfileID {
		t.Fatalf("expected dev viewer, got %+v", v)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, env.Dev, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.ViewerForAPIKey(env.Ctx, secret); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected revoked key to fail, got %v", err)
	}
}

func TestImportTasksSkipsAndSummarises(t *testing.T) {
	env := newTestEnv(t)
	rows := []sheet.Row{
		{Line: 2, Title: "Plan", Project: "apollo", Status: "Done", Priority: "urgent", Assignee: "Dev Eloper", DueDate: "1/15/2024"},
		{Line: 3, Title: "", Project: "Apollo"},
		{Line: 4, Title: "Elsewhere", Project: "Gemini"},
		{Line: 5, Title: "Bad date", DueDate: "someday"},
		{Line: 6, Title: "Defaulted", Status: "whatever"},
	}
	summary, err := env.Engine.ImportTasks(env.Ctx, env.Dev, rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Succeeded != 2 || summary.Skipped != 3 || len(summary.Skips) != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Skips[0].Line != 3 || summary.Skips[1].Line != 4 || summary.Skips[2].Line != 5 {
		t.Fatalf("skips out of order: %+v", summary.Skips)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, env.Admin, derive.TaskFilter{Search: "plan"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected imported task, got %d", len(tasks))
	}
	plan := tasks[0]
	if plan.Status != domain.TaskCompleted || plan.Priority != domain.PriorityCritical || plan.Assignee == nil {
		t.Fatalf("synonyms not applied: %+v", plan)
	}
	last := env.Notices.Last()
	if last.Action != "task.import" || last.Message != "Imported 2 task(s), skipped 3" {
		t.Fatalf("expected one summary notice, got %+v", last)
	}
	if n := len(env.Engine.State.Tasks()); n != 2 {
		t.Fatalf("expected 2 tasks in local state, got %d", n)
	}
}

func TestImportCancelledRowRecordsJustification(t *testing.T) {
	env := newTestEnv(t)
	summary, err := env.Engine.ImportTasks(env.Ctx, env.Dev, []sheet.Row{
		{Line: 2, Title: "Old migration", Status: "Canceled"},
	})
	if err != nil || summary.Succeeded != 1 {
		t.Fatalf("import: %+v (%v)", summary, err)
	}
	task, err := env.Engine.GetTask(env.Ctx, env.Admin, summary.Created[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != domain.TaskCancelled {
		t.Fatalf("expected cancelled status to round-trip, got %s", task.Status)
	}
	if len(task.Updates) != 1 || task.Updates[0].Text != "Task cancelled: imported as cancelled" {
		t.Fatalf("expected a cancellation entry in the log, got %+v", task.Updates)
	}
	if task.Updates[0].AuthorID == nil || *task.Updates[0].AuthorID != env.Dev.ProfileID {
		t.Fatalf("expected the importer as log author, got %v", task.Updates[0].AuthorID)
	}
}

func TestExportRoundTripsThroughSheet(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, "Export me", engine.TaskCreateOptions{Assignee: env.Dev.ProfileID, DueDate: "2024-02-02", PercentComplete: 30})
	tasks, err := env.Engine.ListTasks(env.Ctx, env.Admin, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	rows := engine.ExportTasks(tasks)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	r := rows[0]
	if r.Project != "Apollo" || r.Assignee != "dev@example.com" || r.DueDate != "2024-02-02" || r.Progress != "30%" {
		t.Fatalf("unexpected row %+v", r)
	}

	other := authz.Viewer{ProfileID: "someone-else"}
	masked, err := env.Engine.ListTasks(env.Ctx, other, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("list masked: %v", err)
	}
	if got := engine.ExportTasks(masked)[0].Assignee; got != "Dev Eloper" {
		t.Fatalf("expected the name in place of a masked email, got %q", got)
	}
}

func TestOverdueAndBoard(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, "Late", engine.TaskCreateOptions{DueDate: "2023-12-25"})
	done := env.createTask(t, "Late but done", engine.TaskCreateOptions{DueDate: "2023-12-20"})
	if _, err := env.Engine.ChangeStatus(env.Ctx, env.Dev, done, domain.TaskCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	env.createTask(t, "Held", engine.TaskCreateOptions{Status: domain.TaskOnHold})

	groups, err := env.Engine.Overdue(env.Ctx, env.Admin, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	total := 0
	for _, g := range groups {
		total += len(g.Items)
	}
	if total != 1 {
		t.Fatalf("expected one overdue task, got %d", total)
	}
	board, err := env.Engine.Board(env.Ctx, env.Admin, derive.TaskFilter{})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	placed := 0
	for _, col := range board {
		placed += len(col.Tasks)
	}
	if placed != 2 {
		t.Fatalf("on-hold task must not appear on the board, placed %d", placed)
	}
}

func TestEventsRecordedPerCommand(t *testing.T) {
	env := newTestEnv(t)
	id := env.createTask(t, "Audited", engine.TaskCreateOptions{})
	if _, err := env.Engine.CancelTask(env.Ctx, env.Dev, id, "done elsewhere"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{EntityID: id})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 || evts[0].Type != "task.cancelled" || evts[1].Type != "task.created" {
		t.Fatalf("unexpected events %+v", evts)
	}
	if evts[0].ActorID != env.Dev.ProfileID {
		t.Fatalf("unexpected actor %s", evts[0].ActorID)
	}
}

func TestCommandsOpenSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	env := newTestEnv(t)
	exporter.Reset()
	if _, err := env.Engine.CreateTask(env.Ctx, env.Dev, engine.TaskCreateOptions{Title: "Traced"}); err == nil {
		t.Fatalf("expected validation failure")
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "task.create" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if spans[0].Status.Code.String() != "Error" {
		t.Fatalf("expected error status, got %s", spans[0].Status.Code)
	}
}

func TestStoreTimeoutIsReportedCritical(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithDeadline(env.Ctx, fixedNow)
	defer cancel()
	_, err := env.Engine.CreateTask(ctx, env.Dev, engine.TaskCreateOptions{Title: "Slow", Description: "d"})
	if err == nil {
		t.Fatalf("expected expired context to fail")
	}
	entries := env.Reports.Entries()
	last := entries[len(entries)-1]
	if last.Category != report.CategoryStore || last.Severity != report.SeverityCritical {
		t.Fatalf("expected store category, got %+v", last)
	}
}
