package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"teaminova/internal/config"
	"teaminova/internal/db"
	"teaminova/internal/engine"
	"teaminova/internal/identity"
	"teaminova/internal/migrate"
	"teaminova/internal/report"
	"teaminova/internal/viewmodel"
)

const testSecret = "test-secret"

type testServer struct {
	URL     string
	Engine  engine.Engine
	Reports *report.Recorder
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Defaults.Project = "Apollo"
	e := engine.New(conn, cfg)
	e.Identity = identity.NewLocal()
	reports := &report.Recorder{}
	e.Reporter = reports
	logger, _ := test.NewNullLogger()
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, Logger: logger},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Reports: reports,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, accountID, email string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, accountID, email, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// register signs up accountID through the API and returns its auth headers.
func register(t *testing.T, srv *testServer, accountID, name, email string) (map[string]string, viewmodel.Member) {
	t.Helper()
	headers := bearer(t, accountID, email)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/members", map[string]any{"name": name}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, res.StatusCode, string(data))
	}
	var m viewmodel.Member
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal member: %v", err)
	}
	return headers, m
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"Authorization": "Bearer nonsense"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	if got := decodeError(t, body).Code; got != "invalid_credentials" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestRegisterThroughTokenMakesFirstMemberAdministrator(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := bearer(t, "acct-ada", "ada@example.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me MeResponse
	_ = json.Unmarshal(data, &me)
	if me.Registered || me.AccountID != "acct-ada" {
		t.Fatalf("unexpected me before registration: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before registration, got %d %s", res.StatusCode, string(data))
	}

	_, member := register(t, srv, "acct-ada", "Ada", "ada@example.com")
	if member.Email != "ada@example.com" {
		t.Fatalf("expected token email to be used, got %q", member.Email)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	me = MeResponse{}
	_ = json.Unmarshal(data, &me)
	if !me.Registered || !me.Administrator || me.Member == nil || me.Member.ID != member.ID {
		t.Fatalf("unexpected me after registration: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/members", map[string]any{"name": "Ada again"}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on second registration, got %d %s", res.StatusCode, string(data))
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers, _ := register(t, srv, "acct-ada", "Ada", "ada@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Apollo"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "Ship it",
		"description": "Release 1.0",
		"due_date":    "2030-01-01",
		"assignee":    "ada@example.com",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task viewmodel.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Project.Name != "Apollo" || task.Assignee == nil || task.Assignee.Email != "ada@example.com" {
		t.Fatalf("unexpected task: %+v", task)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{"status": "completed"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("change status: %d %s", res.StatusCode, string(data))
	}
	var done viewmodel.Task
	_ = json.Unmarshal(data, &done)
	if done.CompletionDate == nil {
		t.Fatalf("expected completion date")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/cancel", map[string]any{"justification": "  "}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank justification, got %d %s", res.StatusCode, string(data))
	}
	if field := decodeError(t, data).Details["field"]; field != "justification" {
		t.Fatalf("expected justification field, got %v", field)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?status=completed", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, string(data))
	}
	var list TaskList
	_ = json.Unmarshal(data, &list)
	if len(list.Items) != 1 || list.Items[0].ID != task.ID {
		t.Fatalf("unexpected list: %+v", list.Items)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/projects/"+task.Project.ID, nil, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict deleting project with tasks, got %d %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "project_has_tasks" {
		t.Fatalf("unexpected code %q", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/does-not-exist", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestTaskViewsMaskEmailsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminHeaders, _ := register(t, srv, "acct-ada", "Ada", "ada@example.com")
	devHeaders, _ := register(t, srv, "acct-dev", "Dev", "dev@example.com")
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Apollo"}, adminHeaders); res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "Audit", "description": "Yearly", "assignee": "ada@example.com",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task viewmodel.Task
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+task.ID, nil, devHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	var seen viewmodel.Task
	_ = json.Unmarshal(data, &seen)
	if seen.Assignee == nil || seen.Assignee.Email != "a***@example.com" {
		t.Fatalf("expected masked assignee, got %+v", seen.Assignee)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, devHeaders)
	if res.StatusCode != http.StatusOK || strings.Contains(string(data), "ada@example.com") {
		t.Fatalf("task list leaked an email: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, devHeaders)
	if res.StatusCode != http.StatusOK || strings.Contains(string(data), "ada@example.com") {
		t.Fatalf("project list leaked an email: %d %s", res.StatusCode, string(data))
	}
}

func TestIssueEditIsLimitedToAuthor(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminHeaders, _ := register(t, srv, "acct-ada", "Ada", "ada@example.com")
	devHeaders, _ := register(t, srv, "acct-dev", "Dev", "dev@example.com")
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Apollo"}, adminHeaders); res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/issues", map[string]any{"title": "Login broken", "severity": "critical"}, devHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue: %d %s", res.StatusCode, string(data))
	}
	var issue viewmodel.Issue
	_ = json.Unmarshal(data, &issue)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/issues/"+issue.ID, map[string]any{"status": "resolved"}, adminHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author edit, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/issues?group=severity", nil, devHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list issues: %d %s", res.StatusCode, string(data))
	}
	var list IssueList
	_ = json.Unmarshal(data, &list)
	if len(list.Groups) != 1 || list.Groups[0].Name != "critical" {
		t.Fatalf("unexpected groups: %+v", list.Groups)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/issues?group=colour", nil, devHeaders)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown group, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/issues/"+issue.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete issue: %d %s", res.StatusCode, string(data))
	}
}

func TestMemberAdministration(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminHeaders, _ := register(t, srv, "acct-ada", "Ada", "ada@example.com")
	devHeaders, dev := register(t, srv, "acct-dev", "Dev", "dev@example.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/members", nil, devHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list members: %d %s", res.StatusCode, string(data))
	}
	var list MemberList
	_ = json.Unmarshal(data, &list)
	for _, m := range list.Items {
		if m.ID != dev.ID && m.EmailVisible {
			t.Fatalf("expected masked email for %s, got %q", m.Name, m.Email)
		}
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/members/"+dev.ID+"/role", map[string]any{"role": "developer"}, devHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin role change, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/members/"+dev.ID+"/role", map[string]any{"role": "developer"}, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set role: %d %s", res.StatusCode, string(data))
	}
	var updated viewmodel.Member
	_ = json.Unmarshal(data, &updated)
	if updated.Role != "developer" {
		t.Fatalf("expected developer role, got %q", updated.Role)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/members/"+dev.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete member: %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers, member := register(t, srv, "acct-ada", "Ada", "ada@example.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{"name": "ci"}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	_ = json.Unmarshal(data, &key)
	if key.Secret == "" || key.ProfileID != member.ID {
		t.Fatalf("unexpected key: %+v", key)
	}

	keyHeaders := map[string]string{"X-Api-Key": key.Secret}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with key: %d %s", res.StatusCode, string(data))
	}
	var me MeResponse
	_ = json.Unmarshal(data, &me)
	if me.Member == nil || me.Member.ID != member.ID {
		t.Fatalf("expected key to act as %s, got %+v", member.ID, me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/api-keys", nil, keyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys: %d %s", res.StatusCode, string(data))
	}
	var keys APIKeyList
	_ = json.Unmarshal(data, &keys)
	if len(keys.Items) != 1 || keys.Items[0].Secret != "" {
		t.Fatalf("expected one key without secret, got %+v", keys.Items)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/api-keys/"+key.ID, nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, keyHeaders)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked key to be rejected, got %d", res.StatusCode)
	}
}

func TestSpreadsheetExportImportRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers, _ := register(t, srv, "acct-ada", "Ada", "ada@example.com")
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Apollo"}, headers)
	for _, title := range []string{"One", "Two"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": title, "description": title}, headers)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create task: %d %s", res.StatusCode, string(data))
		}
	}

	res, xlsx := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/export", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export: %d %s", res.StatusCode, string(xlsx))
	}
	if ct := res.Header.Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/tasks/import", bytes.NewReader(xlsx))
	req.Header.Set("Content-Type", xlsxContentType)
	req.Header.Set("Authorization", headers["Authorization"])
	importRes, err := client.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer importRes.Body.Close()
	data, _ := io.ReadAll(importRes.Body)
	if importRes.StatusCode != http.StatusOK {
		t.Fatalf("import: %d %s", importRes.StatusCode, string(data))
	}
	var summary engine.ImportSummary
	_ = json.Unmarshal(data, &summary)
	if summary.Succeeded != 2 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats engine.Stats
	_ = json.Unmarshal(data, &stats)
	if stats.Tasks.Total != 4 {
		t.Fatalf("expected 4 tasks after import, got %+v", stats.Tasks)
	}
}

func TestRecoverMiddlewareReportsPanics(t *testing.T) {
	reports := &report.Recorder{}
	h := recoverMiddleware(reports)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	res, data := doJSON(t, &http.Client{}, http.MethodGet, "http://"+ln.Addr().String()+"/x", nil, nil)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.StatusCode)
	}
	if msg := decodeError(t, data).Message; msg != unexpectedMessage {
		t.Fatalf("unexpected message %q", msg)
	}
	entries := reports.Entries()
	if len(entries) != 1 || entries[0].Category != report.CategoryUnexpected {
		t.Fatalf("expected one unexpected report, got %+v", entries)
	}
}
