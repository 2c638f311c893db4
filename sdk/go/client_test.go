package teaminovasdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateTaskSendsAPIKeyAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "tm_secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		var body NewTask
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "t1",
			"title":   body.Title,
			"status":  "todo",
			"project": map[string]any{"id": "p1", "name": "Apollo"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "tm_secret"
	task, err := c.CreateTask(context.Background(), NewTask{Title: "Ship", Description: "Release"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "t1" || task.Title != "Ship" || task.Project.Name != "Apollo" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestErrorEnvelopeIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"bad_request","message":"justification: is required"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CancelTask(context.Background(), "t1", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "bad_request" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestListTasksEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "blocked" || q.Get("overdue") != "true" || q.Has("priority") {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"items":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()

	tasks, err := New(srv.URL).ListTasks(context.Background(), TaskQuery{Status: "blocked", Overdue: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}
