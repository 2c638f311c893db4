package report

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogrusReporterWritesStructuredEntry(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewLogrusReporter(logger)

	r.LogError(context.Background(), errors.New("constraint failed"), CategoryStore, SeverityError, map[string]any{"command": "task.create"})

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected a log entry")
	}
	if entry.Level != logrus.ErrorLevel {
		t.Fatalf("level = %s", entry.Level)
	}
	if entry.Data["category"] != "store" || entry.Data["severity"] != "error" || entry.Data["command"] != "task.create" {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
	if err, ok := entry.Data[logrus.ErrorKey].(error); !ok || err.Error() != "constraint failed" {
		t.Fatalf("missing error field: %#v", entry.Data[logrus.ErrorKey])
	}

	r.LogError(context.Background(), nil, CategoryValidation, SeverityInfo, nil)
	if hook.LastEntry().Level != logrus.InfoLevel {
		t.Fatalf("info severity should log at info level")
	}
}

func TestRecorderCapturesEntries(t *testing.T) {
	var rec Recorder
	rec.LogError(context.Background(), errors.New("x"), CategoryReference, SeverityWarning, nil)
	entries := rec.Entries()
	if len(entries) != 1 || entries[0].Category != CategoryReference {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}
