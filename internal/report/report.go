// Package report carries error reporting for failed commands.
package report

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryStore         Category = "store"
	CategoryAuthorization Category = "authorization"
	CategoryReference     Category = "reference"
	CategoryUnexpected    Category = "unexpected"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Reporter receives errors that were caught and turned into user-facing failures.
type Reporter interface {
	LogError(ctx context.Context, err error, category Category, severity Severity, fields map[string]any)
}

// LogrusReporter writes reports as structured log entries.
type LogrusReporter struct {
	Logger logrus.FieldLogger
}

func NewLogrusReporter(logger logrus.FieldLogger) LogrusReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return LogrusReporter{Logger: logger}
}

func (r LogrusReporter) LogError(_ context.Context, err error, category Category, severity Severity, fields map[string]any) {
	entry := r.Logger.WithFields(logrus.Fields(fields)).WithFields(logrus.Fields{
		"category": string(category),
		"severity": string(severity),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	switch severity {
	case SeverityInfo:
		entry.Info("command failed")
	case SeverityWarning:
		entry.Warn("command failed")
	default:
		entry.Error("command failed")
	}
}

// Entry is one captured report.
type Entry struct {
	Err      error
	Category Category
	Severity Severity
	Fields   map[string]any
}

// Recorder captures reports in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) LogError(_ context.Context, err error, category Category, severity Severity, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Err: err, Category: category, Severity: severity, Fields: fields})
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Discard drops every report.
type Discard struct{}

func (Discard) LogError(context.Context, error, Category, Severity, map[string]any) {}
