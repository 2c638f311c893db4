package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"teaminova/internal/authz"
	"teaminova/internal/cache"
	"teaminova/internal/config"
	"teaminova/internal/db"
	"teaminova/internal/domain"
	"teaminova/internal/events"
	"teaminova/internal/identity"
	"teaminova/internal/notify"
	"teaminova/internal/report"
	"teaminova/internal/repo"
)

const tracerName = "teaminova/internal/engine"

// Engine dispatches commands against the record store. Collaborators left nil
// fall back to no-op implementations.
type Engine struct {
	DB        *db.DB
	Repo      repo.Repo
	Events    events.Writer
	Authz     authz.Filter
	Config    *config.Config
	Reporter  report.Reporter
	Notifier  notify.Notifier
	Directory *cache.Directory
	Identity  identity.Provider
	State     *LocalState
	// Timeout bounds every store round trip. Zero disables the bound.
	Timeout time.Duration
	Now     func() time.Time
}

func New(conn *db.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn}
	return Engine{
		DB:       conn,
		Repo:     r,
		Events:   events.Writer{Now: time.Now},
		Authz:    authz.Filter{Policy: r, LegacyAdminEmail: cfg.Auth.LegacyAdminEmail},
		Config:   cfg,
		Reporter: report.Discard{},
		Notifier: notify.Discard{},
		Identity: identity.Unconfigured{},
		Timeout:  cfg.StoreTimeout(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) today() string {
	return e.now().UTC().Format("2006-01-02")
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) reporter() report.Reporter {
	if e.Reporter == nil {
		return report.Discard{}
	}
	return e.Reporter
}

func (e Engine) notifier() notify.Notifier {
	if e.Notifier == nil {
		return notify.Discard{}
	}
	return e.Notifier
}

func (e Engine) identity() identity.Provider {
	if e.Identity == nil {
		return identity.Unconfigured{}
	}
	return e.Identity
}

func (e Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.Timeout)
}

func (e Engine) tx(ctx context.Context, fn func(ctx context.Context, r repo.Repo, tx db.DBTX) error) error {
	return e.DB.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, repo.Repo{DB: tx}, tx)
	})
}

// ValidationError is returned before any store call when input is rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProjectHasTasksError blocks deletion of a project that still owns tasks.
type ProjectHasTasksError struct {
	ProjectID string
	Count     int
}

func (e ProjectHasTasksError) Error() string {
	return fmt.Sprintf("project %s still has %d task(s); move or delete them first", e.ProjectID, e.Count)
}

// MemberHasIssuesError blocks deletion of a member who authored issues.
type MemberHasIssuesError struct {
	ProfileID string
	Count     int
}

func (e MemberHasIssuesError) Error() string {
	return fmt.Sprintf("member %s authored %d issue(s) and cannot be deleted", e.ProfileID, e.Count)
}

// command names a dispatcher operation for tracing, audit and notices.
type command struct {
	action     string
	entityKind string
	success    string
	failure    string
}

// run executes fn under a span and the store timeout, then reports the
// outcome. fn returns the id of the entity it touched.
func (e Engine) run(ctx context.Context, v authz.Viewer, cmd command, fn func(ctx context.Context) (string, error)) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, cmd.action, trace.WithAttributes(
		attribute.String("teaminova.entity_kind", cmd.entityKind),
		attribute.String("teaminova.actor", v.ProfileID),
	))
	defer span.End()

	callCtx, cancel := e.withTimeout(ctx)
	entityID, err := fn(callCtx)
	cancel()
	if entityID != "" {
		span.SetAttributes(attribute.String("teaminova.entity_id", entityID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, cmd, entityID, err)
		return err
	}
	e.notifier().Notify(ctx, notify.Notice{
		Kind:       notify.KindSuccess,
		Action:     cmd.action,
		Message:    cmd.success,
		EntityKind: cmd.entityKind,
		EntityID:   entityID,
		At:         e.now().UTC(),
	})
	return nil
}

func (e Engine) fail(ctx context.Context, cmd command, entityID string, err error) {
	category, severity := classify(err)
	e.reporter().LogError(ctx, err, category, severity, map[string]any{
		"command":   cmd.action,
		"entity_id": entityID,
	})
	message := cmd.failure
	var verr ValidationError
	var forbidden authz.ForbiddenError
	var hasTasks ProjectHasTasksError
	var hasIssues MemberHasIssuesError
	switch {
	case errors.As(err, &verr):
		message = verr.Error()
	case errors.As(err, &forbidden):
		message = "You are " + forbidden.Error()
	case errors.As(err, &hasTasks):
		message = hasTasks.Error()
	case errors.As(err, &hasIssues):
		message = hasIssues.Error()
	}
	e.notifier().Notify(ctx, notify.Notice{
		Kind:       notify.KindFailure,
		Action:     cmd.action,
		Message:    message,
		EntityKind: cmd.entityKind,
		EntityID:   entityID,
		At:         e.now().UTC(),
	})
}

func classify(err error) (report.Category, report.Severity) {
	var (
		verr      ValidationError
		forbidden authz.ForbiddenError
		missing   domain.MissingReferenceError
		hasTasks  ProjectHasTasksError
		hasIssues MemberHasIssuesError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &hasTasks), errors.As(err, &hasIssues):
		return report.CategoryValidation, report.SeverityInfo
	case errors.As(err, &forbidden):
		return report.CategoryAuthorization, report.SeverityWarning
	case errors.As(err, &missing):
		return report.CategoryReference, report.SeverityError
	case errors.Is(err, repo.ErrNotFound):
		return report.CategoryReference, report.SeverityWarning
	case errors.Is(err, context.DeadlineExceeded):
		return report.CategoryStore, report.SeverityCritical
	default:
		return report.CategoryStore, report.SeverityError
	}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// checkDate validates an optional YYYY-MM-DD value and returns it normalized;
// blank clears the date.
func checkDate(field string, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, invalid(field, "must be a date in YYYY-MM-DD form")
	}
	out := t.Format("2006-01-02")
	return &out, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}

func wrapNotFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

func stringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// read runs a query under a span and the store timeout. Failures are
// reported but produce no notice.
func (e Engine) read(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := fn(callCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		category, severity := classify(err)
		e.reporter().LogError(ctx, err, category, severity, map[string]any{"query": name})
		return err
	}
	return nil
}
