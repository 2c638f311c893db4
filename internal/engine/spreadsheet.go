package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"teaminova/internal/authz"
	"teaminova/internal/domain"
	"teaminova/internal/notify"
	"teaminova/internal/report"
	"teaminova/internal/sheet"
	"teaminova/internal/viewmodel"
)

const importAction = "task.import"

type ImportSkip struct {
	Line   int    `json:"line"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

type ImportSummary struct {
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Skips     []ImportSkip `json:"skips"`
	Created   []string     `json:"created"`
}

// ImportTasks creates one task per row, in order. Rows that fail validation
// or are rejected by the store are skipped; the import itself never aborts.
func (e Engine) ImportTasks(ctx context.Context, v authz.Viewer, rows []sheet.Row) (ImportSummary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, importAction, trace.WithAttributes(
		attribute.Int("teaminova.rows", len(rows)),
		attribute.String("teaminova.actor", v.ProfileID),
	))
	defer span.End()

	summary := ImportSummary{Skips: []ImportSkip{}, Created: []string{}}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			summary.skip(row, "import cancelled")
			continue
		}
		task, err := e.importRow(ctx, v, row)
		if err != nil {
			summary.skip(row, skipReason(err))
			category, severity := classify(err)
			if category == report.CategoryValidation {
				continue
			}
			e.reporter().LogError(ctx, err, category, severity, map[string]any{
				"command": importAction,
				"line":    row.Line,
			})
			continue
		}
		summary.Succeeded++
		summary.Created = append(summary.Created, task.ID)
		e.statePrepend(task)
	}
	span.SetAttributes(
		attribute.Int("teaminova.succeeded", summary.Succeeded),
		attribute.Int("teaminova.skipped", summary.Skipped),
	)
	kind := notify.KindSuccess
	if summary.Succeeded == 0 && summary.Skipped > 0 {
		kind = notify.KindFailure
	}
	e.notifier().Notify(ctx, notify.Notice{
		Kind:       kind,
		Action:     importAction,
		Message:    fmt.Sprintf("Imported %d task(s), skipped %d", summary.Succeeded, summary.Skipped),
		EntityKind: "task",
		At:         e.now().UTC(),
	})
	return summary, nil
}

func (s *ImportSummary) skip(row sheet.Row, reason string) {
	s.Skipped++
	s.Skips = append(s.Skips, ImportSkip{Line: row.Line, Title: strings.TrimSpace(row.Title), Reason: reason})
}

func skipReason(err error) string {
	var verr ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return "store rejected the row: " + err.Error()
}

func (e Engine) importRow(ctx context.Context, v authz.Viewer, row sheet.Row) (viewmodel.Task, error) {
	if strings.TrimSpace(row.Title) == "" {
		return viewmodel.Task{}, invalid("title", "is required")
	}
	due, err := sheet.ParseDate(row.DueDate)
	if err != nil {
		return viewmodel.Task{}, invalid("due_date", "%v", err)
	}
	start, err := sheet.ParseDate(row.StartDate)
	if err != nil {
		return viewmodel.Task{}, invalid("start_date", "%v", err)
	}
	description := strings.TrimSpace(row.Description)
	if description == "" {
		description = strings.TrimSpace(row.Title)
	}
	status := sheet.NormalizeStatus(row.Status)
	opts := TaskCreateOptions{
		Title:           row.Title,
		Description:     description,
		Project:         row.Project,
		Status:          status,
		Priority:        sheet.NormalizePriority(row.Priority),
		Assignee:        row.Assignee,
		StartDate:       deref(start),
		DueDate:         deref(due),
		PercentComplete: sheet.ParsePercent(row.Progress),
		EstimatedHours:  sheet.ParseHours(row.EstimatedHours),
		ActualHours:     sheet.ParseHours(row.ActualHours),
		ReferenceURL:    row.ReferenceURL,
	}
	if status == domain.TaskCancelled {
		opts.Status = domain.TaskTodo
	}
	t, project, err := e.newTask(opts)
	if err != nil {
		return viewmodel.Task{}, err
	}
	t.Status = status

	ctx, span := otel.Tracer(tracerName).Start(ctx, importAction+".row", trace.WithAttributes(attribute.Int("teaminova.line", row.Line)))
	defer span.End()
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.insertTask(callCtx, v, t, project, row.Assignee)
}

// ExportTasks maps tasks to spreadsheet rows with the import header table.
func ExportTasks(tasks []viewmodel.Task) []sheet.Row {
	rows := make([]sheet.Row, 0, len(tasks))
	for i, t := range tasks {
		row := sheet.Row{
			Line:           i + 2,
			Title:          t.Title,
			Description:    t.Description,
			Project:        t.Project.Name,
			Status:         string(t.Status),
			Priority:       string(t.Priority),
			DueDate:        deref(viewmodel.FormatDate(t.DueDate)),
			StartDate:      deref(viewmodel.FormatDate(t.StartDate)),
			Progress:       fmt.Sprintf("%d%%", t.PercentComplete),
			EstimatedHours: sheet.FormatHours(t.EstimatedHours),
			ActualHours:    sheet.FormatHours(t.ActualHours),
		}
		if t.Assignee != nil {
			// A masked email would not resolve on re-import; the name does.
			row.Assignee = t.Assignee.Email
			if row.Assignee == "" || strings.Contains(row.Assignee, authz.MaskToken) {
				row.Assignee = t.Assignee.Name
			}
		}
		if t.ReferenceURL != nil {
			row.ReferenceURL = *t.ReferenceURL
		}
		rows = append(rows, row)
	}
	return rows
}
