// Package sheet reads and writes the task spreadsheet exchanged by import and export.
package sheet

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"teaminova/internal/domain"
)

const SheetName = "Tasks"

// Row is one spreadsheet line as raw cell text. Line is the 1-based sheet row.
type Row struct {
	Line           int
	Title          string
	Description    string
	Project        string
	Status         string
	Priority       string
	Assignee       string
	DueDate        string
	StartDate      string
	Progress       string
	EstimatedHours string
	ActualHours    string
	ReferenceURL   string
}

type column struct {
	header   string
	synonyms []string
	field    func(*Row) *string
}

var columns = []column{
	{"Task Title", []string{"title", "task", "name", "task name"}, func(r *Row) *string { return &r.Title }},
	{"Description", []string{"details", "notes"}, func(r *Row) *string { return &r.Description }},
	{"Project", []string{"project name"}, func(r *Row) *string { return &r.Project }},
	{"Status", []string{"state"}, func(r *Row) *string { return &r.Status }},
	{"Priority", nil, func(r *Row) *string { return &r.Priority }},
	{"Assignee", []string{"assigned to", "owner", "assignee email", "assignee name"}, func(r *Row) *string { return &r.Assignee }},
	{"Due Date", []string{"due", "deadline"}, func(r *Row) *string { return &r.DueDate }},
	{"Start Date", []string{"start", "started"}, func(r *Row) *string { return &r.StartDate }},
	{"Progress", []string{"% complete", "percent complete", "completion"}, func(r *Row) *string { return &r.Progress }},
	{"Estimated Hours", []string{"estimate", "estimated"}, func(r *Row) *string { return &r.EstimatedHours }},
	{"Actual Hours", []string{"actual", "hours spent"}, func(r *Row) *string { return &r.ActualHours }},
	{"Reference URL", []string{"url", "link", "reference"}, func(r *Row) *string { return &r.ReferenceURL }},
}

// Date cells are read as raw serials and converted here.
var dateHeaders = map[string]bool{"Due Date": true, "Start Date": true}

// serialDate turns an Excel date serial into YYYY-MM-DD. Anything that is
// not a positive number is returned unchanged for ParseDate.
func serialDate(value string, date1904 bool) string {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil || serial <= 0 {
		return value
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return value
	}
	return t.Format("2006-01-02")
}

// Headers returns the canonical header row in export order.
func Headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

func lookupColumn(header string) (column, bool) {
	key := strings.ToLower(strings.TrimSpace(header))
	for _, c := range columns {
		if key == strings.ToLower(c.header) {
			return c, true
		}
		for _, s := range c.synonyms {
			if key == s {
				return c, true
			}
		}
	}
	return column{}, false
}

// Read parses the first sheet of an xlsx workbook. The first non-empty row is
// the header; unknown headers are ignored and blank rows are skipped.
func Read(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook properties: %w", err)
	}
	date1904 := props.Date1904 != nil && *props.Date1904

	headerAt := -1
	for i, line := range cells {
		if !blank(line) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return []Row{}, nil
	}
	mapping := make(map[int]column)
	for idx, h := range cells[headerAt] {
		if c, ok := lookupColumn(h); ok {
			mapping[idx] = c
		}
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("no recognised headers in row %d", headerAt+1)
	}

	rows := make([]Row, 0, len(cells)-headerAt-1)
	for i := headerAt + 1; i < len(cells); i++ {
		if blank(cells[i]) {
			continue
		}
		row := Row{Line: i + 1}
		for idx, value := range cells[i] {
			if c, ok := mapping[idx]; ok {
				value = strings.TrimSpace(value)
				if dateHeaders[c.header] {
					value = serialDate(value, date1904)
				}
				*c.field(&row) = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write renders rows into a single-sheet workbook under the canonical headers.
func Write(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c.header
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	for i := range rows {
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = *c.field(&rows[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func blank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var statusSynonyms = map[string]domain.TaskStatus{
	"done":        domain.TaskCompleted,
	"complete":    domain.TaskCompleted,
	"completed":   domain.TaskCompleted,
	"finished":    domain.TaskCompleted,
	"to do":       domain.TaskTodo,
	"todo":        domain.TaskTodo,
	"open":        domain.TaskTodo,
	"new":         domain.TaskTodo,
	"not started": domain.TaskTodo,
	"in progress": domain.TaskInProgress,
	"in-progress": domain.TaskInProgress,
	"doing":       domain.TaskInProgress,
	"wip":         domain.TaskInProgress,
	"started":     domain.TaskInProgress,
	"on hold":     domain.TaskOnHold,
	"on-hold":     domain.TaskOnHold,
	"paused":      domain.TaskOnHold,
	"blocked":     domain.TaskBlocked,
	"stuck":       domain.TaskBlocked,
	"canceled":    domain.TaskCancelled,
	"cancelled":   domain.TaskCancelled,
}

var prioritySynonyms = map[string]domain.Priority{
	"critical":  domain.PriorityCritical,
	"urgent":    domain.PriorityCritical,
	"blocker":   domain.PriorityCritical,
	"p0":        domain.PriorityCritical,
	"high":      domain.PriorityHigh,
	"important": domain.PriorityHigh,
	"p1":        domain.PriorityHigh,
	"medium":    domain.PriorityMedium,
	"normal":    domain.PriorityMedium,
	"p2":        domain.PriorityMedium,
	"low":       domain.PriorityLow,
	"minor":     domain.PriorityLow,
	"p3":        domain.PriorityLow,
}

// NormalizeStatus maps free text to a status; unknown values become todo.
func NormalizeStatus(s string) domain.TaskStatus {
	if st, ok := statusSynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return domain.TaskTodo
}

// NormalizePriority maps free text to a priority; unknown values become medium.
func NormalizePriority(s string) domain.Priority {
	if p, ok := prioritySynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return domain.PriorityMedium
}

var dateLayouts = []string{"2006-01-02", "1/2/2006", "01/02/2006", "2006/01/02", "Jan 2, 2006", "2 Jan 2006", time.RFC3339}

// ParseDate accepts the date formats spreadsheets commonly produce and
// returns YYYY-MM-DD. Empty input yields nil.
func ParseDate(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}

// ParsePercent reads "40", "40%" or a fraction such as "0.4" written by a
// percent-formatted cell. The result is clamped to 0..100.
func ParsePercent(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	explicit := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0
	}
	if !explicit && v > 0 && v < 1 && strings.Contains(s, ".") {
		v *= 100
	}
	return int(math.Max(0, math.Min(100, math.Round(v))))
}

// ParseHours reads a non-negative hour count; anything else is 0.
func ParseHours(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func FormatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
