package derive

import (
	"fmt"
	"sort"
	"time"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

type GroupKey string

const (
	GroupByProject  GroupKey = "project"
	GroupBySeverity GroupKey = "severity"
	GroupByDate     GroupKey = "date"
	GroupByOwner    GroupKey = "owner"
	GroupByNone     GroupKey = "none"
)

const (
	NoTargetDateGroup = "No Target Date"
	UnassignedGroup   = "Unassigned"
	AllIssuesGroup    = "All Issues"
	groupDateLayout   = "Jan 2, 2006"
)

func ParseGroupKey(s string) (GroupKey, error) {
	switch k := GroupKey(s); k {
	case GroupByProject, GroupBySeverity, GroupByDate, GroupByOwner, GroupByNone:
		return k, nil
	case "":
		return GroupByNone, nil
	}
	return "", fmt.Errorf("invalid group key %q", s)
}

type IssueGroup struct {
	Name   string            `json:"name"`
	Issues []viewmodel.Issue `json:"issues"`
}

// GroupIssues partitions issues into named buckets. Buckets appear in first-seen order except
// severity, which follows critical, high, medium, low and omits empty buckets.
func GroupIssues(issues []viewmodel.Issue, key GroupKey) []IssueGroup {
	groups := []IssueGroup{}
	if len(issues) == 0 {
		return groups
	}
	switch key {
	case GroupBySeverity:
		bySeverity := map[domain.Severity][]viewmodel.Issue{}
		for _, i := range issues {
			bySeverity[i.Severity] = append(bySeverity[i.Severity], i)
		}
		for _, s := range domain.Severities {
			if len(bySeverity[s]) > 0 {
				groups = append(groups, IssueGroup{Name: string(s), Issues: bySeverity[s]})
			}
		}
		return groups
	case GroupByProject:
		return bucket(issues, func(i viewmodel.Issue) string { return i.Project.Name })
	case GroupByOwner:
		return bucket(issues, func(i viewmodel.Issue) string {
			if i.Owner == nil {
				return UnassignedGroup
			}
			return i.Owner.Name
		})
	case GroupByDate:
		sorted := append([]viewmodel.Issue(nil), issues...)
		sort.SliceStable(sorted, func(a, b int) bool {
			return issueSortDate(sorted[a]).Before(issueSortDate(sorted[b]))
		})
		// The no-target bucket lands wherever its earliest issue sorts.
		return bucket(sorted, func(i viewmodel.Issue) string {
			if i.TargetResolutionDate == nil {
				return NoTargetDateGroup
			}
			return i.TargetResolutionDate.Format(groupDateLayout)
		})
	default:
		return []IssueGroup{{Name: AllIssuesGroup, Issues: append([]viewmodel.Issue(nil), issues...)}}
	}
}

func issueSortDate(i viewmodel.Issue) time.Time {
	if i.TargetResolutionDate != nil {
		return *i.TargetResolutionDate
	}
	return i.DateIdentified
}

func bucket(issues []viewmodel.Issue, name func(viewmodel.Issue) string) []IssueGroup {
	var groups []IssueGroup
	index := map[string]int{}
	for _, i := range issues {
		n := name(i)
		pos, ok := index[n]
		if !ok {
			pos = len(groups)
			index[n] = pos
			groups = append(groups, IssueGroup{Name: n})
		}
		groups[pos].Issues = append(groups[pos].Issues, i)
	}
	return groups
}
