package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teaminova/internal/domain"
	"teaminova/internal/viewmodel"
)

func issue(id, project string, sev domain.Severity, identified time.Time, target *time.Time, owner string) viewmodel.Issue {
	i := viewmodel.Issue{
		ID:                   id,
		Project:              viewmodel.ProjectRef{ID: project, Name: project},
		Severity:             sev,
		DateIdentified:       identified,
		TargetResolutionDate: target,
	}
	if owner != "" {
		i.Owner = &viewmodel.Person{ID: owner, Name: owner}
	}
	return i
}

func names(groups []IssueGroup) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

func TestGroupIssuesBySeverityFixedOrder(t *testing.T) {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issues := []viewmodel.Issue{
		issue("1", "Apollo", domain.SeverityLow, d, nil, ""),
		issue("2", "Apollo", domain.SeverityCritical, d, nil, ""),
		issue("3", "Apollo", domain.SeverityLow, d, nil, ""),
	}
	groups := GroupIssues(issues, GroupBySeverity)
	assert.Equal(t, []string{"critical", "low"}, names(groups))
	assert.Len(t, groups[1].Issues, 2)
}

func TestGroupIssuesByDate(t *testing.T) {
	issues := []viewmodel.Issue{
		issue("late", "A", domain.SeverityLow, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), date(2024, 5, 1), ""),
		issue("none", "A", domain.SeverityLow, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil, ""),
		issue("soon", "A", domain.SeverityLow, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), date(2024, 3, 1), ""),
		issue("soon-2", "A", domain.SeverityLow, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), date(2024, 3, 1), ""),
	}
	groups := GroupIssues(issues, GroupByDate)
	// "none" sorts by its identified date (Feb 1) and keeps that position.
	assert.Equal(t, []string{NoTargetDateGroup, "Mar 1, 2024", "May 1, 2024"}, names(groups))
	assert.Len(t, groups[1].Issues, 2)
}

func TestGroupIssuesByOwnerProjectAndNone(t *testing.T) {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issues := []viewmodel.Issue{
		issue("1", "Zeus", domain.SeverityLow, d, nil, "Ana"),
		issue("2", "Apollo", domain.SeverityLow, d, nil, ""),
		issue("3", "Zeus", domain.SeverityLow, d, nil, "Ana"),
	}
	assert.Equal(t, []string{"Ana", UnassignedGroup}, names(GroupIssues(issues, GroupByOwner)))
	assert.Equal(t, []string{"Zeus", "Apollo"}, names(GroupIssues(issues, GroupByProject)))
	none := GroupIssues(issues, GroupByNone)
	require.Len(t, none, 1)
	assert.Len(t, none[0].Issues, 3)
	assert.Empty(t, GroupIssues(nil, GroupBySeverity))
}

func TestParseGroupKey(t *testing.T) {
	k, err := ParseGroupKey("")
	require.NoError(t, err)
	assert.Equal(t, GroupByNone, k)
	_, err = ParseGroupKey("assignee")
	assert.Error(t, err)
}
