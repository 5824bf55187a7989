package jira

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawIssue(t *testing.T, js string) RawIssue {
	t.Helper()
	var r RawIssue
	require.NoError(t, json.Unmarshal([]byte(js), &r))
	return r
}

func TestEnrich_Defaults(t *testing.T) {
	is := Enrich(rawIssue(t, `{"key": "OPS-7", "fields": {"summary": "Rotate keys"}}`))

	assert.Equal(t, "Unknown", is.Status)
	assert.Equal(t, "unknown", is.StatusSlug)
	assert.Equal(t, "Issue", is.IssueType)
	assert.Equal(t, "issue", is.IssueTypeSlug)
	assert.Equal(t, "Unassigned", is.Assignee)
	assert.Empty(t, is.Labels)
	assert.Nil(t, is.Updated)
	assert.Equal(t, "ops-7 rotate keys unknown issue unassigned", is.SearchBlob)
}

func TestEnrich_FullIssue(t *testing.T) {
	is := Enrich(rawIssue(t, `{"key": "WEB-12", "fields": {
		"summary": "Checkout Button",
		"status": {"name": "In Progress", "statusCategory": {"key": "indeterminate"}},
		"issuetype": {"name": "User Story"},
		"assignee": {"displayName": "Sam Lee"},
		"reporter": {"displayName": "Ana"},
		"labels": ["Frontend", "", "q3"],
		"development": {"branch": 1, "pullRequest": {"state": "OPEN"}},
		"updated": "2025-03-04T10:20:30.000+0000"
	}}`))

	assert.Equal(t, "In Progress", is.Status)
	assert.Equal(t, "in-progress", is.StatusSlug)
	assert.Equal(t, "indeterminate", is.StatusCategory)
	assert.Equal(t, "user-story", is.IssueTypeSlug)
	assert.Equal(t, "Sam Lee", is.Assignee)
	assert.Equal(t, "Ana", is.Reporter)
	assert.Equal(t, []string{"Frontend", "q3"}, is.Labels)
	assert.EqualValues(t, 1, is.Development.Branch)
	assert.Nil(t, is.Development.Commit)
	assert.NotNil(t, is.Development.PullRequest)
	require.NotNil(t, is.Updated)
	assert.Equal(t, 2025, is.Updated.Year())
	assert.Equal(t, "web-12 checkout button in progress user story sam lee frontend q3", is.SearchBlob)
}

func TestSummarize_RanksByCountThenName(t *testing.T) {
	issues := []Issue{
		Enrich(rawIssue(t, `{"key": "A-1", "fields": {"status": {"name": "To Do"}, "issuetype": {"name": "Bug"}, "updated": "2025-01-01T00:00:00.000+0000"}}`)),
		Enrich(rawIssue(t, `{"key": "A-2", "fields": {"status": {"name": "Done"}, "issuetype": {"name": "Task"}, "updated": "2025-02-01T00:00:00.000+0000"}}`)),
		Enrich(rawIssue(t, `{"key": "A-3", "fields": {"status": {"name": "To Do"}, "issuetype": {"name": "Task"}}}`)),
		Enrich(rawIssue(t, `{"key": "A-4", "fields": {"status": {"name": "Blocked"}, "issuetype": {"name": "Bug"}}}`)),
	}

	s := Summarize(issues)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, []Count{
		{Name: "To Do", Slug: "to-do", Count: 2},
		{Name: "Blocked", Slug: "blocked", Count: 1},
		{Name: "Done", Slug: "done", Count: 1},
	}, s.StatusCounts)
	assert.Equal(t, []Count{
		{Name: "Bug", Slug: "bug", Count: 2},
		{Name: "Task", Slug: "task", Count: 2},
	}, s.TypeCounts)
	require.NotNil(t, s.LatestUpdate)
	assert.Equal(t, "2025-02-01", s.LatestUpdate.Format("2006-01-02"))
}

func TestPickJiraResource(t *testing.T) {
	resources := []Resource{
		{ID: "conf", Name: "Wiki", ResourceType: "confluence"},
		{CloudID: "c-2", Name: "Scoped", Scopes: []string{"read:jira-work"}},
		{ID: "c-3", Name: "Typed", ResourceType: "jira"},
	}
	picked := PickJiraResource(resources)
	require.NotNil(t, picked)
	assert.Equal(t, "c-2", picked.SiteID())

	assert.Nil(t, PickJiraResource([]Resource{{ResourceType: "jira"}}))
}
