package jira

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/organizations"
)

// Issue is a search result prepared for display and client-side filtering.
type Issue struct {
	Key            string      `json:"key"`
	Summary        string      `json:"summary"`
	Status         string      `json:"status"`
	StatusSlug     string      `json:"status_slug"`
	StatusCategory string      `json:"status_category"`
	IssueType      string      `json:"issue_type"`
	IssueTypeSlug  string      `json:"issue_type_slug"`
	Assignee       string      `json:"assignee"`
	Reporter       string      `json:"reporter"`
	Labels         []string    `json:"labels"`
	Development    Development `json:"development"`
	Updated        *time.Time  `json:"updated"`
	UpdatedRaw     string      `json:"updated_raw"`
	SearchBlob     string      `json:"search_blob"`
}

// Development is the development panel summary Jira attaches to an issue.
type Development struct {
	Branch      any `json:"branch"`
	Commit      any `json:"commit"`
	PullRequest any `json:"pull_request"`
}

// Count is one bucket of a summary breakdown.
type Count struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// Summary aggregates a list of issues.
type Summary struct {
	Total        int        `json:"total"`
	StatusCounts []Count    `json:"status_counts"`
	TypeCounts   []Count    `json:"type_counts"`
	LatestUpdate *time.Time `json:"latest_update"`
}

// jiraTimeLayouts covers Jira's "+0000" offsets and RFC 3339.
var jiraTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

func parseJiraTime(s string) *time.Time {
	for _, layout := range jiraTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func slugOr(name, fallback string) string {
	if s := organizations.Slugify(name); s != "" {
		return s
	}
	return fallback
}

func nameOr(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}

// Enrich converts a raw search hit.
func Enrich(raw RawIssue) Issue {
	f := raw.Fields
	issue := Issue{
		Key:        raw.Key,
		Summary:    f.Summary,
		Status:     "Unknown",
		IssueType:  "Issue",
		Assignee:   "Unassigned",
		Labels:     []string{},
		UpdatedRaw: f.Updated,
	}
	if f.Status != nil {
		issue.Status = nameOr(f.Status.Name, "Unknown")
		if f.Status.StatusCategory != nil {
			issue.StatusCategory = f.Status.StatusCategory.Key
		}
	}
	if f.IssueType != nil {
		issue.IssueType = nameOr(f.IssueType.Name, "Issue")
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		issue.Assignee = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		issue.Reporter = f.Reporter.DisplayName
	}
	for _, l := range f.Labels {
		if l != "" {
			issue.Labels = append(issue.Labels, l)
		}
	}
	var dev map[string]any
	if json.Unmarshal(f.Development, &dev) == nil && dev != nil {
		issue.Development = Development{Branch: dev["branch"], Commit: dev["commit"], PullRequest: dev["pullRequest"]}
	}
	if f.Updated != "" {
		issue.Updated = parseJiraTime(f.Updated)
	}
	issue.StatusSlug = slugOr(issue.Status, "unknown")
	issue.IssueTypeSlug = slugOr(issue.IssueType, "issue")

	parts := []string{issue.Key, issue.Summary, issue.Status, issue.IssueType, issue.Assignee, strings.Join(issue.Labels, " ")}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	issue.SearchBlob = strings.ToLower(strings.Join(nonEmpty, " "))
	return issue
}

// Summarize counts issues by status and type, most common first with ties
// broken by name.
func Summarize(issues []Issue) Summary {
	s := Summary{Total: len(issues)}
	statuses := map[string]int{}
	types := map[string]int{}
	for _, is := range issues {
		statuses[is.Status]++
		types[is.IssueType]++
		if is.Updated != nil && (s.LatestUpdate == nil || is.Updated.After(*s.LatestUpdate)) {
			s.LatestUpdate = is.Updated
		}
	}
	s.StatusCounts = ranked(statuses, "unknown")
	s.TypeCounts = ranked(types, "issue")
	return s
}

func ranked(counts map[string]int, fallback string) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Slug: slugOr(name, fallback), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
