// Package jira provides the REST client and the normalized IssueSnapshot
// the analyzers consume. All changelog shapes are normalized into one
// snapshot record before analysis; timestamps are UTC.
package jira

import (
	"fmt"
	"time"
)

// jiraTime is the timestamp format Jira emits on fields and changelogs.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// ParseTime parses a Jira timestamp into UTC.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(jiraTime, s)
	if err != nil {
		// Some deployments emit RFC3339.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse jira timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

// Wire DTOs for the Jira REST surface.

type restIssue struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Fields    restFields     `json:"fields"`
	Changelog *restChangelog `json:"changelog,omitempty"`
}

type restFields struct {
	Summary        string         `json:"summary"`
	Description    any            `json:"description"` // string (v2) or ADF document (v3)
	Status         *restNamed     `json:"status"`
	IssueType      *restNamed     `json:"issuetype"`
	Priority       *restNamed     `json:"priority"`
	Created        string         `json:"created"`
	ResolutionDate string         `json:"resolutiondate"`
	Assignee       *restUser      `json:"assignee"`
	Reporter       *restUser      `json:"reporter"`
	Parent         *restParent    `json:"parent"`
	IssueLinks     []restLink     `json:"issuelinks"`
	Subtasks       []restParent   `json:"subtasks"`
	Comment        *restComments  `json:"comment"`
	EpicLink       string         `json:"customfield_10014"`
}

type restNamed struct {
	Name string `json:"name"`
}

type restUser struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

type restParent struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string     `json:"summary"`
		Status  *restNamed `json:"status"`
	} `json:"fields"`
}

type restLink struct {
	Type struct {
		Name    string `json:"name"`
		Inward  string `json:"inward"`
		Outward string `json:"outward"`
	} `json:"type"`
	OutwardIssue *restParent `json:"outwardIssue"`
	InwardIssue  *restParent `json:"inwardIssue"`
}

type restComments struct {
	Comments []restComment `json:"comments"`
}

type restComment struct {
	Author  *restUser `json:"author"`
	Created string    `json:"created"`
	Body    any       `json:"body"` // string (v2) or ADF (v3)
}

type restChangelog struct {
	Histories []restHistory `json:"histories"`
}

type restHistory struct {
	Created string    `json:"created"`
	Author  *restUser `json:"author"`
	Items   []struct {
		Field      string `json:"field"`
		FromString string `json:"fromString"`
		ToString   string `json:"toString"`
	} `json:"items"`
}

type searchResult struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []restIssue `json:"issues"`
}

// Comment is one normalized issue comment.
type Comment struct {
	Author  string
	Created time.Time
	Body    string
}

// Link is one normalized issue link, outward or inward.
type Link struct {
	Type     string
	Outward  bool
	Key      string
	Summary  string
	Relation string // the directional phrase, e.g. "blocks" / "is blocked by"
}

// Transition is one status change. The synthetic "Created" entry always
// opens an issue's sequence, pinned at the creation time.
type Transition struct {
	From   string
	To     string
	At     time.Time
	Author string
}

// Snapshot is the normalized issue record the analyzers consume.
type Snapshot struct {
	ID          string
	Key         string
	Summary     string
	Description string
	Status      string
	IssueType   string
	Priority    string
	Created     time.Time
	Resolved    time.Time
	Assignee    string
	Reporter    string
	EpicLink    string
	Subtasks    []string
	Links       []Link
	Comments    []Comment
	Transitions []Transition
}

// IsResolved reports whether the issue carries a resolution timestamp.
func (s *Snapshot) IsResolved() bool { return !s.Resolved.IsZero() }

// Resolver returns the identity that moved the issue into its final
// status, falling back to the assignee and then to "unassigned". Used by
// the assignee run-rate bucketizer.
func (s *Snapshot) Resolver() string {
	for i := len(s.Transitions) - 1; i >= 0; i-- {
		if s.Transitions[i].Author != "" && s.Transitions[i].From != "" {
			return s.Transitions[i].Author
		}
	}
	if s.Assignee != "" {
		return s.Assignee
	}
	return "unassigned"
}
