package jira

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CreatedStatus is the synthetic status prefixing every issue's
// transition sequence, pinned at the creation timestamp.
const CreatedStatus = "Created"

// newSnapshot normalizes a wire issue into a Snapshot. Both native issue
// objects and plain search hits pass through here so the analyzers only
// ever see one shape.
func newSnapshot(ri *restIssue) (*Snapshot, error) {
	s := &Snapshot{
		ID:          ri.ID,
		Key:         ri.Key,
		Summary:     ri.Fields.Summary,
		Description: flattenText(ri.Fields.Description),
		EpicLink:    ri.Fields.EpicLink,
	}
	if ri.Fields.Status != nil {
		s.Status = ri.Fields.Status.Name
	}
	if ri.Fields.IssueType != nil {
		s.IssueType = ri.Fields.IssueType.Name
	}
	if ri.Fields.Priority != nil {
		s.Priority = ri.Fields.Priority.Name
	}
	if ri.Fields.Assignee != nil {
		s.Assignee = displayName(ri.Fields.Assignee)
	}
	if ri.Fields.Reporter != nil {
		s.Reporter = displayName(ri.Fields.Reporter)
	}
	if ri.Fields.Parent != nil && s.EpicLink == "" {
		s.EpicLink = ri.Fields.Parent.Key
	}

	if ri.Fields.Created != "" {
		created, err := ParseTime(ri.Fields.Created)
		if err != nil {
			return nil, fmt.Errorf("issue %s: %w", ri.Key, err)
		}
		s.Created = created
	}
	if ri.Fields.ResolutionDate != "" {
		resolved, err := ParseTime(ri.Fields.ResolutionDate)
		if err != nil {
			return nil, fmt.Errorf("issue %s: %w", ri.Key, err)
		}
		s.Resolved = resolved
	}

	for _, st := range ri.Fields.Subtasks {
		s.Subtasks = append(s.Subtasks, st.Key)
	}
	for _, l := range ri.Fields.IssueLinks {
		if l.OutwardIssue != nil {
			s.Links = append(s.Links, Link{
				Type: l.Type.Name, Outward: true, Key: l.OutwardIssue.Key,
				Summary: l.OutwardIssue.Fields.Summary, Relation: l.Type.Outward,
			})
		}
		if l.InwardIssue != nil {
			s.Links = append(s.Links, Link{
				Type: l.Type.Name, Outward: false, Key: l.InwardIssue.Key,
				Summary: l.InwardIssue.Fields.Summary, Relation: l.Type.Inward,
			})
		}
	}
	if ri.Fields.Comment != nil {
		for _, c := range ri.Fields.Comment.Comments {
			created, err := ParseTime(c.Created)
			if err != nil {
				continue
			}
			s.Comments = append(s.Comments, Comment{
				Author:  displayName(c.Author),
				Created: created,
				Body:    flattenText(c.Body),
			})
		}
		// Comments render newest first.
		sort.Slice(s.Comments, func(i, j int) bool { return s.Comments[i].Created.After(s.Comments[j].Created) })
	}

	s.Transitions = normalizeTransitions(s, ri.Changelog)
	return s, nil
}

// normalizeTransitions extracts status changes from the changelog, sorts
// them chronologically, and prefixes the synthetic Created entry.
func normalizeTransitions(s *Snapshot, cl *restChangelog) []Transition {
	var out []Transition
	if cl != nil {
		for _, h := range cl.Histories {
			at, err := ParseTime(h.Created)
			if err != nil {
				continue
			}
			for _, item := range h.Items {
				if !strings.EqualFold(item.Field, "status") {
					continue
				}
				out = append(out, Transition{
					From:   item.FromString,
					To:     item.ToString,
					At:     at,
					Author: displayName(h.Author),
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })

	first := Transition{To: CreatedStatus, At: s.Created}
	return append([]Transition{first}, out...)
}

// Chain returns the ordered sequence of distinct statuses the issue
// traversed, starting at Created and including the final status.
func (s *Snapshot) Chain() []string {
	chain := make([]string, 0, len(s.Transitions))
	for _, t := range s.Transitions {
		if len(chain) == 0 || chain[len(chain)-1] != t.To {
			chain = append(chain, t.To)
		}
	}
	return chain
}

// ChainKey renders the chain as a single arrow-joined label.
func (s *Snapshot) ChainKey() string {
	return strings.Join(s.Chain(), " -> ")
}

// sortByKeySuffix orders issues by the numeric part of their key.
func sortByKeySuffix(issues []*Snapshot) {
	sort.Slice(issues, func(i, j int) bool {
		return keySuffix(issues[i].Key) < keySuffix(issues[j].Key)
	})
}

func keySuffix(key string) int {
	if i := strings.LastIndex(key, "-"); i >= 0 {
		if n, err := strconv.Atoi(key[i+1:]); err == nil {
			return n
		}
	}
	return 0
}

func displayName(u *restUser) string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.AccountID
}

// flattenText renders a v2 string or a v3 ADF document to plain text.
func flattenText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		var sb strings.Builder
		flattenADF(t, &sb)
		return strings.TrimSpace(sb.String())
	default:
		return fmt.Sprint(v)
	}
}

func flattenADF(node map[string]any, sb *strings.Builder) {
	if text, ok := node["text"].(string); ok {
		sb.WriteString(text)
	}
	if nodeType, _ := node["type"].(string); nodeType == "paragraph" && sb.Len() > 0 {
		sb.WriteString("\n")
	}
	if content, ok := node["content"].([]any); ok {
		for _, child := range content {
			if m, ok := child.(map[string]any); ok {
				flattenADF(m, sb)
			}
		}
	}
}
