package analyze

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

// jqlRowPrefix marks a key cell carrying an embedded query instead of an
// issue key.
const jqlRowPrefix = "JQL"

// bulletPrefix opens each issue entry in concatenated multi-issue cells.
const bulletPrefix = "▫️ "

var projectRe = regexp.MustCompile(`(?i)project\s*=\s*([A-Za-z][A-Za-z0-9]*)`)

// runRows is the row-update analyzer for <jira> blocks and for chain
// scopes. Chain scopes only produce their jira-CSV; they target no
// cells.
func runRows(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	if d.ChainID != "" {
		return runChainRows(ctx, env, d)
	}
	if len(d.Fields) == 0 {
		return nil, fmt.Errorf("%w: scope %s has no field schema", ErrFatalConfig, d.FileInfo.ScopeFile)
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	doc := newDoc(d)

	for i, id := range d.JiraIDs {
		if i >= len(d.RowNums) {
			break
		}
		row := d.RowNums[i]
		switch {
		case id == "":
			// Keyless rows belong to the create scope.
		case isJQLRow(id):
			if err := fillJQLRow(ctx, env, d, grid, cs, doc, row, id); err != nil {
				return nil, err
			}
		default:
			if err := fillIssueRow(ctx, env, d, grid, cs, doc, row, id); err != nil {
				return nil, err
			}
		}
	}

	if err := env.saveCSV(d, doc); err != nil {
		return nil, err
	}
	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return &Result{Changes: cs}, nil
}

// runChainRows materializes the jira-CSV behind one chain scope.
func runChainRows(ctx context.Context, env *Env, d *scope.Descriptor) (*Result, error) {
	snaps, err := env.Jira.SearchKeys(ctx, d.JiraIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain %s issues: %w", d.ChainID, err)
	}
	doc := newDoc(d)
	doc.Fields = chainSchema()
	for _, s := range snaps {
		doc.AddRow([]string{s.Key, s.Summary, s.Status, s.Assignee, commentsText(s)})
	}
	if err := env.saveCSV(d, doc); err != nil {
		return nil, err
	}
	return &Result{Changes: NewChangeSet(d.FileInfo.Sheet)}, nil
}

// chainSchema is the canonical field set captured for chain CSVs.
func chainSchema() tags.Schema {
	return tags.Schema{
		{Name: tags.FieldKey, Col: 1},
		{Name: tags.FieldSummary, Col: 2},
		{Name: tags.FieldStatus, Col: 3},
		{Name: tags.FieldAssignee, Col: 4},
		{Name: tags.FieldComments, Col: 5},
	}
}

// isJQLRow reports whether a key cell embeds a query. The prefix must be
// followed by whitespace so an issue key in a project named JQL, such as
// "JQL-5", stays a plain key.
func isJQLRow(id string) bool {
	if len(id) <= len(jqlRowPrefix) || !strings.EqualFold(id[:len(jqlRowPrefix)], jqlRowPrefix) {
		return false
	}
	next := id[len(jqlRowPrefix)]
	return next == ' ' || next == '\t'
}

func fillIssueRow(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid, cs *ChangeSet, doc *Doc, row int, key string) error {
	s, err := env.Jira.Issue(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to fetch %s for row %d: %w", key, row, err)
	}
	values := make([]string, len(d.Fields))
	for fi, f := range d.Fields {
		value := renderField(ctx, env, d, f, s)
		values[fi] = value
		old := grid.Cell(row, f.Col)
		if value != old && value != "" {
			cs.Update(row, f.Col, value, old)
		}
	}
	doc.AddRow(values)
	return nil
}

// fillJQLRow expands an embedded query into one aggregated row: each
// semantic field carries the concatenated per-issue data.
func fillJQLRow(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid, cs *ChangeSet, doc *Doc, row int, id string) error {
	query := strings.TrimSpace(id[len(jqlRowPrefix):])
	snaps, err := env.Jira.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to expand jql row %d: %w", row, err)
	}
	values := make([]string, len(d.Fields))
	for fi, f := range d.Fields {
		value := renderJQLField(ctx, env, d, f, id, snaps)
		values[fi] = value
		old := grid.Cell(row, f.Col)
		if value != old && value != "" {
			cs.Update(row, f.Col, value, old)
		}
	}
	doc.AddRow(values)
	return nil
}

// renderField produces one cell value for a single issue.
func renderField(ctx context.Context, env *Env, d *scope.Descriptor, f tags.Field, s *jira.Snapshot) string {
	switch f.Name {
	case tags.FieldKey, tags.FieldURL:
		return "URL " + s.Key
	case tags.FieldID:
		return s.ID
	case tags.FieldSummary:
		return s.Summary
	case tags.FieldDescription:
		return s.Description
	case tags.FieldStatus:
		return s.Status
	case tags.FieldIssueType:
		return s.IssueType
	case tags.FieldPriority:
		return s.Priority
	case tags.FieldCreated:
		return s.Created.Format("2006-01-02")
	case tags.FieldAssignee:
		if s.Assignee == "" {
			return "unassigned"
		}
		return s.Assignee
	case tags.FieldReporter:
		return s.Reporter
	case tags.FieldComments:
		return commentsText(s)
	case tags.FieldChildren:
		return childrenText(ctx, env, s)
	case tags.FieldLinks:
		return linksText(s)
	case tags.FieldHeadline:
		return fmt.Sprintf("[%s] %s (%s)", s.Key, s.Summary, s.Status)
	case tags.FieldSynopsis:
		return summarize(ctx, env, d, issueTexts(s), "")
	case tags.FieldAI:
		return summarize(ctx, env, d, issueTexts(s), f.Prompt)
	case tags.FieldTimestamp:
		return d.Timestamp
	}
	return ""
}

// renderJQLField produces one aggregated cell value across all matched
// issues.
func renderJQLField(ctx context.Context, env *Env, d *scope.Descriptor, f tags.Field, id string, snaps []*jira.Snapshot) string {
	switch f.Name {
	case tags.FieldKey, tags.FieldURL:
		// Keep the query so writeback can build the search hyperlink.
		return "URL " + id
	case tags.FieldSummary:
		return bulletJoin(snaps, func(s *jira.Snapshot) string { return s.Summary })
	case tags.FieldStatus:
		return bulletJoin(snaps, func(s *jira.Snapshot) string { return s.Status })
	case tags.FieldAssignee:
		return bulletJoin(snaps, func(s *jira.Snapshot) string {
			if s.Assignee == "" {
				return "unassigned"
			}
			return s.Assignee
		})
	case tags.FieldHeadline:
		resolved := 0
		for _, s := range snaps {
			if s.IsResolved() {
				resolved++
			}
		}
		return fmt.Sprintf("%d issues, %d resolved", len(snaps), resolved)
	case tags.FieldSynopsis, tags.FieldAI:
		var texts []string
		for _, s := range snaps {
			texts = append(texts, issueTexts(s)...)
		}
		return summarize(ctx, env, d, texts, f.Prompt)
	case tags.FieldTimestamp:
		return d.Timestamp
	}
	return ""
}

// runCreate is the enumerated create path: rows carrying a summary but
// no key become new issues and their key cell is filled.
func runCreate(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	keyCol := d.Fields.Col(tags.FieldKey)
	summaryCol := d.Fields.Col(tags.FieldSummary)
	descCol := d.Fields.Col(tags.FieldDescription)
	typeCol := d.Fields.Col(tags.FieldIssueType)
	stampCol := d.Fields.Col(tags.FieldTimestamp)
	if keyCol == 0 || summaryCol == 0 {
		return nil, fmt.Errorf("%w: create scope %s needs key and summary columns", ErrFatalConfig, d.FileInfo.ScopeFile)
	}
	project := deriveProject(d)
	if project == "" {
		return nil, fmt.Errorf("%w: cannot derive a jira project for create scope %s", ErrFatalConfig, d.FileInfo.ScopeFile)
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	for _, row := range d.RowNums {
		req := jira.CreateRequest{
			Project: project,
			Summary: grid.Cell(row, summaryCol),
		}
		if descCol != 0 {
			req.Description = grid.Cell(row, descCol)
		}
		if typeCol != 0 {
			req.IssueType = grid.Cell(row, typeCol)
		}
		key, err := env.Jira.Create(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create issue for row %d: %w", row, err)
		}
		env.Log.Info("created %s from row %d", key, row)
		cs.Update(row, keyCol, "URL "+key, "")
		if stampCol != 0 {
			cs.Update(row, stampCol, d.Timestamp, grid.Cell(row, stampCol))
		}
	}

	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return &Result{Changes: cs}, nil
}

// deriveProject extracts the project key from the block's JQL.
func deriveProject(d *scope.Descriptor) string {
	if m := projectRe.FindStringSubmatch(d.JQL); m != nil {
		return strings.ToUpper(m[1])
	}
	if len(d.Params.Projects) > 0 {
		return strings.ToUpper(d.Params.Projects[0])
	}
	return ""
}

// summarize calls the LLM, converting failures into visible cell text so
// the refresh continues.
func summarize(ctx context.Context, env *Env, d *scope.Descriptor, texts []string, hint string) string {
	if hint == "" {
		hint = d.LLM
	}
	if env.LLM == nil {
		return errorCell(d.Timestamp, fmt.Errorf("no summarizer configured"))
	}
	out, err := env.LLM.Summarize(ctx, texts, hint)
	if err != nil {
		env.Log.Warn("llm summary failed for %s: %v", d.FileInfo.Table, err)
		return errorCell(d.Timestamp, err)
	}
	return out
}

// issueTexts assembles the summarization corpus of one issue.
func issueTexts(s *jira.Snapshot) []string {
	texts := []string{fmt.Sprintf("[%s] %s", s.Key, s.Summary)}
	if s.Description != "" {
		texts = append(texts, s.Description)
	}
	for _, c := range s.Comments {
		texts = append(texts, fmt.Sprintf("%s (%s): %s", c.Author, c.Created.Format("2006-01-02"), c.Body))
	}
	return texts
}

func commentsText(s *jira.Snapshot) string {
	var parts []string
	for _, c := range s.Comments {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", c.Author, c.Created.Format("2006-01-02"), oneLine(c.Body)))
	}
	return strings.Join(parts, ";")
}

func childrenText(ctx context.Context, env *Env, s *jira.Snapshot) string {
	if !strings.EqualFold(s.IssueType, "Epic") {
		return ""
	}
	children, err := env.Jira.EpicChildren(ctx, s.Key)
	if err != nil {
		env.Log.Warn("failed to resolve children of %s: %v", s.Key, err)
		return ""
	}
	return bulletJoin(children, func(c *jira.Snapshot) string { return c.Summary })
}

func linksText(s *jira.Snapshot) string {
	var parts []string
	for _, l := range s.Links {
		parts = append(parts, fmt.Sprintf("%s [%s] %s", l.Relation, l.Key, l.Summary))
	}
	return strings.Join(parts, ";")
}

// bulletJoin renders "▫️ [KEY] value" entries joined by ";".
func bulletJoin(snaps []*jira.Snapshot, value func(*jira.Snapshot) string) string {
	var parts []string
	for _, s := range snaps {
		parts = append(parts, fmt.Sprintf("%s[%s] %s", bulletPrefix, s.Key, value(s)))
	}
	return strings.Join(parts, ";")
}
