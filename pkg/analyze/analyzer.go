package analyze

import (
	"context"
	"fmt"
	"os"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

// IssueSource is the Jira read surface the analyzers need. *jira.Client
// satisfies it.
type IssueSource interface {
	Issue(ctx context.Context, key string) (*jira.Snapshot, error)
	Search(ctx context.Context, jql string) ([]*jira.Snapshot, error)
	SearchKeys(ctx context.Context, keys []string) ([]*jira.Snapshot, error)
	EpicChildren(ctx context.Context, epicKey string) ([]*jira.Snapshot, error)
	Create(ctx context.Context, req jira.CreateRequest) (string, error)
	BrowseURL(key string) string
	SearchURL(jql string) string
}

// Summarizer is the LLM contract (see pkg/llm).
type Summarizer interface {
	Summarize(ctx context.Context, texts []string, fieldHint string) (string, error)
	Model() string
}

// Shortener shrinks hyperlink targets over the formula limit.
type Shortener interface {
	Shorten(ctx context.Context, long string) (string, error)
}

// Mailer delivers AI briefs.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Env is the shared analyzer environment for one run.
type Env struct {
	Jira      IssueSource
	LLM       Summarizer
	Shortener Shortener
	Mailer    Mailer
	Dir       *artifacts.Dir
	Log       *logx.Logger
}

// Result is one analyzer invocation's output. ChainScopes are secondary
// descriptors the orchestrator dispatches as row scopes before invoking
// the same analyzer a second time.
type Result struct {
	Changes     *ChangeSet
	ChainScopes []*scope.Descriptor
}

// Run dispatches one scope descriptor to its analyzer. The grid is the
// sheet's current cell snapshot, used for old values and create rows.
func Run(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	if env.Jira == nil {
		return nil, fmt.Errorf("%w: no jira client in analyzer environment", ErrFatalConfig)
	}
	switch {
	case d.Create:
		return runCreate(ctx, env, d, grid)
	case d.Kind == tags.KindJira:
		return runRows(ctx, env, d, grid)
	case d.Kind == tags.KindRateResolved:
		return runRateResolved(ctx, env, d, grid)
	case d.Kind == tags.KindRateAssignee:
		return runRateAssignee(ctx, env, d, grid)
	case d.Kind == tags.KindCycleTime:
		return runCycleTime(ctx, env, d, grid)
	case d.Kind == tags.KindStatusTime:
		return runStatusTime(ctx, env, d, grid)
	case d.Kind == tags.KindQuickstart:
		return runQuickstart(ctx, env, d, grid)
	case d.Kind == tags.KindAIBrief:
		return runBrief(ctx, env, d, grid)
	}
	return nil, fmt.Errorf("%w: no analyzer for kind %q", ErrFatalConfig, d.Kind)
}

// saveChanges persists the changes-text artifact for a scope.
func (e *Env) saveChanges(d *scope.Descriptor, cs *ChangeSet) error {
	kind := scope.KindSuffix(d.Kind)
	if d.Create {
		kind = "create"
	}
	name := artifacts.Name(d.FileInfo.Basename, d.FileInfo.Sheet, d.FileInfo.Table, d.Timestamp, kind+".changes", "txt")
	if _, err := e.Dir.WriteFile(name, []byte(cs.RenderText())); err != nil {
		return err
	}
	return nil
}

// saveCSV persists a table's jira-CSV artifact.
func (e *Env) saveCSV(d *scope.Descriptor, doc *Doc) error {
	name := CSVName(d.FileInfo.Basename, d.FileInfo.Sheet, d.FileInfo.Table, d.Timestamp)
	if _, err := e.Dir.WriteFile(name, []byte(doc.Render())); err != nil {
		return err
	}
	return nil
}

// readArtifact loads one named artifact from the run directory.
func readArtifact(e *Env, name string) (string, error) {
	data, err := os.ReadFile(e.Dir.File(name))
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return string(data), nil
}

// newDoc seeds the jira-CSV metadata from the scope.
func newDoc(d *scope.Descriptor) *Doc {
	return &Doc{
		SourceFile: d.FileInfo.Source,
		Basename:   d.FileInfo.Basename,
		ScopeFile:  d.FileInfo.ScopeFile,
		Table:      d.FileInfo.Table,
		Fields:     d.Fields,
	}
}

// writeRegion maps a 1-based output offset below the anchor to a sheet
// row and the update-vs-insert decision. The first LastUpdateRowCount
// data rows are updated in place; rows beyond are inserted.
func writeRegion(d *scope.Descriptor, offset int) (row int, insert bool) {
	return d.Row + offset, offset > d.LastUpdateRowCount
}

// put records one generated-table cell through the region rule, using
// the grid for old values on updates.
func put(cs *ChangeSet, d *scope.Descriptor, grid *workbook.Grid, offset, col int, value string) {
	row, insert := writeRegion(d, offset)
	if insert {
		cs.Insert(row, col, value)
		return
	}
	old := grid.Cell(row, col)
	if old == value {
		return
	}
	cs.Update(row, col, value, old)
}

// clearStaleRows blanks rows a previous refresh filled that this one no
// longer reaches. Offsets maxOffset+1 through LastUpdateRowCount held
// data before and would otherwise survive a shrinking table.
func clearStaleRows(cs *ChangeSet, d *scope.Descriptor, grid *workbook.Grid, maxOffset int) {
	for offset := maxOffset + 1; offset <= d.LastUpdateRowCount; offset++ {
		row := d.Row + offset
		cells := grid.Row(row)
		for col := d.Col; col <= len(cells); col++ {
			if old := cells[col-1]; old != "" {
				cs.Update(row, col, "", old)
			}
		}
	}
}
