package analyze

import (
	"context"
	"fmt"
	"strings"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/workbook"
)

const briefPrompt = "Write an executive summary of the project status for leadership: " +
	"key accomplishments, risks, blockers and next steps."

// runBrief aggregates the referenced upstream tables' jira-CSVs into one
// context, asks the LLM for an executive summary, and writes the result
// into the cell directly below the anchor. Missing upstream tables are a
// warning reflected in the written text, not a failure.
func runBrief(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	var texts []string
	var missing []string
	for _, ref := range d.Params.Refs {
		sheet, table := splitRef(ref, d.FileInfo.Sheet)
		name := CSVName(d.FileInfo.Basename, sheet, table, d.Timestamp)
		if !env.Dir.Exists(name) {
			missing = append(missing, ref)
			continue
		}
		data, err := readArtifact(env, name)
		if err != nil {
			missing = append(missing, ref)
			continue
		}
		doc, err := ParseDoc(data)
		if err != nil {
			return nil, fmt.Errorf("brief %s: %w", d.FileInfo.Table, err)
		}
		texts = append(texts, docContext(ref, doc)...)
	}
	if len(missing) > 0 {
		env.Log.Warn("%v: brief %s missing tables %s", ErrDataIncomplete, d.FileInfo.Table, strings.Join(missing, ", "))
	}

	contextName := artifacts.Name(d.FileInfo.Basename, d.FileInfo.Sheet, d.FileInfo.Table, d.Timestamp, "context", "txt")
	if _, err := env.Dir.WriteFile(contextName, []byte(strings.Join(texts, "\n"))); err != nil {
		return nil, err
	}

	var out string
	if len(texts) == 0 {
		out = fmt.Sprintf("%s %s: no upstream data for %s", ErrorCellPrefix, d.Timestamp, strings.Join(missing, ", "))
	} else {
		out = summarize(ctx, env, d, texts, briefPrompt)
		if len(missing) > 0 {
			out += " (missing context: " + strings.Join(missing, ", ") + ")"
		}
	}

	responseName := artifacts.Name(d.FileInfo.Basename, d.FileInfo.Sheet, d.FileInfo.Table, d.Timestamp, "llm", "txt")
	if _, err := env.Dir.WriteFile(responseName, []byte(out)); err != nil {
		return nil, err
	}

	value := cellSafe(out)
	cs := NewChangeSet(d.FileInfo.Sheet)
	writeRow, writeCol := d.Row+1, d.Col
	cs.Update(writeRow, writeCol, value, grid.Cell(writeRow, writeCol))

	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}

	if len(d.Params.Emails) > 0 && env.Mailer != nil {
		subject := fmt.Sprintf("AI brief: %s / %s", d.FileInfo.Basename, d.FileInfo.Table)
		if err := env.Mailer.Send(ctx, d.Params.Emails, subject, out); err != nil {
			env.Log.Warn("failed to email brief %s: %v", d.FileInfo.Table, err)
		}
	}
	return &Result{Changes: cs}, nil
}

// splitRef resolves a possibly sheet-dotted table reference.
func splitRef(ref, currentSheet string) (sheet, table string) {
	if i := strings.Index(ref, "."); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return currentSheet, ref
}

// docContext renders one upstream table's rows for the LLM context.
func docContext(ref string, doc *Doc) []string {
	texts := []string{"Table " + ref}
	for _, row := range doc.Rows {
		var parts []string
		for i, f := range doc.Fields {
			if i < len(row) && row[i] != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", f.Name, row[i]))
			}
		}
		texts = append(texts, strings.Join(parts, "; "))
	}
	return texts
}

// cellSafe makes an LLM response fit a single cell: newlines collapse to
// semicolons and the CSV delimiter is escaped.
func cellSafe(s string) string {
	return strings.ReplaceAll(oneLine(s), fieldSep, "/")
}
