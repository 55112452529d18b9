package scope

import (
	"fmt"
	"strings"

	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

// Emit converts the blocks discovered on one sheet into scope
// descriptors. A block with a malformed header yields an error instead
// of a descriptor; sibling blocks are unaffected.
func Emit(blocks *tags.SheetBlocks, ref workbook.Ref, timestamp string) ([]*Descriptor, []error) {
	var out []*Descriptor
	var errs []error

	for _, b := range blocks.Blocks {
		if b.Err != nil {
			errs = append(errs, fmt.Errorf("block at row %d on sheet %s: %w", b.AnchorRow, blocks.Sheet, b.Err))
			continue
		}
		if b.Kind == tags.KindAIInline {
			// Inline ai columns ride inside their jira block's schema.
			continue
		}

		d := &Descriptor{
			FileInfo: FileInfo{
				Basename: ref.Basename(),
				Source:   ref.String(),
				Sheet:    blocks.Sheet,
				Table:    tableName(b),
			},
			Kind:               b.Kind,
			Fields:             b.Schema,
			Params:             b.Params,
			JQL:                b.Params.JQL,
			LLM:                b.Params.LLMPrompt,
			Row:                b.AnchorRow,
			Col:                b.AnchorCol,
			LastRow:            b.LastDataRow,
			LastUpdateRowCount: b.LastUpdateRowCount,
			Timestamp:          timestamp,
		}

		var createScope *Descriptor
		switch b.Kind {
		case tags.KindJira:
			t, ok := blocks.Tables[b.TableName]
			if !ok || t.Block != b {
				// Shadowed by a later duplicate; the surviving block owns
				// the table.
				continue
			}
			d.JiraIDs, d.RowNums = rowIdentities(t)
			createScope = createDescriptor(d, t, timestamp)
		case tags.KindAIBrief:
			d.Params.Refs = normalizeRefs(b.Params.Refs, blocks.Sheet)
			// Brief scopes never embed issue ids; their inputs are the
			// upstream table artifacts.
			d.JiraIDs = nil
		}

		d.FileInfo.ScopeFile = d.fileName()
		out = append(out, d)
		if createScope != nil {
			out = append(out, createScope)
		}
	}
	return out, errs
}

// createDescriptor splits off the create-path scope for data rows that
// carry a summary but no key yet. Nil when no such rows exist.
func createDescriptor(parent *Descriptor, t *tags.Table, timestamp string) *Descriptor {
	keyCol := t.Block.Schema.Col(tags.FieldKey)
	summaryCol := t.Block.Schema.Col(tags.FieldSummary)
	if keyCol == 0 || summaryCol == 0 {
		return nil
	}
	var rows []int
	for i, cells := range t.Rows {
		key := cellAt(cells, keyCol)
		if key == "" && cellAt(cells, summaryCol) != "" {
			rows = append(rows, t.RowNums[i])
		}
	}
	if len(rows) == 0 {
		return nil
	}
	c := &Descriptor{
		FileInfo:  parent.FileInfo,
		Kind:      tags.KindJira,
		Fields:    parent.Fields,
		Params:    parent.Params,
		JQL:       parent.JQL,
		Row:       parent.Row,
		Col:       parent.Col,
		LastRow:   parent.LastRow,
		RowNums:   rows,
		Create:    true,
		Timestamp: timestamp,
	}
	c.LastUpdateRowCount = parent.LastUpdateRowCount
	c.FileInfo.ScopeFile = c.fileName()
	return c
}

func cellAt(cells []string, col int) string {
	if col >= 1 && col <= len(cells) {
		return strings.TrimSpace(cells[col-1])
	}
	return ""
}

// tableName picks the descriptor's table segment, falling back to a
// positional name for unlabeled non-jira blocks.
func tableName(b *tags.Block) string {
	if b.TableName != "" {
		return b.TableName
	}
	return fmt.Sprintf("%s_r%d", b.Kind, b.AnchorRow)
}

// rowIdentities extracts each data row's identity cell: an issue key, an
// embedded per-row JQL expression, or empty for rows pending creation.
// The slice is positionally aligned with RowNums.
func rowIdentities(t *tags.Table) ([]string, []int) {
	keyCol := t.Block.Schema.Col(tags.FieldKey)
	ids := make([]string, len(t.Rows))
	for i, cells := range t.Rows {
		if keyCol >= 1 && keyCol <= len(cells) {
			ids[i] = strings.TrimSpace(cells[keyCol-1])
		}
	}
	nums := make([]int, len(t.RowNums))
	copy(nums, t.RowNums)
	return ids, nums
}

// normalizeRefs strips the redundant sheet prefix from same-sheet table
// references so descriptors stay stable across sheet renames.
func normalizeRefs(refs []string, sheet string) []string {
	out := make([]string, 0, len(refs))
	prefix := strings.ToLower(sheet) + "."
	for _, r := range refs {
		if strings.HasPrefix(strings.ToLower(r), prefix) {
			r = r[len(prefix):]
		}
		out = append(out, r)
	}
	return out
}
