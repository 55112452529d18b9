// Package analyze holds the per-tag analyzers: each consumes one scope
// descriptor, reads Jira, and emits a ChangeSet plus the intermediate
// artifacts (jira-CSV, context text, LLM response, changes text).
package analyze

import (
	"fmt"
	"strings"

	"sheetpulse/pkg/workbook"
)

// ChangeKind distinguishes in-place updates from row inserts.
type ChangeKind string

const (
	ChangeUpdate ChangeKind = "update"
	ChangeInsert ChangeKind = "insert"
)

// CellChange is one cell mutation. Coordinates are 1-based.
type CellChange struct {
	Row      int
	Col      int
	NewValue string
	OldValue string
	Kind     ChangeKind
}

// ChangeSet is the ordered mutation list for one sheet. Writeback
// materializes all inserted rows before setting values.
type ChangeSet struct {
	Sheet   string
	Changes []CellChange
}

// NewChangeSet targets one sheet.
func NewChangeSet(sheet string) *ChangeSet {
	return &ChangeSet{Sheet: sheet}
}

// Update records an in-place cell change.
func (cs *ChangeSet) Update(row, col int, newValue, oldValue string) {
	cs.Changes = append(cs.Changes, CellChange{Row: row, Col: col, NewValue: newValue, OldValue: oldValue, Kind: ChangeUpdate})
}

// Insert records a cell change on a row that must first be inserted.
func (cs *ChangeSet) Insert(row, col int, newValue string) {
	cs.Changes = append(cs.Changes, CellChange{Row: row, Col: col, NewValue: newValue, Kind: ChangeInsert})
}

// Empty reports whether the set carries no mutation.
func (cs *ChangeSet) Empty() bool { return cs == nil || len(cs.Changes) == 0 }

// InsertRows returns the distinct rows needing insertion, in ascending
// order and deduplicated.
func (cs *ChangeSet) InsertRows() []int {
	seen := map[int]bool{}
	var rows []int
	for _, c := range cs.Changes {
		if c.Kind == ChangeInsert && !seen[c.Row] {
			seen[c.Row] = true
			rows = append(rows, c.Row)
		}
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j] < rows[j-1]; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
	return rows
}

// Merge appends another set targeting the same sheet.
func (cs *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	cs.Changes = append(cs.Changes, other.Changes...)
}

// RenderText serializes the set into the changes-text artifact: one line
// per change, "{CELL} = {NEW} || {OLD}", inserts flagged by an INSERT
// value prefix.
func (cs *ChangeSet) RenderText() string {
	var sb strings.Builder
	for _, c := range cs.Changes {
		cell := workbook.CellName(c.Col, c.Row)
		value := c.NewValue
		if c.Kind == ChangeInsert {
			value = "INSERT " + value
		}
		fmt.Fprintf(&sb, "%s = %s || %s\n", cell, oneLine(value), oneLine(c.OldValue))
	}
	return sb.String()
}

// oneLine keeps the line-oriented artifact parseable.
func oneLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", ";"), "\n", ";")
}
