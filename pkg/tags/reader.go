package tags

import (
	"fmt"
	"strings"

	"sheetpulse/pkg/workbook"
)

// Block is one taggable region discovered on a sheet. Blocks are created
// by ReadBlocks and never mutated afterwards.
type Block struct {
	Kind      Kind
	TableName string
	AnchorRow int
	AnchorCol int
	Params    Params
	Schema    Schema

	// DataStartRow is the first row after the header; LastDataRow is the
	// last non-empty row observed inside the block region.
	DataStartRow int
	LastDataRow  int
	// LastUpdateRowCount is the number of non-empty rows previously
	// occupying the block, deciding update-vs-insert on writeback.
	LastUpdateRowCount int

	// Err records a malformed tag. The block still appears in the result
	// so the scope emitter can fail it without sinking sibling blocks.
	Err error
}

// Table is the data region of one <jira> block.
type Table struct {
	Name      string
	HeaderRow int
	Rows      [][]string
	RowNums   []int // sheet row number of each data row
	Block     *Block
}

// BriefAnchor marks an <ai brief> cell and the cell one row below where
// the brief's output is written.
type BriefAnchor struct {
	Row      int
	Col      int
	WriteRow int
	WriteCol int
	Block    *Block
}

// SheetBlocks is the result of reading one sheet.
type SheetBlocks struct {
	Sheet        string
	Blocks       []*Block
	Tables       map[string]*Table
	BriefAnchors []BriefAnchor
}

// Options tune a ReadBlocks pass.
type Options struct {
	// TableFilter restricts AI-brief anchor recording to briefs whose
	// reference list contains the name. Empty matches all.
	TableFilter string
	// PrefixSheet prefixes table names with "sheet.", used during
	// cross-sheet dependency resolution so names match the external
	// reference format of <ai brief>.
	PrefixSheet bool
}

// ReadBlocks runs the row state machine over a materialized grid. Blank
// rows are neither starts nor terminators; a header row closes the open
// table; unknown tags are ignored; later duplicate table names shadow
// earlier ones.
func ReadBlocks(grid *workbook.Grid, opts Options) (*SheetBlocks, error) {
	result := &SheetBlocks{
		Sheet:  grid.SheetName,
		Tables: map[string]*Table{},
	}

	var currentBlock *Block
	var currentTable *Table
	filterSeen := opts.TableFilter == ""

	closeCurrent := func() {
		currentBlock = nil
		currentTable = nil
	}

	for row := 1; row <= grid.RowCount(); row++ {
		if grid.RowIsBlank(row) {
			continue
		}

		headerCol, kind := 0, Kind("")
		cells := grid.Row(row)
		for col := 1; col <= len(cells); col++ {
			if k, _, ok := FindTag(cells[col-1]); ok {
				headerCol, kind = col, k
				break
			}
		}

		if headerCol == 0 {
			// Data row for the open block, if any.
			if currentBlock != nil {
				currentBlock.LastDataRow = row
				currentBlock.LastUpdateRowCount++
				if currentTable != nil {
					currentTable.Rows = append(currentTable.Rows, cells)
					currentTable.RowNums = append(currentTable.RowNums, row)
				}
			}
			continue
		}

		// Header row: close whatever is open and start the new block.
		closeCurrent()

		header, err := ParseHeader(grid.Cell(row, headerCol))
		block := &Block{
			Kind:         kind,
			AnchorRow:    row,
			AnchorCol:    headerCol,
			DataStartRow: row + 1,
			Err:          err,
		}
		if header != nil {
			block.Params = header.Params
			block.TableName = header.Label
		}

		// Field columns share the header row.
		for col := 1; col <= len(cells); col++ {
			if col == headerCol {
				continue
			}
			if f, ok := ParseFieldHeader(cells[col-1], col); ok {
				block.Schema = append(block.Schema, f)
			}
		}

		result.Blocks = append(result.Blocks, block)
		currentBlock = block

		switch kind {
		case KindJira:
			name := block.TableName
			if name == "" {
				name = fmt.Sprintf("table_r%d", row)
				block.TableName = name
			}
			if opts.PrefixSheet {
				name = grid.SheetName + "." + name
				block.TableName = name
			}
			currentTable = &Table{Name: name, HeaderRow: row, Block: block}
			result.Tables[name] = currentTable // later duplicates shadow
		case KindAIBrief:
			if header != nil && briefMatchesFilter(header.Params.Refs, opts.TableFilter) {
				filterSeen = true
				result.BriefAnchors = append(result.BriefAnchors, BriefAnchor{
					Row:      row,
					Col:      headerCol,
					WriteRow: row + 1,
					WriteCol: headerCol,
					Block:    block,
				})
			}
		}
	}

	if !filterSeen {
		return nil, fmt.Errorf("no <ai brief> block references table %q on sheet %s", opts.TableFilter, grid.SheetName)
	}
	return result, nil
}

func briefMatchesFilter(refs []string, filter string) bool {
	if filter == "" {
		return true
	}
	for _, r := range refs {
		if strings.EqualFold(r, filter) {
			return true
		}
		// A dotted reference also matches on its table part.
		if i := strings.LastIndex(r, "."); i >= 0 && strings.EqualFold(r[i+1:], filter) {
			return true
		}
	}
	return false
}
