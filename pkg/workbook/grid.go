package workbook

import "strings"

// Coord addresses one cell with 1-based row and column.
type Coord struct {
	Row int
	Col int
}

// Grid is the uniform in-memory cell matrix every store materializes to,
// so block parsing does not care where the workbook came from. Rows and
// columns are 1-based; missing cells read as "".
type Grid struct {
	SheetName string
	rows      [][]string
}

// NewGrid builds a grid from row-major values.
func NewGrid(sheetName string, rows [][]string) *Grid {
	return &Grid{SheetName: sheetName, rows: rows}
}

// RowCount returns the number of populated rows.
func (g *Grid) RowCount() int {
	return len(g.rows)
}

// Cell returns the value at 1-based (row, col), "" when out of range.
func (g *Grid) Cell(row, col int) string {
	if row < 1 || row > len(g.rows) {
		return ""
	}
	r := g.rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// Row returns a copy of the 1-based row, nil when out of range.
func (g *Grid) Row(row int) []string {
	if row < 1 || row > len(g.rows) {
		return nil
	}
	out := make([]string, len(g.rows[row-1]))
	copy(out, g.rows[row-1])
	return out
}

// RowIsBlank reports whether every cell on the row is empty or whitespace.
func (g *Grid) RowIsBlank(row int) bool {
	for _, v := range g.Row(row) {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
