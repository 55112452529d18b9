package analyze

import (
	"fmt"
	"strconv"
	"strings"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/tags"
)

// fieldSep is the jira-CSV column delimiter. Newlines inside values are
// replaced with ";" before rendering so one row stays one line.
const fieldSep = "|"

// Doc is the jira-CSV intermediate artifact: a 6-line labeled metadata
// preamble followed by |-delimited rows in field-schema order.
type Doc struct {
	SourceFile string
	Basename   string
	ScopeFile  string
	Table      string
	Fields     tags.Schema
	Rows       [][]string
}

// CSVName builds the artifact name of one table's jira-CSV.
func CSVName(basename, sheet, table, timestamp string) string {
	return artifacts.Name(basename, sheet, table, timestamp, "jira", "csv")
}

// AddRow appends one row of values in schema order.
func (d *Doc) AddRow(values []string) {
	d.Rows = append(d.Rows, values)
}

// Render serializes the document.
func (d *Doc) Render() string {
	indexes := make([]string, len(d.Fields))
	values := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		indexes[i] = strconv.Itoa(f.Col)
		values[i] = string(f.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Source file,%s\n", d.SourceFile)
	fmt.Fprintf(&sb, "Basename,%s\n", d.Basename)
	fmt.Fprintf(&sb, "Scope file,%s\n", d.ScopeFile)
	fmt.Fprintf(&sb, "Table,%s\n", d.Table)
	fmt.Fprintf(&sb, "Field indexes,%s\n", strings.Join(indexes, fieldSep))
	fmt.Fprintf(&sb, "Field values,%s\n", strings.Join(values, fieldSep))
	for _, row := range d.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strings.ReplaceAll(oneLine(v), fieldSep, "/")
		}
		sb.WriteString(strings.Join(cells, fieldSep))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ParseDoc reads a rendered document back. A missing or mislabeled
// preamble line is a parse failure.
func ParseDoc(data string) (*Doc, error) {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) < 6 {
		return nil, fmt.Errorf("%w: jira-CSV preamble truncated (%d lines)", ErrFatalParse, len(lines))
	}
	labels := []string{"Source file", "Basename", "Scope file", "Table", "Field indexes", "Field values"}
	meta := make([]string, 6)
	for i, label := range labels {
		rest, ok := strings.CutPrefix(lines[i], label+",")
		if !ok {
			return nil, fmt.Errorf("%w: jira-CSV line %d: want %q label", ErrFatalParse, i+1, label)
		}
		meta[i] = rest
	}

	d := &Doc{SourceFile: meta[0], Basename: meta[1], ScopeFile: meta[2], Table: meta[3]}
	if meta[4] != "" {
		indexes := strings.Split(meta[4], fieldSep)
		names := strings.Split(meta[5], fieldSep)
		if len(indexes) != len(names) {
			return nil, fmt.Errorf("%w: jira-CSV field indexes and values disagree", ErrFatalParse)
		}
		for i := range indexes {
			col, err := strconv.Atoi(indexes[i])
			if err != nil {
				return nil, fmt.Errorf("%w: jira-CSV field index %q", ErrFatalParse, indexes[i])
			}
			d.Fields = append(d.Fields, tags.Field{Name: tags.FieldName(names[i]), Col: col})
		}
	}
	for _, line := range lines[6:] {
		if line == "" {
			continue
		}
		d.AddRow(strings.Split(line, fieldSep))
	}
	return d, nil
}

// ColumnText collects one semantic field's values across all rows,
// skipping blanks. Used to assemble LLM context.
func (d *Doc) ColumnText(name tags.FieldName) []string {
	idx := -1
	for i, f := range d.Fields {
		if f.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var out []string
	for _, row := range d.Rows {
		if idx < len(row) && row[idx] != "" {
			out = append(out, row[idx])
		}
	}
	return out
}
