package workbook

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xuri/excelize/v2"
)

// LocalStore reads and mutates a local .xlsx file through excelize. One
// store instance owns one open workbook; Save writes atomically and keeps
// a timestamped backup of the original.
type LocalStore struct {
	path string
	file *excelize.File
}

// OpenLocal opens the workbook at path.
func OpenLocal(path string) (*LocalStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &LocalStore{path: path, file: f}, nil
}

// Close releases the underlying file handles.
func (s *LocalStore) Close() error {
	return s.file.Close()
}

// SheetName resolves the sheet selector: empty selects the first sheet.
func (s *LocalStore) SheetName(selector string) (string, error) {
	if selector == "" {
		name := s.file.GetSheetName(0)
		if name == "" {
			return "", fmt.Errorf("workbook %s has no sheets", s.path)
		}
		return name, nil
	}
	idx, err := s.file.GetSheetIndex(selector)
	if err != nil || idx < 0 {
		return "", fmt.Errorf("sheet %q not found in %s", selector, s.path)
	}
	return selector, nil
}

// ReadGrid materializes the sheet's cell values.
func (s *LocalStore) ReadGrid(selector string) (*Grid, error) {
	name, err := s.SheetName(selector)
	if err != nil {
		return nil, err
	}
	rows, err := s.file.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", name, err)
	}
	return NewGrid(name, rows), nil
}

// InsertRow inserts one blank row before the 1-based row index.
func (s *LocalStore) InsertRow(sheet string, row int) error {
	if err := s.file.InsertRows(sheet, row, 1); err != nil {
		return fmt.Errorf("failed to insert row %d on %s: %w", row, sheet, err)
	}
	return nil
}

// SetValue writes a plain cell value.
func (s *LocalStore) SetValue(sheet string, col, row int, value string) error {
	cell := CellName(col, row)
	if err := s.file.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// SetHyperlink writes a display value plus an external hyperlink.
func (s *LocalStore) SetHyperlink(sheet string, col, row int, display, target string) error {
	cell := CellName(col, row)
	if err := s.file.SetCellValue(sheet, cell, display); err != nil {
		return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
	}
	if err := s.file.SetCellHyperLink(sheet, cell, target, "External"); err != nil {
		return fmt.Errorf("failed to link %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// SetWrap enables text wrapping on a cell.
func (s *LocalStore) SetWrap(sheet string, col, row int) error {
	cell := CellName(col, row)
	styleID, err := s.file.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("failed to create wrap style: %w", err)
	}
	if err := s.file.SetCellStyle(sheet, cell, cell, styleID); err != nil {
		return fmt.Errorf("failed to style %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// Save writes the workbook back in place, keeping a timestamped backup
// copy of the original bytes.
func (s *LocalStore) Save() error {
	backup := fmt.Sprintf("%s.%s.bak", s.path, time.Now().UTC().Format("20060102T150405"))
	if err := copyFile(s.path, backup); err != nil {
		return fmt.Errorf("failed to back up %s: %w", s.path, err)
	}
	if err := s.file.Save(); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
