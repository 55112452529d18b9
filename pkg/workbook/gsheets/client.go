// Package gsheets talks to the Google Sheets v4 surface: grid reads,
// batched USER_ENTERED value updates, dimension inserts, and wrap
// formatting. Version drift is detected by re-reading the sheet at apply
// time and comparing against the snapshot grid.
package gsheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sheetpulse/pkg/workbook"
)

// Client wraps a sheets service for one credential set.
type Client struct {
	svc *sheets.Service
}

// NewClient builds a client from a service-account credentials file, or an
// unauthenticated client when the file is empty (tests, public sheets).
func NewClient(ctx context.Context, credentialsFile string, extra ...option.ClientOption) (*Client, error) {
	opts := make([]option.ClientOption, 0, len(extra)+1)
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}
	opts = append(opts, extra...)

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// SheetInfo resolves a sheet selector to its title and numeric id. An
// empty selector picks the first sheet.
func (c *Client) SheetInfo(ctx context.Context, docID, selector string) (title string, sheetID int64, err error) {
	doc, err := c.svc.Spreadsheets.Get(docID).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get spreadsheet %s: %w", docID, err)
	}
	if len(doc.Sheets) == 0 {
		return "", 0, fmt.Errorf("spreadsheet %s has no sheets", docID)
	}
	if selector == "" {
		p := doc.Sheets[0].Properties
		return p.Title, p.SheetId, nil
	}
	for _, s := range doc.Sheets {
		if s.Properties.Title == selector {
			return s.Properties.Title, s.Properties.SheetId, nil
		}
	}
	return "", 0, fmt.Errorf("sheet %q not found in spreadsheet %s", selector, docID)
}

// ReadGrid materializes the sheet's cell values into the uniform grid.
func (c *Client) ReadGrid(ctx context.Context, docID, selector string) (*workbook.Grid, error) {
	title, _, err := c.SheetInfo(ctx, docID, selector)
	if err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(docID, fmt.Sprintf("'%s'", title)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read values of %s!%s: %w", docID, title, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, 0, len(r))
		for _, v := range r {
			row = append(row, fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return workbook.NewGrid(title, rows), nil
}

// ValueWrite is one cell or range write in A1 notation.
type ValueWrite struct {
	Range  string // e.g. "'S1'!B4"
	Values [][]any
}

// BatchSetValues applies all writes in one batched update with the
// USER_ENTERED input option, so HYPERLINK formulas evaluate.
func (c *Client) BatchSetValues(ctx context.Context, docID string, writes []ValueWrite) error {
	if len(writes) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		data = append(data, &sheets.ValueRange{Range: w.Range, Values: w.Values})
	}
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to batch update %s: %w", docID, err)
	}
	return nil
}

// InsertRows inserts count blank rows before the 1-based row index using
// the sheet's numeric id.
func (c *Client) InsertRows(ctx context.Context, docID string, sheetID int64, row, count int) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row - 1 + count),
				},
				InheritFromBefore: true,
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to insert %d rows at %d: %w", count, row, err)
	}
	return nil
}

// SetWrap enables text wrapping on a set of cells via one batched
// repeatCell format update.
func (c *Client) SetWrap(ctx context.Context, docID string, sheetID int64, cells []workbook.Coord) error {
	if len(cells) == 0 {
		return nil
	}
	reqs := make([]*sheets.Request, 0, len(cells))
	for _, cell := range cells {
		reqs = append(reqs, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(cell.Row - 1),
					EndRowIndex:      int64(cell.Row),
					StartColumnIndex: int64(cell.Col - 1),
					EndColumnIndex:   int64(cell.Col),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{WrapStrategy: "WRAP"},
				},
				Fields: "userEnteredFormat.wrapStrategy",
			},
		})
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}
	if _, err := c.svc.Spreadsheets.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to set wrap formats: %w", err)
	}
	return nil
}
