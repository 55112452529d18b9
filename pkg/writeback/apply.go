package writeback

import (
	"context"
	"fmt"

	"sheetpulse/pkg/analyze"
	"sheetpulse/pkg/workbook"
	"sheetpulse/pkg/workbook/gsheets"
	"sheetpulse/pkg/workbook/sharepoint"
)

// ApplyLocal writes the set into an open xlsx store and saves it. Local
// files have no concurrent editor, so there is no conflict check.
func (a *Applier) ApplyLocal(_ context.Context, store *workbook.LocalStore, cs *analyze.ChangeSet) error {
	inserts, changes, err := orderedChanges(cs)
	if err != nil {
		return err
	}
	for _, row := range inserts {
		if err := store.InsertRow(cs.Sheet, row); err != nil {
			return err
		}
	}
	for _, c := range changes {
		r := a.resolveValue(c.NewValue)
		if r.target != "" {
			if err := store.SetHyperlink(cs.Sheet, c.Col, c.Row, r.display, r.target); err != nil {
				return err
			}
		} else if err := store.SetValue(cs.Sheet, c.Col, c.Row, r.display); err != nil {
			return err
		}
		if r.wrap {
			if err := store.SetWrap(cs.Sheet, c.Col, c.Row); err != nil {
				return err
			}
		}
	}
	a.Log.Debug("applied %d changes to local workbook sheet %s", len(changes), cs.Sheet)
	return store.Save()
}

// ApplySharePoint writes the set through the Graph API under optimistic
// locking: if the drive item's ETag no longer matches the snapshot, no
// cell is touched and ErrConflictRetry is returned.
func (a *Applier) ApplySharePoint(ctx context.Context, client *sharepoint.Client, item *workbook.SharePointItem, snapshotETag string, cs *analyze.ChangeSet) error {
	inserts, changes, err := orderedChanges(cs)
	if err != nil {
		return err
	}
	di, err := client.ResolveItem(ctx, item)
	if err != nil {
		return err
	}
	if snapshotETag != "" && di.ETag != snapshotETag {
		a.Log.Warn("sharepoint etag moved from %s to %s", snapshotETag, di.ETag)
		return fmt.Errorf("%w: etag mismatch on %s", ErrConflictRetry, item.FilePath)
	}

	for _, row := range inserts {
		if err := client.InsertRow(ctx, di, cs.Sheet, row); err != nil {
			return err
		}
	}

	patches := make([]sharepoint.RangePatch, 0, len(changes))
	var wrapAddrs []string
	for _, c := range changes {
		r := a.resolveValue(c.NewValue)
		addr := workbook.CellName(c.Col, c.Row)
		patches = append(patches, sharepoint.RangePatch{
			Sheet:   cs.Sheet,
			Address: addr,
			Values:  [][]any{{r.formula()}},
		})
		if r.wrap {
			wrapAddrs = append(wrapAddrs, addr)
		}
	}
	if err := client.PatchRanges(ctx, di, patches); err != nil {
		return err
	}
	for _, addr := range wrapAddrs {
		if err := client.SetWrap(ctx, di, cs.Sheet, addr); err != nil {
			return err
		}
	}
	a.Log.Debug("applied %d changes to sharepoint sheet %s", len(changes), cs.Sheet)
	return nil
}

// ApplyGoogle writes the set through the Sheets API. Google exposes no
// workbook ETag, so the lock is a re-read: every cell this set updates
// must still hold the value recorded at snapshot time.
func (a *Applier) ApplyGoogle(ctx context.Context, client *gsheets.Client, docID string, sheetID int64, baseline *workbook.Grid, cs *analyze.ChangeSet) error {
	inserts, changes, err := orderedChanges(cs)
	if err != nil {
		return err
	}
	current, err := client.ReadGrid(ctx, docID, cs.Sheet)
	if err != nil {
		return err
	}
	for _, c := range changes {
		if c.Kind != analyze.ChangeUpdate {
			continue
		}
		if current.Cell(c.Row, c.Col) != baseline.Cell(c.Row, c.Col) {
			return fmt.Errorf("%w: cell %s changed since snapshot", ErrConflictRetry, workbook.CellName(c.Col, c.Row))
		}
	}

	for _, row := range inserts {
		if err := client.InsertRows(ctx, docID, sheetID, row, 1); err != nil {
			return err
		}
	}

	writes := make([]gsheets.ValueWrite, 0, len(changes))
	var wrapCells []workbook.Coord
	for _, c := range changes {
		r := a.resolveValue(c.NewValue)
		writes = append(writes, gsheets.ValueWrite{
			Range:  fmt.Sprintf("'%s'!%s", cs.Sheet, workbook.CellName(c.Col, c.Row)),
			Values: [][]any{{r.formula()}},
		})
		if r.wrap {
			wrapCells = append(wrapCells, workbook.Coord{Row: c.Row, Col: c.Col})
		}
	}
	if err := client.BatchSetValues(ctx, docID, writes); err != nil {
		return err
	}
	if err := client.SetWrap(ctx, docID, sheetID, wrapCells); err != nil {
		return err
	}
	a.Log.Debug("applied %d changes to google sheet %s", len(changes), cs.Sheet)
	return nil
}
