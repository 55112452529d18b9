package runner

import (
	"context"
	"sort"
	"strings"

	"sheetpulse/pkg/analyze"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/tags"
)

// resolveBriefDeps refreshes the sheets behind a brief's dotted table
// references whose jira-CSV is not yet in the run directory. Same-sheet
// references are produced earlier in the current pass and never recurse;
// the session's visited set breaks reference cycles. The first recursion
// error is returned but remaining sheets are still attempted, so the
// brief reflects exactly what could be produced.
func (s *session) resolveBriefDeps(ctx context.Context, d *scope.Descriptor) error {
	needed := map[string][]string{}
	for _, ref := range d.Params.Refs {
		sheet, table := splitTableRef(ref, d.FileInfo.Sheet)
		if sheet == d.FileInfo.Sheet {
			continue
		}
		name := analyze.CSVName(d.FileInfo.Basename, sheet, table, d.Timestamp)
		if !s.dir.Exists(name) {
			needed[sheet] = append(needed[sheet], ref)
		}
	}

	sheets := make([]string, 0, len(needed))
	for sheet := range needed {
		sheets = append(sheets, sheet)
	}
	sort.Strings(sheets)

	var firstErr error
	for _, sheet := range sheets {
		s.log.Info("brief %s needs sheet %s, refreshing", d.FileInfo.Table, sheet)
		if err := s.refreshSheet(ctx, sheet, ""); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.checkUpstreamRefs(ctx, d, sheet, needed[sheet])
	}
	return firstErr
}

// checkUpstreamRefs re-reads a refreshed upstream sheet with sheet-
// prefixed table names, so they compare directly against the brief's
// dotted references. A reference that still resolves to nothing is a
// typo in the brief header and is surfaced in the run log instead of
// silently yielding a thin brief.
func (s *session) checkUpstreamRefs(ctx context.Context, d *scope.Descriptor, sheet string, refs []string) {
	grid, err := s.store.grid(ctx, sheet)
	if err != nil {
		s.log.Warn("failed to re-read sheet %s: %v", sheet, err)
		return
	}
	blocks, err := tags.ReadBlocks(grid, tags.Options{PrefixSheet: true})
	if err != nil {
		s.log.Warn("failed to scan sheet %s: %v", sheet, err)
		return
	}
	for _, ref := range refs {
		if blocks.Tables[ref] == nil {
			s.log.Warn("brief %s references unknown table %s", d.FileInfo.Table, ref)
		}
	}
}

// refsContain reports whether a brief's reference list names the table.
func refsContain(refs []string, table string) bool {
	for _, r := range refs {
		if r == table {
			return true
		}
	}
	return false
}

// splitTableRef resolves a possibly sheet-dotted table reference against
// the current sheet.
func splitTableRef(ref, currentSheet string) (sheet, table string) {
	if i := strings.Index(ref, "."); i > 0 {
		return ref[:i], ref[i+1:]
	}
	return currentSheet, ref
}
