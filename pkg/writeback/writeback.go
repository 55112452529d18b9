// Package writeback applies a ChangeSet to the underlying store with
// store-specific invariants: ETag-guarded batches on SharePoint, value
// and dimension batches on Google Sheets, and an in-place excelize save
// for local files. Hyperlink rewriting and wrap formatting happen here.
package writeback

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"sheetpulse/pkg/analyze"
	"sheetpulse/pkg/logx"
)

// ErrConflictRetry signals an optimistic-lock failure: the remote
// workbook changed since the snapshot. The orchestrator re-snapshots
// and retries the same ChangeSet; no cell was mutated.
var ErrConflictRetry = errors.New("workbook changed since snapshot")

// jiraKeyRe matches a bare issue key.
var jiraKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

// urlPrefix marks analyzer values that become hyperlinks.
const urlPrefix = "URL "

// LinkBuilder turns keys and queries into tracker links. *jira.Client
// satisfies it.
type LinkBuilder interface {
	BrowseURL(key string) string
	SearchURL(jql string) string
}

// Applier holds the cross-store writeback state.
type Applier struct {
	Links LinkBuilder
	Log   *logx.Logger
}

// resolved is one cell value after hyperlink and wrap rewriting.
type resolved struct {
	display string
	target  string // non-empty means hyperlink
	wrap    bool
}

// resolveValue applies the writeback value rules: a "URL " prefix turns
// into a browse or search hyperlink; ";" splits into wrapped newlines.
func (a *Applier) resolveValue(raw string) resolved {
	if strings.HasPrefix(raw, "=HYPERLINK(") {
		// Already a formula (rate-bucket counts); pass through.
		return resolved{display: raw}
	}
	r := resolved{display: raw}
	if rest, ok := strings.CutPrefix(raw, urlPrefix); ok {
		switch {
		case jiraKeyRe.MatchString(rest):
			r.display = rest
			r.target = a.Links.BrowseURL(rest)
		case len(rest) >= 3 && strings.EqualFold(rest[:3], "JQL"):
			query := strings.TrimSpace(rest[3:])
			r.display = rest
			r.target = a.Links.SearchURL(query)
		default:
			r.display = rest
		}
	}
	if strings.Contains(r.display, ";") {
		r.display = strings.ReplaceAll(r.display, ";", "\n")
		r.wrap = true
	}
	return r
}

// formula renders a resolved value for remote stores, which take
// hyperlinks as HYPERLINK formulas.
func (r resolved) formula() string {
	if r.target == "" {
		return r.display
	}
	display := strings.ReplaceAll(r.display, `"`, `""`)
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, r.target, display)
}

// orderedChanges validates the set and splits it into the insert rows
// (ascending) and the full change list.
func orderedChanges(cs *analyze.ChangeSet) ([]int, []analyze.CellChange, error) {
	if cs == nil || cs.Sheet == "" {
		return nil, nil, fmt.Errorf("changeset has no target sheet")
	}
	return cs.InsertRows(), cs.Changes, nil
}
