package analyze

import (
	"context"
	"sort"
	"strconv"

	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/workbook"
)

var statusHeader = []string{
	"From", "To", "Samples",
	"Mean (h)", "Median (h)", "StdDev (h)", "Min (h)", "Max (h)",
	"Mean (d)", "Median (d)", "StdDev (d)", "Min (d)", "Max (d)",
}

// runStatusTime aggregates dwell time per (from-status, to-status) pair
// across all matched issues.
func runStatusTime(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	snaps, err := searchScope(ctx, env, d)
	if err != nil {
		return nil, err
	}

	type pair struct{ from, to string }
	durations := map[pair][]float64{}
	for _, s := range snaps {
		// Transitions open with the synthetic Created entry, so each
		// consecutive pair yields the dwell time in the from status.
		for i := 1; i < len(s.Transitions); i++ {
			p := pair{from: s.Transitions[i].From, to: s.Transitions[i].To}
			hours := s.Transitions[i].At.Sub(s.Transitions[i-1].At).Hours()
			durations[p] = append(durations[p], hours)
		}
	}
	pairs := make([]pair, 0, len(durations))
	for p := range durations {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from != pairs[j].from {
			return pairs[i].from < pairs[j].from
		}
		return pairs[i].to < pairs[j].to
	})

	cs := NewChangeSet(d.FileInfo.Sheet)
	for j, h := range statusHeader {
		put(cs, d, grid, 1, d.Col+j, h)
	}
	for i, p := range pairs {
		writeStatsRow(cs, d, grid, 2+i, d.Col, []string{p.from, p.to}, computeStats(durations[p]))
	}
	clearStaleRows(cs, d, grid, 1+len(pairs))

	if err := env.saveCSV(d, issuesDoc(d, snaps)); err != nil {
		return nil, err
	}
	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return &Result{Changes: cs}, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
