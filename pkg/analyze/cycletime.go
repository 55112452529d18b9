package analyze

import (
	"context"
	"sort"

	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/workbook"
)

// cycleHeader is the generated table's column layout, starting at the
// anchor column.
var cycleHeader = []string{
	"Chain", "Samples",
	"Mean (h)", "Median (h)", "StdDev (h)", "Min (h)", "Max (h)",
	"Mean (d)", "Median (d)", "StdDev (d)", "Min (d)", "Max (d)",
}

// runCycleTime aggregates whole status-transition chains. One row per
// distinct chain; a chain scope per chain feeds the second-pass LLM
// summary written right of the stats block.
func runCycleTime(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	snaps, err := searchScope(ctx, env, d)
	if err != nil {
		return nil, err
	}

	type chainAgg struct {
		hours []float64
		keys  []string
	}
	chains := map[string]*chainAgg{}
	for _, s := range snaps {
		key := s.ChainKey()
		agg := chains[key]
		if agg == nil {
			agg = &chainAgg{}
			chains[key] = agg
		}
		agg.hours = append(agg.hours, chainHours(s))
		agg.keys = append(agg.keys, s.Key)
	}
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)

	summaryCol := d.SummaryCol
	if summaryCol == 0 {
		summaryCol = d.Col + len(cycleHeader) + 1
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	for j, h := range cycleHeader {
		put(cs, d, grid, 1, d.Col+j, h)
	}
	put(cs, d, grid, 1, summaryCol, "Summary")

	result := &Result{Changes: cs}
	for i, name := range names {
		offset := 2 + i
		agg := chains[name]
		writeStatsRow(cs, d, grid, offset, d.Col, []string{name}, computeStats(agg.hours))

		chain := scope.NewChainScope(d, name, agg.keys)
		csvName := CSVName(chain.FileInfo.Basename, chain.FileInfo.Sheet, chain.FileInfo.Table, chain.Timestamp)
		if env.Dir.Exists(csvName) {
			put(cs, d, grid, offset, summaryCol, summarizeChainCSV(ctx, env, d, csvName))
		} else {
			if _, err := chain.Save(env.Dir); err != nil {
				return nil, err
			}
			result.ChainScopes = append(result.ChainScopes, chain)
		}
	}
	clearStaleRows(cs, d, grid, 1+len(names))

	if err := env.saveCSV(d, issuesDoc(d, snaps)); err != nil {
		return nil, err
	}
	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return result, nil
}

// chainHours is an issue's total chain duration: last transition minus
// creation. An issue with only the synthetic Created entry contributes
// zero.
func chainHours(s *jira.Snapshot) float64 {
	if len(s.Transitions) == 0 {
		return 0
	}
	last := s.Transitions[len(s.Transitions)-1].At
	return last.Sub(s.Created).Hours()
}

// writeStatsRow emits the leading label cells followed by the sample
// count and the hour/day stats.
func writeStatsRow(cs *ChangeSet, d *scope.Descriptor, grid *workbook.Grid, offset, col int, labels []string, st durStats) {
	for _, label := range labels {
		put(cs, d, grid, offset, col, label)
		col++
	}
	cells := []string{
		itoa(st.count),
		fmtHours(st.mean), fmtHours(st.median), fmtHours(st.stddev), fmtHours(st.min), fmtHours(st.max),
		fmtDays(st.mean), fmtDays(st.median), fmtDays(st.stddev), fmtDays(st.min), fmtDays(st.max),
	}
	for _, cell := range cells {
		put(cs, d, grid, offset, col, cell)
		col++
	}
}
