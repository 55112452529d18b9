package analyze

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/shorturl"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

// runRateResolved buckets resolved issues into consecutive periods. The
// row axis is a single count row; columns are period labels plus an ERR
// column for issues without a resolution date and a Total column.
func runRateResolved(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	snaps, err := searchScope(ctx, env, d)
	if err != nil {
		return nil, err
	}

	buckets, errKeys, earliest, latest := bucketByTime(snaps, d.Params.Interval, func(s *jira.Snapshot) time.Time { return s.Resolved })
	var labels []string
	if len(buckets) > 0 {
		labels = bucketLabels(earliest, latest, d.Params.Interval)
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	totalCol := d.Col + 1 + len(labels)

	put(cs, d, grid, 1, d.Col, "ERR")
	for j, label := range labels {
		put(cs, d, grid, 1, d.Col+1+j, label)
	}
	put(cs, d, grid, 1, totalCol, "Total")

	put(cs, d, grid, 2, d.Col, strconv.Itoa(len(errKeys)))
	total := 0
	for j, label := range labels {
		keys := buckets[label]
		total += len(keys)
		put(cs, d, grid, 2, d.Col+1+j, countCell(ctx, env, keys))
	}
	put(cs, d, grid, 2, totalCol, strconv.Itoa(total))
	clearStaleRows(cs, d, grid, 2)

	if err := env.saveCSV(d, issuesDoc(d, snaps)); err != nil {
		return nil, err
	}
	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return &Result{Changes: cs}, nil
}

// runRateAssignee buckets by resolver identity: one row per resolver,
// columns per period. The first pass also emits one chain scope per
// resolver; the second pass (chain CSVs present) writes each resolver's
// LLM summary into the rightmost analysis column.
func runRateAssignee(ctx context.Context, env *Env, d *scope.Descriptor, grid *workbook.Grid) (*Result, error) {
	snaps, err := searchScope(ctx, env, d)
	if err != nil {
		return nil, err
	}

	byResolver := map[string][]*jira.Snapshot{}
	for _, s := range snaps {
		r := s.Resolver()
		byResolver[r] = append(byResolver[r], s)
	}
	resolvers := make([]string, 0, len(byResolver))
	for r := range byResolver {
		resolvers = append(resolvers, r)
	}
	sort.Strings(resolvers)

	_, _, earliest, latest := bucketByTime(snaps, d.Params.Interval, func(s *jira.Snapshot) time.Time { return s.Resolved })
	var labels []string
	if !earliest.IsZero() {
		labels = bucketLabels(earliest, latest, d.Params.Interval)
	}

	totalCol := d.Col + 2 + len(labels)
	summaryCol := d.SummaryCol
	if summaryCol == 0 {
		summaryCol = totalCol + 1
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	put(cs, d, grid, 1, d.Col, "Assignee")
	put(cs, d, grid, 1, d.Col+1, "ERR")
	for j, label := range labels {
		put(cs, d, grid, 1, d.Col+2+j, label)
	}
	put(cs, d, grid, 1, totalCol, "Total")
	put(cs, d, grid, 1, summaryCol, "Summary")

	result := &Result{Changes: cs}
	for i, r := range resolvers {
		offset := 2 + i
		buckets, errKeys, _, _ := bucketByTime(byResolver[r], d.Params.Interval, func(s *jira.Snapshot) time.Time { return s.Resolved })

		put(cs, d, grid, offset, d.Col, r)
		put(cs, d, grid, offset, d.Col+1, strconv.Itoa(len(errKeys)))
		total := 0
		for j, label := range labels {
			keys := buckets[label]
			total += len(keys)
			put(cs, d, grid, offset, d.Col+2+j, countCell(ctx, env, keys))
		}
		put(cs, d, grid, offset, totalCol, strconv.Itoa(total))

		chain := scope.NewChainScope(d, r, snapshotKeys(byResolver[r]))
		csvName := CSVName(chain.FileInfo.Basename, chain.FileInfo.Sheet, chain.FileInfo.Table, chain.Timestamp)
		if env.Dir.Exists(csvName) {
			// Second pass: the chain CSV is present, summarize it.
			put(cs, d, grid, offset, summaryCol, summarizeChainCSV(ctx, env, d, csvName))
		} else {
			if _, err := chain.Save(env.Dir); err != nil {
				return nil, err
			}
			result.ChainScopes = append(result.ChainScopes, chain)
		}
	}
	clearStaleRows(cs, d, grid, 1+len(resolvers))

	if err := env.saveCSV(d, issuesDoc(d, snaps)); err != nil {
		return nil, err
	}
	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return result, nil
}

func searchScope(ctx context.Context, env *Env, d *scope.Descriptor) ([]*jira.Snapshot, error) {
	if strings.TrimSpace(d.JQL) == "" {
		return nil, fmt.Errorf("%w: scope %s has no jql", ErrFatalConfig, d.FileInfo.ScopeFile)
	}
	snaps, err := env.Jira.Search(ctx, d.JQL)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", d.JQL, err)
	}
	return snaps, nil
}

// bucketByTime groups issue keys by bucket label. Issues whose timestamp
// is zero land in errKeys.
func bucketByTime(snaps []*jira.Snapshot, iv tags.Interval, at func(*jira.Snapshot) time.Time) (buckets map[string][]string, errKeys []string, earliest, latest time.Time) {
	buckets = map[string][]string{}
	for _, s := range snaps {
		t := at(s)
		if t.IsZero() {
			errKeys = append(errKeys, s.Key)
			continue
		}
		label := bucketLabel(t, iv)
		buckets[label] = append(buckets[label], s.Key)
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
		if latest.IsZero() || t.After(latest) {
			latest = t
		}
	}
	return buckets, errKeys, earliest, latest
}

// countCell renders a bucket count as a hyperlink formula over a search
// for the bucket's keys, shortening targets over the formula limit.
func countCell(ctx context.Context, env *Env, keys []string) string {
	if len(keys) == 0 {
		return "0"
	}
	jql := fmt.Sprintf("id in (%s)", strings.Join(keys, ","))
	target := env.Jira.SearchURL(jql)
	if len(target) > shorturl.MaxTargetLength && env.Shortener != nil {
		short, err := env.Shortener.Shorten(ctx, target)
		if err != nil {
			env.Log.Warn("failed to shorten bucket link: %v", err)
		} else {
			target = short
		}
	}
	return fmt.Sprintf(`=HYPERLINK("%s",%d)`, target, len(keys))
}

// summarizeChainCSV loads a chain jira-CSV and condenses its text.
func summarizeChainCSV(ctx context.Context, env *Env, d *scope.Descriptor, csvName string) string {
	data, err := readArtifact(env, csvName)
	if err != nil {
		return errorCell(d.Timestamp, err)
	}
	doc, err := ParseDoc(data)
	if err != nil {
		return errorCell(d.Timestamp, err)
	}
	texts := doc.ColumnText("summary")
	texts = append(texts, doc.ColumnText("comments")...)
	return summarize(ctx, env, d, texts, "")
}

func snapshotKeys(snaps []*jira.Snapshot) []string {
	keys := make([]string, len(snaps))
	for i, s := range snaps {
		keys[i] = s.Key
	}
	return keys
}

// issuesDoc captures the canonical jira-CSV of a generated-table scope.
func issuesDoc(d *scope.Descriptor, snaps []*jira.Snapshot) *Doc {
	doc := newDoc(d)
	doc.Fields = chainSchema()
	for _, s := range snaps {
		doc.AddRow([]string{s.Key, s.Summary, s.Status, s.Assignee, commentsText(s)})
	}
	return doc
}
