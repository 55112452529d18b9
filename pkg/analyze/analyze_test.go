package analyze

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/jira"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

const stamp = "20260830T120000"

type fakeJira struct {
	issues   map[string]*jira.Snapshot
	searches map[string][]*jira.Snapshot
	created  []jira.CreateRequest
}

func (f *fakeJira) Issue(_ context.Context, key string) (*jira.Snapshot, error) {
	s, ok := f.issues[key]
	if !ok {
		return nil, fmt.Errorf("no such issue %s", key)
	}
	return s, nil
}

func (f *fakeJira) Search(_ context.Context, jql string) ([]*jira.Snapshot, error) {
	if snaps, ok := f.searches[jql]; ok {
		return snaps, nil
	}
	return nil, fmt.Errorf("unexpected jql %q", jql)
}

func (f *fakeJira) SearchKeys(ctx context.Context, keys []string) ([]*jira.Snapshot, error) {
	var out []*jira.Snapshot
	for _, k := range keys {
		s, err := f.Issue(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeJira) EpicChildren(_ context.Context, epicKey string) ([]*jira.Snapshot, error) {
	return f.searches["children:"+epicKey], nil
}

func (f *fakeJira) Create(_ context.Context, req jira.CreateRequest) (string, error) {
	f.created = append(f.created, req)
	return fmt.Sprintf("%s-%d", req.Project, 100+len(f.created)), nil
}

func (f *fakeJira) BrowseURL(key string) string {
	return "https://jira.example.com/browse/" + key
}

func (f *fakeJira) SearchURL(jql string) string {
	return "https://jira.example.com/issues/?jql=" + jql
}

type fakeLLM struct {
	calls [][]string
	fail  bool
}

func (f *fakeLLM) Summarize(_ context.Context, texts []string, _ string) (string, error) {
	f.calls = append(f.calls, texts)
	if f.fail {
		return "", fmt.Errorf("provider unavailable")
	}
	return fmt.Sprintf("SUMMARY(%d)", len(texts)), nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

type fakeMailer struct {
	to      []string
	subject string
}

func (f *fakeMailer) Send(_ context.Context, to []string, subject, _ string) error {
	f.to = to
	f.subject = subject
	return nil
}

func newTestEnv(t *testing.T, j *fakeJira) (*Env, *fakeLLM, *fakeMailer) {
	t.Helper()
	dir, err := artifacts.NewDir(t.TempDir(), "alice", "run-1")
	require.NoError(t, err)
	l := &fakeLLM{}
	m := &fakeMailer{}
	return &Env{Jira: j, LLM: l, Mailer: m, Dir: dir, Log: logx.NewLogger("test")}, l, m
}

func issue(key, summary, status string) *jira.Snapshot {
	created := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	return &jira.Snapshot{
		Key: key, Summary: summary, Status: status, Created: created,
		Transitions: []jira.Transition{{To: jira.CreatedStatus, At: created}},
	}
}

func findChange(cs *ChangeSet, row, col int) (CellChange, bool) {
	for _, c := range cs.Changes {
		if c.Row == row && c.Col == col {
			return c, true
		}
	}
	return CellChange{}, false
}

func rowScope(fields tags.Schema, ids []string, rows []int) *scope.Descriptor {
	return &scope.Descriptor{
		FileInfo: scope.FileInfo{
			Basename: "budget", Source: "/tmp/budget.xlsx", Sheet: "S1", Table: "Project",
			ScopeFile: "budget.S1.Project." + stamp + ".scope.yaml",
		},
		Kind: tags.KindJira, Fields: fields, JiraIDs: ids, RowNums: rows,
		Row: 1, Col: 1, LastRow: rows[len(rows)-1], LastUpdateRowCount: len(rows),
		Timestamp: stamp,
	}
}

func TestRowUpdateFillsDeclaredFields(t *testing.T) {
	j := &fakeJira{issues: map[string]*jira.Snapshot{
		"TES-1": issue("TES-1", "Login bug", "Open"),
		"TES-2": issue("TES-2", "Logout bug", "Done"),
	}}
	env, _, _ := newTestEnv(t, j)

	fields := tags.Schema{
		{Name: tags.FieldKey, Col: 2},
		{Name: tags.FieldSummary, Col: 3},
		{Name: tags.FieldStatus, Col: 4},
		{Name: tags.FieldTimestamp, Col: 5},
	}
	d := rowScope(fields, []string{"TES-1", "TES-2"}, []int{2, 3})
	grid := workbook.NewGrid("S1", [][]string{
		{"Project <jira>", "Key<key>", "Summary<summary>", "Status<status>", "Updated<timestamp>"},
		{"", "TES-1", "", "", ""},
		{"", "TES-2", "", "", ""},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	cs := res.Changes

	c, ok := findChange(cs, 2, 2)
	require.True(t, ok)
	assert.Equal(t, "URL TES-1", c.NewValue)
	assert.Equal(t, "TES-1", c.OldValue)
	assert.Equal(t, ChangeUpdate, c.Kind)

	c, _ = findChange(cs, 2, 3)
	assert.Equal(t, "Login bug", c.NewValue)
	c, _ = findChange(cs, 3, 4)
	assert.Equal(t, "Done", c.NewValue)
	c, _ = findChange(cs, 3, 5)
	assert.Equal(t, stamp, c.NewValue)

	// Artifacts are written alongside the changes.
	assert.True(t, env.Dir.Exists("budget.S1.Project."+stamp+".jira.csv"))
	assert.True(t, env.Dir.Exists("budget.S1.Project."+stamp+".jira.changes.txt"))
}

func TestJQLRowExpansion(t *testing.T) {
	query := "project=TES and status=Open"
	j := &fakeJira{searches: map[string][]*jira.Snapshot{
		query: {issue("TES-1", "Login bug", "Open"), issue("TES-3", "Perf issue", "Open")},
	}}
	env, _, _ := newTestEnv(t, j)

	fields := tags.Schema{
		{Name: tags.FieldKey, Col: 2},
		{Name: tags.FieldSummary, Col: 3},
		{Name: tags.FieldHeadline, Col: 4},
	}
	d := rowScope(fields, []string{"JQL " + query}, []int{2})
	grid := workbook.NewGrid("S1", [][]string{
		{"Project <jira>", "Key<key>", "Summary<summary>", "Headline<headline>"},
		{"", "JQL " + query, "", ""},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)

	c, _ := findChange(res.Changes, 2, 2)
	assert.Equal(t, "URL JQL "+query, c.NewValue)
	c, _ = findChange(res.Changes, 2, 3)
	assert.Equal(t, "▫️ [TES-1] Login bug;▫️ [TES-3] Perf issue", c.NewValue)
	c, _ = findChange(res.Changes, 2, 4)
	assert.Equal(t, "2 issues, 0 resolved", c.NewValue)
}

func TestJQLRowPrefixRequiresWhitespace(t *testing.T) {
	assert.True(t, isJQLRow("JQL project=TES"))
	assert.True(t, isJQLRow("jql\tstatus=Open"))
	assert.False(t, isJQLRow("JQL-5"))
	assert.False(t, isJQLRow("JQL"))
	assert.False(t, isJQLRow("TES-1"))
}

func TestKeyInProjectNamedJQLStaysAKey(t *testing.T) {
	j := &fakeJira{issues: map[string]*jira.Snapshot{
		"JQL-5": issue("JQL-5", "Parser bug", "Open"),
	}}
	env, _, _ := newTestEnv(t, j)

	fields := tags.Schema{
		{Name: tags.FieldKey, Col: 2},
		{Name: tags.FieldSummary, Col: 3},
	}
	d := rowScope(fields, []string{"JQL-5"}, []int{2})
	grid := workbook.NewGrid("S1", [][]string{
		{"Project <jira>", "Key<key>", "Summary<summary>"},
		{"", "JQL-5", ""},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)

	c, ok := findChange(res.Changes, 2, 2)
	require.True(t, ok)
	assert.Equal(t, "URL JQL-5", c.NewValue)
	c, _ = findChange(res.Changes, 2, 3)
	assert.Equal(t, "Parser bug", c.NewValue)
}

func TestCreatePathCreatesIssues(t *testing.T) {
	j := &fakeJira{}
	env, _, _ := newTestEnv(t, j)

	d := rowScope(tags.Schema{
		{Name: tags.FieldKey, Col: 2},
		{Name: tags.FieldSummary, Col: 3},
	}, []string{""}, []int{2})
	d.Create = true
	d.JQL = "project=TES"
	grid := workbook.NewGrid("S1", [][]string{
		{"Project <jira> jql project=TES", "Key<key>", "Summary<summary>"},
		{"", "", "Build the importer"},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	require.Len(t, j.created, 1)
	assert.Equal(t, "TES", j.created[0].Project)
	assert.Equal(t, "Build the importer", j.created[0].Summary)

	c, ok := findChange(res.Changes, 2, 2)
	require.True(t, ok)
	assert.Equal(t, "URL TES-101", c.NewValue)
}

func TestRateResolvedWeekly(t *testing.T) {
	jql := "project=TES and resolutiondate >= -12w"
	resolvedAt := func(day int) time.Time { return time.Date(2025, 10, day, 12, 0, 0, 0, time.UTC) }
	var snaps []*jira.Snapshot
	for i := 0; i < 5; i++ {
		s := issue(fmt.Sprintf("TES-%d", i+1), "w40 issue", "Done")
		s.Resolved = resolvedAt(1) // 2025-10-01 is in ISO week 40
		snaps = append(snaps, s)
	}
	for i := 0; i < 2; i++ {
		s := issue(fmt.Sprintf("TES-%d", i+6), "w41 issue", "Done")
		s.Resolved = resolvedAt(8) // 2025-10-08 is in ISO week 41
		snaps = append(snaps, s)
	}
	j := &fakeJira{searches: map[string][]*jira.Snapshot{jql: snaps}}
	env, _, _ := newTestEnv(t, j)

	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "S1", Table: "Resolved",
			ScopeFile: "budget.S1.Resolved." + stamp + ".resolved.rate.scope.yaml"},
		Kind: tags.KindRateResolved, JQL: jql,
		Params: tags.Params{JQL: jql, Interval: tags.IntervalWeeks},
		Row:    1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("S1", [][]string{{"Resolved <rate resolved> weeks jql " + jql}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	cs := res.Changes

	// Header: ERR, the two consecutive week labels, Total. Everything is
	// an insert because the block had no prior rows.
	c, _ := findChange(cs, 2, 1)
	assert.Equal(t, "ERR", c.NewValue)
	assert.Equal(t, ChangeInsert, c.Kind)
	c, _ = findChange(cs, 2, 2)
	assert.Equal(t, "2025-W40", c.NewValue)
	c, _ = findChange(cs, 2, 3)
	assert.Equal(t, "2025-W41", c.NewValue)
	c, _ = findChange(cs, 2, 4)
	assert.Equal(t, "Total", c.NewValue)

	c, _ = findChange(cs, 3, 2)
	assert.Contains(t, c.NewValue, `=HYPERLINK("https://jira.example.com/issues/?jql=id in (`)
	assert.True(t, strings.HasSuffix(c.NewValue, ",5)"), "count 5 as display: %s", c.NewValue)
	c, _ = findChange(cs, 3, 3)
	assert.True(t, strings.HasSuffix(c.NewValue, ",2)"), "count 2 as display: %s", c.NewValue)
	c, _ = findChange(cs, 3, 4)
	assert.Equal(t, "7", c.NewValue)
	c, _ = findChange(cs, 3, 1)
	assert.Equal(t, "0", c.NewValue)
}

func TestRateResolvedBlanksStaleTrailingRows(t *testing.T) {
	jql := "project=TES and resolutiondate >= -12w"
	s := issue("TES-1", "w40 issue", "Done")
	s.Resolved = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	j := &fakeJira{searches: map[string][]*jira.Snapshot{jql: {s}}}
	env, _, _ := newTestEnv(t, j)

	// The block previously held six data rows; this refresh only reaches
	// the first two, so rows 4 through 7 must be blanked.
	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "S1", Table: "Resolved",
			ScopeFile: "budget.S1.Resolved." + stamp + ".resolved.rate.scope.yaml"},
		Kind: tags.KindRateResolved, JQL: jql,
		Params: tags.Params{JQL: jql, Interval: tags.IntervalWeeks},
		Row:    1, Col: 1, LastUpdateRowCount: 6, Timestamp: stamp,
	}
	grid := workbook.NewGrid("S1", [][]string{
		{"Resolved <rate resolved> weeks jql " + jql},
		{"ERR", "2025-W38", "2025-W39", "2025-W40", "Total"},
		{"0", "3", "2", "1", "6"},
		{"left", "over"},
		{"", "stale"},
		{"stale"},
		{"", "", "stale"},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	cs := res.Changes

	for _, want := range []struct {
		row, col int
		old      string
	}{
		{4, 1, "left"}, {4, 2, "over"}, {5, 2, "stale"}, {6, 1, "stale"}, {7, 3, "stale"},
	} {
		c, ok := findChange(cs, want.row, want.col)
		require.True(t, ok, "row %d col %d should be blanked", want.row, want.col)
		assert.Equal(t, ChangeUpdate, c.Kind)
		assert.Equal(t, "", c.NewValue)
		assert.Equal(t, want.old, c.OldValue)
	}

	// Cells that were already empty need no change.
	_, ok := findChange(cs, 5, 1)
	assert.False(t, ok)
}

func TestCycleTimeChainsAndSecondPass(t *testing.T) {
	jql := "project=TES and updated >= -4w"
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mkIssue := func(key string, doneAfter time.Duration) *jira.Snapshot {
		return &jira.Snapshot{
			Key: key, Summary: "issue " + key, Status: "Done", Created: created,
			Transitions: []jira.Transition{
				{To: jira.CreatedStatus, At: created},
				{From: jira.CreatedStatus, To: "In Progress", At: created.Add(doneAfter / 2)},
				{From: "In Progress", To: "Done", At: created.Add(doneAfter)},
			},
		}
	}
	a := mkIssue("TES-1", 24*time.Hour)
	b := mkIssue("TES-2", 48*time.Hour)
	j := &fakeJira{
		searches: map[string][]*jira.Snapshot{jql: {a, b}},
		issues:   map[string]*jira.Snapshot{"TES-1": a, "TES-2": b},
	}
	env, llmStub, _ := newTestEnv(t, j)

	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "S1", Table: "Flow",
			ScopeFile: "budget.S1.Flow." + stamp + ".cycletime.scope.yaml"},
		Kind: tags.KindCycleTime, JQL: jql, Params: tags.Params{JQL: jql},
		Row: 1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("S1", [][]string{{"Flow <cycletime> jql " + jql}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	require.Len(t, res.ChainScopes, 1)
	chain := res.ChainScopes[0]
	assert.Equal(t, "Created -> In Progress -> Done", chain.ChainID)
	assert.ElementsMatch(t, []string{"TES-1", "TES-2"}, chain.JiraIDs)

	c, _ := findChange(res.Changes, 3, 1)
	assert.Equal(t, "Created -> In Progress -> Done", c.NewValue)
	c, _ = findChange(res.Changes, 3, 2)
	assert.Equal(t, "2", c.NewValue)
	c, _ = findChange(res.Changes, 3, 3)
	assert.Equal(t, "36.0", c.NewValue, "mean hours")
	c, _ = findChange(res.Changes, 3, 4)
	assert.Equal(t, "36.0", c.NewValue, "median hours")
	c, _ = findChange(res.Changes, 3, 6)
	assert.Equal(t, "24.0", c.NewValue, "min hours")
	c, _ = findChange(res.Changes, 3, 7)
	assert.Equal(t, "48.0", c.NewValue, "max hours")

	// Run the chain scope's row pass, then re-enter: the summary column
	// is populated on the second pass.
	_, err = Run(context.Background(), env, chain, grid)
	require.NoError(t, err)

	res2, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	assert.Empty(t, res2.ChainScopes)
	c, ok := findChange(res2.Changes, 3, 1+len(cycleHeader)+1)
	require.True(t, ok)
	assert.Contains(t, c.NewValue, "SUMMARY(")
	require.NotEmpty(t, llmStub.calls)
}

func TestCycleTimeConservation(t *testing.T) {
	// Sum over chains of count*mean equals the summed per-issue spans.
	hours := []float64{24, 48, 10}
	st := computeStats(hours)
	assert.InDelta(t, 82, float64(st.count)*st.mean, 1e-9)
}

func TestStatusTimePairs(t *testing.T) {
	jql := "project=TES"
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := &jira.Snapshot{
		Key: "TES-1", Created: created,
		Transitions: []jira.Transition{
			{To: jira.CreatedStatus, At: created},
			{From: jira.CreatedStatus, To: "In Progress", At: created.Add(12 * time.Hour)},
			{From: "In Progress", To: "Done", At: created.Add(36 * time.Hour)},
		},
	}
	j := &fakeJira{searches: map[string][]*jira.Snapshot{jql: {s}}}
	env, _, _ := newTestEnv(t, j)

	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "S1", Table: "Waits",
			ScopeFile: "budget.S1.Waits." + stamp + ".statustime.scope.yaml"},
		Kind: tags.KindStatusTime, JQL: jql, Params: tags.Params{JQL: jql},
		Row: 1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("S1", [][]string{{"Waits <statustime> jql " + jql}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)

	// Pairs sorted: Created->In Progress before In Progress->Done.
	c, _ := findChange(res.Changes, 3, 1)
	assert.Equal(t, "Created", c.NewValue)
	c, _ = findChange(res.Changes, 3, 2)
	assert.Equal(t, "In Progress", c.NewValue)
	c, _ = findChange(res.Changes, 3, 4)
	assert.Equal(t, "12.0", c.NewValue)
	c, _ = findChange(res.Changes, 4, 1)
	assert.Equal(t, "In Progress", c.NewValue)
	c, _ = findChange(res.Changes, 4, 4)
	assert.Equal(t, "24.0", c.NewValue)
}

func TestQuickstartSeedsCanonicalBlock(t *testing.T) {
	env, _, _ := newTestEnv(t, &fakeJira{})
	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "S1", Table: "Setup",
			ScopeFile: "budget.S1.Setup." + stamp + ".quickstart.scope.yaml"},
		Kind: tags.KindQuickstart, Params: tags.Params{Projects: []string{"TES"}},
		Row: 1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("S1", [][]string{{"Setup <quickstart> TES"}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)

	for _, c := range res.Changes.Changes {
		assert.Equal(t, ChangeInsert, c.Kind, "quickstart writes pure inserts")
	}
	c, _ := findChange(res.Changes, 2, 1)
	assert.Contains(t, c.NewValue, "<ai brief> TES_Epics")
	c, _ = findChange(res.Changes, 3, 1)
	assert.Contains(t, c.NewValue, "<rate resolved> weeks jql project=TES")
	c, _ = findChange(res.Changes, 6, 1)
	assert.Contains(t, c.NewValue, "TES_Epics <jira>")
	c, _ = findChange(res.Changes, 6, 2)
	assert.Equal(t, "Key<key>", c.NewValue)
}

func TestBriefAggregatesAndEmails(t *testing.T) {
	env, llmStub, mail := newTestEnv(t, &fakeJira{})

	// Upstream CSV from another sheet, as the dependency resolver leaves
	// it in the run directory.
	doc := &Doc{Basename: "budget", Table: "Project_Epics",
		Fields: tags.Schema{{Name: tags.FieldKey, Col: 1}, {Name: tags.FieldSummary, Col: 2}}}
	doc.AddRow([]string{"TES-1", "Login bug"})
	_, err := env.Dir.WriteFile(CSVName("budget", "Backlog", "Project_Epics", stamp), []byte(doc.Render()))
	require.NoError(t, err)

	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "Dashboard", Table: "Weekly",
			ScopeFile: "budget.Dashboard.Weekly." + stamp + ".aibrief.scope.yaml"},
		Kind: tags.KindAIBrief,
		Params: tags.Params{
			Refs:   []string{"Backlog.Project_Epics"},
			Emails: []string{"pm@example.com"},
		},
		Row: 1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("Dashboard", [][]string{{"Weekly <ai brief> Backlog.Project_Epics email: pm@example.com"}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)

	c, ok := findChange(res.Changes, 2, 1)
	require.True(t, ok, "brief writes the cell below its anchor")
	assert.Contains(t, c.NewValue, "SUMMARY(")
	assert.Equal(t, ChangeUpdate, c.Kind)

	require.NotEmpty(t, llmStub.calls)
	assert.Equal(t, []string{"pm@example.com"}, mail.to)
	assert.True(t, env.Dir.Exists("budget.Dashboard.Weekly."+stamp+".context.txt"))
	assert.True(t, env.Dir.Exists("budget.Dashboard.Weekly."+stamp+".llm.txt"))
}

func TestBriefMissingUpstreamIsVisible(t *testing.T) {
	env, _, _ := newTestEnv(t, &fakeJira{})
	d := &scope.Descriptor{
		FileInfo: scope.FileInfo{Basename: "budget", Sheet: "Dashboard", Table: "Weekly",
			ScopeFile: "budget.Dashboard.Weekly." + stamp + ".aibrief.scope.yaml"},
		Kind:   tags.KindAIBrief,
		Params: tags.Params{Refs: []string{"Backlog.Nope"}},
		Row:    1, Col: 1, Timestamp: stamp,
	}
	grid := workbook.NewGrid("Dashboard", [][]string{{"Weekly <ai brief> Backlog.Nope"}})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err, "missing upstream data is a warning, not a failure")

	c, ok := findChange(res.Changes, 2, 1)
	require.True(t, ok)
	assert.Contains(t, c.NewValue, ErrorCellPrefix)
	assert.Contains(t, c.NewValue, "Backlog.Nope")
}

func TestLLMFailureLandsInCell(t *testing.T) {
	j := &fakeJira{issues: map[string]*jira.Snapshot{"TES-1": issue("TES-1", "Login bug", "Open")}}
	env, llmStub, _ := newTestEnv(t, j)
	llmStub.fail = true

	d := rowScope(tags.Schema{
		{Name: tags.FieldKey, Col: 2},
		{Name: tags.FieldAI, Col: 3, Prompt: "summarize the risk"},
	}, []string{"TES-1"}, []int{2})
	grid := workbook.NewGrid("S1", [][]string{
		{"Project <jira>", "Key<key>", "Analysis<ai summarize the risk>"},
		{"", "TES-1", ""},
	})

	res, err := Run(context.Background(), env, d, grid)
	require.NoError(t, err)
	c, ok := findChange(res.Changes, 2, 3)
	require.True(t, ok)
	assert.Contains(t, c.NewValue, ErrorCellPrefix)
	assert.Contains(t, c.NewValue, "provider unavailable")
}
