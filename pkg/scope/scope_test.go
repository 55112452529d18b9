package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/tags"
	"sheetpulse/pkg/workbook"
)

const ts = "20260830T120000"

func readSheet(t *testing.T, rows [][]string) *tags.SheetBlocks {
	t.Helper()
	blocks, err := tags.ReadBlocks(workbook.NewGrid("S1", rows), tags.Options{})
	require.NoError(t, err)
	return blocks
}

func TestEmitJiraScope(t *testing.T) {
	blocks := readSheet(t, [][]string{
		{"Project <jira> jql project=TES", "Key<key>", "Summary<summary>"},
		{"", "TES-1", "Login bug"},
		{"", "JQL project=TES and type=Epic", ""},
		{"", "", "New task to create"},
	})
	ref, err := workbook.Parse("/tmp/budget.xlsx")
	require.NoError(t, err)

	descs, errs := Emit(blocks, ref, ts)
	require.Empty(t, errs)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, tags.KindJira, d.Kind)
	assert.Equal(t, "budget", d.FileInfo.Basename)
	assert.Equal(t, "S1", d.FileInfo.Sheet)
	assert.Equal(t, "Project", d.FileInfo.Table)
	assert.Equal(t, "budget.S1.Project."+ts+".scope.yaml", d.FileInfo.ScopeFile)
	assert.Equal(t, "project=TES", d.JQL)
	assert.Equal(t, []string{"TES-1", "JQL project=TES and type=Epic", ""}, d.JiraIDs)
	assert.Equal(t, []int{2, 3, 4}, d.RowNums)
	assert.Equal(t, 3, d.LastUpdateRowCount)
	assert.Equal(t, 4, d.LastRow)
	assert.Equal(t, 2, d.Fields.Col(tags.FieldKey))

	// The keyless row with a summary splits into a create scope.
	c := descs[1]
	assert.True(t, c.Create)
	assert.Equal(t, []int{4}, c.RowNums)
	assert.Equal(t, "budget.S1.Project."+ts+".create.scope.yaml", c.FileInfo.ScopeFile)
}

func TestEmitMalformedBlockIsolated(t *testing.T) {
	blocks := readSheet(t, [][]string{
		{"Bad <rate resolved> fortnights jql x"},
		{""},
		{"Good <jira>", "Key<key>"},
		{"", "TES-9"},
	})
	ref, _ := workbook.Parse("/tmp/budget.xlsx")

	descs, errs := Emit(blocks, ref, ts)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "row 1")
	require.Len(t, descs, 1)
	assert.Equal(t, tags.KindJira, descs[0].Kind)
}

func TestEmitKindSuffixes(t *testing.T) {
	blocks := readSheet(t, [][]string{
		{"Velocity <rate resolved> weeks jql project=TES"},
		{""},
		{"Flow <cycletime> jql project=TES llm: focus on delays"},
		{""},
		{"Load <rate assignee> months jql project=TES"},
		{""},
		{"Waits <statustime> jql project=TES"},
		{""},
		{"Setup <quickstart> TES OPS"},
	})
	ref, _ := workbook.Parse("/tmp/budget.xlsx")

	descs, errs := Emit(blocks, ref, ts)
	require.Empty(t, errs)
	require.Len(t, descs, 5)

	byKind := map[tags.Kind]*Descriptor{}
	for _, d := range descs {
		byKind[d.Kind] = d
	}
	assert.Contains(t, byKind[tags.KindRateResolved].FileInfo.ScopeFile, ".resolved.rate.scope.yaml")
	assert.Contains(t, byKind[tags.KindRateAssignee].FileInfo.ScopeFile, ".assignee.rate.scope.yaml")
	assert.Contains(t, byKind[tags.KindCycleTime].FileInfo.ScopeFile, ".cycletime.scope.yaml")
	assert.Contains(t, byKind[tags.KindStatusTime].FileInfo.ScopeFile, ".statustime.scope.yaml")
	assert.Contains(t, byKind[tags.KindQuickstart].FileInfo.ScopeFile, ".quickstart.scope.yaml")

	assert.Equal(t, "focus on delays", byKind[tags.KindCycleTime].LLM)
	assert.Equal(t, []string{"TES", "OPS"}, byKind[tags.KindQuickstart].Params.Projects)
}

func TestEmitBriefNormalizesRefs(t *testing.T) {
	blocks := readSheet(t, [][]string{
		{"Weekly <ai brief> S1.Project, Other.Remote email: pm@example.com"},
	})
	ref, _ := workbook.Parse("/tmp/budget.xlsx")

	descs, errs := Emit(blocks, ref, ts)
	require.Empty(t, errs)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, tags.KindAIBrief, d.Kind)
	// Same-sheet prefix dropped, cross-sheet kept.
	assert.Equal(t, []string{"Project", "Other.Remote"}, d.Params.Refs)
	assert.Equal(t, []string{"pm@example.com"}, d.Params.Emails)
	assert.Nil(t, d.JiraIDs)
	assert.Contains(t, d.FileInfo.ScopeFile, ".aibrief.scope.yaml")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := artifacts.NewDir(t.TempDir(), "alice", "run-1")
	require.NoError(t, err)

	d := &Descriptor{
		FileInfo: FileInfo{Basename: "budget", Source: "/tmp/budget.xlsx", Sheet: "S1", Table: "Project"},
		Kind:     tags.KindJira,
		Fields: tags.Schema{
			{Name: tags.FieldKey, Col: 2},
			{Name: tags.FieldAI, Col: 4, Prompt: "summarize risk"},
		},
		JiraIDs:            []string{"TES-1", ""},
		RowNums:            []int{2, 3},
		JQL:                "project=TES",
		Row:                1,
		Col:                1,
		LastRow:            3,
		LastUpdateRowCount: 2,
		Timestamp:          ts,
	}
	path, err := d.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, dir.File("budget.S1.Project."+ts+".scope.yaml"), path)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestNewChainScope(t *testing.T) {
	parent := &Descriptor{
		FileInfo:  FileInfo{Basename: "budget", Source: "x", Sheet: "S1", Table: "Flow"},
		Kind:      tags.KindCycleTime,
		Timestamp: ts,
		LLM:       "focus on delays",
	}
	child := NewChainScope(parent, "Created -> Done", []string{"TES-1", "TES-2"})

	assert.Equal(t, tags.KindJira, child.Kind)
	assert.Equal(t, "Created -> Done", child.ChainID)
	assert.Equal(t, []string{"TES-1", "TES-2"}, child.JiraIDs)
	assert.Equal(t, "Flow.Created_-_Done", child.FileInfo.Table)
	assert.Equal(t, "focus on delays", child.LLM)
	assert.Contains(t, child.FileInfo.ScopeFile, ".scope.yaml")
	assert.Equal(t, ts, child.Timestamp)
}
