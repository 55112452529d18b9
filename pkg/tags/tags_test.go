package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTag(t *testing.T) {
	tests := []struct {
		cell string
		kind Kind
		ok   bool
	}{
		{"Project<jira>", KindJira, true},
		{"Project <jira> jql project=TES", KindJira, true},
		{"Summary <AI Brief> Backlog.Epics", KindAIBrief, true},
		{"Throughput <rate resolved> weeks jql project=TES", KindRateResolved, true},
		{"Who <rate assignee> months jql project=TES", KindRateAssignee, true},
		{"Flow <cycletime> jql project=TES", KindCycleTime, true},
		{"Transitions <statustime> jql project=TES", KindStatusTime, true},
		{"Setup <quickstart> TES OPS", KindQuickstart, true},
		{"Notes <ai> summarize this", KindAIInline, true},
		{"plain text", "", false},
		{"<unknowntag>", "", false},
	}
	for _, tt := range tests {
		kind, _, ok := FindTag(tt.cell)
		assert.Equal(t, tt.ok, ok, tt.cell)
		if ok {
			assert.Equal(t, tt.kind, kind, tt.cell)
		}
	}
}

func TestParseHeaderJira(t *testing.T) {
	h, err := ParseHeader("Project Epics <jira> jql project=TES and type=Epic")
	require.NoError(t, err)
	assert.Equal(t, "Project Epics", h.Label)
	assert.Equal(t, KindJira, h.Kind)
	assert.Equal(t, "project=TES and type=Epic", h.Params.JQL)

	h, err = ParseHeader("Plain<jira>")
	require.NoError(t, err)
	assert.Equal(t, "Plain", h.Label)
	assert.Empty(t, h.Params.JQL)
}

func TestParseHeaderRate(t *testing.T) {
	h, err := ParseHeader("Throughput <rate resolved> weeks jql project=TES")
	require.NoError(t, err)
	assert.Equal(t, IntervalWeeks, h.Params.Interval)
	assert.Equal(t, "project=TES", h.Params.JQL)

	_, err = ParseHeader("Bad <rate resolved> fortnights jql project=TES")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rate interval")

	_, err = ParseHeader("Bad <rate assignee> weeks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a jql")
}

func TestParseHeaderCycleTime(t *testing.T) {
	h, err := ParseHeader("Flow <cycletime> jql project=TES and updated >= -30d llm: focus on stalls")
	require.NoError(t, err)
	assert.Equal(t, "project=TES and updated >= -30d", h.Params.JQL)
	assert.Equal(t, "focus on stalls", h.Params.LLMPrompt)

	_, err = ParseHeader("Flow <cycletime>")
	require.Error(t, err)
}

func TestParseHeaderBrief(t *testing.T) {
	h, err := ParseHeader("Weekly <ai brief> Backlog.Project_Epics, Bugs email: a@x.com, b@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"Backlog.Project_Epics", "Bugs"}, h.Params.Refs)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, h.Params.Emails)
}

func TestParseHeaderQuickstart(t *testing.T) {
	h, err := ParseHeader("Setup <quickstart> TES, OPS")
	require.NoError(t, err)
	assert.Equal(t, []string{"TES", "OPS"}, h.Params.Projects)
}

func TestParseFieldHeader(t *testing.T) {
	f, ok := ParseFieldHeader("Key<key>", 2)
	require.True(t, ok)
	assert.Equal(t, FieldKey, f.Name)
	assert.Equal(t, 2, f.Col)

	f, ok = ParseFieldHeader("Analysis<ai summarize open risks>", 7)
	require.True(t, ok)
	assert.Equal(t, FieldAI, f.Name)
	assert.Equal(t, "summarize open risks", f.Prompt)

	_, ok = ParseFieldHeader("Notes<bogusfield>", 3)
	assert.False(t, ok)

	_, ok = ParseFieldHeader("no tag here", 3)
	assert.False(t, ok)
}

func TestSchemaHelpers(t *testing.T) {
	s := Schema{
		{Name: FieldKey, Col: 1},
		{Name: FieldSummary, Col: 3},
	}
	assert.Equal(t, 1, s.Col(FieldKey))
	assert.Equal(t, 0, s.Col(FieldStatus))
	assert.True(t, s.Has(FieldSummary))
	assert.False(t, s.Has(FieldURL))
	assert.Equal(t, 3, s.MaxCol())
}
