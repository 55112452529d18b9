package analyze

import (
	"context"
	"fmt"

	"sheetpulse/pkg/scope"
	"sheetpulse/pkg/workbook"
)

// runQuickstart seeds a canonical dashboard block per project: a brief,
// both rate tables, a cycle-time table and an Epic table with the
// standard schema. Pure inserts, no Jira fetch.
func runQuickstart(_ context.Context, env *Env, d *scope.Descriptor, _ *workbook.Grid) (*Result, error) {
	if len(d.Params.Projects) == 0 {
		return nil, fmt.Errorf("%w: quickstart scope %s names no projects", ErrFatalConfig, d.FileInfo.ScopeFile)
	}

	cs := NewChangeSet(d.FileInfo.Sheet)
	row := d.Row + 1
	for _, p := range d.Params.Projects {
		epicTable := p + "_Epics"

		cs.Insert(row, d.Col, fmt.Sprintf("%s Brief <ai brief> %s", p, epicTable))
		row++
		cs.Insert(row, d.Col, fmt.Sprintf("Resolved <rate resolved> weeks jql project=%s and resolutiondate >= -12w", p))
		row++
		cs.Insert(row, d.Col, fmt.Sprintf("Load <rate assignee> weeks jql project=%s and resolutiondate >= -12w", p))
		row++
		cs.Insert(row, d.Col, fmt.Sprintf("Flow <cycletime> jql project=%s and updated >= -12w", p))
		row++

		cs.Insert(row, d.Col, fmt.Sprintf("%s <jira> jql project=%s and issuetype=Epic", epicTable, p))
		for j, header := range []string{"Key<key>", "Summary<summary>", "Status<status>", "Assignee<assignee>", "Children<children>", "Updated<timestamp>"} {
			cs.Insert(row, d.Col+1+j, header)
		}
		row++
	}

	if err := env.saveChanges(d, cs); err != nil {
		return nil, err
	}
	return &Result{Changes: cs}, nil
}
