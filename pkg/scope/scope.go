// Package scope defines the persisted scope descriptor: a self-contained
// YAML record describing one tag block's work, emitted at run start and
// consumed by the analyzers. Chain scopes are secondary descriptors
// produced mid-analysis to drive per-chain row and LLM passes.
package scope

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sheetpulse/pkg/artifacts"
	"sheetpulse/pkg/tags"
)

// FileInfo names the descriptor's provenance.
type FileInfo struct {
	Basename  string `yaml:"basename"`
	Source    string `yaml:"source"`
	Sheet     string `yaml:"sheet"`
	Table     string `yaml:"table"`
	ScopeFile string `yaml:"scope file"`
}

// Descriptor is one block's scope. JiraIDs entries may be issue keys or
// embedded per-row JQL expressions (prefixed "JQL").
type Descriptor struct {
	FileInfo FileInfo    `yaml:"fileinfo"`
	Kind     tags.Kind   `yaml:"kind"`
	Fields   tags.Schema `yaml:"fields,omitempty"`
	JiraIDs  []string    `yaml:"jira_ids,omitempty"`
	JQL      string      `yaml:"jql,omitempty"`
	Params   tags.Params `yaml:"params,omitempty"`

	Row                int `yaml:"row"`
	Col                int `yaml:"col"`
	LastRow            int `yaml:"lastrow"`
	LastUpdateRowCount int `yaml:"last_update_row_count"`

	// RowNums are the sheet rows of the block's existing data rows, in
	// schema order with JiraIDs.
	RowNums []int `yaml:"row_nums,omitempty"`

	// LLM is the free-form summarization directive, when the tag carried
	// one.
	LLM string `yaml:"llm,omitempty"`

	// SummaryCol is the column receiving chain LLM summaries. Zero means
	// the analyzer derives it from the block geometry.
	SummaryCol int `yaml:"summary_col,omitempty"`

	// ChainID marks a chain scope: the transition chain or resolver
	// identity the secondary pass is keyed by.
	ChainID string `yaml:"chain_id,omitempty"`

	// Create marks the create-path descriptor of a jira block: its rows
	// have no key yet and are turned into new issues.
	Create bool `yaml:"create,omitempty"`

	// Timestamp is the run timestamp shared by all artifacts.
	Timestamp string `yaml:"timestamp"`
}

// suffix maps a block kind to its scope-file kind suffix.
func suffix(kind tags.Kind) string {
	switch kind {
	case tags.KindJira:
		return "scope"
	case tags.KindRateResolved:
		return "resolved.rate.scope"
	case tags.KindRateAssignee:
		return "assignee.rate.scope"
	case tags.KindCycleTime:
		return "cycletime.scope"
	case tags.KindStatusTime:
		return "statustime.scope"
	case tags.KindQuickstart:
		return "quickstart.scope"
	case tags.KindAIBrief:
		return "aibrief.scope"
	default:
		return "scope"
	}
}

// KindSuffix exposes the short kind label used in artifact names derived
// from a scope (jira-CSV, changes text).
func KindSuffix(kind tags.Kind) string {
	if kind == tags.KindJira {
		return "jira"
	}
	return strings.TrimSuffix(suffix(kind), ".scope")
}

// CreateSuffix is the kind suffix of create scopes (rows without keys).
const CreateSuffix = "create.scope"

// FileName builds the descriptor's canonical file name.
func FileName(basename, sheet, table, timestamp string, kind tags.Kind) string {
	return artifacts.Name(basename, sheet, table, timestamp, suffix(kind), "yaml")
}

// fileName resolves the descriptor's own name, honoring the create flag.
func (d *Descriptor) fileName() string {
	s := suffix(d.Kind)
	if d.Create {
		s = CreateSuffix
	}
	return artifacts.Name(d.FileInfo.Basename, d.FileInfo.Sheet, d.FileInfo.Table, d.Timestamp, s, "yaml")
}

// Save writes the descriptor into the run directory under its canonical
// name and returns the path.
func (d *Descriptor) Save(dir *artifacts.Dir) (string, error) {
	name := d.FileInfo.ScopeFile
	if name == "" {
		name = d.fileName()
		d.FileInfo.ScopeFile = name
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scope %s: %w", name, err)
	}
	return dir.WriteFile(name, data)
}

// Load reads a descriptor back from disk.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scope %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse scope %s: %w", path, err)
	}
	return &d, nil
}

// NewChainScope derives the secondary descriptor for one chain or
// resolver identity discovered during first-pass analysis. The chain id
// becomes part of the table segment so artifacts stay distinct.
func NewChainScope(parent *Descriptor, chainID string, keys []string) *Descriptor {
	table := parent.FileInfo.Table + "." + artifacts.Sanitize(chainID)
	child := &Descriptor{
		FileInfo: FileInfo{
			Basename: parent.FileInfo.Basename,
			Source:   parent.FileInfo.Source,
			Sheet:    parent.FileInfo.Sheet,
			Table:    table,
		},
		Kind:      tags.KindJira,
		JiraIDs:   keys,
		ChainID:   chainID,
		Timestamp: parent.Timestamp,
		LLM:       parent.LLM,
	}
	child.FileInfo.ScopeFile = FileName(child.FileInfo.Basename, child.FileInfo.Sheet, table, parent.Timestamp, tags.KindJira)
	return child
}
