// Package tags implements the on-sheet contract: the closed tag taxonomy,
// per-column field schemas, header-cell parsing, and the row state machine
// that discovers tag blocks on a sheet.
package tags

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind enumerates the taggable block kinds.
type Kind string

const (
	KindJira         Kind = "jira"
	KindAIBrief      Kind = "ai_brief"
	KindRateResolved Kind = "rate_resolved"
	KindRateAssignee Kind = "rate_assignee"
	KindCycleTime    Kind = "cycletime"
	KindStatusTime   Kind = "statustime"
	KindQuickstart   Kind = "quickstart"
	KindAIInline     Kind = "ai_inline"
)

// tagTokens maps the literal on-sheet token to its kind. Longer tokens are
// matched first so "<rate resolved>" wins over any shorter prefix.
var tagTokens = []struct {
	token string
	kind  Kind
}{
	{"<rate resolved>", KindRateResolved},
	{"<rate assignee>", KindRateAssignee},
	{"<ai brief>", KindAIBrief},
	{"<cycletime>", KindCycleTime},
	{"<statustime>", KindStatusTime},
	{"<quickstart>", KindQuickstart},
	{"<jira>", KindJira},
	{"<ai>", KindAIInline},
}

// FieldName is the closed semantic set for block columns.
type FieldName string

const (
	FieldKey         FieldName = "key"
	FieldURL         FieldName = "url"
	FieldSummary     FieldName = "summary"
	FieldDescription FieldName = "description"
	FieldStatus      FieldName = "status"
	FieldIssueType   FieldName = "issuetype"
	FieldPriority    FieldName = "priority"
	FieldCreated     FieldName = "created"
	FieldAssignee    FieldName = "assignee"
	FieldReporter    FieldName = "reporter"
	FieldComments    FieldName = "comments"
	FieldAI          FieldName = "ai"
	FieldChildren    FieldName = "children"
	FieldLinks       FieldName = "links"
	FieldHeadline    FieldName = "headline"
	FieldSynopsis    FieldName = "synopsis"
	FieldTimestamp   FieldName = "timestamp"
	FieldID          FieldName = "id"
)

var knownFields = map[FieldName]bool{
	FieldKey: true, FieldURL: true, FieldSummary: true, FieldDescription: true,
	FieldStatus: true, FieldIssueType: true, FieldPriority: true, FieldCreated: true,
	FieldAssignee: true, FieldReporter: true, FieldComments: true, FieldAI: true,
	FieldChildren: true, FieldLinks: true, FieldHeadline: true, FieldSynopsis: true,
	FieldTimestamp: true, FieldID: true,
}

// Field binds one semantic field to a 1-based column. An "ai ..." column
// carries its free-form prompt in Prompt.
type Field struct {
	Name   FieldName `yaml:"value"`
	Col    int       `yaml:"index"`
	Prompt string    `yaml:"prompt,omitempty"`
}

// Schema is the ordered field list of one block.
type Schema []Field

// Col returns the column of the named field, 0 when absent.
func (s Schema) Col(name FieldName) int {
	for _, f := range s {
		if f.Name == name {
			return f.Col
		}
	}
	return 0
}

// Has reports whether the schema declares the field.
func (s Schema) Has(name FieldName) bool { return s.Col(name) != 0 }

// MaxCol returns the rightmost declared column.
func (s Schema) MaxCol() int {
	max := 0
	for _, f := range s {
		if f.Col > max {
			max = f.Col
		}
	}
	return max
}

// Interval is the time-bucket granularity of rate blocks.
type Interval string

const (
	IntervalDays   Interval = "days"
	IntervalWeeks  Interval = "weeks"
	IntervalMonths Interval = "months"
	IntervalYears  Interval = "years"
)

var validIntervals = map[Interval]bool{
	IntervalDays: true, IntervalWeeks: true, IntervalMonths: true, IntervalYears: true,
}

// Params carries the arguments parsed from a tag's header cell.
type Params struct {
	JQL       string   `yaml:"jql,omitempty"`
	Interval  Interval `yaml:"interval,omitempty"`
	Projects  []string `yaml:"projects,omitempty"`
	Refs      []string `yaml:"refs,omitempty"`
	Emails    []string `yaml:"emails,omitempty"`
	LLMPrompt string   `yaml:"llm,omitempty"`
}

// fieldRe extracts the last <...> token in a column header cell.
var fieldRe = regexp.MustCompile(`<([^<>]+)>\s*$`)

// ParseFieldHeader reads a column header like "Key<key>" or
// "Analysis<ai summarize the risk>" into a Field. Returns false when the
// cell declares no recognized field.
func ParseFieldHeader(cell string, col int) (Field, bool) {
	m := fieldRe.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return Field{}, false
	}
	inner := strings.TrimSpace(m[1])
	if inner == "ai" || strings.HasPrefix(inner, "ai ") {
		return Field{Name: FieldAI, Col: col, Prompt: strings.TrimSpace(strings.TrimPrefix(inner, "ai"))}, true
	}
	name := FieldName(strings.ToLower(inner))
	if !knownFields[name] {
		return Field{}, false
	}
	return Field{Name: name, Col: col}, true
}

// Header is a parsed tag header cell: the label preceding the tag, the
// tag's kind, and the argument parameters.
type Header struct {
	Label  string
	Kind   Kind
	Params Params
}

// FindTag locates the first recognized tag token in a cell value. Returns
// the kind and the token's byte offset, or false.
func FindTag(cell string) (Kind, int, bool) {
	lower := strings.ToLower(cell)
	best := -1
	var kind Kind
	for _, t := range tagTokens {
		if i := strings.Index(lower, t.token); i >= 0 && (best < 0 || i < best) {
			best = i
			kind = t.kind
		}
	}
	if best < 0 {
		return "", 0, false
	}
	return kind, best, true
}

// ParseHeader parses a full header cell ("Label <tag> args..."). The args
// grammar is kind-specific; a malformed required argument is an error.
func ParseHeader(cell string) (*Header, error) {
	kind, offset, ok := FindTag(cell)
	if !ok {
		return nil, fmt.Errorf("no tag in cell %q", cell)
	}
	label := strings.TrimSpace(cell[:offset])

	// Find the end of the tag token to slice off the args.
	rest := cell[offset:]
	if i := strings.Index(rest, ">"); i >= 0 {
		rest = rest[i+1:]
	}
	args := strings.TrimSpace(rest)

	h := &Header{Label: label, Kind: kind}
	var err error
	switch kind {
	case KindJira:
		h.Params = parseJiraArgs(args)
	case KindRateResolved, KindRateAssignee:
		h.Params, err = parseRateArgs(args)
	case KindCycleTime, KindStatusTime:
		h.Params, err = parseJQLArgs(args, kind)
	case KindAIBrief:
		h.Params = parseBriefArgs(args)
	case KindQuickstart:
		h.Params = Params{Projects: splitList(args)}
	case KindAIInline:
		h.Params = Params{LLMPrompt: args}
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func parseJiraArgs(args string) Params {
	if jql, ok := cutKeyword(args, "jql"); ok {
		return Params{JQL: jql}
	}
	return Params{}
}

func parseRateArgs(args string) (Params, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Params{}, fmt.Errorf("rate tag requires an interval and a jql")
	}
	interval := Interval(strings.ToLower(fields[0]))
	if !validIntervals[interval] {
		return Params{}, fmt.Errorf("invalid rate interval %q (want days, weeks, months or years)", fields[0])
	}
	rest := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	jql, ok := cutKeyword(rest, "jql")
	if !ok || jql == "" {
		return Params{}, fmt.Errorf("rate tag requires a jql expression")
	}
	return Params{Interval: interval, JQL: jql}, nil
}

func parseJQLArgs(args string, kind Kind) (Params, error) {
	jql, ok := cutKeyword(args, "jql")
	if !ok || jql == "" {
		return Params{}, fmt.Errorf("%s tag requires a jql expression", kind)
	}
	// An optional trailing "llm:" directive splits off a free-form prompt.
	if i := strings.Index(strings.ToLower(jql), "llm:"); i >= 0 {
		return Params{
			JQL:       strings.TrimSpace(jql[:i]),
			LLMPrompt: strings.TrimSpace(jql[i+len("llm:"):]),
		}, nil
	}
	return Params{JQL: jql}, nil
}

func parseBriefArgs(args string) Params {
	p := Params{}
	refsPart := args
	if i := strings.Index(strings.ToLower(args), "email:"); i >= 0 {
		refsPart = args[:i]
		p.Emails = splitList(args[i+len("email:"):])
	}
	p.Refs = splitList(refsPart)
	return p
}

// cutKeyword returns the text following a leading keyword, tolerant of
// case and surrounding whitespace.
func cutKeyword(s, keyword string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < len(keyword) || !strings.EqualFold(trimmed[:len(keyword)], keyword) {
		return "", false
	}
	rest := trimmed[len(keyword):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '=' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(rest, " \t=")), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
