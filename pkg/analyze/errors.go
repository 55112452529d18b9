package analyze

import (
	"errors"
	"fmt"
)

// Error taxonomy. Fatal errors sink the offending scope only; the other
// scopes of the run are still attempted.
var (
	// ErrFatalConfig marks missing credentials or scope fields.
	ErrFatalConfig = errors.New("configuration error")
	// ErrFatalParse marks malformed scope YAML or jira-CSV artifacts.
	ErrFatalParse = errors.New("parse error")
	// ErrDataIncomplete marks an AI brief whose upstream table data could
	// not be produced. Reported as a warning, not a scope failure.
	ErrDataIncomplete = errors.New("upstream data incomplete")
)

// ErrorCellPrefix makes machine-written failure text distinguishable
// from user content in a cell.
const ErrorCellPrefix = "⚠ ERROR"

// errorCell renders a provider failure into the visible cell text so the
// refresh still progresses.
func errorCell(stamp string, err error) string {
	return fmt.Sprintf("%s %s: %v", ErrorCellPrefix, stamp, err)
}
