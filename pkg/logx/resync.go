package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ResyncLog is the rolling one-line-per-job summary log. Every completed
// refresh appends exactly one line with its job identity and outcome, so
// operators can scan the history without opening per-run logs.
type ResyncLog struct {
	mu   sync.Mutex
	path string
}

// NewResyncLog opens (or creates) the rolling summary log at path.
func NewResyncLog(path string) *ResyncLog {
	return &ResyncLog{path: path}
}

// Record appends one summary line. Failures to write the resync log are
// reported to stderr but never fail the run.
func (r *ResyncLog) Record(user, runID, workbook, sheet, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: resync log dir: %v\n", err)
		return
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: resync log open: %v\n", err)
		return
	}
	defer f.Close()

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(f, "%s user=%s run=%s workbook=%s sheet=%s outcome=%s\n",
		timestamp, user, runID, workbook, sheet, outcome)
}
