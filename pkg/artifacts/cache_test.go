package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameConvention(t *testing.T) {
	name := Name("budget", "S1", "Project", "20260830T120000", "scope", "yaml")
	assert.Equal(t, "budget.S1.Project.20260830T120000.scope.yaml", name)

	// Table-less artifacts (snapshots) drop the table segment.
	name = Name("budget", "S1", "", "20260830T120000", "snapshot", "xlsx")
	assert.Equal(t, "budget.S1.20260830T120000.snapshot.xlsx", name)
}

func TestSanitizeHashesLongSegments(t *testing.T) {
	assert.Equal(t, "Project_Epics", Sanitize("Project Epics"))

	long := strings.Repeat("chain-Created-InProgress-Done", 10)
	s := Sanitize(long)
	assert.LessOrEqual(t, len(s), 80)
	// Deterministic: same input, same hash suffix.
	assert.Equal(t, s, Sanitize(long))
	// Distinct long inputs stay distinct.
	assert.NotEqual(t, s, Sanitize(long+"x"))
}

func TestDirWriteAndExists(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root, "alice", "run-1")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "alice", "run-1"), d.Path())
	assert.False(t, d.Exists("a.txt"))

	path, err := d.WriteFile("a.txt", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, d.Exists("a.txt"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCleanupExpired(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "alice", "run-old")
	fresh := filepath.Join(root, "alice", "run-fresh")
	require.NoError(t, os.MkdirAll(old, 0755))
	require.NoError(t, os.MkdirAll(fresh, 0755))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	require.NoError(t, CleanupExpired(root, 24*time.Hour))

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	// Missing root is not an error.
	assert.NoError(t, CleanupExpired(filepath.Join(root, "nope"), time.Hour))
}

func TestLedgerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.RecordStart("run-1", "alice", "budget.xlsx", "S1"))
	require.NoError(t, l.RecordArtifact("run-1", "budget.S1.Project.x.scope.yaml", "scope"))
	require.NoError(t, l.RecordFinish("run-1", "ok"))
	require.NoError(t, l.RecordStart("run-2", "bob", "budget.xlsx", "S2"))

	runs, err := l.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "ok", runs[1].Outcome)
}
