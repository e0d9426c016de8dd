package testhelpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// NewLogDir creates a log directory with an empty current/ folder and
// returns its root.
func NewLogDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "current"), 0o755))
	return root
}

// WriteLogFile writes lines, newline terminated, to dir/name and sets its
// modification time.
func WriteLogFile(t *testing.T, dir, name string, modTime time.Time, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}
