package reconcile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readSample(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "report", "testdata", "story_check.md"))
	require.NoError(t, err)
	return string(data)
}

func replaceOnce(s, old, repl string) string {
	return strings.Replace(s, old, repl, 1)
}
