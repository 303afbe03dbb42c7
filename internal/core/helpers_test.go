package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/mashix/internal/config"
)

// writeFasta writes one record per id with a short dummy sequence.
func writeFasta(t *testing.T, dir, name string, ids ...string) string {
	t.Helper()
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(">" + id + "\nACGTACGTAC\nGTACGTAC\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func testConfig(t *testing.T, inputs ...string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Inputs = inputs
	cfg.OutputTag = "test"
	cfg.OutputDir = t.TempDir()
	return cfg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
