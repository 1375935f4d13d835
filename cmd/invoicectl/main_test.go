package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtractCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("INVOICE 7\nTotal: 10.00\n"), 0o600))

	out, err := run(t, "extract", path)
	require.NoError(t, err)
	assert.Contains(t, out, "INVOICE 7")

	_, err = run(t, "extract", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRebuildAndExportCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", filepath.Join(dir, "ctl.db"))
	t.Setenv("STRATEGY_FILE", filepath.Join(dir, "none.yaml"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	out, err := run(t, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "REBUILT"`)
	assert.Contains(t, out, `"totalRecords": 0`)

	xlsx := filepath.Join(dir, "learning.xlsx")
	out, err = run(t, "export", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out, err = run(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "DB health: OK")
	assert.Contains(t, out, "patterns: 0")
}
