package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
)

const invoiceText = `ACME Steel Supply
Vendor: ACME Steel Supply
Invoice Number: INV-2024-001
Date: 2024-03-15
Steel beams 3 100.00 300.00
Welding rods 2 25.50 51.00
Tax: 28.08
Total: $379.08
`

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	return &common.Config{
		Database:   common.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "app.db")},
		Server:     common.ServerConfig{HTTPAddr: ":0"},
		Extraction: common.ExtractionConfig{StrategyFile: filepath.Join(dir, "missing.yaml")},
		Learning:   common.LearningConfig{RebuildLimit: 100},
	}
}

func TestBuildProcessesTextInvoice(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []string{DefaultStrategy}, a.Orchestrator.Strategies().Names())
	require.NoError(t, a.Ping(ctx, 0))

	out, err := a.Processor.Process(ctx, entity.RawDocument{
		FileID:    "f1",
		FileName:  "invoice.txt",
		MediaType: "text/plain",
		Content:   []byte(invoiceText),
	}, extraction.ParseContext{Identity: "test"})
	require.NoError(t, err)
	require.NotNil(t, out.InvoiceID)
	assert.True(t, out.Result.Success)
	assert.Equal(t, DefaultStrategy, out.Result.Strategy)

	inv, err := a.Invoices.GetInvoice(ctx, *out.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-001", inv.InvoiceNumber)
	assert.Len(t, inv.LineItems, 2)

	deps := a.ServerDeps()
	assert.NotNil(t, deps.Learner)
	assert.NotNil(t, deps.Exporter)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	yaml := []byte("extraction:\n  default_strategy: cloud\n  strategies:\n    cloud:\n      providers: [openai]\n")
	require.NoError(t, os.WriteFile(cfg.Extraction.StrategyFile, yaml, 0o600))

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.KindOf(err))
}

func TestBuildValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = ""
	_, err := Build(context.Background(), cfg, nil)
	assert.Equal(t, common.CodeConfig, common.KindOf(err))
}
