package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

var (
	cfg      *common.Config
	logger   *slog.Logger
	identity string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "invoicectl",
	Short:         "Invoice extraction and correction learning tools",
	Long:          "Extracts text from invoice documents, parses them through the configured strategy chains, and maintains the learned pattern index.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = app.NewLogger("text", level)
		cfg = common.LoadConfig()
		if identity != "" {
			cmd.SetContext(common.WithIdentity(cmd.Context(), identity))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "identity recorded on learning history")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logErr := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logErr.Error("invoicectl failed", "kind", common.KindOf(err), "error", err)
		os.Exit(1)
	}
}

// buildApp opens the database and wires the pipeline for commands that need it.
func buildApp(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, cfg, logger)
}

// readDocument loads a file from disk as a raw document.
func readDocument(path string) (entity.RawDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return entity.RawDocument{}, common.WrapError(err, "read "+path)
	}
	return entity.RawDocument{
		FileID:   filepath.Base(path),
		FileName: filepath.Base(path),
		Content:  content,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
