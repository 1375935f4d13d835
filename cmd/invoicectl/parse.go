package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/extraction"
	"github.com/joseph-ayodele/invoice-intake/internal/textextract"
)

var (
	parseStrategy string
	parseFormat   string
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Extract and parse a document through a strategy chain",
	Long:  "Runs text extraction, then the resolved strategy chain, and prints the extraction result with every attempt and its cost. Nothing is persisted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		segs, err := a.Extractor.Extract(ctx, doc)
		if err != nil {
			return err
		}
		res, err := a.Orchestrator.ParseInvoice(ctx, textextract.Text(segs), extraction.ParseContext{
			Identity:       common.IdentityFromContext(ctx),
			ExpectedFormat: parseFormat,
			Strategy:       parseStrategy,
		})
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseStrategy, "strategy", "", "strategy name (default: resolved from format)")
	parseCmd.Flags().StringVar(&parseFormat, "format", "", "expected document format used to pick a strategy")
	rootCmd.AddCommand(parseCmd)
}
