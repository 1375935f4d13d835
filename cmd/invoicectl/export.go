package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/export"
)

var (
	exportSince string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write learned patterns and correction history to a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts := export.Options{CorrectionLimit: exportLimit}
		if exportSince != "" {
			t, err := time.Parse(time.DateOnly, exportSince)
			if err != nil {
				return common.Validation("--since must be YYYY-MM-DD")
			}
			opts.Since = &t
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.Exporter.ExportLearningXLSX(ctx, opts)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return common.WrapError(err, "write "+args[0])
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[0], len(data))
		return err
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only corrections on or after YYYY-MM-DD")
	exportCmd.Flags().IntVar(&exportLimit, "limit", export.DefaultCorrectionLimit, "maximum correction records")
	rootCmd.AddCommand(exportCmd)
}
