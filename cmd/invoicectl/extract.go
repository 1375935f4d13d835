package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-intake/internal/textextract"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text extracted from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		ex := textextract.NewExtractor(textextract.Config{
			Tesseract:     cfg.OCR.Tesseract,
			TesseractLang: cfg.OCR.TesseractLang,
			TessdataDir:   cfg.OCR.TessdataDir,
			MaxPages:      cfg.OCR.MaxPages,
		}, logger)
		segs, err := ex.Extract(cmd.Context(), doc)
		if err != nil {
			return err
		}
		if extractJSON {
			return printJSON(cmd.OutOrStdout(), segs)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), textextract.Text(segs))
		return err
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print segments as JSON")
	rootCmd.AddCommand(extractCmd)
}
