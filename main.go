package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)
	verbose   bool
)

func main() {
	root := newRootCmd()
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "formscan [image...]",
		Short: "Read handwritten fields from scanned service forms",
		Long: `formscan locates labelled fields on a scanned paper form, reads them with
Tesseract and writes one row per form.

Without a subcommand it behaves like "formscan extract".`,
		Args: cobra.ArbitraryArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; variables already set win
			_ = godotenv.Load()
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				secret = "dev-insecure-secret-change"
			}
			jwtSecret = []byte(secret)
		},
		RunE: opts.run,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose per-field logging")
	opts.bind(cmd)

	cmd.AddCommand(
		newExtractCmd(),
		newWordsCmd(),
		newPreprocessCmd(),
		newScanCmd(),
		newReportCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)
	return cmd
}
