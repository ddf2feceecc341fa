package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"formscan/models"
	"formscan/process/report"
	"formscan/process/scanner"
)

func newScanCmd() *cobra.Command {
	opts := &extractOptions{}
	var (
		dir      string
		archive  string
		username string
		workers  int
		maxBytes int64
		watch    bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Extract every form image in a directory into the database",
		Long: `Scans a directory of form images, stores one extraction per file name and
moves finished images to the archive directory. Files already stored are skipped,
so the command can be rerun safely. With --watch it keeps processing new files
until interrupted.`,
		Example: `  formscan scan --dir public/forms --workers 4
  formscan scan --dir public/forms --watch
  formscan scan --dir public/forms --dry-run -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := opts.newExtractor()
			if err != nil {
				return err
			}
			s := scanner.New(dir, ex, nil)
			s.Workers = workers
			s.DryRun = dryRun
			s.Verbose = verbose
			s.ArchiveMaxBytes = maxBytes
			if archive != "" {
				s.ProcessedDir = archive
			}
			if dryRun {
				log.Printf("Dry-run: scanning %s (no DB interaction)", dir)
			} else {
				if err := initDB(); err != nil {
					return err
				}
				s.DB = db
				if username != "" {
					var u models.User
					if err := db.Where("username = ?", username).First(&u).Error; err != nil {
						return fmt.Errorf("user %s: %w", username, err)
					}
					s.UserID = &u.ID
				}
			}
			ctx := cmd.Context()
			if err := s.Preload(ctx); err != nil {
				return fmt.Errorf("preload: %w", err)
			}
			if err := s.Run(ctx); err != nil {
				return err
			}
			log.Printf("scan done: processed=%d skipped=%d failed=%d", s.Stats.Processed.Load(), s.Stats.Skipped.Load(), s.Stats.Failed.Load())
			if watch {
				return s.Watch(ctx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "public/forms", "Directory to scan for form images")
	cmd.Flags().StringVar(&archive, "processed-dir", "", "Where finished images go (default <dir>/../processed)")
	cmd.Flags().StringVar(&username, "user", "", "Record extractions as owned by this user")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default NumCPU)")
	cmd.Flags().Int64Var(&maxBytes, "archive-max-bytes", 1_000_000, "Downsize archived images above this size (0 keeps originals)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch the directory for new files after the initial scan")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Extract and log only; no DB writes, no file moves")
	bindPipelineFlags(cmd, opts)
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		month    string
		username string
		list     bool
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the extractions stored in one month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return err
			}
			var owner *uint
			if username != "" {
				var u models.User
				if err := db.Where("username = ?", username).First(&u).Error; err != nil {
					return fmt.Errorf("user not found: %w", err)
				}
				owner = &u.ID
			}
			summary, rows, err := report.Monthly(cmd.Context(), db, month, owner)
			if err != nil {
				return err
			}
			report.Print(cmd.OutOrStdout(), summary, rows, list)
			if xlsxPath != "" {
				if err := report.Save(xlsxPath, report.FormatXLSX, report.ExtractionsTable(rows)); err != nil {
					return err
				}
				log.Printf("wrote %d row(s) to %s", len(rows), xlsxPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month in YYYY-MM (UTC)")
	cmd.Flags().StringVar(&username, "user", "", "Only extractions owned by this user")
	cmd.Flags().BoolVar(&list, "list", false, "List every extraction")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also export the rows to this workbook")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations and seed roles and the admin user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// migrate always migrates, whatever DB_AUTO_MIGRATE says
			if err := os.Setenv("DB_AUTO_MIGRATE", "true"); err != nil {
				return err
			}
			if err := initDB(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration and seeding completed")
			return nil
		},
	}
}
