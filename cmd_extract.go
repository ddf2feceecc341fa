package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"formscan/pkg/form"
	"formscan/pkg/ocr"
	"formscan/process/report"
)

const defaultImage = "Images/Image_1.jpg"

type extractOptions struct {
	out       string
	format    string
	template  string
	saveCrops string
	lang      string
	keepGoing bool
	noDeskew  bool
}

func (o *extractOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.out, "out", "o", "results.csv", "Output file")
	cmd.Flags().StringVar(&o.format, "format", "", "Output format: csv or xlsx (default from --out extension)")
	bindPipelineFlags(cmd, o)
	cmd.Flags().StringVar(&o.saveCrops, "save-crops", "", "Directory to save every field crop as PNG")
}

// bindPipelineFlags registers the flags shared by every command that runs the extractor.
func bindPipelineFlags(cmd *cobra.Command, o *extractOptions) {
	cmd.Flags().StringVarP(&o.template, "template", "t", "", "Form template YAML (default $FORMSCAN_TEMPLATE or the built-in water meter form)")
	cmd.Flags().StringVar(&o.lang, "lang", "eng", "Tesseract language")
	cmd.Flags().BoolVar(&o.keepGoing, "keep-going", false, "Leave a field empty when its anchor is missing instead of failing the form")
	cmd.Flags().BoolVar(&o.noDeskew, "no-deskew", false, "Skip skew correction")
}

func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [image...]",
		Short: "Extract the template fields from one or more images",
		Example: `  # Read the default image into results.csv
  formscan extract

  # Several forms into a workbook, keeping partial rows
  formscan extract scans/*.jpg --out forms.xlsx --keep-going`,
		Args: cobra.ArbitraryArgs,
		RunE: opts.run,
	}
	opts.bind(cmd)
	return cmd
}

// newExtractor wires the template, Tesseract and the preprocessor.
func (o *extractOptions) newExtractor() (*form.Extractor, error) {
	path := o.template
	if path == "" {
		path = os.Getenv("FORMSCAN_TEMPLATE")
	}
	tpl, err := form.LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	tess := ocr.NewTesseract()
	tess.Language = o.lang
	tess.Verbose = verbose
	prep := ocr.Preprocessor{SkipDeskew: o.noDeskew, Verbose: verbose}
	ex := form.NewExtractor(tpl, tess, prep)
	ex.KeepGoing = o.keepGoing
	ex.CropDir = o.saveCrops
	ex.Verbose = verbose
	return ex, nil
}

func (o *extractOptions) run(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(o.format, o.out)
	if err != nil {
		return err
	}
	ex, err := o.newExtractor()
	if err != nil {
		return err
	}
	images := args
	if len(images) == 0 {
		images = []string{defaultImage}
	}
	results := make([]*form.Result, 0, len(images))
	for _, path := range images {
		res, err := ex.Extract(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if missing := res.Unresolved(); len(missing) > 0 {
			log.Printf("WARN %s unresolved: %s", path, strings.Join(missing, ", "))
		}
		results = append(results, res)
	}
	table := report.ResultsTable(results, len(results) > 1)
	if err := report.Save(o.out, format, table); err != nil {
		return fmt.Errorf("write %s: %w", o.out, err)
	}
	log.Printf("wrote %d row(s) to %s", len(results), o.out)
	return nil
}

func newWordsCmd() *cobra.Command {
	var noDeskew bool
	cmd := &cobra.Command{
		Use:   "words <image>",
		Short: "Print the word boxes Tesseract finds on a page",
		Long:  "Prints one word per line with its box, to help choose anchor phrases for a template.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := ocr.Preprocessor{SkipDeskew: noDeskew, Verbose: verbose}.Load(args[0])
			if err != nil {
				return err
			}
			tess := ocr.NewTesseract()
			tess.Verbose = verbose
			words, err := tess.Words(cmd.Context(), img)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, w := range words {
				fmt.Fprintf(out, "%4d %-24q left=%d top=%d width=%d height=%d conf=%.1f\n", i, w.Text, w.Left, w.Top, w.Width, w.Height, w.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDeskew, "no-deskew", false, "Skip skew correction")
	return cmd
}

func newPreprocessCmd() *cobra.Command {
	var (
		out      string
		noLines  bool
		noDeskew bool
	)
	cmd := &cobra.Command{
		Use:   "preprocess <image>",
		Short: "Write the page as the extractor sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prep := ocr.Preprocessor{SkipDeskew: noDeskew, Verbose: verbose}
			img, err := prep.Load(args[0])
			if err != nil {
				return err
			}
			if noLines {
				img = prep.RemoveRuledLines(img)
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".prep.png"
			}
			if err := imaging.Save(img, out); err != nil {
				return err
			}
			log.Printf("PREPROC wrote %s", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output PNG (default <image>.prep.png)")
	cmd.Flags().BoolVar(&noLines, "no-lines", false, "Also remove ruled lines")
	cmd.Flags().BoolVar(&noDeskew, "no-deskew", false, "Skip skew correction")
	return cmd
}
