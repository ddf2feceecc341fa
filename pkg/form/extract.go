package form

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"formscan/pkg/ocr"
)

// Recognizer is the OCR engine: word boxes for a page and transcriptions of crops.
type Recognizer interface {
	Words(ctx context.Context, img image.Image) ([]ocr.Word, error)
	Text(ctx context.Context, img image.Image, mode ocr.Mode) (string, error)
}

// Preprocessor loads pages and erases ruled lines from crops.
type Preprocessor interface {
	Load(path string) (*image.NRGBA, error)
	RemoveRuledLines(img image.Image) *image.NRGBA
}

// Extractor reads every field of Template from a scanned page. Fields are
// processed one after another; nothing is shared between them but the page.
type Extractor struct {
	Template *Template
	OCR      Recognizer
	Prep     Preprocessor

	// KeepGoing leaves a field empty when its start anchor is missing instead
	// of failing the whole page.
	KeepGoing bool
	// CropDir, when set, receives a PNG of every field crop.
	CropDir string
	Verbose bool
}

// NewExtractor returns an Extractor that fails a page on the first missing anchor.
func NewExtractor(t *Template, rec Recognizer, prep Preprocessor) *Extractor {
	return &Extractor{Template: t, OCR: rec, Prep: prep}
}

func (e *Extractor) logV(format string, args ...any) {
	if e.Verbose {
		log.Printf(format, args...)
	}
}

// Extract loads path and reads its fields.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	img, err := e.Prep.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return e.ExtractImage(ctx, path, img)
}

// ExtractImage reads the fields of an already preprocessed page.
func (e *Extractor) ExtractImage(ctx context.Context, source string, img image.Image) (*Result, error) {
	words, err := e.OCR.Words(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("page words: %w", err)
	}
	e.logV("OCR %s words=%d", source, len(words))
	res := newResult(e.Template, source)
	for _, f := range e.Template.Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := e.extractField(ctx, img, words, f, res)
		if err == nil {
			continue
		}
		var anchor *AnchorNotFoundError
		if e.KeepGoing && errors.As(err, &anchor) {
			res.Errors[f.Name] = err.Error()
			e.logV("FIELD %s skipped: %v", f.Name, err)
			continue
		}
		return nil, err
	}
	return res, nil
}

func (e *Extractor) extractField(ctx context.Context, img image.Image, words []ocr.Word, f Field, res *Result) error {
	crop, region, err := Crop(img, words, f.Start, f.EndPhrase())
	if err != nil {
		var anchor *AnchorNotFoundError
		if errors.As(err, &anchor) {
			anchor.Field = f.Name
		}
		return err
	}
	e.saveCrop(f, crop)
	texts, err := e.readings(ctx, crop, f)
	if err != nil {
		return err
	}
	var a, b string
	if len(texts) > 0 {
		a = texts[0]
	}
	if len(texts) > 1 {
		b = texts[1]
	}

	switch f.Kind {
	case KindOption:
		if v, ok := ReconcileOption(a, b, f.Options); ok {
			res.Values[f.Name] = v
		}
	case KindDate:
		if d, ok := ReconcileDate(a, b); ok {
			res.Values[f.Name] = d.String()
			res.Dates[f.Name] = d
		}
	case KindMaterials:
		found := ExtractMaterials(strings.Join(texts, "\n"), f.Vocabulary, f.Threshold)
		res.Materials[f.Name] = found
		res.Values[f.Name] = strings.Join(found, ", ")
	}
	e.logV("FIELD %s region=%+v readings=%q value=%q", f.Name, region, texts, res.Values[f.Name])
	return nil
}

// readings runs the field's OCR passes over crop, removing ruled lines at most once.
func (e *Extractor) readings(ctx context.Context, crop *image.NRGBA, f Field) ([]string, error) {
	texts := make([]string, 0, len(f.Passes))
	var unlined *image.NRGBA
	for _, p := range f.Passes {
		src := crop
		if p == PassUnlined {
			if unlined == nil {
				unlined = e.Prep.RemoveRuledLines(crop)
			}
			src = unlined
		}
		text, err := e.OCR.Text(ctx, src, f.Mode)
		if err != nil {
			return nil, fmt.Errorf("field %q %s pass: %w", f.Name, p, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (e *Extractor) saveCrop(f Field, crop *image.NRGBA) {
	if e.CropDir == "" || crop.Bounds().Empty() {
		return
	}
	if err := os.MkdirAll(e.CropDir, 0o755); err != nil {
		log.Printf("WARN crop dir %s: %v", e.CropDir, err)
		return
	}
	name := strings.ToLower(strings.Join(strings.Fields(f.Name), "_")) + ".png"
	if err := imaging.Save(crop, filepath.Join(e.CropDir, name)); err != nil {
		log.Printf("WARN save crop %s: %v", name, err)
	}
}
