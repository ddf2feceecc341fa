package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Word is one recognized word and its pixel box. Sequences of words keep the
// order the engine emitted them in, which is reading order within a line but
// not guaranteed across lines.
type Word struct {
	Text       string
	Left       int
	Top        int
	Width      int
	Height     int
	Confidence float64
}

// Mode selects how a text pass is configured.
type Mode string

const (
	// ModeDigits restricts recognition to digits and date punctuation
	// (tesseract's "outputbase digits" whitelist) on a single text block.
	ModeDigits Mode = "digits"
	// ModeText is unrestricted recognition with automatic page segmentation.
	ModeText Mode = "text"
)

const digitsWhitelist = "0123456789-."

// Tesseract runs OCR through gosseract. A fresh client is created per call so a
// Tesseract value is safe to share between goroutines.
type Tesseract struct {
	Language       string
	TessdataPrefix string
	Verbose        bool
}

// NewTesseract returns an English engine using the default tessdata location.
func NewTesseract() *Tesseract {
	return &Tesseract{Language: "eng"}
}

func (t *Tesseract) client(img image.Image) (*gosseract.Client, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	cl := gosseract.NewClient()
	if t.TessdataPrefix != "" {
		if err := cl.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			cl.Close()
			return nil, fmt.Errorf("tessdata prefix: %w", err)
		}
	}
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	if err := cl.SetLanguage(lang); err != nil {
		cl.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := cl.SetImageFromBytes(buf.Bytes()); err != nil {
		cl.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return cl, nil
}

// Words returns the word-level boxes of img.
func (t *Tesseract) Words(ctx context.Context, img image.Image) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	cl, err := t.client(img)
	if err != nil {
		return nil, err
	}
	defer cl.Close()
	boxes, err := cl.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr words: %w", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Left:       b.Box.Min.X,
			Top:        b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
			Confidence: b.Confidence,
		})
	}
	if len(words) == 0 {
		return nil, ErrNoWords
	}
	if t.Verbose {
		log.Printf("OCR words=%d first=%q", len(words), words[0].Text)
	}
	return words, nil
}

// Text transcribes img in the given mode. An empty image transcribes to "".
func (t *Tesseract) Text(ctx context.Context, img image.Image, mode Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if img.Bounds().Empty() {
		return "", nil
	}
	cl, err := t.client(img)
	if err != nil {
		return "", err
	}
	defer cl.Close()
	switch mode {
	case ModeDigits:
		_ = cl.SetWhitelist(digitsWhitelist)
		_ = cl.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK)
	case ModeText, "":
		_ = cl.SetPageSegMode(gosseract.PSM_AUTO)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	text, err := cl.Text()
	if err != nil {
		return "", fmt.Errorf("ocr text: %w", err)
	}
	if t.Verbose {
		log.Printf("OCR text mode=%s snippet=%q", mode, snippet(normalizeOCRText(text), 80))
	}
	return text, nil
}
