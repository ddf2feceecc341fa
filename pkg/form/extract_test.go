package form

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/disintegration/imaging"

	"formscan/pkg/ocr"
)

// fakeOCR answers Text by crop width and whether the crop went through
// RemoveRuledLines; the page layout below gives every field a distinct width.
type fakeOCR struct {
	words    []ocr.Word
	lined    map[int]string
	unlined  map[int]string
	prep     *fakePrep
	modes    map[int]ocr.Mode
	textCall int
}

func (f *fakeOCR) Words(ctx context.Context, img image.Image) ([]ocr.Word, error) {
	return f.words, nil
}

func (f *fakeOCR) Text(ctx context.Context, img image.Image, mode ocr.Mode) (string, error) {
	f.textCall++
	w := img.Bounds().Dx()
	if f.modes != nil {
		f.modes[w] = mode
	}
	if f.prep.cleaned[img] {
		return f.unlined[w], nil
	}
	return f.lined[w], nil
}

type fakePrep struct {
	page    *image.NRGBA
	cleaned map[image.Image]bool
	calls   int
}

func (p *fakePrep) Load(path string) (*image.NRGBA, error) {
	if path == "missing.jpg" {
		return nil, os.ErrNotExist
	}
	return p.page, nil
}

func (p *fakePrep) RemoveRuledLines(img image.Image) *image.NRGBA {
	p.calls++
	out := imaging.Clone(img)
	p.cleaned[out] = true
	return out
}

func serviceWords() []ocr.Word {
	w := func(text string, left, top int) ocr.Word {
		return ocr.Word{Text: text, Left: left, Top: top, Width: 40, Height: 20}
	}
	return []ocr.Word{
		w("Water", 100, 100), w("Conn", 160, 100), w("Size", 210, 100), w("Sanitary", 500, 100),
		w("Meter", 100, 200), w("Size", 160, 200), w("Installed", 210, 200),
		w("Meter", 400, 200), w("Install", 460, 200), w("Date", 540, 200),
		w("Meter", 720, 200), w("No.", 760, 200),
		w("Materials", 100, 300), w("Used:", 200, 300),
	}
}

// crop widths on the 1000px page: water 405, meter size 305, date 325, materials 905
func newFixture(t *testing.T) (*Extractor, *fakeOCR, *fakePrep) {
	t.Helper()
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("default template: %v", err)
	}
	prep := &fakePrep{page: page(1000, 600), cleaned: map[image.Image]bool{}}
	rec := &fakeOCR{
		words: serviceWords(),
		prep:  prep,
		lined: map[int]string{
			405: "34 4",
			305: "5 8 3 4",
			325: "8--2020",
		},
		unlined: map[int]string{
			405: "3/4",
			305: "",
			325: "03-15-2020",
			905: "Materials Used: Coper, Meater",
		},
		modes: map[int]ocr.Mode{},
	}
	return NewExtractor(tpl, rec, prep), rec, prep
}

func TestExtractServiceForm(t *testing.T) {
	ex, rec, prep := newFixture(t)
	res, err := ex.Extract(context.Background(), "Images/Image_1.jpg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []string{`3/4"`, "5/8 x 3/4", "2020-03-15", "Copper, Meter"}
	if !slices.Equal(res.Row(), want) {
		t.Fatalf("expected row %q got %q", want, res.Row())
	}
	if d := res.Dates["Meter Date"]; !d.HasDay || d.Month != 3 {
		t.Fatalf("unexpected date %+v", d)
	}
	if !slices.Equal(res.Materials["Materials"], []string{"Copper", "Meter"}) {
		t.Fatalf("unexpected materials %v", res.Materials["Materials"])
	}
	if len(res.Unresolved()) != 0 || len(res.Errors) != 0 {
		t.Fatalf("expected every field resolved: %v %v", res.Unresolved(), res.Errors)
	}
	// three two-pass fields and one unlined-only field
	if rec.textCall != 7 || prep.calls != 4 {
		t.Fatalf("expected 7 OCR calls and 4 line removals got %d and %d", rec.textCall, prep.calls)
	}
	if rec.modes[905] != ocr.ModeText || rec.modes[325] != ocr.ModeDigits {
		t.Fatalf("unexpected OCR modes %v", rec.modes)
	}
	if res.Source != "Images/Image_1.jpg" || res.Template != "water-meter-service" {
		t.Fatalf("unexpected result header %+v", res)
	}
}

func TestExtractUnresolvedFieldIsEmpty(t *testing.T) {
	ex, rec, _ := newFixture(t)
	rec.lined[405] = "34"
	rec.unlined[405] = "58"
	res, err := ex.Extract(context.Background(), "form.jpg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Values["Water Conn Size"] != "" {
		t.Fatalf("tied vote must leave the field empty, got %q", res.Values["Water Conn Size"])
	}
	if !slices.Equal(res.Unresolved(), []string{"Water Conn Size"}) {
		t.Fatalf("unexpected unresolved %v", res.Unresolved())
	}
}

func TestExtractMissingAnchor(t *testing.T) {
	ex, rec, _ := newFixture(t)
	rec.words = slices.DeleteFunc(serviceWords(), func(w ocr.Word) bool { return w.Text == "Materials" })

	_, err := ex.Extract(context.Background(), "form.jpg")
	var anchor *AnchorNotFoundError
	if !errors.As(err, &anchor) || anchor.Field != "Materials" {
		t.Fatalf("expected anchor error for Materials got %v", err)
	}

	ex.KeepGoing = true
	res, err := ex.Extract(context.Background(), "form.jpg")
	if err != nil {
		t.Fatalf("keep going: %v", err)
	}
	if res.Values["Materials"] != "" || res.Errors["Materials"] == "" {
		t.Fatalf("expected Materials skipped with an error, got %q %v", res.Values["Materials"], res.Errors)
	}
	if res.Values["Meter Date"] != "2020-03-15" {
		t.Fatalf("other fields must still be read, got %v", res.Values)
	}
}

func TestExtractIsRepeatable(t *testing.T) {
	ex, _, _ := newFixture(t)
	first, err := ex.Extract(context.Background(), "form.jpg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := ex.Extract(context.Background(), "form.jpg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !slices.Equal(first.Row(), second.Row()) {
		t.Fatalf("expected identical rows %q vs %q", first.Row(), second.Row())
	}
}

func TestExtractLoadError(t *testing.T) {
	ex, _, _ := newFixture(t)
	if _, err := ex.Extract(context.Background(), "missing.jpg"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected load error got %v", err)
	}
}

func TestExtractCancelled(t *testing.T) {
	ex, _, _ := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ex.Extract(ctx, "form.jpg"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled got %v", err)
	}
}

func TestExtractSavesCrops(t *testing.T) {
	ex, _, _ := newFixture(t)
	ex.CropDir = filepath.Join(t.TempDir(), "crops")
	if _, err := ex.Extract(context.Background(), "form.jpg"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, name := range []string{"water_conn_size.png", "meter_date.png", "materials.png"} {
		if _, err := os.Stat(filepath.Join(ex.CropDir, name)); err != nil {
			t.Fatalf("expected crop %s: %v", name, err)
		}
	}
}
