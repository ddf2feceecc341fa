package form

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"formscan/pkg/ocr"
)

func TestDefaultTemplate(t *testing.T) {
	tpl, err := DefaultTemplate()
	if err != nil {
		t.Fatalf("default template: %v", err)
	}
	want := []string{"Water Conn Size", "Meter Size Installed", "Meter Date", "Materials"}
	if !slices.Equal(tpl.Columns(), want) {
		t.Fatalf("expected columns %v got %v", want, tpl.Columns())
	}
	mat := tpl.Fields[3]
	if !mat.EndPhrase().IsEndOfLine() || mat.Mode != ocr.ModeText || mat.Threshold != 75 {
		t.Fatalf("unexpected materials field %+v", mat)
	}
	if !slices.Equal(mat.Passes, []Pass{PassUnlined}) {
		t.Fatalf("materials should read the unlined crop only, got %v", mat.Passes)
	}
	date := tpl.Fields[2]
	if !slices.Equal(date.End, Phrase{"Meter", "No"}) || date.Mode != ocr.ModeDigits {
		t.Fatalf("unexpected date field %+v", date)
	}
}

func TestParseTemplateDefaults(t *testing.T) {
	tpl, err := ParseTemplate([]byte(`
name: mini
fields:
  - name: Size
    kind: option
    start: [Size]
    options: ["1", "2"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := tpl.Fields[0]
	if f.Mode != ocr.ModeDigits || !slices.Equal(f.Passes, []Pass{PassLined, PassUnlined}) {
		t.Fatalf("defaults not applied: %+v", f)
	}
	if !f.EndPhrase().IsEndOfLine() {
		t.Fatalf("missing end phrase should run to the image edge")
	}
}

func TestParseTemplateRejects(t *testing.T) {
	cases := map[string]string{
		"no name":        "fields: [{name: a, kind: date, start: [A]}]",
		"no fields":      "name: x",
		"unknown kind":   "name: x\nfields: [{name: a, kind: table, start: [A]}]",
		"no start":       "name: x\nfields: [{name: a, kind: date}]",
		"no options":     "name: x\nfields: [{name: a, kind: option, start: [A]}]",
		"repeat option":  "name: x\nfields: [{name: a, kind: option, start: [A], options: ['1', '1']}]",
		"no vocabulary":  "name: x\nfields: [{name: a, kind: materials, start: [A]}]",
		"bad pass":       "name: x\nfields: [{name: a, kind: date, start: [A], passes: [inverted]}]",
		"repeat pass":    "name: x\nfields: [{name: a, kind: date, start: [A], passes: [lined, lined]}]",
		"bad mode":       "name: x\nfields: [{name: a, kind: date, start: [A], mode: hocr}]",
		"duplicate name": "name: x\nfields: [{name: a, kind: date, start: [A]}, {name: a, kind: date, start: [B]}]",
		"bad yaml":       "name: [",
	}
	for name, doc := range cases {
		if _, err := ParseTemplate([]byte(doc)); !errors.Is(err, ErrInvalidTemplate) {
			t.Fatalf("%s: expected ErrInvalidTemplate got %v", name, err)
		}
	}
}

func TestLoadTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.yaml")
	doc := "name: file\nfields:\n  - {name: Date, kind: date, start: [Date]}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tpl.Name != "file" || len(tpl.Fields) != 1 {
		t.Fatalf("unexpected template %+v", tpl)
	}
	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	def, err := LoadTemplate("")
	if err != nil || def.Name != "water-meter-service" {
		t.Fatalf("empty path should load the default template, got %v %v", def, err)
	}
}
