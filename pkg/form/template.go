package form

import (
	_ "embed"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"formscan/pkg/ocr"
)

// Kind selects the reconciler applied to a field's readings.
type Kind string

const (
	KindOption    Kind = "option"
	KindDate      Kind = "date"
	KindMaterials Kind = "materials"
)

// Pass names an OCR pass over a field's crop.
type Pass string

const (
	// PassLined reads the crop as cropped.
	PassLined Pass = "lined"
	// PassUnlined reads the crop after ruled lines are removed.
	PassUnlined Pass = "unlined"
)

// Field describes one region of the form and how to read it.
type Field struct {
	Name        string     `yaml:"name"`
	Kind        Kind       `yaml:"kind"`
	Start       Phrase     `yaml:"start"`
	End         Phrase     `yaml:"end"`
	ToEndOfLine bool       `yaml:"to_end_of_line"`
	Mode        ocr.Mode   `yaml:"mode"`
	Passes      []Pass     `yaml:"passes"`
	Options     OptionSet  `yaml:"options"`
	Vocabulary  Vocabulary `yaml:"vocabulary"`
	Threshold   int        `yaml:"threshold"`
}

// EndPhrase returns End, or EndOfLine when the field runs to the image edge.
func (f Field) EndPhrase() Phrase {
	if f.ToEndOfLine || len(f.End) == 0 {
		return EndOfLine
	}
	return f.End
}

// Template is a fixed form layout: the fields to read, in output column order.
type Template struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

//go:embed default_template.yaml
var defaultTemplate []byte

// DefaultTemplate returns the built-in water meter service form.
func DefaultTemplate() (*Template, error) {
	return ParseTemplate(defaultTemplate)
}

// LoadTemplate reads a YAML template from path, or the default template when
// path is empty.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTemplate decodes a YAML template, fills per-kind defaults and validates it.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	for i := range t.Fields {
		t.Fields[i].applyDefaults()
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, f := range t.Fields {
		if f.Kind != KindOption {
			continue
		}
		if shared := f.Options.SharedRunes(); len(shared) > 0 {
			log.Printf("WARN template %s field %q: options share characters %q; character voting may be unreliable", t.Name, f.Name, string(shared))
		}
	}
	return &t, nil
}

func (f *Field) applyDefaults() {
	if f.Mode == "" {
		if f.Kind == KindMaterials {
			f.Mode = ocr.ModeText
		} else {
			f.Mode = ocr.ModeDigits
		}
	}
	if len(f.Passes) == 0 {
		if f.Kind == KindMaterials {
			f.Passes = []Pass{PassUnlined}
		} else {
			f.Passes = []Pass{PassLined, PassUnlined}
		}
	}
	if f.Kind == KindMaterials && f.Threshold == 0 {
		f.Threshold = DefaultThreshold
	}
}

// Validate checks that every field can be located and reconciled.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTemplate)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidTemplate)
	}
	seen := map[string]bool{}
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field without name", ErrInvalidTemplate)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidTemplate, f.Name)
		}
		seen[f.Name] = true
		if len(f.Start) == 0 {
			return fmt.Errorf("%w: field %q has no start anchor", ErrInvalidTemplate, f.Name)
		}
		if f.Mode != ocr.ModeDigits && f.Mode != ocr.ModeText {
			return fmt.Errorf("%w: field %q has unknown mode %q", ErrInvalidTemplate, f.Name, f.Mode)
		}
		if len(f.Passes) > 2 {
			return fmt.Errorf("%w: field %q has more than two passes", ErrInvalidTemplate, f.Name)
		}
		for i, p := range f.Passes {
			if p != PassLined && p != PassUnlined {
				return fmt.Errorf("%w: field %q has unknown pass %q", ErrInvalidTemplate, f.Name, p)
			}
			if i > 0 && f.Passes[0] == p {
				return fmt.Errorf("%w: field %q repeats pass %q", ErrInvalidTemplate, f.Name, p)
			}
		}
		switch f.Kind {
		case KindOption:
			if len(f.Options) == 0 {
				return fmt.Errorf("%w: option field %q has no options", ErrInvalidTemplate, f.Name)
			}
			dup := map[string]bool{}
			for _, o := range f.Options {
				if dup[o] {
					return fmt.Errorf("%w: option field %q repeats %q", ErrInvalidTemplate, f.Name, o)
				}
				dup[o] = true
			}
		case KindDate:
		case KindMaterials:
			if len(f.Vocabulary) == 0 {
				return fmt.Errorf("%w: materials field %q has no vocabulary", ErrInvalidTemplate, f.Name)
			}
			if f.Threshold < 0 || f.Threshold > 100 {
				return fmt.Errorf("%w: materials field %q threshold %d outside 0-100", ErrInvalidTemplate, f.Name, f.Threshold)
			}
		default:
			return fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidTemplate, f.Name, f.Kind)
		}
	}
	return nil
}

// Columns returns the field names in output order.
func (t *Template) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}
