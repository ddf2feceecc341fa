package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"formscan/pkg/form"
)

// Extraction is one scanned form run through the template pipeline. FileName is
// unique so rescanning a directory never records the same image twice.
type Extraction struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     *uint             `gorm:"index"`
	FileName   string            `gorm:"size:255;not null;uniqueIndex"`
	Source     string            `gorm:"size:512"`
	Template   string            `gorm:"size:128;not null"`
	Unresolved int               `gorm:"not null;default:0"`
	Fields     []ExtractionField `gorm:"foreignKey:ExtractionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// ExtractionField holds one column of an extraction. DateValue is set for date
// fields that resolved.
type ExtractionField struct {
	ID           uint      `gorm:"primaryKey"`
	ExtractionID uuid.UUID `gorm:"type:uuid;index;not null"`
	Position     int       `gorm:"not null"`
	Name         string    `gorm:"size:128;not null"`
	Value        string    `gorm:"size:512"`
	DateValue    *time.Time
	Error        string `gorm:"size:255"`
}

func (e *Extraction) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// FromResult builds an unsaved Extraction for fileName from an extraction result.
func FromResult(fileName string, res *form.Result) Extraction {
	ex := Extraction{
		FileName:   fileName,
		Source:     res.Source,
		Template:   res.Template,
		Unresolved: len(res.Unresolved()),
		Fields:     make([]ExtractionField, 0, len(res.Columns)),
	}
	for i, col := range res.Columns {
		f := ExtractionField{Position: i, Name: col, Value: res.Values[col], Error: res.Errors[col]}
		if d, ok := res.Dates[col]; ok {
			t := d.Time()
			f.DateValue = &t
		}
		ex.Fields = append(ex.Fields, f)
	}
	return ex
}

// Columns returns the field names ordered by position.
func (e *Extraction) Columns() []string {
	fields := e.sorted()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// Row returns the field values ordered by position.
func (e *Extraction) Row() []string {
	fields := e.sorted()
	row := make([]string, len(fields))
	for i, f := range fields {
		row[i] = f.Value
	}
	return row
}

func (e *Extraction) sorted() []ExtractionField {
	out := slices.Clone(e.Fields)
	slices.SortStableFunc(out, func(a, b ExtractionField) int { return a.Position - b.Position })
	return out
}
