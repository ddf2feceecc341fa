package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload is a form image received over HTTP. It stays even when extraction
// fails so an admin can review the file.
type Upload struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FileName     string      `gorm:"size:255;not null"`
	StorePath    string      `gorm:"column:store_path;size:512"` // path under UPLOAD_BASE
	UserID       uint        `gorm:"index;not null"`
	ContentType  string      `gorm:"size:128"`
	ExtractionID *uuid.UUID  `gorm:"type:uuid;index"`
	Extraction   *Extraction `gorm:"foreignKey:ExtractionID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Failed       bool        `gorm:"default:false;index"`
	FailedReason string      `gorm:"size:255"`
}
