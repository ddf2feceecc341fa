package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"formscan/models"
)

// Summary counts the extractions stored within one calendar month (UTC).
type Summary struct {
	Month      string
	Records    int64
	Complete   int64
	Unresolved int64 // fields left empty across all records
}

// MonthBounds returns [start, end) for month in YYYY-MM.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Monthly loads the summary and the extractions with their fields for month.
// A non-nil userID restricts the report to that user's uploads.
func Monthly(ctx context.Context, gdb *gorm.DB, month string, userID *uint) (Summary, []models.Extraction, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Summary{}, nil, err
	}
	q := gdb.WithContext(ctx).Model(&models.Extraction{}).Where("created_at >= ? AND created_at < ?", start, end)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	var rows []models.Extraction
	if err := q.Preload("Fields").Order("created_at").Find(&rows).Error; err != nil {
		return Summary{}, nil, fmt.Errorf("query extractions: %w", err)
	}
	return Summarize(month, rows), rows, nil
}

// Summarize counts rows.
func Summarize(month string, rows []models.Extraction) Summary {
	s := Summary{Month: month, Records: int64(len(rows))}
	for _, r := range rows {
		if r.Unresolved == 0 {
			s.Complete++
		}
		s.Unresolved += int64(r.Unresolved)
	}
	return s
}

// Print writes the summary and, with list, one line per extraction.
func Print(w io.Writer, s Summary, rows []models.Extraction, list bool) {
	fmt.Fprintf(w, "Report for month=%s (UTC):\n", s.Month)
	fmt.Fprintf(w, "  records=%d complete=%d unresolved_fields=%d\n", s.Records, s.Complete, s.Unresolved)
	if !list {
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s|%s|%s|%v\n", r.ID, r.FileName, r.CreatedAt.Format(time.RFC3339), r.Row())
	}
}
