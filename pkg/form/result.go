package form

// Result is the record extracted from one scanned form. Values holds the final
// text per field; an unresolved field maps to "". Dates and Materials keep the
// structured value behind Values for date and materials fields. Errors records
// fields that were skipped because their anchor was missing.
type Result struct {
	Template  string
	Source    string
	Columns   []string
	Values    map[string]string
	Dates     map[string]PartialDate
	Materials map[string][]string
	Errors    map[string]string
}

func newResult(t *Template, source string) *Result {
	cols := t.Columns()
	values := make(map[string]string, len(cols))
	for _, c := range cols {
		values[c] = ""
	}
	return &Result{
		Template:  t.Name,
		Source:    source,
		Columns:   cols,
		Values:    values,
		Dates:     map[string]PartialDate{},
		Materials: map[string][]string{},
		Errors:    map[string]string{},
	}
}

// Row returns the values in column order.
func (r *Result) Row() []string {
	row := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		row[i] = r.Values[c]
	}
	return row
}

// Unresolved lists the columns without a value.
func (r *Result) Unresolved() []string {
	var out []string
	for _, c := range r.Columns {
		if r.Values[c] == "" {
			out = append(out, c)
		}
	}
	return out
}
