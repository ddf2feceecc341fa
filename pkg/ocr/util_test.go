package ocr

import "testing"

func TestNormalizeOCRText(t *testing.T) {
	if got := normalizeOCRText("03-15\n\t2020  \n"); got != "03-15 2020" {
		t.Fatalf("unexpected %q", got)
	}
	if got := snippet("Materials Used: Copper", 9); got != "Materials…" {
		t.Fatalf("unexpected %q", got)
	}
}
