package store

import "testing"

func TestCodePrefix(t *testing.T) {
	cases := []struct {
		category string
		want     string
	}{
		{"Gömlek", "GOM"},
		{"çanta", "CAN"},
		{"Tişört", "TIS"},
		{"Şapka", "SAP"},
		{"Ayakkabı", "AYA"},
		{"AB", "ABX"},
		{"", "PRD"},
		{"!!!", "PRD"},
		{"501 Jeans", "501"},
	}
	for _, tc := range cases {
		if got := CodePrefix(tc.category); got != tc.want {
			t.Fatalf("CodePrefix(%q) = %q, want %q", tc.category, got, tc.want)
		}
	}
}

func TestNextProductCode(t *testing.T) {
	code, err := NextProductCode("GOM", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "GOM001" {
		t.Fatalf("got %q, want GOM001", code)
	}

	code, err = NextProductCode("GOM", 41)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "GOM042" {
		t.Fatalf("got %q, want GOM042", code)
	}

	if _, err := NextProductCode("GOM", 999); err == nil {
		t.Fatal("expected sequence exhaustion error")
	}
}

func TestNextBarcode(t *testing.T) {
	if got := NextBarcode(0); got != "1000001" {
		t.Fatalf("got %q, want 1000001", got)
	}
	if got := NextBarcode(1000041); got != "1000042" {
		t.Fatalf("got %q, want 1000042", got)
	}
}

func TestNumericBarcode(t *testing.T) {
	if _, ok := NumericBarcode("ABC123"); ok {
		t.Fatal("alphanumeric barcode should not parse")
	}
	if _, ok := NumericBarcode(""); ok {
		t.Fatal("empty barcode should not parse")
	}
	n, ok := NumericBarcode("1000005")
	if !ok || n != 1000005 {
		t.Fatalf("got %d,%v, want 1000005,true", n, ok)
	}
}

func TestCodeSeq(t *testing.T) {
	if n, ok := CodeSeq("GOM042", "GOM"); !ok || n != 42 {
		t.Fatalf("got %d,%v, want 42,true", n, ok)
	}
	if _, ok := CodeSeq("GOMX42", "GOM"); ok {
		t.Fatal("non-numeric suffix should not parse")
	}
	if _, ok := CodeSeq("GOM0042", "GOM"); ok {
		t.Fatal("four-digit suffix should not parse")
	}
}
