package store

import (
	"fmt"
	"strconv"
	"strings"
)

// BarcodeSeqStart is the first auto-assigned barcode. Manually entered
// barcodes below it never collide with the generated range.
const BarcodeSeqStart = 1000001

// NextBarcode returns the next free numeric barcode given the highest
// numeric barcode already in use (0 when none exist).
func NextBarcode(maxNumeric int64) string {
	next := int64(BarcodeSeqStart)
	if maxNumeric >= BarcodeSeqStart {
		next = maxNumeric + 1
	}
	return strconv.FormatInt(next, 10)
}

// NumericBarcode parses a purely numeric barcode, reporting ok=false for
// anything carrying non-digit characters.
func NumericBarcode(barcode string) (int64, bool) {
	if barcode == "" {
		return 0, false
	}
	for _, r := range barcode {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(barcode, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CodePrefix derives the three-letter product code prefix from a
// category name. Turkish letters are transliterated to ASCII before
// filtering; short results are padded with 'X', and a fully unusable
// category falls back to "PRD".
func CodePrefix(category string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(category)) {
		switch r {
		case 'Ç':
			r = 'C'
		case 'Ğ':
			r = 'G'
		case 'İ':
			r = 'I'
		case 'Ö':
			r = 'O'
		case 'Ş':
			r = 'S'
		case 'Ü':
			r = 'U'
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	prefix := b.String()
	for len(prefix) < 3 {
		prefix += "X"
	}
	if prefix == "XXX" {
		return "PRD"
	}
	return prefix
}

// NextProductCode builds the full code from a prefix and the highest
// sequence already assigned under it. The sequence space is three
// digits; exhausting it is an error rather than a rollover.
func NextProductCode(prefix string, maxSeq int) (string, error) {
	next := maxSeq + 1
	if next > 999 {
		return "", fmt.Errorf("%w: product code sequence exhausted for prefix %s", ErrValidation, prefix)
	}
	return fmt.Sprintf("%s%03d", prefix, next), nil
}

// NormalizeProductCode cleans a caller-supplied code: uppercased, dashes
// stripped, surrounding space removed. Empty input stays empty, which
// signals auto-assignment.
func NormalizeProductCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// CodeSeq extracts the numeric suffix of a generated product code under
// the given prefix, reporting ok=false for codes of any other shape.
func CodeSeq(code string, prefix string) (int, bool) {
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	rest := code[len(prefix):]
	if len(rest) != 3 {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
