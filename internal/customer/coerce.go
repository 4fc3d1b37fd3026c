package customer

// coerce.go handles the messy reality of spreadsheet exports:
//   - European decimal format ("1.234,56 EUR") next to US format ("1,234.56")
//   - dd/mm/yyyy dates, ISO dates, and Excel serial date numbers
//   - Excel formula prefixes (="value") and stray quotes
//   - decomposed Unicode from macOS exports
//
// All parse functions fail with an error rather than guessing; the
// Normalizer turns those errors into structured rejections.

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var dateLayouts = []string{
	"02/01/2006", "2/1/2006",
	"2006-01-02",
	"02-01-2006", "2-1-2006",
	"02.01.2006", "2.1.2006",
}

// excelEpoch is day zero of Excel's 1900 date system. Serial 25569 is
// 1970-01-01.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// CleanCell removes common spreadsheet artifacts from a cell value:
// trims whitespace, strips the Excel formula prefix (="..."), strips
// surrounding quotes, and recomposes decomposed Unicode (NFC).
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	if !norm.NFC.IsNormalString(s) {
		s = norm.NFC.String(s)
	}
	return s
}

// ParseDate parses a spreadsheet date cell. Day-first layouts are tried
// before ISO, matching the bank export source. A cell that is all digits
// in a plausible range is treated as an Excel serial date number.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Excel serial: days since 1899-12-30. 60 years either side of the
	// epoch covers 1960..2080, well outside any four-digit year that the
	// layouts above would have matched.
	if serial, err := strconv.Atoi(s); err == nil && serial > 21915 && serial < 65380 {
		return excelEpoch.AddDate(0, 0, serial), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseAmount parses a numeric cell, accepting both European
// ("1.234,56") and US ("1,234.56") separator conventions, currency
// symbols and codes, and accounting-style negatives ("(123,45)").
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripCurrency(s)
	if s == "" {
		return 0, fmt.Errorf("no digits")
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
		default:
			return 0, fmt.Errorf("unrecognized number %q", s)
		}
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastComma > lastDot:
		// European: dot is the thousands separator, comma the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		// US: comma is the thousands separator.
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		// Dots only, more than one: European thousands separators.
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized number %q", s)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// stripCurrency removes currency symbols, a leading or trailing ISO
// 4217 code, and whitespace. Any other letter stays put, so ParseAmount
// rejects the cell instead of guessing a value.
func stripCurrency(s string) string {
	s = trimCurrencyCode(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '$', r == '€', r == '£', unicode.IsSpace(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trimCurrencyCode strips a three-letter code ("EUR", "usd") from the
// start or end of the value. Shorter or longer letter runs are not
// codes and are left for validation to reject.
func trimCurrencyCode(s string) string {
	i := 0
	for i < len(s) && isASCIILetter(s[i]) {
		i++
	}
	if i == 3 {
		s = strings.TrimSpace(s[3:])
	}

	j := len(s)
	for j > 0 && isASCIILetter(s[j-1]) {
		j--
	}
	if len(s)-j == 3 {
		s = strings.TrimSpace(s[:j])
	}
	return s
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
