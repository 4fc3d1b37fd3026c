package customer

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain value", input: "ACME-001", want: "ACME-001"},
		{name: "surrounding whitespace", input: "  ACME-001  ", want: "ACME-001"},
		{name: "excel formula prefix", input: `="ACME-001"`, want: "ACME-001"},
		{name: "bare equals prefix", input: "=ACME-001", want: "ACME-001"},
		{name: "double quotes", input: `"ACME-001"`, want: "ACME-001"},
		{name: "single quotes", input: "'ACME-001'", want: "ACME-001"},
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: ""},
		// "é" as decomposed e + U+0301 recomposes to a single rune.
		{name: "decomposed unicode", input: "René", want: "René"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		// Day-first layouts
		{
			name:  "slash day first",
			input: "15/03/2024",
			want:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "slash single digits",
			input: "5/3/2024",
			want:  time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "dash day first",
			input: "15-03-2024",
			want:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "dot day first",
			input: "15.03.2024",
			want:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},

		// ISO
		{
			name:  "iso date",
			input: "2024-03-15",
			want:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},

		// Ambiguous day/month resolves day-first
		{
			name:  "ambiguous resolves day first",
			input: "03/04/2024",
			want:  time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC),
		},

		// Excel serial dates
		{
			name:  "excel serial epoch of unix",
			input: "25569",
			want:  time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "excel serial modern date",
			input: "45366", // 2024-03-15
			want:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},

		// Invalid
		{name: "empty", input: "", wantErr: true},
		{name: "not a date", input: "soon", wantErr: true},
		{name: "serial below range", input: "12345", wantErr: true},
		{name: "serial above range", input: "99999", wantErr: true},
		{name: "month out of range", input: "15/13/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseAmount Tests
// ----------------------------------------------------------------------------

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		// Plain
		{name: "integer", input: "1234", want: 1234},
		{name: "plain decimal", input: "1234.56", want: 1234.56},
		{name: "negative", input: "-500", want: -500},

		// European convention
		{name: "european decimal comma", input: "1234,56", want: 1234.56},
		{name: "european full", input: "1.234,56", want: 1234.56},
		{name: "european millions", input: "1.234.567,89", want: 1234567.89},
		{name: "european thousands no decimals", input: "1.234.567", want: 1234567},

		// US convention
		{name: "us full", input: "1,234.56", want: 1234.56},
		{name: "us millions", input: "1,234,567.89", want: 1234567.89},

		// Currency decoration
		{name: "trailing currency code", input: "1.234,56 EUR", want: 1234.56},
		{name: "leading currency code", input: "USD 1,234.56", want: 1234.56},
		{name: "lowercase currency code", input: "1.234,56 eur", want: 1234.56},
		{name: "euro symbol", input: "€1.234,56", want: 1234.56},
		{name: "dollar prefix", input: "$1,234.56", want: 1234.56},
		{name: "pound prefix", input: "£1,234.56", want: 1234.56},
		{name: "space thousands separator", input: "1 234,56", want: 1234.56},

		// Accounting negatives
		{name: "accounting parens european", input: "(123,45)", want: -123.45},
		{name: "accounting parens with currency", input: "(1.234,56 EUR)", want: -1234.56},

		// Invalid: letters must reject the cell, never vanish into a
		// different number.
		{name: "empty", input: "", wantErr: true},
		{name: "letters only", input: "EUR", wantErr: true},
		{name: "garbage", input: "12..34..56,7,8", wantErr: true},
		{name: "interior letters", input: "12abc3", wantErr: true},
		{name: "scientific notation", input: "1e5", wantErr: true},
		{name: "letter posing as digit", input: "O,5", wantErr: true},
		{name: "four letter prefix", input: "EURO 5", wantErr: true},
		{name: "short trailing token", input: "5 kr", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
