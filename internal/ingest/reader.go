package ingest

// reader.go turns uploaded file bytes into raw rows. Exports arrive in
// whatever encoding the user's spreadsheet tool produced: UTF-8 with or
// without BOM, or a legacy Windows-1252 single-byte encoding. Everything
// is decoded to UTF-8 before CSV parsing.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/CRM/internal/customer"
	"golang.org/x/text/encoding/charmap"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// maxHeaderSearchRows bounds the scan for the header row. Bank and CRM
// exports sometimes carry a few report-title rows above the header.
const maxHeaderSearchRows = 20

// decode strips a UTF-8 BOM and converts legacy Windows-1252 input to
// UTF-8. Valid UTF-8 passes through untouched.
func decode(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, bomUTF8)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1252: %w", err)
	}
	return decoded, nil
}

// readRows parses file bytes into raw rows keyed by the header columns.
// The header is the first row within maxHeaderSearchRows that contains
// every required column. Line numbers are 1-based positions in the
// parsed file, so report entries can be traced back to the source.
func readRows(data []byte) ([]customer.RawRow, error) {
	decoded, err := decode(data)
	if err != nil {
		return nil, &FatalError{Reason: "unreadable file", Err: err}
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, &FatalError{Reason: "unreadable file", Err: err}
	}
	if len(records) == 0 {
		return nil, &FatalError{Reason: "empty file", Err: ErrEmptyFile}
	}

	headerIdx := findHeader(records, customer.RequiredColumns())
	if headerIdx < 0 {
		return nil, &FatalError{
			Reason: "missing header row",
			Err:    fmt.Errorf("%w (expected columns: %s)", ErrMissingHeader, strings.Join(customer.RequiredColumns(), ", ")),
		}
	}

	header := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		header[i] = strings.ToLower(customer.CleanCell(h))
	}

	rows := make([]customer.RawRow, 0, len(records)-headerIdx-1)
	for i, rec := range records[headerIdx+1:] {
		if isEmptyRow(rec) {
			continue
		}
		cells := make(map[string]string, len(header))
		for j, name := range header {
			if name == "" || j >= len(rec) {
				continue
			}
			cells[name] = rec[j]
		}
		rows = append(rows, customer.RawRow{
			Line:  headerIdx + i + 2, // 1-based, after the header row
			Cells: cells,
		})
	}

	return rows, nil
}

// findHeader returns the index of the first row that contains every
// required column name (case-insensitive), or -1.
func findHeader(records [][]string, required []string) int {
	limit := maxHeaderSearchRows
	if len(records) < limit {
		limit = len(records)
	}

	for i := 0; i < limit; i++ {
		have := make(map[string]bool, len(records[i]))
		for _, cell := range records[i] {
			have[strings.ToLower(customer.CleanCell(cell))] = true
		}
		found := true
		for _, col := range required {
			if !have[col] {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
