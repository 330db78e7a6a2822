// Package input reads identifier lists from the file formats back-office
// operators upload: plain text, CSV and xlsx.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/nexcred/backoffice/internal/model"
)

// ReadIdentifiers loads the identifier list from a file, keyed on extension.
// The first column of tabular formats is used; rows whose first column
// carries no digits (headers, blanks) are skipped. Identifiers are returned
// raw, not normalized.
func ReadIdentifiers(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path)
	case ".csv":
		return readCSV(path)
	default:
		return readLines(path)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open file")
	}
	defer f.Close() //nolint:errcheck

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out = appendIdentifier(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "input: scan lines")
	}
	return out, nil
}

func readCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open file")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "input: read csv")
		}
		if len(record) > 0 {
			out = appendIdentifier(out, record[0])
		}
	}
	return out, nil
}

func readXLSX(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("input: planilha sem abas")
	}

	var out []string
	for _, row := range f.Sheets[0].Rows {
		if len(row.Cells) > 0 {
			out = appendIdentifier(out, row.Cells[0].String())
		}
	}
	return out, nil
}

func appendIdentifier(out []string, raw string) []string {
	raw = strings.TrimSpace(raw)
	if model.DigitsOnly(raw) == "" {
		return out
	}
	return append(out, raw)
}
