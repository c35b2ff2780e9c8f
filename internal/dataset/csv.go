// Package dataset reads the training and held-out lyric corpora, writes the
// held-out predictions, and partitions labeled rows for evaluation.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

var (
	// ErrMissingColumn is returned when a required CSV column is absent.
	ErrMissingColumn = fmt.Errorf("%w: missing column", apperrors.ErrTrainingData)

	// ErrMalformedCSV is returned when the CSV cannot be parsed.
	ErrMalformedCSV = fmt.Errorf("%w: malformed csv", apperrors.ErrTrainingData)

	// ErrNoRows is returned when a corpus has a header but no data.
	ErrNoRows = fmt.Errorf("%w: no rows", apperrors.ErrTrainingData)
)

// Columns names the CSV columns the corpora use.
type Columns struct {
	Text  string // Lyrics column (default: "Lyrics")
	Label string // Genre column, training only (default: "Genre")
	ID    string // Row identifier, held-out only (default: "Song")
}

// DefaultColumns returns the column names of the reference corpora.
func DefaultColumns() Columns {
	return Columns{
		Text:  "Lyrics",
		Label: "Genre",
		ID:    "Song",
	}
}

// Record is one corpus row.
type Record struct {
	ID    string
	Text  string
	Label string
}

// ReadTraining reads rows with a text and a label column. The ID column is
// read when present.
func ReadTraining(r io.Reader, cols Columns) ([]Record, error) {
	return read(r, cols, true)
}

// ReadTesting reads rows with a text and an ID column. Labels are ignored.
func ReadTesting(r io.Reader, cols Columns) ([]Record, error) {
	return read(r, cols, false)
}

// LoadTraining opens path and reads it with ReadTraining.
func LoadTraining(path string, cols Columns) ([]Record, error) {
	return load(path, cols, ReadTraining)
}

// LoadTesting opens path and reads it with ReadTesting.
func LoadTesting(path string, cols Columns) ([]Record, error) {
	return load(path, cols, ReadTesting)
}

func load(path string, cols Columns, read func(io.Reader, Columns) ([]Record, error)) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := read(f, cols)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

func read(r io.Reader, cols Columns, training bool) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedCSV, err)
	}

	textIdx, err := columnIndex(header, cols.Text)
	if err != nil {
		return nil, err
	}

	labelIdx, idIdx := -1, -1
	if training {
		if labelIdx, err = columnIndex(header, cols.Label); err != nil {
			return nil, err
		}
		idIdx, _ = columnIndex(header, cols.ID)
	} else {
		if idIdx, err = columnIndex(header, cols.ID); err != nil {
			return nil, err
		}
	}

	var records []Record
	for n := 1; ; n++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}

		rec := Record{Text: field(row, textIdx)}
		if idIdx >= 0 {
			rec.ID = field(row, idIdx)
		}
		if labelIdx >= 0 {
			rec.Label = strings.TrimSpace(field(row, labelIdx))
			if rec.Label == "" {
				return nil, fmt.Errorf("%w: empty %q value in row %d", apperrors.ErrTrainingData, cols.Label, n)
			}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoRows
	}
	return records, nil
}

// bom is the UTF-8 byte order mark some spreadsheet exports prepend.
const bom = "\ufeff"

// columnIndex finds name in header, falling back to a case-insensitive match.
func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.TrimPrefix(h, bom) == name {
			return i, nil
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, bom)), name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q (have %s)", ErrMissingColumn, name, strings.Join(header, ", "))
}

func field(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

// Texts returns the text of every record.
func Texts(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

// Labels returns the label of every record.
func Labels(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}

// Prediction is one held-out row and its predicted genre.
type Prediction struct {
	ID    string
	Genre string
}

// PredictedGenreHeader is the header of the predicted-genre column.
const PredictedGenreHeader = "Predicted_Genre"

// WritePredictions writes rows as CSV with the header idHeader,Predicted_Genre.
func WritePredictions(w io.Writer, idHeader string, rows []Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{idHeader, PredictedGenreHeader}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, p := range rows {
		if err := cw.Write([]string{p.ID, p.Genre}); err != nil {
			return fmt.Errorf("writing row %q: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SavePredictions writes rows to path, replacing any existing file.
func SavePredictions(path, idHeader string, rows []Prediction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WritePredictions(f, idHeader, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
