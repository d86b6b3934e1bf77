// Package csv reads numeric tables from CSV and writes detection results back as CSV.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	dataio "github.com/hed1ad/goabod/pkg/io"
)

var _ dataio.FeatureSource = (*Reader)(nil)

// Reader reads data from CSV files.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string
	logger    *zap.Logger
	skipped   int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// WithLogger sets the logger that reports skipped rows.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// Open opens filename for reading.
func Open(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads CSV from src. The header row, if any, is consumed here.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	r := &Reader{
		reader:    cr,
		hasHeader: true,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// FeatureNames returns the headers, or col_0..col_n-1 for a headerless file
// once rows have been read.
func (r *Reader) FeatureNames() []string {
	return r.headers
}

// Skipped returns the number of malformed rows dropped by Read.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns all data as a 2D float slice. Rows that do not parse are skipped.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}

		row, err := parseRow(record)
		if err != nil {
			r.skipped++
			line, _ := r.reader.FieldPos(0)
			r.logger.Warn("skipping malformed row", zap.Int("line", line), zap.Error(err))
			continue
		}
		data = append(data, row)
	}

	if r.headers == nil && len(data) > 0 {
		r.headers = make([]string, len(data[0]))
		for i := range r.headers {
			r.headers[i] = "col_" + strconv.Itoa(i)
		}
	}

	return data, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// parseRow converts string slice to float slice.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 || (len(record) == 1 && record[0] == "") {
		return nil, errors.New("empty row")
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, err
		}
		row[i] = f
	}
	return row, nil
}
