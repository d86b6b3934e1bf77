package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	dataio "github.com/hed1ad/goabod/pkg/io"
)

var _ dataio.Writer = (*Writer)(nil)

// resultHeader is the first row of every results file.
var resultHeader = []string{"index", "score", "label"}

// Writer writes results as index,score,label rows.
type Writer struct {
	closer      io.Closer
	writer      *csv.Writer
	wroteHeader bool
}

// Create creates or truncates filename and writes results to it.
func Create(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := NewWriter(file)
	w.closer = file
	return w, nil
}

// NewWriter writes results to dst. Closing the Writer flushes but does not close dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{writer: csv.NewWriter(dst)}
}

// Write outputs a single result.
func (w *Writer) Write(result dataio.Result) error {
	if !w.wroteHeader {
		if err := w.writer.Write(resultHeader); err != nil {
			return fmt.Errorf("csv: write header: %w", err)
		}
		w.wroteHeader = true
	}

	label := "0"
	if result.IsAnomaly {
		label = "1"
	}
	record := []string{
		strconv.Itoa(result.Index),
		strconv.FormatFloat(result.Score, 'g', -1, 64),
		label,
	}
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("csv: write result %d: %w", result.Index, err)
	}
	return nil
}

// WriteAll outputs multiple results and flushes.
func (w *Writer) WriteAll(results []dataio.Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes buffered rows and closes the underlying file, if the Writer opened one.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
