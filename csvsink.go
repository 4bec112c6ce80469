package tunbench

//
// CSV result sink
//

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// CSVSink is a [ResultSink] appending rows to a CSV file. The header is
// written when the file is missing or empty; otherwise we append rows
// to the existing file. The zero value is invalid; use [NewCSVSink].
type CSVSink struct {
	// mu serializes appends.
	mu sync.Mutex

	// path is the file path.
	path string
}

var _ ResultSink = &CSVSink{}

// NewCSVSink creates a [CSVSink] writing to the given path. The file is
// created lazily on the first append.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{
		mu:   sync.Mutex{},
		path: path,
	}
}

// Append implements ResultSink. Errors wrap [ErrSink].
func (s *CSVSink) Append(ctx context.Context, m *Measurement) error {
	defer s.mu.Unlock()
	s.mu.Lock()
	if err := s.append(m); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSink, s.path, err)
	}
	return nil
}

// append appends the record, writing the header first if needed.
func (s *CSVSink) append(m *Measurement) error {
	filep, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := filep.Stat()
	if err != nil {
		filep.Close()
		return err
	}
	w := csv.NewWriter(filep)
	if info.Size() <= 0 {
		if err := w.Write(ResultHeader); err != nil {
			filep.Close()
			return err
		}
	}
	if err := w.Write(m.Record()); err != nil {
		filep.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		filep.Close()
		return err
	}
	return filep.Close()
}

// ErrMalformedCSV indicates that a results file cannot be parsed.
var ErrMalformedCSV = errors.New("tunbench: malformed results file")

// ReadCSV reads measurements back from a results file. Columns are
// matched by name and the protocol column is required. Because the file
// does not store them, Run is the one-based row index and SessionID is
// empty.
func ReadCSV(r io.Reader) ([]*Measurement, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	columns := map[string]int{}
	for idx, name := range header {
		columns[name] = idx
	}
	protoIdx, found := columns["protocol"]
	if !found {
		return nil, fmt.Errorf("%w: missing protocol column", ErrMalformedCSV)
	}

	var out []*Measurement
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		m := NewMeasurement(ProtocolName(record[protoIdx]), row, "")
		for idx, field := range m.fields() {
			name := ResultHeader[idx+1]
			col, found := columns[name]
			if !found {
				continue
			}
			value, err := parseOptional(record[col])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %s: %w", ErrMalformedCSV, row, name, err)
			}
			*field = value
		}
		out = append(out, m)
	}
}

// ReadCSVFile is like [ReadCSV] but reads the named file.
func ReadCSVFile(path string) ([]*Measurement, error) {
	filep, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer filep.Close()
	return ReadCSV(filep)
}
