// Package ingest maps tabular and line-delimited market data files into
// quantized candles and ticks, and adapts them into the event stream the
// replay runner consumes. Malformed records surface as per-record errors;
// the stream continues past them so callers can skip, log, or abort.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backlab/ticksim/pkg/candle"
)

// Parser is a streaming candle source. Next returns io.EOF when the
// stream ends; a *RecordError reports one bad record and leaves the
// stream readable.
type Parser interface {
	Next() (candle.Candle, error)
	TickSize() float64
}

// RecordError is a per-record failure: a malformed line, an unparseable
// field, or a bar that failed validation. Validation distinguishes bars
// that parsed but carry inconsistent values.
type RecordError struct {
	Record     int // 1-based data record number
	Validation bool
	Err        error
}

func (e *RecordError) Error() string {
	kind := "parse"
	if e.Validation {
		kind = "validation"
	}
	return fmt.Sprintf("record %d: %s error: %v", e.Record, kind, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordError reports whether err is a skippable per-record failure.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// FileParser couples a Parser with the file it reads from.
type FileParser struct {
	Parser
	f *os.File
}

func (p *FileParser) Close() error { return p.f.Close() }

// Open picks a parser by file extension: .csv for tabular data,
// .json/.jsonl/.ndjson for newline-delimited JSON bars.
func Open(path string, tickSize float64) (*FileParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		p, err := NewCSVParser(f, tickSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &FileParser{Parser: p, f: f}, nil
	case ".json", ".jsonl", ".ndjson":
		return &FileParser{Parser: NewNDJSONParser(f, tickSize), f: f}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported data file extension %q", filepath.Ext(path))
	}
}
