package scanner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// Sink receives serialized scan records. Exactly one goroutine writes to a
// sink, so implementations need no locking.
type Sink interface {
	Write(rec domain.ScanResult) error
	// Close releases the sink. clean reports whether the scan finished
	// without error; a file sink only publishes its temp file on a clean
	// close.
	Close(clean bool) error
}

// WriterSink streams records to an io.Writer (stdout mode). No atomic
// publish: records appear as they complete.
type WriterSink struct {
	enc *json.Encoder
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Write(rec domain.ScanResult) error {
	return s.enc.Encode(rec)
}

func (s *WriterSink) Close(bool) error { return nil }

// FileSink writes NDJSON to a file. In fresh mode it writes a sibling
// .tmp and renames it into place on clean close, so readers never observe
// a half-written output; a failed scan leaves the temp file for diagnosis.
// In resume mode it appends directly to the existing path.
type FileSink struct {
	path    string
	tmpPath string
	resume  bool
	f       *os.File
	enc     *json.Encoder
}

// NewFileSink opens the output file for path.
func NewFileSink(path string, resume bool) (*FileSink, error) {
	s := &FileSink{path: path, resume: resume}
	var err error
	if resume {
		s.f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	} else {
		s.tmpPath = path + ".tmp"
		s.f, err = os.OpenFile(s.tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return nil, err
	}
	s.enc = json.NewEncoder(s.f)
	return s, nil
}

func (s *FileSink) Write(rec domain.ScanResult) error {
	return s.enc.Encode(rec)
}

func (s *FileSink) Close(clean bool) error {
	if err := s.f.Close(); err != nil {
		return err
	}
	if s.resume || !clean {
		return nil
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to publish output: %w", err)
	}
	return nil
}
