package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
)

// LostSink stands in for a sink that could not be opened. It refuses every
// frame with Err, so the recorder counts each one as dropped.
type LostSink struct {
	Err error
}

func (s LostSink) Append(*Frame, []byte) error {
	return s.Err
}

// FileSink appends records to a file through a buffer that is flushed every
// flushEvery frames and on Close.
type FileSink struct {
	w          *bufio.Writer
	c          io.Closer
	flushEvery int
	pending    int
}

// CreateFileSink opens path for appending, creating it if needed.
func CreateFileSink(path string, flushEvery int) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry file: %w", err)
	}
	return NewFileSink(f, flushEvery), nil
}

// NewFileSink wraps w. If w is an io.Closer it is closed by Close.
func NewFileSink(w io.Writer, flushEvery int) *FileSink {
	if flushEvery < 1 {
		flushEvery = 1
	}
	s := &FileSink{
		w:          bufio.NewWriterSize(w, FrameSize*flushEvery),
		flushEvery: flushEvery,
	}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *FileSink) Append(_ *Frame, record []byte) error {
	if _, err := s.w.Write(record); err != nil {
		return err
	}
	s.pending++
	if s.pending >= s.flushEvery {
		s.pending = 0
		return s.w.Flush()
	}
	return nil
}

// Flush writes any buffered frames.
func (s *FileSink) Flush() error {
	s.pending = 0
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	err := s.Flush()
	if s.c != nil {
		err = multierr.Append(err, s.c.Close())
	}
	return err
}
