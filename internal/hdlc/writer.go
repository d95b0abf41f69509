package hdlc

import (
	"io"

	"thingslink/internal/syncutil"
)

// Writer encodes payloads onto an underlying byte stream. Each WriteFrame
// call emits exactly one frame with a single Write.
type Writer struct {
	mu  syncutil.Mutex
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (fw *Writer) WriteFrame(payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.buf = AppendEncoded(fw.buf[:0], payload)
	_, err := fw.w.Write(fw.buf)
	return err
}
