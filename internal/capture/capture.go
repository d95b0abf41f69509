// Package capture stores raw link traffic as a line-oriented text log and
// feeds it back through the decoders at the recorded pace.
//
// Each line of a log is one of:
//
//   - empty, or a '#' comment (skipped)
//   - START, which begins a new session whose offsets count from zero
//   - <offset_ns>,<hex>: one chunk exactly as the link returned it
package capture

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"thingslink/internal/syncutil"
)

const sessionMarker = "START"

var errWriterClosed = errors.New("capture: writer closed")

// Record is one log entry. A nil Chunk marks the start of a session.
type Record struct {
	At    time.Duration
	Chunk []byte
}

func (r Record) isSession() bool { return r.Chunk == nil }

type Reader struct {
	src io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{src: r}
}

// ReadAll parses the whole log. The first malformed line aborts the read.
func (rd *Reader) ReadAll() ([]Record, error) {
	sc := bufio.NewScanner(rd.src)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var out []Record
	for n := 1; sc.Scan(); n++ {
		rec, skip, err := parseLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("capture: line %d: %w", n, err)
		}
		if !skip {
			out = append(out, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("capture: scan: %w", err)
	}
	return out, nil
}

func parseLine(raw string) (rec Record, skip bool, err error) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "", line[0] == '#':
		return Record{}, true, nil
	case line == sessionMarker:
		return Record{}, false, nil
	}

	offset, payload, found := strings.Cut(line, ",")
	if !found {
		return Record{}, false, errors.New("want <offset_ns>,<hex>")
	}
	offset = strings.TrimSpace(offset)
	payload = strings.Join(strings.Fields(payload), "")
	if offset == "" || payload == "" {
		return Record{}, false, errors.New("offset and payload are both required")
	}

	ns, err := strconv.ParseInt(offset, 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("bad offset %q: %w", offset, err)
	}
	if ns < 0 {
		return Record{}, false, fmt.Errorf("offset %d is before session start", ns)
	}
	chunk, err := hex.DecodeString(payload)
	if err != nil {
		return Record{}, false, fmt.Errorf("bad payload: %w", err)
	}
	return Record{At: time.Duration(ns), Chunk: chunk}, false, nil
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer logs chunks as they arrive. It is safe to call Record from the
// link goroutine and Close from the shutdown path concurrently.
type Writer struct {
	mu     syncutil.Mutex
	file   *os.File
	buf    *bufio.Writer
	origin time.Time
	done   bool
}

// CreateWriter truncates path and opens a single session.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{file: f, buf: bufio.NewWriterSize(f, 64*1024), origin: time.Now()}
	if _, err := fmt.Fprintln(w.buf, sessionMarker); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Record appends chunk with its offset from the session start. Empty chunks
// are dropped.
func (w *Writer) Record(now time.Time, chunk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errWriterClosed
	}
	if len(chunk) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w.buf, "%d,%x\n", max(now.Sub(w.origin), 0).Nanoseconds(), chunk)
	return err
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes and closes the file. Later calls are no-ops.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	return errors.Join(w.buf.Flush(), w.file.Close())
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Play hands each chunk in records to deliver, pausing between chunks for
// the recorded gap divided by speed. With loop set it starts over after the
// last record until deliver fails.
func Play(records []Record, speed float64, loop bool, sleeper Sleeper, deliver func(chunk []byte) error) error {
	switch {
	case speed <= 0:
		return fmt.Errorf("capture: speed %v is not positive", speed)
	case deliver == nil:
		return errors.New("capture: nil deliver func")
	case len(records) == 0:
		return errors.New("capture: nothing to play")
	}
	if sleeper == nil {
		sleeper = wallClock{}
	}

	for {
		if err := playPass(records, speed, sleeper, deliver); err != nil {
			return err
		}
		if !loop {
			return nil
		}
	}
}

func playPass(records []Record, speed float64, sleeper Sleeper, deliver func([]byte) error) error {
	var sessionAt time.Duration
	prev := time.Duration(-1)
	for _, r := range records {
		if r.isSession() {
			sessionAt, prev = r.At, -1
			continue
		}
		at := max(r.At-sessionAt, 0)
		if prev >= 0 {
			if gap := time.Duration(float64(at-prev) / speed); gap > 0 {
				sleeper.Sleep(gap)
			}
		}
		if err := deliver(r.Chunk); err != nil {
			return err
		}
		prev = at
	}
	return nil
}
