// Package lowpan is the UART transport to a Spinel lowpan NCP.
//
// The transport owns the serial connection, reassembles HDLC-Lite frames
// from it and hands decoded payloads to the caller. When the link drops it
// pulses the NCP reset line (if any) and reconnects with backoff.
package lowpan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"thingslink/internal/hdlc"
	"thingslink/internal/spinel"
	"thingslink/internal/syncutil"
)

var (
	ErrClosed       = errors.New("lowpan: transport closed")
	ErrNotConnected = errors.New("lowpan: not connected")
)

type Config struct {
	Name string

	// ResetGPIO is the BCM line driving the NCP's active-low reset; 0 disables.
	ResetGPIO  int
	ResetPulse time.Duration

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// MaxFrame bounds a decoded payload; larger frames are dropped.
	MaxFrame int

	// SoftReset sends a Spinel RESET after every (re)connect.
	SoftReset bool

	Debug bool
}

// OpenFunc opens the underlying byte stream, normally a serial port.
type OpenFunc func() (io.ReadWriteCloser, error)

// Recorder receives every chunk read from the link.
type Recorder interface {
	Record(now time.Time, chunk []byte) error
}

type Stats struct {
	Connected  bool   `json:"connected"`
	Frames     uint64 `json:"frames"`
	Garbage    uint64 `json:"garbage"`
	Oversize   uint64 `json:"oversize"`
	Reconnects uint64 `json:"reconnects"`
	LastError  string `json:"last_error,omitempty"`
}

type Transport struct {
	cfg      Config
	open     OpenFunc
	recorder Recorder
	frames   chan []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     syncutil.Mutex
	conn   io.ReadWriteCloser
	writer *hdlc.Writer
	reset  resetLine
	closed bool

	statsMu syncutil.RWMutex
	stats   Stats
}

func New(cfg Config, open OpenFunc) *Transport {
	if cfg.Name == "" {
		cfg.Name = "lowpan"
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 250 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 10 * time.Second
	}
	if cfg.ResetPulse <= 0 {
		cfg.ResetPulse = 10 * time.Millisecond
	}
	return &Transport{cfg: cfg, open: open, frames: make(chan []byte, 32)}
}

// SetRecorder must be called before Start.
func (t *Transport) SetRecorder(r Recorder) {
	t.recorder = r
}

// Frames delivers decoded HDLC payloads. It is closed by Close.
func (t *Transport) Frames() <-chan []byte {
	return t.frames
}

func (t *Transport) Stats() Stats {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	return t.stats
}

func (t *Transport) Start(ctx context.Context) error {
	if t == nil {
		return fmt.Errorf("lowpan transport is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if t.open == nil {
		return fmt.Errorf("lowpan open func is nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.cancel != nil {
		return nil
	}

	if t.cfg.ResetGPIO > 0 {
		line, err := openResetLineFn(t.cfg.ResetGPIO)
		if err != nil {
			// Run without hardware reset rather than not at all.
			log.Printf("%s reset line unavailable gpio=%d: %v", t.cfg.Name, t.cfg.ResetGPIO, err)
		} else {
			t.reset = line
		}
	}

	childCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(childCtx)
	}()
	return nil
}

func (t *Transport) run(ctx context.Context) {
	backoff := t.cfg.ReconnectMin
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !first {
			t.updateStats(func(s *Stats) { s.Reconnects++ })
		}
		first = false

		t.pulseReset()
		conn, err := t.open()
		if err != nil {
			t.setError(fmt.Sprintf("open failed: %v", err))
			if !t.wait(ctx, &backoff) {
				return
			}
			continue
		}

		if !t.attach(conn) {
			_ = conn.Close()
			return
		}
		log.Printf("%s connected", t.cfg.Name)

		if t.cfg.SoftReset {
			if err := t.Send(spinel.Reset(spinel.Header{})); err != nil {
				t.setError(fmt.Sprintf("soft reset failed: %v", err))
			}
		}

		n, err := t.readLoop(ctx, conn)
		t.detach()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		t.setError(fmt.Sprintf("read stopped: %v", err))
		// A link that delivered nothing counts as a failed attempt.
		if n > 0 {
			backoff = t.cfg.ReconnectMin
		}
		if !t.wait(ctx, &backoff) {
			return
		}
	}
}

// wait sleeps for *backoff and doubles it up to ReconnectMax. It reports
// false when ctx ends first.
func (t *Transport) wait(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > t.cfg.ReconnectMax {
		*backoff = t.cfg.ReconnectMax
	}
	return true
}

func (t *Transport) attach(conn io.ReadWriteCloser) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conn = conn
	t.writer = hdlc.NewWriter(conn)
	t.updateStats(func(s *Stats) { s.Connected = true })
	return true
}

func (t *Transport) detach() {
	t.mu.Lock()
	t.conn = nil
	t.writer = nil
	t.mu.Unlock()
	t.updateStats(func(s *Stats) { s.Connected = false })
}

// readLoop decodes r until it fails and returns how many bytes it read.
func (t *Transport) readLoop(ctx context.Context, r io.Reader) (int, error) {
	dec := hdlc.NewDecoder(t.cfg.MaxFrame)
	buf := make([]byte, 512)
	total := 0
	for {
		n, err := r.Read(buf)
		total += n
		if n > 0 {
			chunk := buf[:n]
			if t.recorder != nil {
				if rerr := t.recorder.Record(time.Now(), chunk); rerr != nil {
					t.setError(fmt.Sprintf("capture failed: %v", rerr))
				}
			}
			for _, b := range chunk {
				frame, ok, ferr := dec.Process(b)
				if ferr != nil {
					// The flag that closed the bad frame has already opened
					// the next one.
					t.frameError(ferr)
					continue
				}
				if !ok {
					continue
				}
				t.updateStats(func(s *Stats) { s.Frames++ })
				if t.cfg.Debug {
					log.Printf("%s rx frame len=%d % X", t.cfg.Name, len(frame), frame)
				}
				select {
				case t.frames <- frame:
				case <-ctx.Done():
					return total, ctx.Err()
				}
			}
		}
		if err != nil {
			return total, err
		}
	}
}

func (t *Transport) frameError(err error) {
	switch {
	case errors.Is(err, hdlc.ErrFrameTooLong):
		t.updateStats(func(s *Stats) { s.Oversize++ })
	default:
		t.updateStats(func(s *Stats) { s.Garbage++ })
	}
	log.Printf("%s dropped frame: %v", t.cfg.Name, err)
	t.setError(err.Error())
}

// Send marshals f and writes it as one HDLC frame.
func (t *Transport) Send(f spinel.Frame) error {
	payload, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return t.SendRaw(payload)
}

func (t *Transport) SendRaw(payload []byte) error {
	t.mu.Lock()
	w := t.writer
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if w == nil {
		return ErrNotConnected
	}
	if t.cfg.Debug {
		log.Printf("%s tx frame len=%d % X", t.cfg.Name, len(payload), payload)
	}
	if err := w.WriteFrame(payload); err != nil {
		return fmt.Errorf("lowpan write: %w", err)
	}
	return nil
}

func (t *Transport) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	cancel := t.cancel
	conn := t.conn
	reset := t.reset
	t.cancel = nil
	t.conn = nil
	t.writer = nil
	t.reset = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	t.wg.Wait()
	if reset != nil {
		_ = reset.Close()
	}
	close(t.frames)
}

func (t *Transport) pulseReset() {
	t.mu.Lock()
	line := t.reset
	t.mu.Unlock()
	if line == nil {
		return
	}
	if err := line.Pulse(t.cfg.ResetPulse); err != nil {
		t.setError(fmt.Sprintf("reset pulse failed: %v", err))
	}
}

func (t *Transport) updateStats(fn func(*Stats)) {
	t.statsMu.Lock()
	fn(&t.stats)
	t.statsMu.Unlock()
}

func (t *Transport) setError(msg string) {
	t.updateStats(func(s *Stats) { s.LastError = msg })
}
