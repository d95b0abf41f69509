package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"thingslink/internal/nmea"
	"thingslink/internal/serialport"
	"thingslink/internal/syncutil"
)

// Config controls the GPS reader.
//
// Device may be empty to auto-detect. Baud defaults to 9600, the usual NMEA
// rate. Source is "nmea" (direct serial, the default) or "gpsd".
type Config struct {
	Enable bool

	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	Device  string
	Baud    int
	Backend string

	Debug bool
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	AltM       *float64 `json:"alt_m,omitempty"`
	SpeedMPS   *float64 `json:"speed_mps,omitempty"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`

	TimeUTC       string `json:"time_utc,omitempty"`
	TimeEstimated bool   `json:"time_estimated,omitempty"`
	LastFixUTC    string `json:"last_fix_utc,omitempty"`

	Sentences uint64 `json:"sentences"`
	Rejected  uint64 `json:"rejected"`
	LastError string `json:"last_error,omitempty"`
}

// Recorder receives every chunk read from the receiver.
type Recorder interface {
	Record(now time.Time, chunk []byte) error
}

type Service struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu       syncutil.Mutex
	closer   io.Closer
	listener func(Snapshot)
	recorder Recorder

	openSerial func(serialport.Config) (io.ReadWriteCloser, string, error)
	dial       dialFunc
	now        func() time.Time
}

func New(cfg Config) *Service {
	s := &Service{
		cfg:        cfg,
		openSerial: serialport.Open,
		now:        time.Now,
	}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: s.source(), GPSDAddr: strings.TrimSpace(cfg.GPSDAddr), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

// SetListener registers fn to receive every updated snapshot. It must be
// called before Start.
func (s *Service) SetListener(fn func(Snapshot)) {
	s.listener = fn
}

// SetOpenSerial replaces the serial opener. It must be called before Start.
func (s *Service) SetOpenSerial(fn func(serialport.Config) (io.ReadWriteCloser, string, error)) {
	if fn != nil {
		s.openSerial = fn
	}
}

// SetRecorder must be called before Start.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Service) source() string {
	src := strings.ToLower(strings.TrimSpace(s.cfg.Source))
	if src == "" {
		src = "nmea"
	}
	return src
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch s.source() {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "nmea":
		return s.startNMEALocked(ctx)
	default:
		return fmt.Errorf("gps: unknown source %q", s.cfg.Source)
	}
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, device, err := s.openSerial(serialport.Config{Device: s.cfg.Device, Baud: baud, Backend: s.cfg.Backend})
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	base := Snapshot{Enabled: true, Source: "nmea", Device: device, Baud: baud}
	s.last.Store(base)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = port.Close()
		}()

		log.Printf("gps enabled device=%s baud=%d", device, baud)
		err := s.Run(childCtx, port, base)
		if childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

// Run decodes NMEA from r until it fails or ctx is done, publishing a new
// snapshot (seeded from base) after every sentence that produced events.
func (s *Service) Run(ctx context.Context, r io.Reader, base Snapshot) error {
	stream := nmea.NewStream(nmea.NewParser(nmea.WithClock(s.now)))
	var st fixState
	buf := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		updated := false
		if n > 0 && s.recorder != nil {
			if rerr := s.recorder.Record(s.now(), buf[:n]); rerr != nil {
				base.LastError = fmt.Sprintf("capture failed: %v", rerr)
				updated = true
			}
		}
		for _, b := range buf[:n] {
			events, perr := stream.Process(b)
			if perr != nil {
				st.rejected++
				// Avoid spamming on bad noise; just keep the last error.
				base.LastError = perr.Error()
				updated = true
				if s.cfg.Debug {
					log.Printf("gps rejected sentence: %v", perr)
				}
				continue
			}
			if len(events) == 0 {
				continue
			}
			st.sentences++
			nowUTC := s.now().UTC()
			for _, ev := range events {
				st.apply(nowUTC, ev)
				if s.cfg.Debug {
					log.Printf("gps event %T %+v", ev, ev)
				}
			}
			updated = true
		}
		if updated {
			s.publish(st.snapshot(base))
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return err
		}
	}
}

func (s *Service) publish(snap Snapshot) {
	s.last.Store(snap)
	if s.listener != nil {
		s.listener(snap)
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	// Do not force Valid=false here; a dropped link does not invalidate the
	// last fix.
	s.last.Store(cur)
}
