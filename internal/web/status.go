// Package web serves a read-only JSON view of the running services.
package web

import (
	"sync/atomic"
	"time"

	"thingslink/internal/gps"
	"thingslink/internal/lowpan"
)

// Status collects what /api/status reports. Providers are polled on every
// request; the counters are bumped by the frame sink.
type Status struct {
	startUnixNano int64
	frames        uint64
	published     uint64

	gpsFn    atomic.Value // func() gps.Snapshot
	lowpanFn atomic.Value // func() lowpan.Stats
	mode     atomic.Value // string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	return s
}

func (s *Status) SetMode(mode string) {
	s.mode.Store(mode)
}

func (s *Status) SetGPS(fn func() gps.Snapshot) {
	if fn != nil {
		s.gpsFn.Store(fn)
	}
}

func (s *Status) SetLowpan(fn func() lowpan.Stats) {
	if fn != nil {
		s.lowpanFn.Store(fn)
	}
}

func (s *Status) MarkFrame(published bool) {
	atomic.AddUint64(&s.frames, 1)
	if published {
		atomic.AddUint64(&s.published, 1)
	}
}

type StatusSnapshot struct {
	Service   string        `json:"service"`
	Mode      string        `json:"mode,omitempty"`
	NowUTC    string        `json:"now_utc"`
	UptimeSec int64         `json:"uptime_sec"`
	Frames    uint64        `json:"frames"`
	Published uint64        `json:"published"`
	GPS       *gps.Snapshot `json:"gps,omitempty"`
	Lowpan    *lowpan.Stats `json:"lowpan,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	out := StatusSnapshot{
		Service:   "thingslink",
		Mode:      s.mode.Load().(string),
		NowUTC:    nowUTC.Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Frames:    atomic.LoadUint64(&s.frames),
		Published: atomic.LoadUint64(&s.published),
	}
	if fn, ok := s.gpsFn.Load().(func() gps.Snapshot); ok {
		snap := fn()
		out.GPS = &snap
	}
	if fn, ok := s.lowpanFn.Load().(func() lowpan.Stats); ok {
		st := fn()
		out.Lowpan = &st
	}
	return out
}
