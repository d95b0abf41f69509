package gps

import (
	"time"

	"thingslink/internal/nmea"
)

// fixState folds decoder events into the values published in Snapshot.
type fixState struct {
	fixed      bool
	satellites int
	satsOK     bool

	latDeg float64
	lonDeg float64
	posOK  bool

	altM  float64
	altOK bool

	speedMPS   float64
	speedOK    bool
	bearingDeg float64
	bearingOK  bool

	timeMillis    int64
	timeEstimated bool

	lastFix time.Time

	sentences uint64
	rejected  uint64
}

func (s *fixState) apply(nowUTC time.Time, ev nmea.Event) {
	switch e := ev.(type) {
	case nmea.SatelliteStatus:
		s.fixed = e.Fixed
		if e.Satellites != nmea.Unknown {
			s.satellites = e.Satellites
			s.satsOK = true
		}
	case nmea.TimeUpdate:
		s.timeMillis = e.Millis
		s.timeEstimated = e.Estimated
	case nmea.Position:
		if e.Millis != nmea.Unknown {
			s.timeMillis = e.Millis
		}
		// Empty lat/lon fields decode to Unknown; that is no fix.
		if e.LatDeg == nmea.Unknown || e.LonDeg == nmea.Unknown {
			return
		}
		s.latDeg = e.LatDeg
		s.lonDeg = e.LonDeg
		s.posOK = true
		if e.AltM != nmea.Unknown {
			s.altM = e.AltM
			s.altOK = true
		}
		s.lastFix = nowUTC
	case nmea.Velocity:
		if e.SpeedMPS != nmea.Unknown {
			s.speedMPS = e.SpeedMPS
			s.speedOK = true
		}
		if e.BearingDeg != nmea.Unknown {
			s.bearingDeg = e.BearingDeg
			s.bearingOK = true
		}
	}
}

func (s *fixState) snapshot(base Snapshot) Snapshot {
	out := base
	out.Valid = s.posOK && (s.fixed || !s.satsOK)
	if s.posOK {
		out.LatDeg = s.latDeg
		out.LonDeg = s.lonDeg
	}
	if s.satsOK {
		v := s.satellites
		out.Satellites = &v
	}
	if s.altOK {
		v := s.altM
		out.AltM = &v
	}
	if s.speedOK {
		v := s.speedMPS
		out.SpeedMPS = &v
	}
	if s.bearingOK {
		v := s.bearingDeg
		out.BearingDeg = &v
	}
	if s.timeMillis > 0 {
		out.TimeUTC = time.UnixMilli(s.timeMillis).UTC().Format(time.RFC3339)
		out.TimeEstimated = s.timeEstimated
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	out.Sentences = s.sentences
	out.Rejected = s.rejected
	return out
}
