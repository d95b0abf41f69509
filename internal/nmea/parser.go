package nmea

import (
	"strings"
	"time"
)

// Minimum token counts (including the identifier) per sentence type.
const (
	minGGAFields = 13
	minGLLFields = 7
	minRMCFields = 11
	minVTGFields = 9
)

// Parser turns sentences into events. It remembers the date of the last valid
// RMC so that GGA and GLL, which carry only a time of day, can be stamped.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	now      func() time.Time
	lastDate Date
}

type Option func(*Parser)

// WithClock replaces time.Now for the initial date and for timestamps that
// cannot be parsed.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.lastDate = dateOf(p.now())
	return p
}

// LastDate returns the date used for time-only sentences.
func (p *Parser) LastDate() Date {
	return p.lastDate
}

// ParseLine validates a raw line and decodes it. Checksum failures return an
// error and leave the parser untouched.
func (p *Parser) ParseLine(line string) ([]Event, error) {
	s, err := ParseSentence(line)
	if err != nil {
		return nil, err
	}
	return p.Parse(s), nil
}

// Parse decodes a verified sentence. Unsupported identifiers, short sentences
// and void fixes produce no events.
func (p *Parser) Parse(s Sentence) []Event {
	switch s.ID {
	case "GPGGA":
		return p.parseGGA(s.Fields)
	case "GPGLL":
		return p.parseGLL(s.Fields)
	case "GPRMC":
		return p.parseRMC(s.Fields)
	case "GPVTG":
		return p.parseVTG(s.Fields)
	default:
		return nil
	}
}

// GGA: Global Positioning System Fix Data
//
//	1: time (hhmmss.sss)
//	2,3: latitude, N/S
//	4,5: longitude, E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	9,10: altitude, unit
//	11,12: geoid separation, unit
func (p *Parser) parseGGA(f []string) []Event {
	if len(f) < minGGAFields {
		return nil
	}
	quality := parseInt(f[6])
	events := []Event{SatelliteStatus{Fixed: quality > 0, Satellites: parseInt(f[7])}}
	if quality < 1 {
		return events
	}

	// Unknown altitude or separation is subtracted as-is.
	alt := DistanceToMeters(f[9], f[10]) - DistanceToMeters(f[11], f[12])
	millis, _ := p.timestamp(f[1], "")
	return append(events, Position{
		LatDeg: ParseCoordinate(f[2], f[3]),
		LonDeg: ParseCoordinate(f[4], f[5]),
		AltM:   alt,
		Millis: millis,
	})
}

// GLL: Geographic Position
//
//	1,2: latitude, N/S
//	3,4: longitude, E/W
//	5: time
//	6: status (A=active, V=void)
func (p *Parser) parseGLL(f []string) []Event {
	if len(f) < minGLLFields || strings.Contains(f[6], "V") {
		return nil
	}
	millis, _ := p.timestamp(f[5], "")
	return []Event{Position{
		LatDeg: ParseCoordinate(f[1], f[2]),
		LonDeg: ParseCoordinate(f[3], f[4]),
		AltM:   Unknown,
		Millis: millis,
	}}
}

// RMC: Recommended Minimum Specific GNSS Data
//
//	1: time
//	2: status (A=active, V=void)
//	3,4: latitude, N/S
//	5,6: longitude, E/W
//	7: speed over ground (knots)
//	8: course over ground (deg true)
//	9: date (ddmmyy)
func (p *Parser) parseRMC(f []string) []Event {
	if len(f) < minRMCFields || strings.Contains(f[2], "V") {
		return nil
	}

	var events []Event
	millis, estimated := p.timestamp(f[1], f[9])
	if millis != Unknown {
		events = append(events, TimeUpdate{Millis: millis, Estimated: estimated})
	}
	events = append(events,
		Position{
			LatDeg: ParseCoordinate(f[3], f[4]),
			LonDeg: ParseCoordinate(f[5], f[6]),
			AltM:   Unknown,
			Millis: millis,
		},
		Velocity{
			SpeedMPS:   SpeedToMPS(f[7], "N"),
			BearingDeg: floatOrUnknown(f[8]),
		},
	)
	return events
}

// VTG: Track Made Good and Ground Speed
//
//	1: track (deg true)
//	5,6: speed, unit (N or K)
func (p *Parser) parseVTG(f []string) []Event {
	if len(f) < minVTGFields {
		return nil
	}
	return []Event{Velocity{
		SpeedMPS:   SpeedToMPS(f[5], f[6]),
		BearingDeg: floatOrUnknown(f[1]),
	}}
}

// timestamp combines hhmmss[.sss] with ddMMyy into epoch milliseconds. With
// no date string the last known date is used; a date becomes the new last
// known date once the clock parses too. Short strings yield Unknown. Anything else that fails to
// parse falls back to the wall clock with estimated set.
func (p *Parser) timestamp(clock, date string) (millis int64, estimated bool) {
	clock = strings.TrimSpace(clock)
	date = strings.TrimSpace(date)
	if len(clock) < 6 {
		return Unknown, false
	}
	d := p.lastDate
	if date != "" {
		if len(date) < 6 {
			return Unknown, false
		}
		parsed, ok := parseDate(date, p.now())
		if !ok {
			return p.now().UnixMilli(), true
		}
		d = parsed
	}
	h, m, s, ok := parseClock(clock)
	if !ok {
		return p.now().UnixMilli(), true
	}
	p.lastDate = d
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, time.UTC).UnixMilli(), false
}
