package nmea

import (
	"strconv"
	"strings"
	"time"
)

// Unknown marks a field that was empty, malformed or in an unsupported unit.
const Unknown = -1

const (
	knotsToMPS = 0.514444
	kmhToMPS   = 0.277778
)

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Unknown
	}
	return v
}

func floatOrUnknown(s string) float64 {
	v, ok := parseFloat(s)
	if !ok {
		return Unknown
	}
	return v
}

// ParseCoordinate decodes ddmm.mmmm (or dddmm.mmmm) plus a hemisphere letter
// into signed decimal degrees. W and S are negative.
func ParseCoordinate(v, hemi string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return Unknown
	}
	dot := strings.IndexByte(v, '.')
	if dot == -1 {
		dot = len(v)
	}
	if dot < 2 {
		return Unknown
	}

	deg := 0
	if degPart := v[:dot-2]; degPart != "" {
		d, err := strconv.Atoi(degPart)
		if err != nil || d < 0 {
			return Unknown
		}
		deg = d
	}
	mins, err := strconv.ParseFloat(v[dot-2:], 64)
	if err != nil || mins < 0 {
		return Unknown
	}

	dec := float64(deg) + mins/60.0
	switch strings.ToUpper(strings.TrimSpace(hemi)) {
	case "S", "W":
		dec = -dec
	}
	return dec
}

// SpeedToMPS converts a speed field. unit is "N" (knots) or "K" (km/h).
func SpeedToMPS(value, unit string) float64 {
	v, ok := parseFloat(value)
	if !ok {
		return Unknown
	}
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "N":
		return v * knotsToMPS
	case "K":
		return v * kmhToMPS
	default:
		return Unknown
	}
}

// DistanceToMeters converts a distance field. unit is "M" or "K".
func DistanceToMeters(value, unit string) float64 {
	v, ok := parseFloat(value)
	if !ok {
		return Unknown
	}
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "M":
		return v
	case "K":
		return v * 1000
	default:
		return Unknown
	}
}

// Date is a calendar day in UTC.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func dateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// parseDate decodes ddMMyy. Two-digit years resolve into the window from 80
// years before to 20 years after now.
func parseDate(s string, now time.Time) (Date, bool) {
	if len(s) != 6 || !allDigits(s) {
		return Date{}, false
	}
	day, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[2:4])
	yy, _ := strconv.Atoi(s[4:6])

	nowYear := now.UTC().Year()
	year := nowYear - nowYear%100 + yy
	if year > nowYear+20 {
		year -= 100
	} else if year <= nowYear-80 {
		year += 100
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Date{}, false
	}
	return Date{Year: year, Month: time.Month(month), Day: day}, true
}

// parseClock decodes hhmmss[.sss]; the fraction is dropped.
func parseClock(s string) (h, m, sec int, ok bool) {
	if len(s) < 6 || !allDigits(s[:6]) {
		return 0, 0, 0, false
	}
	if rest := s[6:]; rest != "" && (rest[0] != '.' || !allDigits(rest[1:])) {
		return 0, 0, 0, false
	}
	h, _ = strconv.Atoi(s[0:2])
	m, _ = strconv.Atoi(s[2:4])
	sec, _ = strconv.Atoi(s[4:6])
	if h > 23 || m > 59 || sec > 59 {
		return 0, 0, 0, false
	}
	return h, m, sec, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
