package nmea

// Event is one decoded update: SatelliteStatus, TimeUpdate, Position or
// Velocity.
type Event interface {
	isEvent()
}

type SatelliteStatus struct {
	Fixed      bool
	Satellites int
}

// TimeUpdate carries a UTC timestamp in epoch milliseconds. Estimated is set
// when the sentence's date or time could not be parsed and the wall clock was
// substituted.
type TimeUpdate struct {
	Millis    int64
	Estimated bool
}

// Position is a fix in signed decimal degrees. AltM is Unknown when the
// sentence carries no altitude. Millis is Unknown when no time was present.
type Position struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	Millis int64
}

// Velocity is ground speed in m/s and course over ground in degrees true.
type Velocity struct {
	SpeedMPS   float64
	BearingDeg float64
}

func (SatelliteStatus) isEvent() {}
func (TimeUpdate) isEvent()      {}
func (Position) isEvent()        {}
func (Velocity) isEvent()        {}
