package lowpan

import "time"

// resetLine drives the NCP reset pin.
type resetLine interface {
	// Pulse holds reset asserted for d, then releases it.
	Pulse(d time.Duration) error
	Close() error
}

var openResetLineFn = openResetLine
