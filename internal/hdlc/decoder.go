package hdlc

import "errors"

type State int

const (
	NotStarted State = iota
	Started
	Unescaping
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Unescaping:
		return "unescaping"
	default:
		return "unknown"
	}
}

// Decoder reassembles frames from a byte stream, one byte at a time.
//
// Any flag byte closes the frame in progress and opens the next one, so
// back-to-back frames may share a flag. Bytes seen before the first flag are
// discarded.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf      []byte
	crc      uint16
	state    State
	maxFrame int
	overflow bool
}

// NewDecoder returns a decoder that drops frames whose payload exceeds
// maxFrame bytes. maxFrame <= 0 means unbounded.
func NewDecoder(maxFrame int) *Decoder {
	capHint := maxFrame + 2
	if maxFrame <= 0 {
		capHint = 256
	}
	return &Decoder{buf: make([]byte, 0, capHint), maxFrame: maxFrame}
}

func (d *Decoder) State() State {
	return d.state
}

// Reset returns the decoder to NotStarted and discards any partial frame.
func (d *Decoder) Reset() {
	d.state = NotStarted
	d.buf = d.buf[:0]
	d.crc = crcReset
	d.overflow = false
}

func (d *Decoder) open() {
	d.state = Started
	d.buf = d.buf[:0]
	d.crc = crcReset
	d.overflow = false
}

// Process consumes one byte. ok is true when b completed a valid frame; the
// returned frame is owned by the caller. err is non-nil when b closed a frame
// that failed its CRC (a *CRCError) or overran the size limit.
func (d *Decoder) Process(b byte) (frame []byte, ok bool, err error) {
	switch d.state {
	case NotStarted:
		if b == Flag {
			d.open()
		}
		return nil, false, nil
	case Unescaping:
		if b == Flag {
			// Resync mid-escape.
			frame, ok, err = d.finish()
			d.open()
			return frame, ok, err
		}
		d.state = Started
		d.append(b ^ EscapeXor)
		return nil, false, nil
	default:
		switch b {
		case Flag:
			frame, ok, err = d.finish()
			d.open()
			return frame, ok, err
		case Escape:
			d.state = Unescaping
		default:
			d.append(b)
		}
		return nil, false, nil
	}
}

// Decode feeds every byte of p and returns the frames completed along the
// way. Frame errors do not stop decoding; they are joined into err.
func (d *Decoder) Decode(p []byte) (frames [][]byte, err error) {
	var errs []error
	for _, b := range p {
		frame, ok, ferr := d.Process(b)
		if ferr != nil {
			errs = append(errs, ferr)
		}
		if ok {
			frames = append(frames, frame)
		}
	}
	return frames, errors.Join(errs...)
}

// append stores b. The CRC runs two bytes behind the buffer so that, when the
// frame closes, it covers everything except the trailing FCS.
func (d *Decoder) append(b byte) {
	if d.overflow {
		return
	}
	if d.maxFrame > 0 && len(d.buf) >= d.maxFrame+2 {
		d.overflow = true
		return
	}
	if n := len(d.buf); n >= 2 {
		d.crc = Step(d.crc, d.buf[n-2])
	}
	d.buf = append(d.buf, b)
}

func (d *Decoder) finish() ([]byte, bool, error) {
	if d.overflow {
		return nil, false, ErrFrameTooLong
	}
	n := len(d.buf)
	if n < 2 {
		return nil, false, nil
	}
	received := uint16(d.buf[n-2]) | uint16(d.buf[n-1])<<8
	computed := d.crc ^ crcReset
	if received != computed {
		return nil, false, &CRCError{Computed: computed, Received: received, Size: n}
	}
	frame := make([]byte, n-2)
	copy(frame, d.buf[:n-2])
	return frame, true, nil
}
