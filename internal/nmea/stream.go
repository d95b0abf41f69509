package nmea

import "errors"

const (
	sentenceStart = '$'
	sentenceEnd   = '\r'

	// MaxSentence bounds the framing buffer. Real sentences are under 83
	// bytes; anything longer is noise.
	MaxSentence = 1024
)

// Stream frames raw receiver bytes into sentences and feeds them to a
// Parser.
//
// '$' always starts a new sentence, discarding any partial one. CR ends it.
// NUL bytes are skipped. Bytes outside a sentence (LF included) are ignored.
type Stream struct {
	parser  *Parser
	buf     []byte
	started bool
}

func NewStream(p *Parser) *Stream {
	if p == nil {
		p = NewParser()
	}
	return &Stream{parser: p, buf: make([]byte, 0, MaxSentence)}
}

func (s *Stream) Parser() *Parser {
	return s.parser
}

// Process consumes one byte. Events are returned when b completes a valid
// sentence; err is non-nil when it completes an invalid one.
func (s *Stream) Process(b byte) ([]Event, error) {
	switch b {
	case 0x00:
		return nil, nil
	case sentenceStart:
		s.buf = s.buf[:0]
		s.started = true
		return nil, nil
	case sentenceEnd:
		if !s.started {
			return nil, nil
		}
		line := string(s.buf)
		s.reset()
		return s.parser.ParseLine(line)
	}

	if !s.started {
		return nil, nil
	}
	if len(s.buf) >= MaxSentence {
		s.reset()
		return nil, ErrSentenceTooLong
	}
	s.buf = append(s.buf, b)
	return nil, nil
}

// Write feeds a chunk and returns all events it completed. Sentence errors
// are joined; decoding continues past them.
func (s *Stream) Write(p []byte) ([]Event, error) {
	var events []Event
	var errs []error
	for _, b := range p {
		ev, err := s.Process(b)
		if err != nil {
			errs = append(errs, err)
		}
		events = append(events, ev...)
	}
	return events, errors.Join(errs...)
}

func (s *Stream) reset() {
	s.buf = s.buf[:0]
	s.started = false
}
