package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotSentence     = errors.New("nmea: empty sentence")
	ErrMissingChecksum = errors.New("nmea: missing checksum")
	ErrChecksum        = errors.New("nmea: checksum mismatch")
	ErrSentenceTooLong = errors.New("nmea: sentence too long")
)

// ChecksumError is returned for a sentence whose XOR checksum does not match
// the two hex digits after '*'. It matches ErrChecksum.
type ChecksumError struct {
	Computed byte
	Expected byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("nmea: checksum mismatch computed=%02X expected=%02X", e.Computed, e.Expected)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// Sentence is one checksum-verified NMEA line.
type Sentence struct {
	// ID is the talker+type identifier, e.g. "GPGGA".
	ID string
	// Fields is the comma-split payload. Fields[0] is ID, so indices match
	// the field numbers used in NMEA tables.
	Fields []string
}

// Checksum XORs every byte of payload (the text between '$' and '*').
func Checksum(payload string) byte {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// ParseSentence validates and tokenizes one line. The leading '$' and any
// trailing CR/LF are optional.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimPrefix(line, "$")
	if line == "" {
		return Sentence{}, ErrNotSentence
	}

	star := strings.LastIndexByte(line, '*')
	if star == -1 || len(line)-star-1 < 2 {
		return Sentence{}, ErrMissingChecksum
	}
	want, err := strconv.ParseUint(line[star+1:star+3], 16, 8)
	if err != nil {
		return Sentence{}, fmt.Errorf("%w: bad checksum digits %q", ErrMissingChecksum, line[star+1:star+3])
	}

	payload := line[:star]
	if got := Checksum(payload); got != byte(want) {
		return Sentence{}, &ChecksumError{Computed: got, Expected: byte(want)}
	}

	fields := strings.Split(payload, ",")
	return Sentence{ID: fields[0], Fields: fields}, nil
}

// Format renders payload as a complete sentence with checksum, without the
// trailing CR.
func Format(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, Checksum(payload))
}
