// Package hdlc implements the HDLC-Lite byte framing used on the lowpan
// UART link: 0x7E flags, 0x7D byte stuffing and a trailing FCS-16.
package hdlc

import (
	"errors"
	"fmt"
)

const (
	Flag      = 0x7E
	Escape    = 0x7D
	XON       = 0x11
	XOFF      = 0x13
	Special   = 0xF8
	EscapeXor = 0x20
)

var (
	// ErrGarbageFrame is matched by every *CRCError.
	ErrGarbageFrame = errors.New("hdlc: garbage frame")
	ErrFrameTooLong = errors.New("hdlc: frame too long")
)

// CRCError describes a frame whose trailing FCS did not match its payload.
type CRCError struct {
	Computed uint16
	Received uint16
	Size     int
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("hdlc: garbage frame: crc mismatch computed=0x%04X received=0x%04X size=%d", e.Computed, e.Received, e.Size)
}

func (e *CRCError) Is(target error) bool {
	return target == ErrGarbageFrame
}

// NeedsEscape reports whether b must be byte-stuffed on the wire.
func NeedsEscape(b byte) bool {
	switch b {
	case Flag, Escape, XON, XOFF, Special:
		return true
	default:
		return false
	}
}

// Encode wraps payload in flags, appends the little-endian FCS and escapes
// every reserved byte of the payload and FCS.
func Encode(payload []byte) []byte {
	return AppendEncoded(make([]byte, 0, 4+len(payload)*2), payload)
}

// AppendEncoded is Encode appending to dst.
func AppendEncoded(dst, payload []byte) []byte {
	dst = append(dst, Flag)
	crc := crcReset
	for _, b := range payload {
		crc = Step(crc, b)
		dst = appendEscaped(dst, b)
	}
	crc ^= crcReset
	dst = appendEscaped(dst, byte(crc&0xFF))
	dst = appendEscaped(dst, byte(crc>>8))
	return append(dst, Flag)
}

func appendEscaped(dst []byte, b byte) []byte {
	if NeedsEscape(b) {
		return append(dst, Escape, b^EscapeXor)
	}
	return append(dst, b)
}
