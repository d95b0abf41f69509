// Package spinel encodes the Spinel frames carried inside HDLC-Lite frames
// between the host and the lowpan NCP.
//
// Frame layout: one header byte, a packed command id, then the command
// payload. The header is 0b10IITTTT: flag bits, interface id, transaction id.
package spinel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerFlag     = 0x80
	headerFlagMask = 0xC0
	iidShift       = 4
	iidMask        = 0x03
	tidMask        = 0x0F

	// maxPackedLen bounds command and property ids.
	maxPackedLen = 3
)

// Commands.
const (
	CmdNoop         uint32 = 0
	CmdReset        uint32 = 1
	CmdPropValueGet uint32 = 2
	CmdPropValueSet uint32 = 3
	CmdPropValueIs  uint32 = 6
)

// Properties.
const (
	PropLastStatus      uint32 = 0
	PropProtocolVersion uint32 = 1
	PropNCPVersion      uint32 = 2
)

var (
	ErrShortFrame = errors.New("spinel: frame too short")
	ErrBadHeader  = errors.New("spinel: bad header flag")
	ErrBadPacked  = errors.New("spinel: bad packed integer")
)

// Header is the first byte of every Spinel frame.
type Header struct {
	IID byte
	TID byte
}

func (h Header) Byte() byte {
	return headerFlag | (h.IID&iidMask)<<iidShift | h.TID&tidMask
}

func ParseHeader(b byte) (Header, error) {
	if b&headerFlagMask != headerFlag {
		return Header{}, fmt.Errorf("%w: 0x%02X", ErrBadHeader, b)
	}
	return Header{IID: (b >> iidShift) & iidMask, TID: b & tidMask}, nil
}

type Frame struct {
	Header  Header
	Command uint32
	Payload []byte
}

func (f Frame) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 1+maxPackedLen+len(f.Payload))
	out = append(out, f.Header.Byte())
	out = AppendPacked(out, f.Command)
	return append(out, f.Payload...), nil
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return ErrShortFrame
	}
	h, err := ParseHeader(data[0])
	if err != nil {
		return err
	}
	cmd, n, err := ReadPacked(data[1:])
	if err != nil {
		return err
	}
	f.Header = h
	f.Command = cmd
	f.Payload = append([]byte(nil), data[1+n:]...)
	return nil
}

// AppendPacked appends v as a Spinel packed unsigned integer (LEB128).
func AppendPacked(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// ReadPacked decodes a packed unsigned integer and returns its length.
func ReadPacked(p []byte) (uint32, int, error) {
	limit := p
	if len(limit) > maxPackedLen {
		limit = limit[:maxPackedLen]
	}
	v, n := binary.Uvarint(limit)
	if n <= 0 {
		return 0, 0, ErrBadPacked
	}
	return uint32(v), n, nil
}

// PropGet builds a PROP_VALUE_GET for prop.
func PropGet(h Header, prop uint32) Frame {
	return Frame{Header: h, Command: CmdPropValueGet, Payload: AppendPacked(nil, prop)}
}

// Reset builds a RESET command.
func Reset(h Header) Frame {
	return Frame{Header: h, Command: CmdReset}
}

// Prop splits a PROP_VALUE_IS payload into property id and value.
func (f Frame) Prop() (uint32, []byte, error) {
	if f.Command != CmdPropValueIs {
		return 0, nil, fmt.Errorf("spinel: command %d is not PROP_VALUE_IS", f.Command)
	}
	prop, n, err := ReadPacked(f.Payload)
	if err != nil {
		return 0, nil, err
	}
	return prop, f.Payload[n:], nil
}
