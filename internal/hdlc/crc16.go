package hdlc

const (
	// crcReset seeds the running FCS and is XORed into it on finalization.
	crcReset uint16 = 0xFFFF
	// crcGood is the residue left after running Step over a payload followed
	// by its own little-endian FCS.
	crcGood uint16 = 0xF0B8
)

// Step folds one byte into a running CRC-16/CCITT (reflected, poly 0x8408).
//
// This is the FCS-16 used by PPP and HDLC-Lite peers; the table below must
// stay bit-identical to theirs.
func Step(crc uint16, b byte) uint16 {
	return (crc >> 8) ^ crcTable[byte(crc)^b]
}

// Checksum returns the finalized FCS of p, as appended by Encode.
func Checksum(p []byte) uint16 {
	crc := crcReset
	for _, b := range p {
		crc = Step(crc, b)
	}
	return crc ^ crcReset
}

// Verify reports whether raw (de-escaped payload plus trailing FCS) carries a
// valid checksum.
func Verify(raw []byte) bool {
	if len(raw) < 2 {
		return false
	}
	crc := crcReset
	for _, b := range raw {
		crc = Step(crc, b)
	}
	return crc == crcGood
}

var crcTable = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()
