package hdlc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// Run with: go test -fuzz=FuzzDecoder -fuzztime=30s ./internal/hdlc/

func FuzzDecoder(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{Flag})
	f.Add([]byte{Flag, Escape, Flag})
	f.Add(Encode([]byte{0x81, 0x02, 0x01}))
	f.Add([]byte{Escape, Escape, Flag, 0x00, 0x00, Flag})

	f.Fuzz(func(t *testing.T, stream []byte) {
		d := NewDecoder(64)
		frames, _ := d.Decode(stream)
		for _, fr := range frames {
			require.LessOrEqual(t, len(fr), 64)
		}
	})
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{Flag, Escape, XON, XOFF, Special})
	f.Add([]byte("hello"))

	f.Fuzz(func(t *testing.T, payload []byte) {
		enc := Encode(payload)
		for _, b := range enc[1 : len(enc)-1] {
			require.NotEqual(t, byte(Flag), b, "flag inside encoded frame: % X", enc)
		}
		frames, err := NewDecoder(0).Decode(enc)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.True(t, bytes.Equal(frames[0], payload), "got %x want %x", frames[0], payload)
	})
}
