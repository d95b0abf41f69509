package hdlc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder, p []byte) ([][]byte, []error) {
	t.Helper()
	var frames [][]byte
	var errs []error
	for _, b := range p {
		f, ok, err := d.Process(b)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

func TestDecoder_RoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":    {},
		"single":   {0x42},
		"reserved": {Flag, Escape, XON, XOFF, Special},
		"spinel":   {0x81, 0x02, 0x01},
		"ramp": func() []byte {
			p := make([]byte, 512)
			for i := range p {
				p[i] = byte(i)
			}
			return p
		}(),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			frames, errs := decodeAll(t, NewDecoder(0), Encode(payload))
			require.Empty(t, errs)
			require.Len(t, frames, 1)
			assert.Equal(t, payload, frames[0])
		})
	}
}

func TestDecoder_SharedFlagResync(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}
	b := []byte{Flag, 0x04}
	ea := Encode(a)
	eb := Encode(b)
	stream := append(append([]byte(nil), ea...), eb[1:]...)

	frames, errs := decodeAll(t, NewDecoder(0), stream)
	require.Empty(t, errs)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestDecoder_DiscardsLeadingNoise(t *testing.T) {
	stream := append([]byte{0x01, 0x02, Escape, 0x33}, Encode([]byte{0x09})...)
	frames, errs := decodeAll(t, NewDecoder(0), stream)
	require.Empty(t, errs)
	require.Equal(t, [][]byte{{0x09}}, frames)
}

func TestDecoder_RepeatedFlagsAreSilent(t *testing.T) {
	d := NewDecoder(0)
	frames, errs := decodeAll(t, d, []byte{Flag, Flag, Flag, 0x01, Flag})
	assert.Empty(t, frames)
	assert.Empty(t, errs)
	assert.Equal(t, Started, d.State())
}

func TestDecoder_SingleBitFlipRejected(t *testing.T) {
	payload := []byte{0x10, 0x22, 0x34, 0x46, 0x58, 0x6A}
	enc := Encode(payload)
	for i := 1; i < len(enc)-1; i++ {
		for bit := 0; bit < 8; bit++ {
			flipped := enc[i] ^ (1 << bit)
			if NeedsEscape(enc[i]) || NeedsEscape(flipped) {
				continue
			}
			bad := append([]byte(nil), enc...)
			bad[i] = flipped

			frames, errs := decodeAll(t, NewDecoder(0), bad)
			require.Empty(t, frames, "byte %d bit %d", i, bit)
			require.Len(t, errs, 1, "byte %d bit %d", i, bit)
			var crcErr *CRCError
			require.True(t, errors.As(errs[0], &crcErr))
			assert.NotEqual(t, crcErr.Computed, crcErr.Received)
		}
	}
}

func TestDecoder_GoodFrameAfterGarbage(t *testing.T) {
	bad := Encode([]byte{0x01, 0x02, 0x03})
	bad[2] ^= 0x40
	stream := append(bad, Encode([]byte{0x05})...)

	frames, err := NewDecoder(0).Decode(stream)
	require.ErrorIs(t, err, ErrGarbageFrame)
	require.Equal(t, [][]byte{{0x05}}, frames)
}

func TestDecoder_FlagMidEscapeClosesFrame(t *testing.T) {
	d := NewDecoder(0)
	frames, errs := decodeAll(t, d, []byte{Flag, 0x01, 0x02, 0x03, Escape, Flag})
	assert.Empty(t, frames)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrGarbageFrame)
	assert.Equal(t, Started, d.State())

	frames, errs = decodeAll(t, d, Encode([]byte{0x77})[1:])
	assert.Empty(t, errs)
	assert.Equal(t, [][]byte{{0x77}}, frames)
}

func TestDecoder_ShortFrameDroppedSilently(t *testing.T) {
	frames, errs := decodeAll(t, NewDecoder(0), []byte{Flag, 0x33, Flag})
	assert.Empty(t, frames)
	assert.Empty(t, errs)
}

func TestDecoder_FrameTooLong(t *testing.T) {
	d := NewDecoder(4)
	frames, err := d.Decode(Encode([]byte{1, 2, 3, 4, 5}))
	assert.Empty(t, frames)
	assert.ErrorIs(t, err, ErrFrameTooLong)

	frames, err = d.Decode(Encode([]byte{1, 2, 3, 4}))
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, frames)
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder(0)
	_, _ = d.Decode([]byte{Flag, 0x01, Escape})
	require.Equal(t, Unescaping, d.State())

	d.Reset()
	assert.Equal(t, NotStarted, d.State())
	frames, err := d.Decode([]byte{0x02, 0x03})
	assert.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecoder_FramesAreNotAliased(t *testing.T) {
	d := NewDecoder(0)
	frames, err := d.Decode(append(Encode([]byte{0xAA, 0xBB}), Encode([]byte{0xCC, 0xDD})...))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xAA, 0xBB}, frames[0])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_started", NotStarted.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "unescaping", Unescaping.String())
	assert.Equal(t, "unknown", State(9).String())
}
