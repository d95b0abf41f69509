package nmea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentence_ChecksumOK(t *testing.T) {
	line := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	s, err := ParseSentence(line)
	require.NoError(t, err)
	assert.Equal(t, "GPGGA", s.ID)
	require.Len(t, s.Fields, 15)
	assert.Equal(t, "1", s.Fields[6])
	assert.Equal(t, "08", s.Fields[7])
}

func TestParseSentence_ChecksumMismatch(t *testing.T) {
	good := Format("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	bad := good[:len(good)-2] + "00"
	_, err := ParseSentence(bad)
	require.ErrorIs(t, err, ErrChecksum)

	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0x6A), ce.Computed)
	assert.Equal(t, byte(0x00), ce.Expected)
}

func TestParseSentence_Rejects(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{name: "Empty", line: "", want: ErrNotSentence},
		{name: "DollarOnly", line: "$", want: ErrNotSentence},
		{name: "NoStar", line: "$GPGGA,1,2,3", want: ErrMissingChecksum},
		{name: "ShortChecksum", line: "$GPGGA,1,2,3*4", want: ErrMissingChecksum},
		{name: "NonHex", line: "$GPGGA,1,2,3*ZZ", want: ErrMissingChecksum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSentence(tc.line)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseSentence_AcceptsLineEndings(t *testing.T) {
	s, err := ParseSentence(Format("GPVTG,054.7,T,034.4,M,005.5,N,010.2,K") + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, "GPVTG", s.ID)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$GPGLL,4916.45,N,12311.12,W,225444,A*31", Format("GPGLL,4916.45,N,12311.12,W,225444,A"))
}
