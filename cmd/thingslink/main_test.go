package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thingslink/internal/capture"
	"thingslink/internal/config"
	"thingslink/internal/gps"
	"thingslink/internal/hdlc"
	"thingslink/internal/serialport"
	"thingslink/internal/spinel"
	"thingslink/internal/web"
)

type fakePublisher struct {
	mu     sync.Mutex
	frames [][]byte
	kinds  []string
}

func (p *fakePublisher) Publish(kind string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return nil
}

func (p *fakePublisher) PublishFrame(link string, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, append([]byte(nil), frame...))
	p.kinds = append(p.kinds, "frame")
	return nil
}

func (p *fakePublisher) frameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

const gpsStream = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n" +
	"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"

func mustSpinel(t *testing.T, f spinel.Frame) []byte {
	t.Helper()
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	return b
}

// writeCapture writes data as a capture log, split into chunks of size n,
// all at t=0 so replay never sleeps.
func writeCapture(t *testing.T, data []byte, n int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("START\n")
	for len(data) > 0 {
		k := n
		if k > len(data) {
			k = len(data)
		}
		sb.WriteString("0," + hex.EncodeToString(data[:k]) + "\n")
		data = data[k:]
	}
	path := filepath.Join(t.TempDir(), "link.cap")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestRunReplay_LowpanFrames(t *testing.T) {
	status := spinel.Frame{Header: spinel.Header{TID: 1}, Command: spinel.CmdPropValueIs, Payload: []byte{0x00, 0x00}}
	var stream []byte
	stream = hdlc.AppendEncoded(stream, mustSpinel(t, status))
	stream = append(stream, 0x7E, 0x01, 0x02, 0x03, 0x04) // garbage, closed by next flag
	stream = hdlc.AppendEncoded(stream, mustSpinel(t, spinel.PropGet(spinel.Header{TID: 2}, spinel.PropNCPVersion)))

	cfg := config.Config{
		Lowpan: config.LowpanConfig{MaxFrame: 1300},
		Replay: config.ReplayConfig{Enable: true, Path: writeCapture(t, stream, 3), Speed: 1, Link: config.LinkLowpan},
	}
	pub := &fakePublisher{}
	h := &frameHandler{pub: pub}

	res, err := runReplay(context.Background(), cfg, nil, h)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, 1, res.Errors)
	require.Equal(t, 2, pub.frameCount())
	assert.Equal(t, mustSpinel(t, status), pub.frames[0])
}

func TestRunReplay_GPSSnapshots(t *testing.T) {
	cfg := config.Config{
		Replay: config.ReplayConfig{Enable: true, Path: writeCapture(t, []byte(gpsStream), 17), Speed: 1, Link: config.LinkGPS},
	}
	pub := &fakePublisher{}
	h := &frameHandler{pub: pub}

	res, err := runReplay(context.Background(), cfg, nil, h)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, 0, res.Errors)

	h.mu.Lock()
	last := h.last
	h.mu.Unlock()
	assert.True(t, last.Valid)
	assert.Equal(t, "replay", last.Source)
	require.NotNil(t, last.Satellites)
	assert.Equal(t, 8, *last.Satellites)
	assert.Contains(t, pub.kinds, "gps")
}

func TestRunReplay_MissingFile(t *testing.T) {
	cfg := config.Config{Replay: config.ReplayConfig{Enable: true, Path: filepath.Join(t.TempDir(), "nope.cap"), Speed: 1}}
	_, err := runReplay(context.Background(), cfg, nil, &frameHandler{})
	require.Error(t, err)
}

func TestRunReplay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.Config{Replay: config.ReplayConfig{Enable: true, Path: writeCapture(t, []byte(gpsStream), 8), Speed: 1, Link: config.LinkLowpan}}
	_, err := runReplay(ctx, cfg, nil, &frameHandler{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarizeCapture_Lowpan(t *testing.T) {
	var stream []byte
	stream = hdlc.AppendEncoded(stream, mustSpinel(t, spinel.Reset(spinel.Header{})))
	stream = hdlc.AppendEncoded(stream, mustSpinel(t, spinel.PropGet(spinel.Header{}, spinel.PropProtocolVersion)))
	stream = hdlc.AppendEncoded(stream, []byte{0x00, 0x01}) // not spinel
	bad := hdlc.Encode([]byte{0x81, 0x02, 0x01})
	bad[2] ^= 0x01
	stream = append(stream, bad...)

	recs := []capture.Record{
		{},
		{At: 0, Chunk: stream[:5]},
		{At: 200 * time.Millisecond, Chunk: stream[5:]},
		{},
		{At: time.Second, Chunk: []byte{0x7E}},
	}
	s, err := summarizeCapture(recs, config.LinkLowpan)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 3, s.Chunks)
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, time.Second, s.MaxDuration)
	assert.Equal(t, 1, s.Kinds["cmd 0x01"])
	assert.Equal(t, 1, s.Kinds["cmd 0x02"])
	assert.Equal(t, 1, s.Kinds["non-spinel"])
}

func TestSummarizeCapture_GPS(t *testing.T) {
	data := []byte(gpsStream + "$GPGGA,bad*00\r\n")
	recs := []capture.Record{{At: 0, Chunk: data[:40]}, {At: time.Second, Chunk: data[40:]}}
	s, err := summarizeCapture(recs, config.LinkGPS)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Segments)
	assert.Equal(t, 2, s.Frames)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 1, s.Kinds["GPRMC"])
	assert.Equal(t, 1, s.Kinds["GPGGA"])
}

func TestSummarizeCapture_UnknownLink(t *testing.T) {
	_, err := summarizeCapture(nil, "can")
	require.Error(t, err)
}

func TestPrintCaptureSummary(t *testing.T) {
	path := writeCapture(t, []byte(gpsStream), 64)
	var out bytes.Buffer
	require.NoError(t, printCaptureSummary(&out, path, "GPS"))
	assert.Contains(t, out.String(), "link: gps\n")
	assert.Contains(t, out.String(), "frames: 2\n")
	assert.Contains(t, out.String(), "  GPRMC: 1\n")

	require.Error(t, printCaptureSummary(&out, "  ", "gps"))
}

func TestRunLive_NothingEnabled(t *testing.T) {
	err := runLive(context.Background(), config.Config{}, &frameHandler{}, nil)
	require.Error(t, err)
}

func TestRunLive_LowpanFramesAndCapture(t *testing.T) {
	host, ncp := net.Pipe()
	defer ncp.Close()

	var gotCfg serialport.Config
	open := func(c serialport.Config) (io.ReadWriteCloser, string, error) {
		gotCfg = c
		return host, c.Device, nil
	}

	capPath := filepath.Join(t.TempDir(), "lowpan.cap")
	cfg := config.Config{
		Lowpan: config.LowpanConfig{
			Enable: true, Device: "/dev/ttyACM1", Baud: 115200, Backend: "portable",
			ReconnectMin: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond, MaxFrame: 1300,
		},
		Capture: config.CaptureConfig{Enable: true, Path: capPath, Link: config.LinkLowpan},
	}
	pub := &fakePublisher{}
	h := &frameHandler{pub: pub, status: web.NewStatus()}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runLive(ctx, cfg, h, open) }()

	frame := hdlc.Encode(mustSpinel(t, spinel.Frame{Header: spinel.Header{TID: 1}, Command: spinel.CmdPropValueIs, Payload: []byte{0x02, 0x41}}))
	_, err := ncp.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return pub.frameCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("runLive did not stop")
	}

	snap := h.status.Snapshot(time.Time{})
	assert.Equal(t, uint64(1), snap.Frames)
	assert.Equal(t, uint64(1), snap.Published)
	require.NotNil(t, snap.Lowpan)
	assert.Equal(t, uint64(1), snap.Lowpan.Frames)

	assert.Equal(t, "/dev/ttyACM1", gotCfg.Device)
	assert.Equal(t, 115200, gotCfg.Baud)

	recs, err := capture.ReadFile(capPath)
	require.NoError(t, err)
	var captured []byte
	for _, r := range recs {
		captured = append(captured, r.Chunk...)
	}
	assert.Equal(t, frame, captured)
}

func TestFrameHandler_GPSSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	h := &frameHandler{pub: pub}
	h.gpsSnapshot(gps.Snapshot{Enabled: true, Valid: true})
	assert.Equal(t, []string{"gps"}, pub.kinds)
	assert.Equal(t, uint64(1), h.snapshots)
}
