package udp

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

var fixedNow = time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

func newFakePublisher(fc *fakeConn) *Publisher {
	return &Publisher{
		dest: "x",
		conn: fc,
		now:  func() time.Time { return fixedNow },
	}
}

func TestNewPublisher_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	p, err := newPublisher("127.0.0.1:4000", resolve, dial)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "udp", gotNetwork)
	require.NotNil(t, gotRaddr)
	assert.Equal(t, 4000, gotRaddr.Port)
	assert.True(t, gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)), "ip=%v", gotRaddr.IP)
	assert.Equal(t, "127.0.0.1:4000", p.Dest())
}

func TestNewPublisher_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newPublisher("bad:addr", resolve, dial)
	assert.ErrorIs(t, err, resolveErr)
}

func TestNewPublisher_DialFailure(t *testing.T) {
	dialErr := errors.New("unreachable")
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return nil, dialErr
	}
	_, err := newPublisher("127.0.0.1:4000", net.ResolveUDPAddr, dial)
	assert.ErrorIs(t, err, dialErr)
}

func TestPublisher_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	p := newFakePublisher(fc)

	require.NoError(t, p.Send(nil))
	require.NoError(t, p.Send([]byte{}))
	assert.Zero(t, fc.writeHits)
}

func TestPublisher_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	p := newFakePublisher(&fakeConn{writeErr: wantErr})

	assert.ErrorIs(t, p.Send([]byte{0x01}), wantErr)
}

func TestPublisher_PublishFrame(t *testing.T) {
	fc := &fakeConn{}
	p := newFakePublisher(fc)

	require.NoError(t, p.PublishFrame("lowpan", []byte{0x81, 0x06, 0x00, 0x7E}))
	require.Len(t, fc.writes, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(fc.writes[0], &msg))
	assert.Equal(t, "frame", msg.Kind)
	assert.True(t, msg.Time.Equal(fixedNow), "time=%v", msg.Time)

	var f Frame
	require.NoError(t, json.Unmarshal(msg.Data, &f))
	assert.Equal(t, "lowpan", f.Link)
	assert.Equal(t, 4, f.Len)
	assert.Equal(t, "8106007e", f.Payload)
}

func TestPublisher_PublishMarshalError(t *testing.T) {
	fc := &fakeConn{}
	p := newFakePublisher(fc)
	assert.Error(t, p.Publish("bad", make(chan int)))
	assert.Zero(t, fc.writeHits)
}

func TestPublisher_CloseThenSend(t *testing.T) {
	fc := &fakeConn{}
	p := newFakePublisher(fc)
	require.NoError(t, p.Close())
	assert.True(t, fc.closed)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Send([]byte{1}), net.ErrClosed)
}
