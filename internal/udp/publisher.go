// Package udp forwards decoded link traffic to a UDP listener as JSON
// datagrams.
package udp

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"thingslink/internal/syncutil"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Message is the datagram envelope. Data holds the kind-specific body.
type Message struct {
	Kind string          `json:"kind"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Frame is the body of a "frame" message.
type Frame struct {
	Link    string `json:"link"`
	Len     int    `json:"len"`
	Payload string `json:"payload"` // hex
}

type Publisher struct {
	dest string

	mu   syncutil.Mutex
	conn udpConn
	now  func() time.Time
}

func NewPublisher(dest string) (*Publisher, error) {
	return newPublisher(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newPublisher(dest string, resolve resolveFunc, dial dialFunc) (*Publisher, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Publisher{
		dest: dest,
		conn: conn,
		now:  time.Now,
	}, nil
}

func (p *Publisher) Dest() string {
	return p.dest
}

// Send writes one raw datagram. Empty payloads are dropped.
func (p *Publisher) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return net.ErrClosed
	}
	_, err := p.conn.Write(payload)
	return err
}

// Publish wraps v in a Message of the given kind and sends it.
func (p *Publisher) Publish(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	msg, err := json.Marshal(Message{Kind: kind, Time: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.Send(msg)
}

// PublishFrame sends a decoded link frame.
func (p *Publisher) PublishFrame(link string, frame []byte) error {
	return p.Publish("frame", Frame{Link: link, Len: len(frame), Payload: hex.EncodeToString(frame)})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
