package gps

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

const (
	gpsdDefaultAddr = "127.0.0.1:2947"

	// gpsdWatchNMEA asks gpsd to relay the receiver's raw sentences instead
	// of its JSON reports, so one decoder serves both sources.
	gpsdWatchNMEA = "?WATCH={\"enable\":true,\"nmea\":true}\n"

	gpsdBackoffMin = 250 * time.Millisecond
	gpsdBackoffMax = 10 * time.Second
)

type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

func nextBackoff(cur time.Duration) time.Duration {
	cur *= 2
	if cur > gpsdBackoffMax {
		return gpsdBackoffMax
	}
	return cur
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}
	dial := s.dial
	if dial == nil {
		dial = dialGPSD
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	base := Snapshot{Enabled: true, Source: "gpsd", GPSDAddr: addr, Device: "gpsd"}
	s.last.Store(base)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("gps enabled source=gpsd addr=%s", addr)

		wait := gpsdBackoffMin
		for childCtx.Err() == nil {
			conn, err := dial(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(wait):
				}
				wait = nextBackoff(wait)
				continue
			}
			wait = gpsdBackoffMin
			s.relayGPSD(childCtx, conn, base)
		}
	}()
	return nil
}

// relayGPSD runs one gpsd session until the connection drops.
func (s *Service) relayGPSD(ctx context.Context, conn net.Conn, base Snapshot) {
	s.mu.Lock()
	// Close() interrupts the blocked read through the closer.
	s.closer = conn
	s.mu.Unlock()
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte(gpsdWatchNMEA)); err != nil {
		s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
		return
	}
	err := s.Run(ctx, conn, base)
	if ctx.Err() == nil {
		s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
	}
}
