// Package serialport opens the UART devices behind the GPS receiver and the
// lowpan NCP.
//
// Two backends exist: "portable" uses go.bug.st/serial and works everywhere
// it does; "termios" configures the tty directly through x/sys/unix and is
// Linux only.
package serialport

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	BackendPortable = "portable"
	BackendTermios  = "termios"
)

type Config struct {
	Device  string
	Baud    int
	Backend string
	// ReadTimeout bounds a single Read on the portable backend. Zero blocks
	// until data arrives or the port is closed.
	ReadTimeout time.Duration
}

// Open opens cfg.Device in 8N1 raw mode. An empty Device is auto-detected.
func Open(cfg Config) (io.ReadWriteCloser, string, error) {
	device := strings.TrimSpace(cfg.Device)
	if device == "" {
		device = AutoDetect()
		if device == "" {
			return nil, "", fmt.Errorf("serial auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	if cfg.Baud <= 0 {
		return nil, device, fmt.Errorf("serial %s: invalid baud %d", device, cfg.Baud)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendPortable:
		p, err := openPortable(device, cfg.Baud, cfg.ReadTimeout)
		return p, device, err
	case BackendTermios:
		f, err := openTermios(device, cfg.Baud)
		if err != nil {
			return nil, device, err
		}
		return f, device, nil
	default:
		return nil, device, fmt.Errorf("serial %s: unknown backend %q", device, cfg.Backend)
	}
}

func openPortable(device string, baud int, timeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	if timeout > 0 {
		if err := port.SetReadTimeout(timeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", device, err)
		}
	}
	return port, nil
}

// AutoDetect returns the first USB CDC/serial adapter found, or "".
func AutoDetect() string {
	return autoDetect(serial.GetPortsList, func(p string) error {
		_, err := os.Stat(p)
		return err
	})
}

var detectPrefixes = []string{"/dev/ttyACM", "/dev/ttyUSB"}

func autoDetect(list func() ([]string, error), stat func(string) error) string {
	if ports, err := list(); err == nil {
		for _, prefix := range detectPrefixes {
			for _, p := range ports {
				if strings.HasPrefix(p, prefix) {
					return p
				}
			}
		}
	}
	// Enumeration can miss ports on minimal images; probe the usual names.
	for _, prefix := range detectPrefixes {
		for i := 0; i < 10; i++ {
			p := fmt.Sprintf("%s%d", prefix, i)
			if stat(p) == nil {
				return p
			}
		}
	}
	return ""
}
