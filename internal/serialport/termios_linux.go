//go:build linux

package serialport

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var unixSpeeds = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
}

func openTermios(path string, baud int) (_ *os.File, err error) {
	speed, ok := unixSpeeds[baud]
	if !ok {
		return nil, fmt.Errorf("termios %s: no speed constant for %d baud", path, baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("termios %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	attrs, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("termios %s: get attrs: %w", path, err)
	}
	makeRaw(attrs, speed)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, attrs); err != nil {
		return nil, fmt.Errorf("termios %s: set attrs: %w", path, err)
	}

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, errors.New("termios " + path + ": invalid descriptor")
	}
	return f, nil
}

// makeRaw puts attrs into 8N1 with no flow control or line discipline.
// Reads block for the first byte, then return after a 1s gap.
func makeRaw(attrs *unix.Termios, speed uint32) {
	attrs.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	attrs.Oflag &^= unix.OPOST
	attrs.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	attrs.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	attrs.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	attrs.Ispeed, attrs.Ospeed = speed, speed

	attrs.Cc[unix.VMIN] = 1
	attrs.Cc[unix.VTIME] = 10
}
