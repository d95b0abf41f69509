//go:build linux

package lowpan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// openResetLine requests BCM GPIO pin as an output held high (reset released)
// via the GPIO character device.
func openResetLine(pin int) (resetLine, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("lowpan: invalid reset gpio %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("thingslink-ncp-reset"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodReset{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("lowpan: gpio line %q not found (or busy)", lineName)
}

type gpiodReset struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodReset) Pulse(d time.Duration) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("lowpan: reset line not initialized")
	}
	if err := g.line.SetValue(0); err != nil {
		return err
	}
	time.Sleep(d)
	return g.line.SetValue(1)
}

func (g *gpiodReset) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
