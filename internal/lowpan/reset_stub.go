//go:build !linux

package lowpan

import "fmt"

func openResetLine(pin int) (resetLine, error) {
	return nil, fmt.Errorf("lowpan: reset gpio unsupported on this platform")
}
