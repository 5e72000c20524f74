//go:build linux

package pulse

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource delivers edges from actual hardware using the Linux GPIO
// character device. The YF-S201 signal line idles high through the pull-up
// and pulses low-high once per rotor magnet pass; we count rising edges.
type RealSource struct {
	chip *gpiocdev.Chip
	pin  int
	line *gpiocdev.Line
}

// NewRealSource opens the GPIO chip for the given sensor pin. Edge delivery
// does not begin until Start is called.
func NewRealSource(chipName string, pin int) (*RealSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealSource{chip: chip, pin: pin}, nil
}

// Start requests the sensor line with rising-edge detection. The handler runs
// on the gpiocdev event goroutine with the kernel's monotonic event timestamp.
func (s *RealSource) Start(handler EdgeHandler) error {
	line, err := s.chip.RequestLine(s.pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(int64(evt.Timestamp / time.Millisecond))
		}))
	if err != nil {
		return fmt.Errorf("request flow sensor pin %d: %w", s.pin, err)
	}
	s.line = line
	return nil
}

// Close releases the line and chip.
func (s *RealSource) Close() error {
	var errs []error
	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor line: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
