package encoder

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/cjeanneret/StaGo/internal/debug"
)

// LineEncoder decodes an encoder wired to two lines of a GPIO character
// device, driven by kernel edge events.
type LineEncoder struct {
	*Quadrature
	name  string
	a, b  int
	lines *gpiocdev.Lines
}

// OpenLines requests lines a and b on chip (e.g. "gpiochip0") with pull-ups
// and both-edge detection.
func OpenLines(name, chip string, a, b, divisor int) (*LineEncoder, error) {
	e := &LineEncoder{
		Quadrature: NewQuadrature(divisor, false, false),
		name:       name,
		a:          a,
		b:          b,
	}
	lines, err := gpiocdev.RequestLines(chip, []int{a, b},
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("stago-"+name),
		gpiocdev.WithEventHandler(e.handle))
	if err != nil {
		return nil, fmt.Errorf("encoder %s: request lines %d,%d on %s: %w", name, a, b, chip, err)
	}
	e.lines = lines

	values := make([]int, 2)
	if err := lines.Values(values); err != nil {
		lines.Close()
		return nil, fmt.Errorf("encoder %s: read levels: %w", name, err)
	}
	e.Quadrature.Update(values[0] != 0, values[1] != 0)
	e.Quadrature.Reset()
	debug.Verbose("Encoder %s on %s lines A=%d B=%d", name, chip, a, b)
	return e, nil
}

func (e *LineEncoder) handle(evt gpiocdev.LineEvent) {
	level := evt.Type == gpiocdev.LineEventRisingEdge
	switch evt.Offset {
	case e.a:
		e.SetA(level)
	case e.b:
		e.SetB(level)
	}
}

// Close releases the lines.
func (e *LineEncoder) Close() error {
	return e.lines.Close()
}
