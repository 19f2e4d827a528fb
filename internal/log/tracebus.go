package log

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/embhost/dwc2hcd/regs"
)

// BusTracer decorates a regs.Bus with a single-line trace of every register
// access, for driver debugging. If writer is nil the underlying bus is
// returned untouched.
func BusTracer(bus regs.Bus, w io.Writer) regs.Bus {
	if w == nil {
		return bus
	}
	return &tracingBus{bus: bus, w: w}
}

// tracingBus implements regs.Bus with thread-safe trace output.
type tracingBus struct {
	bus regs.Bus
	w   io.Writer
	mu  sync.Mutex
}

func (t *tracingBus) Read32(off uint32) uint32 {
	v := t.bus.Read32(off)
	t.line("R", off, v)
	return v
}

func (t *tracingBus) Write32(off uint32, v uint32) {
	t.line("W", off, v)
	t.bus.Write32(off, v)
}

func (t *tracingBus) line(dir string, off, v uint32) {
	line := fmt.Sprintf("%s %s [%#05x] = %#08x\n",
		time.Now().Format("2006/01/02 15:04:05.000000"), dir, off, v)

	t.mu.Lock()
	_, _ = t.w.Write([]byte(line))
	t.mu.Unlock()
}
