// Package firmware models the OpenSBI ecall surface this core consumes:
// console_putchar/console_getchar, set_timer, and shutdown. Real firmware
// answers these as SBI calls trapped from supervisor mode; the software
// model exposes them as a small Go interface with two implementations, a
// headless in-memory one for tests and a real-terminal one for interactive
// use, the same "interface plus swappable backend" shape a display driver
// and its device pair take.
package firmware

import (
	"bytes"
	"io"
	"sync"
)

// SBI is the firmware call surface this core depends on: console I/O, the
// next-tick timer, and shutdown.
type SBI interface {
	// ConsolePutChar writes one byte to the console.
	ConsolePutChar(c byte)

	// ConsoleGetChar returns the next available byte and true, or
	// (0, false) if none is waiting, mirroring console_getchar's -1.
	ConsoleGetChar() (byte, bool)

	// SetTimer programs the next supervisor-timer interrupt.
	SetTimer(ticks uint64)

	// Shutdown halts the machine.
	Shutdown()
}

// Headless is an in-memory SBI implementation for tests and non-interactive
// runs: ConsolePutChar appends to a buffer instead of a real terminal, and
// ConsoleGetChar drains a byte queue fed by Feed, standing in for keypresses
// arriving over the real UART.
type Headless struct {
	mut      sync.Mutex
	out      bytes.Buffer
	tee      io.Writer
	in       []byte
	shutdown bool
}

// NewHeadless returns an empty headless SBI.
func NewHeadless() *Headless { return &Headless{} }

// TeeTo streams every byte written via ConsolePutChar to w as well as the
// internal buffer, so non-interactive commands show output as it happens.
func (h *Headless) TeeTo(w io.Writer) *Headless {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.tee = w

	return h
}

func (h *Headless) ConsolePutChar(c byte) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.out.WriteByte(c)

	if h.tee != nil {
		_, _ = h.tee.Write([]byte{c})
	}
}

func (h *Headless) ConsoleGetChar() (byte, bool) {
	h.mut.Lock()
	defer h.mut.Unlock()

	if len(h.in) == 0 {
		return 0, false
	}

	c := h.in[0]
	h.in = h.in[1:]

	return c, true
}

// Feed queues bytes as if they had arrived over the console's receive
// line, for the external-interrupt path to drain.
func (h *Headless) Feed(bs ...byte) {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.in = append(h.in, bs...)
}

// SetTimer is a no-op: the headless backend has no real clock to program,
// and the dispatcher's test harness drives timer ticks explicitly.
func (h *Headless) SetTimer(uint64) {}

func (h *Headless) Shutdown() {
	h.mut.Lock()
	defer h.mut.Unlock()

	h.shutdown = true
}

// ShuttingDown reports whether Shutdown has been called.
func (h *Headless) ShuttingDown() bool {
	h.mut.Lock()
	defer h.mut.Unlock()

	return h.shutdown
}

// Output returns everything written via ConsolePutChar so far.
func (h *Headless) Output() string {
	h.mut.Lock()
	defer h.mut.Unlock()

	return h.out.String()
}
