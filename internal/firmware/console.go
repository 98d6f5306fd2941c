package firmware

import (
	"context"
	"os"

	"sv39kernel/internal/tty"
)

// TTYConsole is the real-terminal OpenSBI console backend: console_putchar
// writes straight to the terminal, console_getchar drains the raw-mode
// key channel non-blockingly, built on tty.Terminal (internal/tty/tty.go)
// using x/term and x/sys/unix for raw-mode plumbing.
type TTYConsole struct {
	term *tty.Terminal
}

// NewTTYConsole opens the process's standard streams as a raw-mode
// terminal. It returns tty.ErrNoTTY if stdin is not a terminal, in which
// case callers should fall back to Headless.
func NewTTYConsole(ctx context.Context) (*TTYConsole, error) {
	term, err := tty.Open(os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}

	go term.Run(ctx)

	return &TTYConsole{term: term}, nil
}

func (c *TTYConsole) ConsolePutChar(b byte) {
	_, _ = c.term.Write([]byte{b})
}

func (c *TTYConsole) ConsoleGetChar() (byte, bool) {
	select {
	case b := <-c.term.Keys:
		return b, true
	default:
		return 0, false
	}
}

// SetTimer is a no-op: a real HART's timer is independent of the console;
// TTYConsole only ever serves as the console half of the SBI surface, used
// alongside a Timer constructed separately.
func (c *TTYConsole) SetTimer(uint64) {}

func (c *TTYConsole) Shutdown() {
	c.term.Restore()
}
