// Package tty provides raw-mode Unix terminal I/O for the real-terminal
// OpenSBI console backend. It has no notion of the kernel's devices; it
// only offers a byte-in/byte-out terminal, the way tty(4)/termios(4)
// describe the boundary.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is a raw-mode terminal: bytes typed by the user arrive on Keys,
// and Write sends bytes straight to the screen with no line buffering or
// echo, using the same non-blocking-then-blocking VMIN/VTIME dance a
// keyboard/display device pair relies on.
type Terminal struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State

	Keys chan byte
}

// ErrNoTTY is returned if standard input is not a terminal. In this case,
// asynchronous I/O is not supported and callers should fall back to a
// headless backend.
var ErrNoTTY error = errors.New("console: not a TTY")

// Open puts sin into raw mode and returns a Terminal reading keys from sin
// and writing output to sout. Callers must call Restore to return the
// terminal to its initial state.
func Open(sin, sout *os.File) (*Terminal, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	t := &Terminal{
		fd:    fd,
		in:    sin,
		out:   term.NewTerminal(sout, ""),
		state: saved,
		Keys:  make(chan byte, 1),
	}

	if err := t.setTerminalParams(1, 0); err != nil {
		return nil, err
	}

	return t, nil
}

// Write sends bytes straight to the terminal.
func (t *Terminal) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

// Restore returns the terminal to its initial state and unblocks any
// in-progress read.
func (t *Terminal) Restore() {
	_ = os.Stdin.SetReadDeadline(time.Now())
	_ = term.Restore(t.fd, t.state)
}

func (t *Terminal) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(t.fd, true)

	termIO, err := unix.IoctlGetTermios(t.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(t.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = os.Stdin.SetReadDeadline(time.Time{})

	return nil
}

// Run reads bytes from the terminal and publishes them on Keys until ctx
// is cancelled or a read fails.
func (t *Terminal) Run(ctx context.Context) {
	buf := bufio.NewReader(t.in)

	_ = syscall.SetNonblock(t.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case t.Keys <- b:
		}
	}
}

var _ io.Writer = (*Terminal)(nil)
