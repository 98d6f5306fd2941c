// Package tty_test tries to test ttys.
//
// The test is skipped when stdin is not a terminal (ErrNoTTY). Notably, this includes when run with
// "go test" because it redirects tests' standard input/output streams. You can test it by building
// a test binary and running it directly:
//
//	$ go test -c && ./tty.test
package tty_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"sv39kernel/internal/tty"
)

const timeout = 100 * time.Millisecond

func TestTerminal(t *testing.T) {
	term, err := tty.Open(os.Stdin, os.Stdout)
	if errors.Is(err, tty.ErrNoTTY) {
		t.Skipf("skipped: %s", err)
	} else if err != nil {
		t.Fatal(err)
	}

	defer term.Restore()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	go term.Run(ctx)

	if _, err := term.Write([]byte("\r\n⍝\r\n")); err != nil {
		t.Errorf("write: %s", err)
	}

	select {
	case key := <-term.Keys:
		t.Logf("key: %q", key)
	case <-ctx.Done(): // No key pressed; reading is best-effort here.
	}
}
