package cmd

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"sv39kernel/internal/cli"
	"sv39kernel/internal/firmware"
	"sv39kernel/internal/kernel"
	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/tty"
	"sv39kernel/internal/userland"
)

// Shell boots the kernel and launches the interactive user shell on the
// console: a raw-mode terminal when one is attached, or standard input
// fed through the UART interrupt path otherwise.
func Shell() cli.Command {
	return new(shell)
}

type shell struct {
	debug   bool
	timeout time.Duration
}

func (shell) Description() string {
	return "boot the kernel into the interactive user shell"
}

func (s shell) Usage(out io.Writer) error {
	var err error
	_, err = fmt.Fprintln(out, `
shell [ -debug ] [ -timeout DURATION ]

Boot the kernel and exec the user shell. Typed lines name installed
programs; the shell execs each one and waits for it to exit. Interrupt
with ^C (or let -timeout expire) to shut down.`)

	return err
}

func (s *shell) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)

	fs.BoolVar(&s.debug, "debug", false, "enable debug logging")
	fs.DurationVar(&s.timeout, "timeout", 0, "shut down after this long (0 = run until ^C)")

	return fs
}

func (s shell) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.debug {
		log.LogLevel.Set(log.Debug)
	} else {
		log.LogLevel.Set(log.Error)
	}

	sbi, cleanup := s.console(ctx, logger)
	defer cleanup()

	k, err := kernel.New(kernel.WithSBI(sbi), kernel.WithLogger(logger))
	if err != nil {
		logger.Error("boot failed", "err", err)
		return 2
	}

	k.Boot(ctx)

	k.InstallProgram(userland.HelloPath, userland.HelloImage(), userland.Hello())

	resolve := func(line string) (riscv.Word, bool) {
		if _, err := k.FS.Lookup(line); err != nil {
			return 0, false
		}

		return k.PathHandle(line), true
	}

	k.InstallProgram(userland.ShellPath, userland.ShellImage(), userland.Shell(resolve))

	if _, err := k.Launch(userland.ShellPath); err != nil {
		logger.Error("launch failed", "err", err)
		return 2
	}

	k.Run(ctx)

	return 0
}

// console picks the SBI backend: a raw-mode terminal when stdin is a TTY,
// or a headless backend bridging os.Stdin/os.Stdout when it is not (a
// pipe, a CI runner).
func (s shell) console(ctx context.Context, logger *log.Logger) (firmware.SBI, func()) {
	term, err := firmware.NewTTYConsole(ctx)
	if err == nil {
		return term, term.Shutdown
	}

	if !errors.Is(err, tty.ErrNoTTY) {
		logger.Warn("terminal setup failed, falling back to headless", "err", err)
	}

	sbi := firmware.NewHeadless().TeeTo(os.Stdout)

	go func() {
		in := bufio.NewReader(os.Stdin)

		for {
			b, err := in.ReadByte()
			if err != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			default:
				sbi.Feed(b)
			}
		}
	}()

	return sbi, func() {}
}
