// Termtest is a testing tool for Unix terminal I/O. Lacking simple PTY support, running this tool
// manually is easier than writing automated tests: it puts the terminal in raw mode, echoes keys
// the way the kernel console would, and restores the terminal on exit.
package main

import (
	"context"
	"os"
	"time"

	"sv39kernel/internal/log"
	"sv39kernel/internal/tty"
)

var logger = log.DefaultLogger()

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	term, err := tty.Open(os.Stdin, os.Stdout)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	defer term.Restore()

	go term.Run(ctx)

	logger.Info("Polling keyboard. Type keys.")

	_, _ = term.Write([]byte("\r\n"))

	for {
		select {
		case key := <-term.Keys:
			if key == 0x03 { // ^C
				cancel()
				return
			}

			if _, err := term.Write([]byte{key}); err != nil {
				logger.Error(err.Error())
				os.Exit(1)
			}
		case <-ctx.Done():
			logger.Info("Done")
			return
		}
	}
}
