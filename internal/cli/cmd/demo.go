package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"sv39kernel/internal/cli"
	"sv39kernel/internal/firmware"
	"sv39kernel/internal/kernel"
	"sv39kernel/internal/log"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	"sv39kernel/internal/syscall"
	"sv39kernel/internal/trap"
)

// Demo is a demonstration command: it boots the kernel and time-slices a
// few kernel threads that write to the console until each has had its say.
func Demo() cli.Command {
	return new(demo)
}

type demo struct {
	debug   bool
	quiet   bool
	threads int
	count   int
}

func (demo) Description() string {
	return "boot the kernel and run the kernel-thread demo"
}

func (d demo) Usage(out io.Writer) error {
	var err error
	_, err = fmt.Fprintln(out, `
demo [ -debug | -quiet ] [ -threads N ] [ -count N ]

Boot the kernel and round-robin N kernel threads, each printing its thread
id COUNT times before exiting.`)

	return err
}

func (d *demo) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)

	fs.BoolVar(&d.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&d.quiet, "quiet", false, "enable quiet output, console display only")
	fs.IntVar(&d.threads, "threads", 3, "number of kernel threads")
	fs.IntVar(&d.count, "count", 10, "lines each thread prints")

	return fs
}

func (d demo) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if d.quiet {
		log.LogLevel.Set(log.Error)
	}

	if d.debug {
		log.LogLevel.Set(log.Debug)
	}

	logger.Info("Initializing machine")

	sbi := firmware.NewHeadless().TeeTo(os.Stdout)

	k, err := kernel.New(kernel.WithSBI(sbi), kernel.WithLogger(logger))
	if err != nil {
		logger.Error("boot failed", "err", err)
		return 2
	}

	k.Boot(ctx)

	var wg sync.WaitGroup

	wg.Add(d.threads)

	for i := 0; i < d.threads; i++ {
		k.SpawnKernel(func(th *sched.Thread) {
			defer wg.Done()

			disp := trap.Current()
			line := fmt.Sprintf("thread %d\n", th.Tid)

			for j := 0; j < d.count; j++ {
				for i := 0; i < len(line); i++ {
					disp.Ecall(syscall.SysWrite, riscv.Word(line[i]), 0, 0)
				}

				sched.Rotate()
			}
		})
	}

	go func() {
		wg.Wait()
		cancel()
	}()

	logger.Info("Starting machine")

	k.Run(ctx)

	logger.Info("Demo completed")

	return 0
}
