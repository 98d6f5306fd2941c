// sv39kernel is the command-line interface to a software model of a
// RISC-V supervisor-mode kernel: Sv39 paging, trap dispatch, and a
// round-robin thread scheduler on one HART.
package main

import (
	"context"
	"os"

	"sv39kernel/internal/cli"
	"sv39kernel/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Demo(),
		cmd.Shell(),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
