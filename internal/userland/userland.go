// Package userland holds the example user programs the commands and tests
// exec: a hello-world and an interactive shell. Each program is a pair of
// an ELF image (installed in the filesystem and fully parsed and mapped at
// exec time) and a registered body, the closure that stands in for the
// image's machine code once the loader has built its address space.
package userland

import (
	"sv39kernel/internal/elf"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	"sv39kernel/internal/syscall"
	"sv39kernel/internal/trap"
)

// Paths the programs are installed under, matching the layout of the
// original user image.
const (
	HelloPath = "rust/hello_world"
	ShellPath = "rust/user_shell"
)

// User-space link addresses for the synthesized images.
const (
	codeBase = 0x0001_0000
	dataBase = 0x0002_0000
)

// image builds a two-segment ELF64 executable: an R|X code segment at
// codeBase whose bytes are the given marker, and an R|W data segment at
// dataBase with a zero-filled BSS tail (Memsz past Filesz), exercising
// both protection translation and the loader's zero-fill path.
func image(marker string) []byte {
	return elf.Encode(&elf.File{
		Entry: codeBase,
		Segments: []elf.Segment{
			{
				Vaddr: codeBase,
				Memsz: riscv.PageSize,
				Flags: elf.PFRead | elf.PFExecute,
				Data:  []byte(marker),
			},
			{
				Vaddr: dataBase,
				Memsz: 2 * riscv.PageSize,
				Flags: elf.PFRead | elf.PFWrite,
				Data:  []byte{1, 2, 3, 4},
			},
		},
	})
}

// HelloImage returns the hello-world ELF image.
func HelloImage() []byte { return image("hello_world") }

// ShellImage returns the shell ELF image.
func ShellImage() []byte { return image("user_shell") }

// puts writes s one byte at a time through SYS_WRITE, the way a user
// program with no buffered runtime would.
func puts(d *trap.Dispatcher, s string) {
	for i := 0; i < len(s); i++ {
		d.Ecall(syscall.SysWrite, riscv.Word(s[i]), 0, 0)
	}
}

// getchar blocks in SYS_READ for one byte of console input.
func getchar(d *trap.Dispatcher) byte {
	_, tf := d.Ecall(syscall.SysRead, 0, 0, 0)
	return byte(tf.Arg(1))
}

// Hello is the hello-world body: write "OK\n", then exit cleanly.
func Hello() sched.Body {
	return func(*sched.Thread) {
		d := trap.Current()

		puts(d, "OK\n")
		d.Ecall(syscall.SysExit, 0, 0, 0)
	}
}

// Shell is the interactive shell body: echo typed characters, and on
// newline exec the typed path. resolve maps a typed line to the SYS_EXEC
// handle of an installed program; an unresolvable line is reported and
// dropped. The exec sets this thread as the child's wait parent, so the
// shell sleeps until the child exits and then prints the next prompt.
func Shell(resolve func(string) (riscv.Word, bool)) sched.Body {
	return func(*sched.Thread) {
		d := trap.Current()

		puts(d, ">> ")

		var line []byte

		for {
			c := getchar(d)

			switch c {
			case '\n':
				puts(d, "\n")

				if len(line) > 0 {
					if h, ok := resolve(string(line)); ok {
						d.Ecall(syscall.SysExec, h, 0, 0)
					} else {
						puts(d, "command not found: "+string(line)+"\n")
					}

					line = line[:0]
				}

				puts(d, ">> ")
			case 0x7f, '\b':
				if len(line) > 0 {
					line = line[:len(line)-1]
					puts(d, "\b \b")
				}
			default:
				line = append(line, c)
				d.Ecall(syscall.SysWrite, riscv.Word(c), 0, 0)
			}
		}
	}
}
