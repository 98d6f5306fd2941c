// Package kernel assembles the subsystems into a bootable machine: frame
// allocator, kernel address space, trap dispatcher, timer, thread pool,
// and processor, wired in the order a real boot sequence would bring them
// up. The zero configuration boots a headless machine suitable for tests;
// options swap in a real terminal console or resize the memory and pool.
package kernel

import (
	"context"
	"fmt"

	"sv39kernel/internal/firmware"
	"sv39kernel/internal/fs"
	"sv39kernel/internal/log"
	"sv39kernel/internal/mm"
	"sv39kernel/internal/riscv"
	"sv39kernel/internal/sched"
	"sv39kernel/internal/syscall"
	"sv39kernel/internal/trap"
)

// The virtual platform's memory map: the kernel image is loaded at
// KernelBeginPaddr and linked at KernelBeginVaddr; physical memory runs to
// PhysicalMemoryEnd. UART0 sits at 0x1000_0000 and the PLIC at
// 0x0c00_0000, but only the bring-up sequence ever names them.
const (
	KernelBeginPaddr  = riscv.PA(0x8020_0000)
	KernelBeginVaddr  = riscv.VA(0xffff_ffff_8020_0000)
	PhysicalMemoryEnd = riscv.PA(0x8800_0000)
)

// DefaultPoolCapacity bounds how many threads may be live at once.
const DefaultPoolCapacity = 64

// DefaultLayout is the section layout the link script of the virtual
// platform would provide via its stext/etext/... symbols.
var DefaultLayout = mm.KernelLayout{
	KernelBeginPaddr: KernelBeginPaddr,
	KernelBeginVaddr: KernelBeginVaddr,
	PhysMemEnd:       PhysicalMemoryEnd,

	Stext:   0xffff_ffff_8020_0000,
	Etext:   0xffff_ffff_8021_0000,
	Srodata: 0xffff_ffff_8021_0000,
	Erodata: 0xffff_ffff_8021_2000,
	Sdata:   0xffff_ffff_8021_2000,
	Edata:   0xffff_ffff_8021_4000,
	Sbss:    0xffff_ffff_8021_4000,
	Ebss:    0xffff_ffff_8021_6000,
	End:     0xffff_ffff_8021_6000,
}

type config struct {
	sbi          firmware.SBI
	layout       mm.KernelLayout
	frameBase    riscv.PPN
	frameLimit   riscv.PPN
	quantum      int
	poolCapacity int
	tickInterval uint64
	logger       *log.Logger
}

// OptionFn configures a Kernel under construction.
type OptionFn func(*config)

// WithSBI selects the firmware backend answering console and timer calls.
func WithSBI(sbi firmware.SBI) OptionFn {
	return func(c *config) { c.sbi = sbi }
}

// WithLayout overrides the kernel section layout.
func WithLayout(kl mm.KernelLayout) OptionFn {
	return func(c *config) { c.layout = kl }
}

// WithFrameRange overrides the allocatable PPN range [l, r).
func WithFrameRange(l, r riscv.PPN) OptionFn {
	return func(c *config) { c.frameBase, c.frameLimit = l, r }
}

// WithQuantum sets the scheduler's ticks-per-slice.
func WithQuantum(q int) OptionFn {
	return func(c *config) { c.quantum = q }
}

// WithPoolCapacity sets the thread table's slot count.
func WithPoolCapacity(n int) OptionFn {
	return func(c *config) { c.poolCapacity = n }
}

// WithTickInterval overrides how far ahead set_timer programs each next
// supervisor-timer fire.
func WithTickInterval(ticks uint64) OptionFn {
	return func(c *config) { c.tickInterval = ticks }
}

// WithLogger overrides the kernel's logger.
func WithLogger(l *log.Logger) OptionFn {
	return func(c *config) { c.logger = l }
}

// Kernel owns one fully wired machine. Fields are exported so commands and
// tests can reach individual subsystems; construction order and boot
// sequencing stay in New and Boot.
type Kernel struct {
	SBI        firmware.SBI
	Timer      *firmware.Timer
	Stdin      *firmware.Stdin
	Alloc      *mm.FrameAllocator
	Layout     mm.KernelLayout
	Space      *mm.MemorySet // The kernel's own address space.
	FS         *fs.MemFS
	Programs   *syscall.Programs
	Paths      *syscall.Paths
	Pool       *sched.Pool
	Proc       *sched.Processor
	Dispatcher *trap.Dispatcher

	deps *syscall.Deps
	log  *log.Logger
}

// New constructs, but does not boot, a kernel. The default machine is
// headless with the full physical memory window and a 64-slot pool.
func New(opts ...OptionFn) (*Kernel, error) {
	cfg := config{
		layout:       DefaultLayout,
		quantum:      sched.DefaultQuantum,
		poolCapacity: DefaultPoolCapacity,
		logger:       log.Sub("kernel"),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.sbi == nil {
		cfg.sbi = firmware.NewHeadless()
	}

	if cfg.frameLimit == 0 {
		// Everything between the end of the kernel image and the top of
		// physical memory is allocatable.
		endPaddr := uint64(cfg.layout.End) - cfg.layout.KernelOffset()
		cfg.frameBase = riscv.PPN(endPaddr >> riscv.PageShift)
		cfg.frameLimit = riscv.PA(cfg.layout.PhysMemEnd).PPN()
	}

	alloc := mm.NewFrameAllocator(cfg.frameBase, cfg.frameLimit)

	space, err := mm.NewMemorySet(alloc, cfg.layout)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	stdin := firmware.NewStdin()
	timer := firmware.NewTimer(cfg.sbi, cfg.tickInterval)

	k := &Kernel{
		SBI:      cfg.sbi,
		Timer:    timer,
		Stdin:    stdin,
		Alloc:    alloc,
		Layout:   cfg.layout,
		Space:    space,
		FS:       fs.NewMemFS(),
		Programs: syscall.NewPrograms(),
		Paths:    syscall.NewPaths(),
		log:      cfg.logger,
	}

	k.deps = &syscall.Deps{
		SBI:          k.SBI,
		Stdin:        k.Stdin,
		FS:           k.FS,
		Alloc:        k.Alloc,
		KernelLayout: k.Layout,
		Paths:        k.Paths,
		Programs:     k.Programs,
	}

	k.Dispatcher = trap.New(k.SBI, k.Timer, k.deps)

	scheduler := sched.NewScheduler(cfg.quantum)
	k.Pool = sched.NewPool(cfg.poolCapacity, scheduler)
	k.Proc = sched.NewProcessor(k.Pool)

	return k, nil
}

// Boot brings the machine up in the order the real entry point would:
// install the process-wide singletons, activate the kernel address space,
// arm the trap machinery, and start the interrupt sources. ctx bounds the
// timer and console goroutines.
func (k *Kernel) Boot(ctx context.Context) {
	trap.Install(k.Dispatcher)
	sched.InstallProcessor(k.Proc)

	k.Space.Activate()
	k.Dispatcher.Boot()
	k.Dispatcher.RunTimer(ctx)
	k.Dispatcher.RunExternal(ctx)

	l, r := k.Alloc.Range()
	k.log.Info("BOOT", "frames", fmt.Sprintf("[%#x,%#x)", l, r))
}

// Run transfers the HART from the boot thread to the idle dispatch loop.
// It returns only when ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) {
	k.Proc.Run(ctx)
	k.log.Info("HALT", "ticks", k.Timer.Ticks())
}

// SpawnKernel admits a kernel thread running body in the kernel address
// space and returns its tid.
func (k *Kernel) SpawnKernel(body sched.Body) int {
	th := sched.NewKernelThread(body, k.Space.Token())
	return k.Pool.Add(th)
}

// InstallProgram registers a user program: its ELF image in the
// filesystem, its body in the program registry, and its path in the handle
// table. The returned handle is what a thread passes as SYS_EXEC's a0.
func (k *Kernel) InstallProgram(path string, image []byte, body sched.Body) riscv.Word {
	k.FS.Add(path, image)
	k.Programs.Register(path, body)

	return k.Paths.Register(path)
}

// PathHandle returns the SYS_EXEC handle for an installed path.
func (k *Kernel) PathHandle(path string) riscv.Word {
	return k.Paths.Register(path)
}

// Launch builds and admits the initial user thread for an installed
// program, the way the boot sequence starts the first shell: an exec with
// no parent to wake.
func (k *Kernel) Launch(path string) (int, error) {
	th, err := syscall.BuildUserThread(k.deps, path)
	if err != nil {
		return 0, err
	}

	return k.Pool.Add(th), nil
}
