package riscv

import "unsafe"

// NumGPR is the number of general-purpose registers, x0..x31.
const NumGPR = 32

// TrapFrame is the architectural state saved on every trap, in the fixed
// order the (notional) assembly entry writes it and the dispatcher reads
// it: all 32 GPRs first, then the four CSRs the dispatcher consults.
// Reordering any field is a silent ABI break, so the layout is pinned below
// with explicit offset assertions rather than trusted to field order alone.
type TrapFrame struct {
	X       [NumGPR]Word
	Sstatus Sstatus
	Sepc    Word
	Stval   Word
	Scause  Cause
}

// Compile-time layout assertions. If a field is reordered or the struct
// grows a gap, one of these array lengths goes negative and the package
// fails to compile.
var (
	_ [unsafe.Offsetof(TrapFrame{}.X) - 0]struct{}
	_ [unsafe.Offsetof(TrapFrame{}.Sstatus) - NumGPR*8]struct{}
	_ [unsafe.Offsetof(TrapFrame{}.Sepc) - (NumGPR*8 + 8)]struct{}
	_ [unsafe.Offsetof(TrapFrame{}.Stval) - (NumGPR*8 + 16)]struct{}
	_ [unsafe.Offsetof(TrapFrame{}.Scause) - (NumGPR*8 + 24)]struct{}
	_ [unsafe.Sizeof(TrapFrame{}) - (NumGPR*8 + 32)]struct{}
	_ [(NumGPR*8 + 32) - unsafe.Sizeof(TrapFrame{})]struct{}
)

// GPR indices used by the calling convention this core relies on.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA7   = 17 // Syscall number, by RISC-V Linux-style convention.
)

// Arg returns the value of argument register n (a0=0, a1=1, a2=2).
func (tf *TrapFrame) Arg(n int) Word { return tf.X[RegA0+n] }

// SetReturn writes the syscall/ecall return value into a0.
func (tf *TrapFrame) SetReturn(v Word) { tf.X[RegA0] = v }

// SyscallID returns the syscall number, conventionally passed in a7/x17.
func (tf *TrapFrame) SyscallID() Word { return tf.X[RegA7] }

// AppendInitialArguments patches x10..x12 so a freshly constructed thread
// sees [a0, a1, a2] as its first three arguments after the trap-return
// epilogue transfers control to its entry point.
func (tf *TrapFrame) AppendInitialArguments(a0, a1, a2 Word) {
	tf.X[RegA0] = a0
	tf.X[RegA1] = a1
	tf.X[RegA2] = a2
}

// NewEntryFrame builds the synthetic trap frame for a thread that has never
// run: stack pointer at top, program counter at entry, and sstatus set so
// that sret lands in priv with interrupts enabled.
func NewEntryFrame(entry, stackTop Word, priv Privilege) TrapFrame {
	var tf TrapFrame

	tf.X[RegSP] = stackTop
	tf.Sepc = entry
	tf.Sstatus = Sstatus(0).WithSPP(priv).WithSPIE(true).WithSIE(false)

	return tf
}
