package mm

import "sv39kernel/internal/riscv"

// Attr is the protection triple applied to a just-inserted leaf entry: user
// accessibility, read-only-ness, and executability. Every leaf is always
// readable.
type Attr struct {
	User     bool
	Readonly bool
	Execute  bool
}

// Flags translates the attribute triple into Sv39 PTE flag bits: V is
// always set, U mirrors User, W is the negation of Readonly, X mirrors
// Execute, and R is always set.
func (a Attr) Flags() riscv.PTEFlag {
	flags := riscv.FlagV | riscv.FlagR

	if a.User {
		flags |= riscv.FlagU
	}

	if !a.Readonly {
		flags |= riscv.FlagW
	}

	if a.Execute {
		flags |= riscv.FlagX
	}

	return flags
}

// Kernel preamble attribute presets.
var (
	AttrKernelText = Attr{User: false, Readonly: true, Execute: true}
	AttrKernelRO   = Attr{User: false, Readonly: true, Execute: false}
	AttrKernelRW   = Attr{User: false, Readonly: false, Execute: false}
	AttrUserRW     = Attr{User: true, Readonly: false, Execute: false}
	AttrUserRX     = Attr{User: true, Readonly: true, Execute: true}
)
