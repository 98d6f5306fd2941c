// Package elf parses the ELF64 executables SYS_EXEC loads: the header and
// program-header table only, just enough to discover LOAD segments and
// the entry point. Section headers, symbol tables, and relocations are
// out of scope; only segments mapped at their requested virtual addresses
// matter to this core.
package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidELF is returned for a bad magic, non-Executable type, or a
// malformed segment. It is fatal only to the user-thread construction
// that discovered it; SYS_EXEC turns it into a recoverable "returns 0"
// result rather than propagating.
var ErrInvalidELF = errors.New("elf: invalid")

var magic = [4]byte{0x7f, 'E', 'L', 'F'}

const (
	classELF64     = 2
	dataLSB        = 1
	typeExec       = 2
	machineRISCV64 = 0xf3
)

// ProgramFlag mirrors the ELF PF_* segment permission bits.
type ProgramFlag uint32

const (
	PFExecute ProgramFlag = 1 << 0
	PFWrite   ProgramFlag = 1 << 1
	PFRead    ProgramFlag = 1 << 2
)

const ptLoad = 1

// Segment is one PT_LOAD program header: a contiguous range of the file
// to be mapped at Vaddr, with Memsz possibly larger than Filesz (the tail
// is zero-filled, same as MemorySet.Push's data-shorter-than-range case).
type Segment struct {
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Flags  ProgramFlag
	Data   []byte // Filesz bytes, sliced from the image; never nil.
}

// File is the parsed subset of an ELF64 executable this core needs.
type File struct {
	Entry    uint64
	Segments []Segment
}

type header64 struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type progHeader64 struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Parse reads an ELF64, little-endian, Executable-type image and returns
// its entry point and LOAD segments. Anything else (bad magic, a non-64
// bit class, a non-Executable type, a program header that runs past the
// end of the image) is ErrInvalidELF.
func Parse(image []byte) (*File, error) {
	r := bytes.NewReader(image)

	var hdr header64

	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: short header: %w", ErrInvalidELF, err)
	}

	if hdr.Ident[0] != magic[0] || hdr.Ident[1] != magic[1] ||
		hdr.Ident[2] != magic[2] || hdr.Ident[3] != magic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidELF)
	}

	if hdr.Ident[4] != classELF64 {
		return nil, fmt.Errorf("%w: not ELF64", ErrInvalidELF)
	}

	if hdr.Ident[5] != dataLSB {
		return nil, fmt.Errorf("%w: not little-endian", ErrInvalidELF)
	}

	if hdr.Type != typeExec {
		return nil, fmt.Errorf("%w: not an executable (type %d)", ErrInvalidELF, hdr.Type)
	}

	f := &File{Entry: hdr.Entry}

	for i := 0; i < int(hdr.Phnum); i++ {
		off := int64(hdr.Phoff) + int64(i)*int64(hdr.Phentsize)
		if off < 0 || off+56 > int64(len(image)) {
			return nil, fmt.Errorf("%w: program header %d out of range", ErrInvalidELF, i)
		}

		var ph progHeader64
		pr := bytes.NewReader(image[off:])

		if err := binary.Read(pr, binary.LittleEndian, &ph); err != nil {
			return nil, fmt.Errorf("%w: program header %d: %w", ErrInvalidELF, i, err)
		}

		if ph.Type != ptLoad {
			continue
		}

		end := ph.Offset + ph.Filesz
		if end < ph.Offset || end > uint64(len(image)) {
			return nil, fmt.Errorf("%w: segment %d runs past end of image", ErrInvalidELF, i)
		}

		if ph.Memsz < ph.Filesz {
			return nil, fmt.Errorf("%w: segment %d memsz < filesz", ErrInvalidELF, i)
		}

		f.Segments = append(f.Segments, Segment{
			Vaddr:  ph.Vaddr,
			Filesz: ph.Filesz,
			Memsz:  ph.Memsz,
			Flags:  ProgramFlag(ph.Flags),
			Data:   image[ph.Offset:end],
		})
	}

	return f, nil
}
