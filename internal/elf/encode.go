package elf

import (
	"bytes"
	"encoding/binary"
)

const (
	headerSize     = 64
	progHeaderSize = 56
)

// Encode serializes f back into a minimal ELF64 little-endian executable
// image: header, program-header table, then each segment's file bytes,
// page-aligned is not required since Parse maps by Vaddr/Offset only. It is
// the inverse of Parse for the subset of the format this core reads, used
// to build the embedded user images the demo commands and tests exec.
func Encode(f *File) []byte {
	var buf bytes.Buffer

	phoff := uint64(headerSize)
	dataOff := phoff + uint64(len(f.Segments))*progHeaderSize

	hdr := header64{
		Type:      typeExec,
		Machine:   machineRISCV64,
		Version:   1,
		Entry:     f.Entry,
		Phoff:     phoff,
		Ehsize:    headerSize,
		Phentsize: progHeaderSize,
		Phnum:     uint16(len(f.Segments)),
	}

	copy(hdr.Ident[:4], magic[:])
	hdr.Ident[4] = classELF64
	hdr.Ident[5] = dataLSB
	hdr.Ident[6] = 1 // EV_CURRENT

	_ = binary.Write(&buf, binary.LittleEndian, hdr)

	off := dataOff

	for _, seg := range f.Segments {
		ph := progHeader64{
			Type:   ptLoad,
			Flags:  uint32(seg.Flags),
			Offset: off,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  seg.Memsz,
			Align:  1,
		}

		if ph.Memsz < ph.Filesz {
			ph.Memsz = ph.Filesz
		}

		_ = binary.Write(&buf, binary.LittleEndian, ph)

		off += ph.Filesz
	}

	for _, seg := range f.Segments {
		buf.Write(seg.Data)
	}

	return buf.Bytes()
}
