package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"

	"ncgen/internal/arch"
)

const (
	pageSize   = 0x1000
	baseVaddr  = 0x400000
	ehSize     = 64
	phEntSize  = 56
	shEntSize  = 64
	symEntSize = 24
	relEntSize = 24

	DefaultDataOffset = 0x1000
)

var (
	ErrUnresolved   = errors.New("unresolved relocation")
	ErrLayout       = errors.New("sections do not fit the image layout")
	ErrMissingEntry = errors.New("entry symbol not defined in .text")
)

func header(a arch.Arch, typ elf.Type) elf.Header64 {
	h := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(machineFromArch(a)),
		Version:   uint32(elf.EV_CURRENT),
		Ehsize:    ehSize,
		Phentsize: phEntSize,
		Shentsize: shEntSize,
	}
	copy(h.Ident[:], elf.ELFMAG)
	h.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	h.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	h.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	h.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	return h
}

func machineFromArch(a arch.Arch) elf.Machine {
	switch a {
	case arch.ArchX86_64:
		return elf.EM_X86_64
	default:
		return elf.EM_NONE
	}
}

func write(buf *bytes.Buffer, v any) {
	// bytes.Buffer writes do not fail.
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func pad(buf *bytes.Buffer, to int) {
	if n := to - buf.Len(); n > 0 {
		buf.Write(make([]byte, n))
	}
}

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// strtab builds a NUL separated string table. Index 0 is the empty string.
type strtab struct {
	buf bytes.Buffer
	idx map[string]uint32
}

func newStrtab() *strtab {
	t := &strtab{idx: map[string]uint32{"": 0}}
	t.buf.WriteByte(0)
	return t
}

func (t *strtab) add(s string) uint32 {
	if i, ok := t.idx[s]; ok {
		return i
	}
	i := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	t.idx[s] = i
	return i
}
