package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"ncgen/internal/arch"
	"ncgen/internal/format"
	"ncgen/internal/symtab"
)

// Builder writes a static ET_EXEC image: .text is loaded at 0x401000 and .data
// DataOffset bytes after it, each in its own PT_LOAD segment. No section headers
// are written.
type Builder struct {
	arch arch.Arch
}

func NewBuilder(a arch.Arch) *Builder {
	return &Builder{arch: a}
}

func (b *Builder) Format() format.Format {
	return format.FormatExec
}

func (b *Builder) Extension() string {
	return ""
}

func (b *Builder) Build(in *format.BuilderInput) ([]byte, error) {
	if machineFromArch(b.arch) == elf.EM_NONE {
		return nil, errors.Errorf("no executable support for architecture %s", b.arch)
	}
	if in.Arch != b.arch {
		return nil, errors.Errorf("%s code cannot go into a %s image", in.Arch, b.arch)
	}
	dataOffset := in.DataOffset
	if dataOffset == 0 {
		dataOffset = DefaultDataOffset
	}
	if dataOffset%pageSize != 0 {
		return nil, errors.Wrapf(ErrLayout, "data offset %#x is not page aligned", dataOffset)
	}
	if len(in.Data) > 0 && int64(len(in.Code)) > dataOffset {
		return nil, errors.Wrapf(ErrLayout, "%d bytes of code overlap .data at %#x", len(in.Code), dataOffset)
	}

	const textOff = pageSize
	textVaddr := uint64(baseVaddr + textOff)
	dataVaddr := textVaddr + uint64(dataOffset)

	code := append([]byte(nil), in.Code...)
	if err := applyRelocations(code, in.Relocs, in.Symbols, textVaddr, dataVaddr); err != nil {
		return nil, err
	}
	entry, err := entryAddress(in.Entry, in.Symbols, textVaddr)
	if err != nil {
		return nil, err
	}

	progs := []elf.Prog64{{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    textOff,
		Vaddr:  textVaddr,
		Paddr:  textVaddr,
		Filesz: uint64(len(code)),
		Memsz:  uint64(len(code)),
		Align:  pageSize,
	}}
	if len(in.Data) > 0 {
		progs = append(progs, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_W),
			Off:    uint64(textOff + dataOffset),
			Vaddr:  dataVaddr,
			Paddr:  dataVaddr,
			Filesz: uint64(len(in.Data)),
			Memsz:  uint64(len(in.Data)),
			Align:  pageSize,
		})
	}

	h := header(b.arch, elf.ET_EXEC)
	h.Entry = entry
	h.Phoff = ehSize
	h.Phnum = uint16(len(progs))
	h.Shentsize = 0

	var buf bytes.Buffer
	write(&buf, &h)
	for i := range progs {
		write(&buf, &progs[i])
	}
	pad(&buf, textOff)
	buf.Write(code)
	if len(in.Data) > 0 {
		pad(&buf, int(textOff+dataOffset))
		buf.Write(in.Data)
	}
	return buf.Bytes(), nil
}

func entryAddress(name string, syms []symtab.Symbol, textVaddr uint64) (uint64, error) {
	if name == "" {
		return textVaddr, nil
	}
	for _, s := range syms {
		if s.Name == name && s.Kind == symtab.KindLabel && s.Section == symtab.SectionText {
			return textVaddr + uint64(s.Location), nil
		}
	}
	return 0, errors.Wrapf(ErrMissingEntry, "entry %q", name)
}

// applyRelocations patches PC-relative fields against labels. Calls to externs
// need a dynamic linker and are rejected.
func applyRelocations(code []byte, relocs []arch.Reloc, syms []symtab.Symbol, textVaddr, dataVaddr uint64) error {
	for _, r := range relocs {
		if r.Kind == arch.RelocPLT32 {
			return errors.Wrapf(ErrUnresolved, "call to extern %s at %#x in an executable", r.Symbol, r.Site)
		}
		if r.Offset < 0 || r.Offset+4 > int64(len(code)) {
			return errors.Wrapf(ErrUnresolved, "relocation for %s at %#x outside .text", r.Symbol, r.Offset)
		}

		var target uint64
		found := false
		for _, s := range syms {
			if s.Name != r.Symbol || s.Kind != symtab.KindLabel {
				continue
			}
			switch s.Section {
			case symtab.SectionText:
				target = textVaddr + uint64(s.Location)
			case symtab.SectionData:
				target = dataVaddr + uint64(s.Location)
			default:
				continue
			}
			found = true
			break
		}
		if !found {
			return errors.Wrapf(ErrUnresolved, "no label %s for relocation at %#x", r.Symbol, r.Offset)
		}

		rel := int64(target) + r.Addend - int64(textVaddr) - r.Offset
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			return errors.Wrapf(ErrUnresolved, "displacement to %s does not fit in 32 bits", r.Symbol)
		}
		binary.LittleEndian.PutUint32(code[r.Offset:], uint32(int32(rel)))
	}
	return nil
}
