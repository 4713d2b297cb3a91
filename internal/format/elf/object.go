package elf

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"

	"ncgen/internal/arch"
	"ncgen/internal/format"
	"ncgen/internal/symtab"
)

// Section header indices of an object file.
const (
	shText = iota + 1
	shData
	shSymtab
	shStrtab
	shRelaText
	shShstrtab
	shNum
)

// ObjectBuilder writes an ET_REL file for a system linker. Externs become
// undefined global symbols and every recorded relocation is kept as an
// Elf64_Rela entry against .text.
type ObjectBuilder struct {
	arch arch.Arch
}

func NewObjectBuilder(a arch.Arch) *ObjectBuilder {
	return &ObjectBuilder{arch: a}
}

func (b *ObjectBuilder) Format() format.Format {
	return format.FormatObject
}

func (b *ObjectBuilder) Extension() string {
	return ".o"
}

type symKey struct {
	name string
	kind symtab.Kind
}

func (b *ObjectBuilder) Build(in *format.BuilderInput) ([]byte, error) {
	if machineFromArch(b.arch) == elf.EM_NONE {
		return nil, errors.Errorf("no object support for architecture %s", b.arch)
	}
	if in.Arch != b.arch {
		return nil, errors.Errorf("%s code cannot go into a %s object", in.Arch, b.arch)
	}

	strs := newStrtab()
	syms := []elf.Sym64{
		{},
		{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: shText},
		{Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: shData},
	}
	index := map[symKey]uint32{}

	// Locals must precede globals.
	var globals []symtab.Symbol
	for _, s := range in.Symbols {
		if s.Global || s.Kind == symtab.KindExtern {
			globals = append(globals, s)
			continue
		}
		sym, ok := objectSymbol(s, strs)
		if !ok {
			continue
		}
		index[symKey{s.Name, s.Kind}] = uint32(len(syms))
		syms = append(syms, sym)
	}
	firstGlobal := uint32(len(syms))
	for _, s := range globals {
		sym, ok := objectSymbol(s, strs)
		if !ok {
			continue
		}
		index[symKey{s.Name, s.Kind}] = uint32(len(syms))
		syms = append(syms, sym)
	}

	var rela bytes.Buffer
	for _, r := range in.Relocs {
		var (
			idx uint32
			ok  bool
			typ elf.R_X86_64
		)
		switch r.Kind {
		case arch.RelocPLT32:
			idx, ok = index[symKey{r.Symbol, symtab.KindExtern}]
			typ = elf.R_X86_64_PLT32
		case arch.RelocPC32:
			idx, ok = index[symKey{r.Symbol, symtab.KindLabel}]
			typ = elf.R_X86_64_PC32
		}
		if !ok {
			return nil, errors.Wrapf(ErrUnresolved, "%s against %s at %#x", r.Kind, r.Symbol, r.Offset)
		}
		write(&rela, &elf.Rela64{
			Off:    uint64(r.Offset),
			Info:   elf.R_INFO(idx, uint32(typ)),
			Addend: r.Addend,
		})
	}

	var symbuf bytes.Buffer
	for i := range syms {
		write(&symbuf, &syms[i])
	}

	shstrs := newStrtab()
	sections := make([]elf.Section64, shNum)
	contents := make([][]byte, shNum)
	define := func(i int, name string, typ elf.SectionType, flags elf.SectionFlag, data []byte, alignTo uint64) {
		sections[i] = elf.Section64{
			Name:      shstrs.add(name),
			Type:      uint32(typ),
			Flags:     uint64(flags),
			Size:      uint64(len(data)),
			Addralign: alignTo,
		}
		contents[i] = data
	}
	define(shText, ".text", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, in.Code, 16)
	define(shData, ".data", elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, in.Data, 8)
	define(shSymtab, ".symtab", elf.SHT_SYMTAB, 0, symbuf.Bytes(), 8)
	sections[shSymtab].Link = shStrtab
	sections[shSymtab].Info = firstGlobal
	sections[shSymtab].Entsize = symEntSize
	define(shStrtab, ".strtab", elf.SHT_STRTAB, 0, strs.buf.Bytes(), 1)
	define(shRelaText, ".rela.text", elf.SHT_RELA, elf.SHF_INFO_LINK, rela.Bytes(), 8)
	sections[shRelaText].Link = shSymtab
	sections[shRelaText].Info = shText
	sections[shRelaText].Entsize = relEntSize
	// Added last so its own name is already in the table.
	shstrs.add(".shstrtab")
	define(shShstrtab, ".shstrtab", elf.SHT_STRTAB, 0, shstrs.buf.Bytes(), 1)

	var buf bytes.Buffer
	pad(&buf, ehSize)
	for i := 1; i < shNum; i++ {
		pad(&buf, align(buf.Len(), int(sections[i].Addralign)))
		sections[i].Off = uint64(buf.Len())
		buf.Write(contents[i])
	}
	pad(&buf, align(buf.Len(), 8))
	shoff := buf.Len()
	for i := range sections {
		write(&buf, &sections[i])
	}

	h := header(b.arch, elf.ET_REL)
	h.Shoff = uint64(shoff)
	h.Shnum = shNum
	h.Shstrndx = shShstrtab
	h.Phentsize = 0

	var hb bytes.Buffer
	write(&hb, &h)
	out := buf.Bytes()
	copy(out, hb.Bytes())
	return out, nil
}

func objectSymbol(s symtab.Symbol, strs *strtab) (elf.Sym64, bool) {
	bind := elf.STB_LOCAL
	if s.Global || s.Kind == symtab.KindExtern {
		bind = elf.STB_GLOBAL
	}
	sym := elf.Sym64{Name: strs.add(s.Name), Size: uint64(s.Size)}

	switch {
	case s.Kind == symtab.KindExtern:
		sym.Info = elf.ST_INFO(bind, elf.STT_NOTYPE)
		sym.Shndx = uint16(elf.SHN_UNDEF)
	case s.Kind == symtab.KindLabel && s.Section == symtab.SectionText:
		sym.Info = elf.ST_INFO(bind, elf.STT_FUNC)
		sym.Shndx = shText
		sym.Value = uint64(s.Location)
	case s.Kind == symtab.KindLabel && s.Section == symtab.SectionData:
		sym.Info = elf.ST_INFO(bind, elf.STT_OBJECT)
		sym.Shndx = shData
		sym.Value = uint64(s.Location)
	default:
		return elf.Sym64{}, false
	}
	return sym, true
}
