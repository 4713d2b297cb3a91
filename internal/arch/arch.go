package arch

type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	default:
		return "unknown"
	}
}

func ParseArch(s string) Arch {
	switch s {
	case "x86_64", "amd64", "x64":
		return ArchX86_64
	default:
		return ArchUnknown
	}
}

type RelocKind int

const (
	RelocPC32 RelocKind = iota
	RelocPLT32
)

func (k RelocKind) String() string {
	switch k {
	case RelocPC32:
		return "R_X86_64_PC32"
	case RelocPLT32:
		return "R_X86_64_PLT32"
	default:
		return "unknown"
	}
}

// Reloc is a pending fixup of a 4-byte displacement field in the code section.
// Site is the offset of the referencing instruction, Offset that of the field.
type Reloc struct {
	Symbol string
	Site   int64
	Offset int64
	Kind   RelocKind
	Addend int64
}
