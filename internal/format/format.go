package format

import (
	"ncgen/internal/arch"
	"ncgen/internal/symtab"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatExec
	FormatObject
)

func (f Format) String() string {
	switch f {
	case FormatExec:
		return "exec"
	case FormatObject:
		return "object"
	default:
		return "unknown"
	}
}

func ParseFormat(s string) Format {
	switch s {
	case "exec", "elf", "executable":
		return FormatExec
	case "object", "obj", "o", "rel":
		return FormatObject
	default:
		return FormatUnknown
	}
}

// BuilderInput is everything a Builder needs to lay out an image: the two
// emitted streams, the final symbol table and the relocations that are still
// unresolved in Code.
type BuilderInput struct {
	Code    []byte
	Data    []byte
	Symbols []symtab.Symbol
	Relocs  []arch.Reloc
	Arch    arch.Arch
	Entry   string
	// DataOffset is where .data starts relative to .text in an executable.
	DataOffset int64
}

type Builder interface {
	Format() Format
	Build(input *BuilderInput) ([]byte, error)
	Extension() string
}
