package asm

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ncgen/internal/arch"
	"ncgen/internal/ast"
	"ncgen/internal/codegen"
	"ncgen/internal/config"
	"ncgen/internal/format"
	"ncgen/internal/format/elf"
	"ncgen/internal/parser"
	"ncgen/internal/symtab"
)

// Assembler runs source text through the parser, the code generator and an
// output format builder.
type Assembler struct {
	cfg     *config.Config
	builder format.Builder
	log     logrus.FieldLogger
}

func NewAssembler(cfg *config.Config, log logrus.FieldLogger) (*Assembler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	target := cfg.Architecture()
	if target != arch.ArchX86_64 {
		return nil, errors.Errorf("unsupported architecture: %s", cfg.Arch)
	}
	var builder format.Builder
	switch f := format.ParseFormat(cfg.Format); f {
	case format.FormatExec:
		builder = elf.NewBuilder(target)
	case format.FormatObject:
		builder = elf.NewObjectBuilder(target)
	default:
		return nil, errors.Errorf("unsupported format: %s", cfg.Format)
	}
	return &Assembler{cfg: cfg, builder: builder, log: log}, nil
}

func (a *Assembler) Builder() format.Builder {
	return a.builder
}

type AssemblyResult struct {
	Arch    arch.Arch
	Program *ast.Program
	Table   *symtab.Table
	Code    []byte
	Data    []byte
	Relocs  []arch.Reloc
}

func (a *Assembler) Symbols(result *AssemblyResult) []symtab.Symbol {
	return result.Table.Symbols()
}

// Parse only runs the front end.
func (a *Assembler) Parse(r io.Reader) (*ast.Program, *symtab.Table, error) {
	return parser.New(r,
		parser.WithCapacity(a.cfg.Symbols.Capacity),
		parser.WithLogger(a.log),
	).Parse()
}

func (a *Assembler) Assemble(r io.Reader) (*AssemblyResult, error) {
	prog, table, err := a.Parse(r)
	if err != nil {
		return nil, err
	}

	cg := a.cfg.CodegenConfig()
	if format.ParseFormat(a.cfg.Format) == format.FormatExec {
		a.checkLayout(prog, table, cg)
	}

	var code, data bytes.Buffer
	res, err := codegen.New(&code, &data, table,
		codegen.WithConfig(cg),
		codegen.WithLogger(a.log),
	).Generate(prog)
	if err != nil {
		return nil, err
	}

	return &AssemblyResult{
		Arch:    res.Arch,
		Program: prog,
		Table:   table,
		Code:    res.Code,
		Data:    res.Data,
		Relocs:  res.Relocs,
	}, nil
}

// checkLayout warns about loads of .data whose assumed section distance
// disagrees with where the executable builder places .data.
func (a *Assembler) checkLayout(prog *ast.Program, table *symtab.Table, cg codegen.Config) {
	for _, st := range prog.Statements {
		var (
			ref      ast.Ref
			distance int64
		)
		switch n := st.Node.(type) {
		case *ast.LeaRSI:
			ref, distance = n.Ref, cg.RSIDataDistance
		case *ast.LeaRDI:
			ref, distance = n.Ref, cg.RDIDataDistance
		default:
			continue
		}
		if distance == a.cfg.Layout.DataOffset {
			continue
		}
		for _, s := range table.Lookup(ref.Target) {
			if s.Section == symtab.SectionData {
				a.log.WithFields(logrus.Fields{
					"line":        st.Line,
					"symbol":      ref.Target,
					"distance":    distance,
					"data_offset": a.cfg.Layout.DataOffset,
				}).Warn("load of .data assumes a different section distance than the image layout")
			}
		}
	}
}

func (a *Assembler) BuildBinary(result *AssemblyResult) ([]byte, error) {
	input := &format.BuilderInput{
		Code:       result.Code,
		Data:       result.Data,
		Symbols:    a.Symbols(result),
		Relocs:     result.Relocs,
		Arch:       result.Arch,
		Entry:      a.cfg.Entry,
		DataOffset: a.cfg.Layout.DataOffset,
	}

	bin, err := a.builder.Build(input)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s", a.builder.Format())
	}
	a.log.WithFields(logrus.Fields{
		"format": a.builder.Format(),
		"size":   len(bin),
	}).Debug("built image")
	return bin, nil
}
