package codegen

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"ncgen/internal/arch"
	"ncgen/internal/arch/x86_64"
	"ncgen/internal/ast"
	"ncgen/internal/symtab"
)

// Config holds the layout assumptions baked into RIP-relative loads of .data
// symbols: the distance in bytes between the start of the code section and the
// start of the data section in the final image, per destination register.
type Config struct {
	RSIDataDistance int64
	RDIDataDistance int64
	// CheckSites makes Generate verify that every reference node's site offset
	// equals the offset its instruction is emitted at.
	CheckSites bool
	// DataRelocs makes loads of .data symbols emit a zero displacement plus a
	// PC32 relocation instead of assuming a fixed section distance.
	DataRelocs bool
}

func DefaultConfig() Config {
	return Config{
		RSIDataDistance: 0x1000,
		RDIDataDistance: 0x2000,
		CheckSites:      true,
	}
}

type Option func(*Generator)

func WithConfig(c Config) Option {
	return func(g *Generator) { g.cfg = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Generator) { g.log = l }
}

// Generator emits machine code for AST nodes into a code stream and literal
// bytes into a data stream. Extern call sites are collected as relocations and
// only written back to the symbol table by Resolve.
type Generator struct {
	code  *bytes.Buffer
	data  *bytes.Buffer
	table *symtab.Table
	enc   *x86_64.Encoder
	cfg   Config
	log   logrus.FieldLogger

	relocs   []arch.Reloc
	resolved int

	text    bytes.Buffer
	lit     bytes.Buffer
	pending []arch.Reloc
}

func New(code, data *bytes.Buffer, table *symtab.Table, opts ...Option) *Generator {
	g := &Generator{
		code:  code,
		data:  data,
		table: table,
		enc:   x86_64.NewEncoder(),
		cfg:   DefaultConfig(),
		log:   logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Emit is the single-node entry point: it emits n and then resolves any extern
// call sites it recorded into table.
func Emit(code, data *bytes.Buffer, n ast.Node, table *symtab.Table, opts ...Option) error {
	g := New(code, data, table, opts...)
	if err := g.Emit(n); err != nil {
		return err
	}
	return g.Resolve()
}

// Emit walks n depth-first. The streams are only appended to if the whole tree
// encodes successfully.
func (g *Generator) Emit(n ast.Node) error {
	g.text.Reset()
	g.lit.Reset()
	g.pending = g.pending[:0]

	if err := n.Accept(g); err != nil {
		return err
	}

	g.code.Write(g.text.Bytes())
	g.data.Write(g.lit.Bytes())
	g.relocs = append(g.relocs, g.pending...)
	return nil
}

// Resolve records each extern call site not yet applied as the location of its
// extern symbol. Sites are applied in emission order, so the last call to an
// extern wins; Relocations keeps all of them.
func (g *Generator) Resolve() error {
	for ; g.resolved < len(g.relocs); g.resolved++ {
		r := g.relocs[g.resolved]
		if r.Kind != arch.RelocPLT32 {
			continue
		}
		if err := g.table.SetLocation(r.Symbol, symtab.KindExtern, r.Site); err != nil {
			return err
		}
		g.log.WithFields(logrus.Fields{"symbol": r.Symbol, "site": r.Site}).Debug("resolved extern call site")
	}
	return nil
}

func (g *Generator) Relocations() []arch.Reloc {
	return append([]arch.Reloc(nil), g.relocs...)
}

type Result struct {
	Arch   arch.Arch
	Code   []byte
	Data   []byte
	Relocs []arch.Reloc
}

// Generate emits every statement of p in order, then resolves extern call
// sites. Failing statements are reported together; on failure no result is
// returned and the symbol table is left untouched.
func (g *Generator) Generate(p *ast.Program) (*Result, error) {
	var errs *multierror.Error
	checkSites := g.cfg.CheckSites

	for _, st := range p.Statements {
		if checkSites {
			if site, ok := siteOf(st.Node); ok && site != int64(g.code.Len()) {
				err := &Error{Kind: st.Node.Kind(), Line: st.Line,
					Err: fmt.Errorf("site %#x, emitted at %#x: %w", site, g.code.Len(), ErrSiteMismatch)}
				errs = multierror.Append(errs, err)
				checkSites = false
				continue
			}
		}
		if err := g.Emit(st.Node); err != nil {
			var ce *Error
			if errors.As(err, &ce) {
				ce.Line = st.Line
			}
			errs = multierror.Append(errs, err)
			// Later sites are computed against bytes that were never written.
			checkSites = false
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := g.Resolve(); err != nil {
		return nil, err
	}

	g.log.WithFields(logrus.Fields{
		"code":   g.code.Len(),
		"data":   g.data.Len(),
		"relocs": len(g.relocs),
	}).Debug("generated program")

	return &Result{
		Arch:   g.enc.Arch(),
		Code:   g.code.Bytes(),
		Data:   g.data.Bytes(),
		Relocs: g.Relocations(),
	}, nil
}

func siteOf(n ast.Node) (int64, bool) {
	switch r := n.(type) {
	case *ast.Jump:
		return r.Site, true
	case *ast.Call:
		return r.Site, true
	case *ast.LeaRSI:
		return r.Site, true
	case *ast.LeaRDI:
		return r.Site, true
	}
	return 0, false
}
