package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"ncgen/internal/arch/x86_64"
	"ncgen/internal/ast"
	"ncgen/internal/symtab"
)

// Parser reads the assembly dialect and produces the statement list together
// with a symbol table whose labels already carry their final offsets. Extern
// entries are placeholders at location 0 until the code generator resolves them.
type Parser struct {
	lx   *Lexer
	peek Token
	have bool
	log  logrus.FieldLogger
	errs *multierror.Error

	prog    *ast.Program
	table   *symtab.Table
	section symtab.Section
	textOff int64
	dataOff int64
	globals []Token
	// label defined at the current .data offset, sized by the next db
	dataLabel string
}

type Option func(*Parser)

func WithCapacity(n int) Option {
	return func(p *Parser) { p.table = symtab.New(n) }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Parser) { p.log = l }
}

func New(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		lx:      NewLexer(r),
		log:     logrus.StandardLogger(),
		prog:    &ast.Program{},
		table:   symtab.New(symtab.DefaultCapacity),
		section: symtab.SectionText,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Parser) next() Token {
	if p.have {
		p.have = false
		return p.peek
	}
	return p.lx.NextToken()
}

func (p *Parser) backup(t Token) {
	p.have = true
	p.peek = t
}

func (p *Parser) errorf(t Token, format string, args ...any) {
	p.errs = multierror.Append(p.errs, fmt.Errorf("line %d:%d: %s", t.Line, t.Col, fmt.Sprintf(format, args...)))
}

// fail records err at t, keeping it matchable with errors.Is.
func (p *Parser) fail(t Token, err error) {
	p.errs = multierror.Append(p.errs, fmt.Errorf("line %d:%d: %w", t.Line, t.Col, err))
}

func (p *Parser) expect(kind TokenKind) (Token, bool) {
	t := p.next()
	if t.Kind != kind {
		p.errorf(t, "expected %s but got %s (%q)", kind, t.Kind, t.Lit)
		p.backup(t)
		return t, false
	}
	return t, true
}

// Parse consumes the whole input. All syntax errors are reported together.
func (p *Parser) Parse() (*ast.Program, *symtab.Table, error) {
	for {
		t := p.next()
		if t.Kind == TOK_EOF {
			break
		}
		if t.Kind == TOK_NEWLINE {
			continue
		}
		if t.Kind != TOK_IDENT {
			p.errorf(t, "unexpected %s (%q)", t.Kind, t.Lit)
			p.consumeLine()
			continue
		}

		n := p.next()
		if n.Kind == TOK_COLON {
			p.defineLabel(t)
			continue
		}
		p.backup(n)

		if !p.parseStatement(t) {
			p.consumeLine()
			continue
		}
		p.endOfLine()
	}
	p.applyGlobals()

	if err := p.errs.ErrorOrNil(); err != nil {
		return nil, nil, err
	}
	p.log.WithFields(logrus.Fields{
		"statements": len(p.prog.Statements),
		"symbols":    p.table.Len(),
		"capacity":   p.table.Capacity(),
		"text":       p.textOff,
		"data":       p.dataOff,
	}).Debug("parsed")
	return p.prog, p.table, nil
}

func (p *Parser) consumeLine() {
	for {
		t := p.next()
		if t.Kind == TOK_NEWLINE || t.Kind == TOK_EOF {
			return
		}
	}
}

func (p *Parser) endOfLine() {
	t := p.next()
	if t.Kind != TOK_NEWLINE && t.Kind != TOK_EOF {
		p.errorf(t, "unexpected %s (%q) after statement", t.Kind, t.Lit)
		p.consumeLine()
	}
}

func (p *Parser) offset() int64 {
	if p.section == symtab.SectionData {
		return p.dataOff
	}
	return p.textOff
}

func (p *Parser) defineLabel(t Token) {
	err := p.table.Add(symtab.Symbol{
		Name:     t.Lit,
		Kind:     symtab.KindLabel,
		Section:  p.section,
		Location: p.offset(),
	})
	if err != nil {
		p.fail(t, err)
		return
	}
	if p.section == symtab.SectionData {
		p.dataLabel = t.Lit
	}
}

func (p *Parser) parseStatement(first Token) bool {
	mn := strings.ToLower(first.Lit)
	switch mn {
	case "section":
		return p.parseSection()
	case "global":
		p.globals = append(p.globals, p.parseNameList()...)
		return true
	case "extern":
		for _, t := range p.parseNameList() {
			err := p.table.Add(symtab.Symbol{Name: t.Lit, Kind: symtab.KindExtern, Section: symtab.SectionText, Global: true})
			if err != nil {
				p.fail(t, err)
			}
		}
		return true
	case "db":
		return p.parseData(first)
	}

	if p.section != symtab.SectionText {
		p.errorf(first, "instruction %s outside .text", first.Lit)
		return false
	}

	site := p.textOff
	var (
		node ast.Node
		size int64
	)
	switch mn {
	case "push":
		reg, ok := p.register()
		if !ok {
			return false
		}
		node, size = ast.PushReg64(reg), x86_64.LenPush
	case "mov":
		dst, src, ok := p.parseTwoOperands()
		if !ok {
			return false
		}
		switch s := src.(type) {
		case *ast.IntConst:
			node, size = ast.MovImmediate64(dst, s), x86_64.LenMovImm64
		default:
			node, size = ast.MovRegReg(dst, s), x86_64.LenMovRegReg
		}
	case "sub":
		dst, src, ok := p.parseTwoOperands()
		if !ok {
			return false
		}
		node, size = ast.SubtractImmediate64(dst, src), x86_64.LenSubImm32
	case "syscall":
		node, size = ast.SyscallInstruction(), x86_64.LenSyscall
	case "ret":
		node, size = ast.ReturnInstruction(), x86_64.LenRet
	case "leave":
		node, size = ast.LeaveInstruction(), x86_64.LenLeave
	case "jmp":
		target, ok := p.expect(TOK_IDENT)
		if !ok {
			return false
		}
		node, size = ast.JmpRelative32(target.Lit, site), x86_64.LenJmpRel32
	case "call":
		target, ok := p.expect(TOK_IDENT)
		if !ok {
			return false
		}
		node, size = ast.CallNear(target.Lit, site), x86_64.LenCallRel32
	case "lea":
		n, ok := p.parseLea(site)
		if !ok {
			return false
		}
		node, size = n, x86_64.LenLeaRIP
	default:
		p.errorf(first, "unknown instruction %q", first.Lit)
		return false
	}

	p.prog.Append(node, first.Line)
	p.textOff += size
	return true
}

func (p *Parser) parseSection() bool {
	t, ok := p.expect(TOK_IDENT)
	if !ok {
		return false
	}
	switch t.Lit {
	case ".text", "text":
		p.section = symtab.SectionText
	case ".data", "data":
		p.section = symtab.SectionData
	default:
		p.errorf(t, "unknown section %q", t.Lit)
		return false
	}
	return true
}

func (p *Parser) parseNameList() []Token {
	var out []Token
	for {
		t, ok := p.expect(TOK_IDENT)
		if !ok {
			return out
		}
		out = append(out, t)
		n := p.next()
		if n.Kind != TOK_COMMA {
			p.backup(n)
			return out
		}
	}
}

// parseData handles db with a single string literal. The generator appends the
// NUL terminator, so the symbol size includes it.
func (p *Parser) parseData(first Token) bool {
	if p.section != symtab.SectionData {
		p.errorf(first, "db outside .data")
		return false
	}
	t, ok := p.expect(TOK_STRING)
	if !ok {
		return false
	}
	size := literalSize(t.Lit)
	if p.dataLabel != "" {
		if s, err := p.table.ResolveKind(p.dataLabel, symtab.KindLabel); err == nil {
			s.Size = size
		}
		p.dataLabel = ""
	}
	p.prog.Append(ast.LoadString(t.Lit), first.Line)
	p.dataOff += size
	return true
}

func literalSize(lit string) int64 {
	if len(lit) < 2 {
		return 0
	}
	body := lit[1 : len(lit)-1]
	return int64(len(body)-strings.Count(body, `\n`)) + 1
}

func (p *Parser) parseTwoOperands() (dst, src ast.Node, ok bool) {
	d, ok := p.register()
	if !ok {
		return nil, nil, false
	}
	if _, ok := p.expect(TOK_COMMA); !ok {
		return nil, nil, false
	}
	src, ok = p.parseSource()
	if !ok {
		return nil, nil, false
	}
	return ast.Register64(d), src, true
}

// register reads a register operand. Names are case-insensitive in source and
// lower-cased before they reach the encoder.
func (p *Parser) register() (string, bool) {
	t, ok := p.expect(TOK_IDENT)
	if !ok {
		return "", false
	}
	name := strings.ToLower(t.Lit)
	if !x86_64.IsRegister(name) {
		p.errorf(t, "unknown register %q", t.Lit)
		return "", false
	}
	return name, true
}

func (p *Parser) parseSource() (ast.Node, bool) {
	t := p.next()
	neg := false
	if t.Kind == TOK_MINUS {
		neg = true
		t = p.next()
	}
	switch t.Kind {
	case TOK_NUMBER:
		v, err := parseNumber(t.Lit)
		if err != nil {
			p.errorf(t, "bad number %q: %v", t.Lit, err)
			return nil, false
		}
		if neg {
			v = -v
		}
		return ast.IntType(v), true
	case TOK_IDENT:
		if name := strings.ToLower(t.Lit); !neg && x86_64.IsRegister(name) {
			return ast.Register64(name), true
		}
	}
	p.errorf(t, "expected register or number but got %s (%q)", t.Kind, t.Lit)
	return nil, false
}

func (p *Parser) parseLea(site int64) (ast.Node, bool) {
	dst, ok := p.expect(TOK_IDENT)
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(TOK_COMMA); !ok {
		return nil, false
	}
	bracket := false
	t := p.next()
	if t.Kind == TOK_LBRACK {
		bracket = true
		t = p.next()
	}
	if t.Kind != TOK_IDENT {
		p.errorf(t, "expected symbol but got %s (%q)", t.Kind, t.Lit)
		return nil, false
	}
	if bracket {
		if _, ok := p.expect(TOK_RBRACK); !ok {
			return nil, false
		}
	}
	switch strings.ToLower(dst.Lit) {
	case "rsi":
		return ast.LoadEffectiveAddressRSI(t.Lit, site), true
	case "rdi":
		return ast.LoadEffectiveAddressRDI(t.Lit, site), true
	}
	p.errorf(dst, "lea into %s is not supported", dst.Lit)
	return nil, false
}

func (p *Parser) applyGlobals() {
	for _, t := range p.globals {
		found := false
		for _, s := range p.table.Lookup(t.Lit) {
			s.Global = true
			found = true
		}
		if !found {
			p.errorf(t, "global %s is never defined", t.Lit)
		}
	}
}

func parseNumber(s string) (int64, error) {
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasSuffix(s, "h") || strings.HasSuffix(s, "H"):
		s, base = s[:len(s)-1], 16
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		s, base = s[2:], 2
	case strings.HasSuffix(s, "o"):
		s, base = s[:len(s)-1], 8
	}
	return strconv.ParseInt(s, base, 64)
}
