package parser

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncgen/internal/ast"
	"ncgen/internal/codegen"
	"ncgen/internal/symtab"
)

const hello = `; write(1, msg, 13); exit(0)
section .data
msg: db "hello, world\n"
section .text
global _start
_start:
    push rbp
    mov rbp, rsp
    sub rsp, 16
    mov rax, 1
    mov rdi, 1
    lea rsi, [msg]
    mov rdx, 13
    syscall
    call report
    jmp done
report:
    ret
done:
    leave
    mov rax, 60
    mov rdi, 0
    syscall
`

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parse(t *testing.T, src string) (*ast.Program, *symtab.Table) {
	t.Helper()
	prog, tab, err := New(strings.NewReader(src), WithLogger(quiet())).Parse()
	require.NoError(t, err)
	return prog, tab
}

func TestParseSymbols(t *testing.T) {
	_, tab := parse(t, hello)

	msg, err := tab.Resolve("msg")
	require.NoError(t, err)
	assert.Equal(t, symtab.SectionData, msg.Section)
	assert.Equal(t, int64(0), msg.Location)
	assert.Equal(t, int64(14), msg.Size)

	start, err := tab.Resolve("_start")
	require.NoError(t, err)
	assert.Equal(t, int64(0), start.Location)
	assert.True(t, start.Global)

	// push 1 + mov 3 + sub 7 + 3*mov 10 + lea 7 + mov 10 + syscall 2 + call 5 + jmp 5
	report, err := tab.Resolve("report")
	require.NoError(t, err)
	assert.Equal(t, int64(60), report.Location)

	done, err := tab.Resolve("done")
	require.NoError(t, err)
	assert.Equal(t, int64(61), done.Location)
}

func TestParseStatements(t *testing.T) {
	prog, _ := parse(t, hello)
	require.Len(t, prog.Statements, 16)

	assert.Equal(t, &ast.StringLiteral{Text: `"hello, world\n"`}, prog.Statements[0].Node)
	assert.Equal(t, 3, prog.Statements[0].Line)

	assert.Equal(t, ast.MovRegReg(ast.Register64("rbp"), ast.Register64("rsp")), prog.Statements[2].Node)
	assert.Equal(t, ast.MovImmediate64(ast.Register64("rax"), ast.IntType(1)), prog.Statements[4].Node)
	assert.Equal(t, ast.LoadEffectiveAddressRSI("msg", 31), prog.Statements[6].Node)
	assert.Equal(t, ast.CallNear("report", 50), prog.Statements[9].Node)
	assert.Equal(t, ast.JmpRelative32("done", 55), prog.Statements[10].Node)
}

func TestParseExtern(t *testing.T) {
	_, tab := parse(t, "extern puts, exit\nsection .text\nmain:\n call puts\n")
	for _, name := range []string{"puts", "exit"} {
		s, err := tab.ResolveKind(name, symtab.KindExtern)
		require.NoError(t, err, name)
		assert.True(t, s.Global, name)
		assert.Equal(t, int64(0), s.Location, name)
	}
}

func TestParseNumbers(t *testing.T) {
	for _, c := range []struct {
		src  string
		want int64
	}{
		{"42", 42},
		{"0x2a", 42},
		{"2ah", 42},
		{"0b101010", 42},
		{"52o", 42},
	} {
		v, err := parseNumber(c.src)
		require.NoError(t, err, c.src)
		assert.Equal(t, c.want, v, c.src)
	}

	prog, _ := parse(t, "sub rsp, -8\n")
	assert.Equal(t, ast.SubtractImmediate64(ast.Register64("rsp"), ast.IntType(-8)), prog.Statements[0].Node)
}

func TestParseErrorsAreCollected(t *testing.T) {
	src := `section .text
    frobnicate rax
    lea rax, [msg]
    mov rax
x:
x:
    ret
global nowhere
`
	_, _, err := New(strings.NewReader(src), WithLogger(quiet())).Parse()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown instruction "frobnicate"`)
	assert.Contains(t, msg, "lea into rax")
	assert.Contains(t, msg, "expected ,")
	assert.Contains(t, msg, "duplicate symbol")
	assert.Contains(t, msg, "global nowhere is never defined")
}

func TestParseSectionRules(t *testing.T) {
	_, _, err := New(strings.NewReader("db \"x\"\n"), WithLogger(quiet())).Parse()
	assert.ErrorContains(t, err, "db outside .data")

	_, _, err = New(strings.NewReader("section .data\nret\n"), WithLogger(quiet())).Parse()
	assert.ErrorContains(t, err, "outside .text")
}

func TestParseCapacity(t *testing.T) {
	_, _, err := New(strings.NewReader("a:\nb:\nc:\n"), WithCapacity(2), WithLogger(quiet())).Parse()
	assert.ErrorIs(t, err, symtab.ErrSymbolTableFull)

	_, _, err = New(strings.NewReader("extern a, b, c\n"), WithCapacity(2), WithLogger(quiet())).Parse()
	assert.ErrorIs(t, err, symtab.ErrSymbolTableFull)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	_, _, err = New(strings.NewReader("a:\n"), WithCapacity(2), WithLogger(log)).Parse()
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, 2, hook.LastEntry().Data["capacity"])
}

func TestParseDuplicateSymbol(t *testing.T) {
	_, _, err := New(strings.NewReader("x:\nx:\n"), WithLogger(quiet())).Parse()
	assert.ErrorIs(t, err, symtab.ErrDuplicateSymbol)
	assert.ErrorContains(t, err, "line 2:")
}

func TestParseRegisters(t *testing.T) {
	prog, _ := parse(t, "PUSH RBP\nmov Rbp, RSP\nMOV RAX, 1\n")
	assert.Equal(t, ast.PushReg64("rbp"), prog.Statements[0].Node)
	assert.Equal(t, ast.MovRegReg(ast.Register64("rbp"), ast.Register64("rsp")), prog.Statements[1].Node)
	assert.Equal(t, ast.MovImmediate64(ast.Register64("rax"), ast.IntType(1)), prog.Statements[2].Node)

	_, _, err := New(strings.NewReader("push r99\nmov rax, msg\nsub eax, 8\n"), WithLogger(quiet())).Parse()
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown register "r99"`)
	assert.ErrorContains(t, err, `expected register or number but got`)
	assert.ErrorContains(t, err, `unknown register "eax"`)
}

// The offsets the parser assigns must agree with what the generator emits.
func TestParseThenGenerate(t *testing.T) {
	prog, tab := parse(t, hello)

	var code, data bytes.Buffer
	res, err := codegen.New(&code, &data, tab, codegen.WithLogger(quiet())).Generate(prog)
	require.NoError(t, err)

	assert.Len(t, res.Code, 84)
	assert.Equal(t, []byte("hello, world\n\x00"), res.Data)
	assert.Equal(t, []byte{0x55, 0x48, 0x89, 0xe5, 0x48, 0x81, 0xec, 0x10, 0, 0, 0}, res.Code[:11])
	// lea rsi, [msg] at 31: 0x1000 - 31 - 7
	assert.Equal(t, []byte{0x48, 0x8d, 0x35, 0xda, 0x0f, 0x00, 0x00}, res.Code[31:38])
	// call report at 50 -> 60
	assert.Equal(t, []byte{0xe8, 0x05, 0, 0, 0}, res.Code[50:55])
	// jmp done at 55 -> 61
	assert.Equal(t, []byte{0xe9, 0x01, 0, 0, 0}, res.Code[55:60])
	assert.Empty(t, res.Relocs)
}
