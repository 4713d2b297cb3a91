package asm

import (
	"bytes"
	"debug/elf"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncgen/internal/arch"
	"ncgen/internal/arch/x86_64"
	"ncgen/internal/config"
	"ncgen/internal/symtab"
)

const hello = `section .data
msg: db "hello\n"
section .text
global _start
_start:
    mov rax, 1
    mov rdi, 1
    lea rsi, [msg]
    mov rdx, 6
    syscall
    mov rax, 60
    mov rdi, 0
    syscall
`

const withExtern = `extern puts
section .data
msg: db "hi"
section .text
global main
main:
    push rbp
    mov rbp, rsp
    lea rdi, [msg]
    call puts
    call puts
    leave
    ret
`

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAssembleExecutable(t *testing.T) {
	a, err := NewAssembler(config.Default(), quiet())
	require.NoError(t, err)

	res, err := a.Assemble(strings.NewReader(hello))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n\x00"), res.Data)
	assert.Empty(t, res.Relocs)
	assert.Equal(t, arch.ArchX86_64, res.Arch)

	bin, err := a.BuildBinary(res)
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(bin))
	require.NoError(t, err)
	assert.Equal(t, elf.ET_EXEC, f.Type)
	assert.Equal(t, uint64(0x401000), f.Entry)
	require.Len(t, f.Progs, 2)
	assert.Equal(t, uint64(len(res.Code)), f.Progs[0].Filesz)
}

func TestAssembleObject(t *testing.T) {
	cfg := config.Default()
	cfg.Format = "object"
	a, err := NewAssembler(cfg, quiet())
	require.NoError(t, err)

	res, err := a.Assemble(strings.NewReader(withExtern))
	require.NoError(t, err)
	require.Len(t, res.Relocs, 3)
	assert.Equal(t, arch.RelocPC32, res.Relocs[0].Kind)
	assert.Equal(t, arch.RelocPLT32, res.Relocs[1].Kind)
	assert.Equal(t, int64(16), res.Relocs[2].Site)

	// last call site wins
	puts, err := res.Table.ResolveKind("puts", symtab.KindExtern)
	require.NoError(t, err)
	assert.Equal(t, int64(16), puts.Location)

	bin, err := a.BuildBinary(res)
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(bin))
	require.NoError(t, err)
	assert.Equal(t, elf.ET_REL, f.Type)
	assert.NotNil(t, f.Section(".rela.text"))
}

func TestExecutableRejectsExterns(t *testing.T) {
	a, err := NewAssembler(config.Default(), quiet())
	require.NoError(t, err)
	res, err := a.Assemble(strings.NewReader(withExtern))
	require.NoError(t, err)
	_, err = a.BuildBinary(res)
	assert.ErrorContains(t, err, "extern puts")
}

func TestLeaOfExternIsRejected(t *testing.T) {
	for _, f := range []string{"exec", "object"} {
		cfg := config.Default()
		cfg.Format = f
		a, err := NewAssembler(cfg, quiet())
		require.NoError(t, err)

		_, err = a.Assemble(strings.NewReader("extern puts\nsection .text\nmain:\n ret\n lea rdi, [puts]\n ret\n"))
		assert.ErrorIs(t, err, x86_64.ErrUnsupportedOperand, f)
	}
}

func TestRegistersAreCaseInsensitiveInSource(t *testing.T) {
	a, err := NewAssembler(config.Default(), quiet())
	require.NoError(t, err)

	res, err := a.Assemble(strings.NewReader("section .text\nPUSH RBP\nmov Rbp, RSP\nMOV RAX, 60\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0x48, 0x89, 0xe5, 0x48, 0xb8, 60, 0, 0, 0, 0, 0, 0, 0}, res.Code)
}

func TestLayoutWarning(t *testing.T) {
	log, hook := test.NewNullLogger()
	a, err := NewAssembler(config.Default(), log)
	require.NoError(t, err)

	_, err = a.Assemble(strings.NewReader("section .data\nmsg: db \"x\"\nsection .text\nlea rdi, [msg]\n"))
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "msg", hook.LastEntry().Data["symbol"])
}

func TestAssembleReportsParseErrors(t *testing.T) {
	a, err := NewAssembler(config.Default(), quiet())
	require.NoError(t, err)
	_, err = a.Assemble(strings.NewReader("section .text\nbogus\n"))
	assert.ErrorContains(t, err, `unknown instruction "bogus"`)
}

func TestNewAssemblerUnknownFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Format = "pe"
	_, err := NewAssembler(cfg, quiet())
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Arch = "arm64"
	_, err = NewAssembler(cfg, quiet())
	assert.ErrorContains(t, err, "unsupported architecture")
}
