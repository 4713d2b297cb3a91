package ast

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryBuildersSwapOperands(t *testing.T) {
	for _, c := range []struct {
		name  string
		build func(dst, src Node) *BinOp
		op    BinOpKind
	}{
		{"mov imm64", MovImmediate64, OpMovImm64},
		{"mov reg reg", MovRegReg, OpMovRegReg},
		{"sub imm64", SubtractImmediate64, OpSubImm64},
	} {
		dst := Register64("rsp")
		src := IntType(16)
		n := c.build(dst, src)
		assert.Equal(t, c.op, n.Op, c.name)
		assert.Same(t, src, n.Left, c.name)
		assert.Same(t, dst, n.Right, c.name)
		assert.Equal(t, KindBinOp, n.Kind(), c.name)
	}
}

func TestReferenceBuilders(t *testing.T) {
	j := JmpRelative32("loop", 12)
	assert.Equal(t, Ref{Target: "loop", Site: 12}, j.Ref)
	assert.Equal(t, KindJmpRel32, j.Kind())

	c := CallNear("puts", 40)
	assert.Equal(t, "puts", c.Target)
	assert.Equal(t, int64(40), c.Site)
	assert.Equal(t, KindCall, c.Kind())

	assert.Equal(t, KindLeaRSI, LoadEffectiveAddressRSI("msg", 0).Kind())
	assert.Equal(t, KindLeaRDI, LoadEffectiveAddressRDI("msg", 0).Kind())
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	n := MovImmediate64(Register64("rax"), IntType(60))
	require.NoError(t, Fprint(&buf, n))
	assert.Equal(t, "BinOp(mov_imm64)\n  Int64(60)\n  Reg64(rax)\n", buf.String())
}

func TestFprintProgram(t *testing.T) {
	var p Program
	p.Append(PushReg64("rbp"), 3)
	p.Append(CallNear("puts", 0x10), 4)
	p.Append(ReturnInstruction(), 5)

	var buf bytes.Buffer
	require.NoError(t, FprintProgram(&buf, &p))
	assert.Equal(t, "   3: Push(rbp)\n   4: Call(puts @0x10)\n   5: Return\n", buf.String())
}
