package x86_64

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"ncgen/internal/arch"
)

var (
	ErrUnsupportedOperand = errors.New("unsupported operand")
	ErrDisplacementRange  = errors.New("displacement out of rel32 range")
)

const (
	rexW = 0x48

	opPushRAX   = 0x50
	opPushRBP   = 0x50 | byte(RBP)
	opGroup1    = 0x81
	opMovRM     = 0x89
	opLea       = 0x8d
	opMovImmRAX = 0xb8 | byte(RAX)
	opMovImmRDX = 0xb8 | byte(RDX)
	opMovImmRSI = 0xb8 | byte(RSI)
	opMovImmRDI = 0xb8 | byte(RDI)
	opRet       = 0xc3
	opLeave     = 0xc9
	opCallRel32 = 0xe8
	opJmpRel32  = 0xe9

	modRMRegRSPToRBP    = 0xc0 | byte(RSP)<<3 | byte(RBP)
	modRMSubFromRSP     = 0xc0 | 5<<3 | byte(RSP)
	modRMRSIRipRelative = 0x00 | byte(RSI)<<3 | 0x05
	modRMRDIRipRelative = 0x00 | byte(RDI)<<3 | 0x05
)

var opSyscall = [2]byte{0x0f, 0x05}

// Encoded lengths, used both for displacement arithmetic and by front ends that
// need to know instruction offsets before emission.
const (
	LenMovImm64  = 10
	LenMovRegReg = 3
	LenSubImm32  = 7
	LenPush      = 1
	LenSyscall   = 2
	LenRet       = 1
	LenLeave     = 1
	LenJmpRel32  = 5
	LenCallRel32 = 5
	LenLeaRIP    = 7
)

type Encoder struct {
	arch arch.Arch
}

func NewEncoder() *Encoder {
	return &Encoder{arch: arch.ArchX86_64}
}

func (e *Encoder) Arch() arch.Arch { return e.arch }

// MovImmSetup writes the REX.W prefix and the mov-immediate opcode for reg. The
// 8-byte immediate is written separately by Imm64.
func (e *Encoder) MovImmSetup(buf *bytes.Buffer, reg string) error {
	op, err := lookupOpcode(movImmOpcodes, reg, "mov imm64")
	if err != nil {
		return err
	}
	buf.WriteByte(rexW)
	buf.WriteByte(op)
	return nil
}

func (e *Encoder) Imm64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func (e *Encoder) Push(buf *bytes.Buffer, reg string) error {
	op, err := lookupOpcode(pushOpcodes, reg, "push")
	if err != nil {
		return err
	}
	buf.WriteByte(op)
	return nil
}

func (e *Encoder) Syscall(buf *bytes.Buffer) {
	buf.Write(opSyscall[:])
}

func (e *Encoder) Ret(buf *bytes.Buffer) {
	buf.WriteByte(opRet)
}

func (e *Encoder) Leave(buf *bytes.Buffer) {
	buf.WriteByte(opLeave)
}

// MovRegReg encodes mov dst, src. Only mov rbp, rsp is supported.
func (e *Encoder) MovRegReg(buf *bytes.Buffer, dst, src string) error {
	d, dok := ParseRegister(dst)
	s, sok := ParseRegister(src)
	if !dok || !sok || d != RBP || s != RSP {
		return fmt.Errorf("mov %s, %s: %w", dst, src, ErrUnsupportedOperand)
	}
	buf.WriteByte(rexW)
	buf.WriteByte(opMovRM)
	buf.WriteByte(modRMRegRSPToRBP)
	return nil
}

// SubImm32 encodes sub dst, imm32. Only rsp is supported. There is no sub r64,
// imm64 form, so v is truncated to 32 bits; truncated reports whether that lost
// information.
func (e *Encoder) SubImm32(buf *bytes.Buffer, dst string, v int64) (truncated bool, err error) {
	d, ok := ParseRegister(dst)
	if !ok || d != RSP {
		return false, fmt.Errorf("sub %s: %w", dst, ErrUnsupportedOperand)
	}
	buf.WriteByte(rexW)
	buf.WriteByte(opGroup1)
	buf.WriteByte(modRMSubFromRSP)
	writeInt32(buf, int32(v))
	return v < math.MinInt32 || v > math.MaxInt32, nil
}

func (e *Encoder) JmpRel32(buf *bytes.Buffer, disp int32) {
	buf.WriteByte(opJmpRel32)
	writeInt32(buf, disp)
}

func (e *Encoder) CallRel32(buf *bytes.Buffer, disp int32) {
	buf.WriteByte(opCallRel32)
	writeInt32(buf, disp)
}

// LeaRIP encodes lea dst, [rip+disp] for rsi and rdi.
func (e *Encoder) LeaRIP(buf *bytes.Buffer, dst string, disp int32) error {
	modrm, err := lookupOpcode(leaModRM, dst, "lea")
	if err != nil {
		return err
	}
	buf.WriteByte(rexW)
	buf.WriteByte(opLea)
	buf.WriteByte(modrm)
	writeInt32(buf, disp)
	return nil
}

// Rel32 returns the displacement from the end of an insLen-byte instruction at
// site to target.
func Rel32(target, site, insLen int64) (int32, error) {
	d := target - site - insLen
	if d < math.MinInt32 || d > math.MaxInt32 {
		return 0, fmt.Errorf("%d: %w", d, ErrDisplacementRange)
	}
	return int32(d), nil
}

func lookupOpcode(table map[Register]byte, name, form string) (byte, error) {
	r, ok := ParseRegister(name)
	if !ok {
		return 0, fmt.Errorf("%s %q: unknown register: %w", form, name, ErrUnsupportedOperand)
	}
	op, ok := table[r]
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", form, r, ErrUnsupportedOperand)
	}
	return op, nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}
