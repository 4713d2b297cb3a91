package ast

// Builders never validate their input. Operand/register mismatches surface when
// the tree is emitted.

func IntType(v int64) *IntConst { return &IntConst{Value: v} }

func StringType(s string) *StringToken { return &StringToken{Text: s} }

func Register64(name string) *Reg64 { return &Reg64{Name: name} }

func PushReg64(name string) *Push { return &Push{Name: name} }

func LoadString(literal string) *StringLiteral { return &StringLiteral{Text: literal} }

func SyscallInstruction() *Syscall { return &Syscall{} }

func ReturnInstruction() *Return { return &Return{} }

func LeaveInstruction() *Leave { return &Leave{} }

func JmpRelative32(target string, site int64) *Jump {
	return &Jump{Ref{Target: target, Site: site}}
}

func CallNear(target string, site int64) *Call {
	return &Call{Ref{Target: target, Site: site}}
}

func LoadEffectiveAddressRSI(target string, site int64) *LeaRSI {
	return &LeaRSI{Ref{Target: target, Site: site}}
}

func LoadEffectiveAddressRDI(target string, site int64) *LeaRDI {
	return &LeaRDI{Ref{Target: target, Site: site}}
}

// The binary builders take operands in source order (destination first) and
// store them swapped, the order a stack-based parser pops them in.

func MovImmediate64(dst, imm Node) *BinOp {
	return &BinOp{Op: OpMovImm64, Left: imm, Right: dst}
}

func MovRegReg(dst, src Node) *BinOp {
	return &BinOp{Op: OpMovRegReg, Left: src, Right: dst}
}

func SubtractImmediate64(dst, imm Node) *BinOp {
	return &BinOp{Op: OpSubImm64, Left: imm, Right: dst}
}
