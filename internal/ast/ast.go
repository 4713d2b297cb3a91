package ast

type Kind int

const (
	KindIntConst Kind = iota
	KindStringToken
	KindReg64
	KindPush
	KindLoadString
	KindSyscall
	KindReturn
	KindLeave
	KindJmpRel32
	KindCall
	KindLeaRSI
	KindLeaRDI
	KindBinOp
)

func (k Kind) String() string {
	switch k {
	case KindIntConst:
		return "int64"
	case KindStringToken:
		return "string"
	case KindReg64:
		return "reg64"
	case KindPush:
		return "push"
	case KindLoadString:
		return "load_string"
	case KindSyscall:
		return "syscall"
	case KindReturn:
		return "ret"
	case KindLeave:
		return "leave"
	case KindJmpRel32:
		return "jmp_rel32"
	case KindCall:
		return "call"
	case KindLeaRSI:
		return "lea_rsi"
	case KindLeaRDI:
		return "lea_rdi"
	case KindBinOp:
		return "binop"
	default:
		return "unknown"
	}
}

type Node interface {
	Kind() Kind
	Accept(v Visitor) error
}

// Visitor has one method per node variant. A new variant adds a method here, so
// every visitor must handle it before the tree compiles.
type Visitor interface {
	VisitIntConst(n *IntConst) error
	VisitStringToken(n *StringToken) error
	VisitReg64(n *Reg64) error
	VisitPush(n *Push) error
	VisitLoadString(n *StringLiteral) error
	VisitSyscall(n *Syscall) error
	VisitReturn(n *Return) error
	VisitLeave(n *Leave) error
	VisitJmpRel32(n *Jump) error
	VisitCall(n *Call) error
	VisitLeaRSI(n *LeaRSI) error
	VisitLeaRDI(n *LeaRDI) error
	VisitBinOp(n *BinOp) error
}

type IntConst struct{ Value int64 }

func (n *IntConst) Kind() Kind             { return KindIntConst }
func (n *IntConst) Accept(v Visitor) error { return v.VisitIntConst(n) }

type StringToken struct{ Text string }

func (n *StringToken) Kind() Kind             { return KindStringToken }
func (n *StringToken) Accept(v Visitor) error { return v.VisitStringToken(n) }

type Reg64 struct{ Name string }

func (n *Reg64) Kind() Kind             { return KindReg64 }
func (n *Reg64) Accept(v Visitor) error { return v.VisitReg64(n) }

type Push struct{ Name string }

func (n *Push) Kind() Kind             { return KindPush }
func (n *Push) Accept(v Visitor) error { return v.VisitPush(n) }

// StringLiteral holds the literal token text including its surrounding quotes.
type StringLiteral struct{ Text string }

func (n *StringLiteral) Kind() Kind             { return KindLoadString }
func (n *StringLiteral) Accept(v Visitor) error { return v.VisitLoadString(n) }

type Syscall struct{}

func (n *Syscall) Kind() Kind             { return KindSyscall }
func (n *Syscall) Accept(v Visitor) error { return v.VisitSyscall(n) }

type Return struct{}

func (n *Return) Kind() Kind             { return KindReturn }
func (n *Return) Accept(v Visitor) error { return v.VisitReturn(n) }

type Leave struct{}

func (n *Leave) Kind() Kind             { return KindLeave }
func (n *Leave) Accept(v Visitor) error { return v.VisitLeave(n) }

// Ref is a symbolic reference made by the instruction at byte offset Site of the
// code section.
type Ref struct {
	Target string
	Site   int64
}

type Jump struct{ Ref }

func (n *Jump) Kind() Kind             { return KindJmpRel32 }
func (n *Jump) Accept(v Visitor) error { return v.VisitJmpRel32(n) }

type Call struct{ Ref }

func (n *Call) Kind() Kind             { return KindCall }
func (n *Call) Accept(v Visitor) error { return v.VisitCall(n) }

type LeaRSI struct{ Ref }

func (n *LeaRSI) Kind() Kind             { return KindLeaRSI }
func (n *LeaRSI) Accept(v Visitor) error { return v.VisitLeaRSI(n) }

type LeaRDI struct{ Ref }

func (n *LeaRDI) Kind() Kind             { return KindLeaRDI }
func (n *LeaRDI) Accept(v Visitor) error { return v.VisitLeaRDI(n) }

type BinOpKind int

const (
	OpMovImm64 BinOpKind = iota
	OpMovRegReg
	OpSubImm64
)

func (k BinOpKind) String() string {
	switch k {
	case OpMovImm64:
		return "mov_imm64"
	case OpMovRegReg:
		return "mov_reg_reg"
	case OpSubImm64:
		return "sub_imm64"
	default:
		return "unknown"
	}
}

// BinOp stores its operands in parser-pop order: Left is the source operand and
// Right the destination.
type BinOp struct {
	Op    BinOpKind
	Left  Node
	Right Node
}

func (n *BinOp) Kind() Kind             { return KindBinOp }
func (n *BinOp) Accept(v Visitor) error { return v.VisitBinOp(n) }

type Statement struct {
	Node Node
	Line int
}

type Program struct {
	Statements []Statement
}

func (p *Program) Append(n Node, line int) {
	p.Statements = append(p.Statements, Statement{Node: n, Line: line})
}
