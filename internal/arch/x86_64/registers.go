package x86_64

type Register int

const (
	RAX Register = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
)

var registerNames = map[string]Register{
	"rax": RAX,
	"rcx": RCX,
	"rdx": RDX,
	"rbx": RBX,
	"rsp": RSP,
	"rbp": RBP,
	"rsi": RSI,
	"rdi": RDI,
}

func (r Register) String() string {
	for name, reg := range registerNames {
		if reg == r {
			return name
		}
	}
	return "unknown"
}

// ParseRegister matches lower-case names only.
func ParseRegister(name string) (Register, bool) {
	r, ok := registerNames[name]
	return r, ok
}

func IsRegister(name string) bool {
	_, ok := ParseRegister(name)
	return ok
}

// Registers accepted by each instruction form. Anything outside these tables is
// rejected with ErrUnsupportedOperand.
var (
	movImmOpcodes = map[Register]byte{
		RAX: opMovImmRAX,
		RDX: opMovImmRDX,
		RDI: opMovImmRDI,
		RSI: opMovImmRSI,
	}
	pushOpcodes = map[Register]byte{
		RAX: opPushRAX,
		RBP: opPushRBP,
	}
	leaModRM = map[Register]byte{
		RSI: modRMRSIRipRelative,
		RDI: modRMRDIRipRelative,
	}
)
