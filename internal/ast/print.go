package ast

import (
	"fmt"
	"io"
	"strings"
)

type printer struct {
	w     io.Writer
	depth int
}

func Fprint(w io.Writer, n Node) error {
	return n.Accept(&printer{w: w})
}

func FprintProgram(w io.Writer, p *Program) error {
	for _, st := range p.Statements {
		if _, err := fmt.Fprintf(w, "%4d: ", st.Line); err != nil {
			return err
		}
		if err := Fprint(w, st.Node); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) line(format string, args ...any) error {
	_, err := fmt.Fprintf(p.w, strings.Repeat("  ", p.depth)+format+"\n", args...)
	return err
}

func (p *printer) VisitIntConst(n *IntConst) error { return p.line("Int64(%d)", n.Value) }

func (p *printer) VisitStringToken(n *StringToken) error { return p.line("String(%s)", n.Text) }

func (p *printer) VisitReg64(n *Reg64) error { return p.line("Reg64(%s)", n.Name) }

func (p *printer) VisitPush(n *Push) error { return p.line("Push(%s)", n.Name) }

func (p *printer) VisitLoadString(n *StringLiteral) error {
	return p.line("LoadString(%s)", n.Text)
}

func (p *printer) VisitSyscall(n *Syscall) error { return p.line("Syscall") }

func (p *printer) VisitReturn(n *Return) error { return p.line("Return") }

func (p *printer) VisitLeave(n *Leave) error { return p.line("Leave") }

func (p *printer) VisitJmpRel32(n *Jump) error {
	return p.line("JmpRel32(%s @%#x)", n.Target, n.Site)
}

func (p *printer) VisitCall(n *Call) error {
	return p.line("Call(%s @%#x)", n.Target, n.Site)
}

func (p *printer) VisitLeaRSI(n *LeaRSI) error {
	return p.line("LeaRSI(%s @%#x)", n.Target, n.Site)
}

func (p *printer) VisitLeaRDI(n *LeaRDI) error {
	return p.line("LeaRDI(%s @%#x)", n.Target, n.Site)
}

func (p *printer) VisitBinOp(n *BinOp) error {
	if err := p.line("BinOp(%s)", n.Op); err != nil {
		return err
	}
	p.depth++
	defer func() { p.depth-- }()
	for _, child := range []Node{n.Left, n.Right} {
		if child == nil {
			if err := p.line("<nil>"); err != nil {
				return err
			}
			continue
		}
		if err := child.Accept(p); err != nil {
			return err
		}
	}
	return nil
}
