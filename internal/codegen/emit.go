package codegen

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ncgen/internal/arch"
	"ncgen/internal/arch/x86_64"
	"ncgen/internal/ast"
	"ncgen/internal/symtab"
)

// The Visit methods implement ast.Visitor and write into the per-Emit scratch
// buffers. Call Emit rather than these directly.

func (g *Generator) VisitIntConst(n *ast.IntConst) error {
	g.enc.Imm64(&g.text, n.Value)
	return nil
}

func (g *Generator) VisitSyscall(n *ast.Syscall) error {
	g.enc.Syscall(&g.text)
	return nil
}

func (g *Generator) VisitReturn(n *ast.Return) error {
	g.enc.Ret(&g.text)
	return nil
}

func (g *Generator) VisitLeave(n *ast.Leave) error {
	g.enc.Leave(&g.text)
	return nil
}

func (g *Generator) VisitReg64(n *ast.Reg64) error {
	if err := g.enc.MovImmSetup(&g.text, n.Name); err != nil {
		return nodeError(n, n.Name, err)
	}
	return nil
}

func (g *Generator) VisitPush(n *ast.Push) error {
	if err := g.enc.Push(&g.text, n.Name); err != nil {
		return nodeError(n, n.Name, err)
	}
	return nil
}

func (g *Generator) VisitLoadString(n *ast.StringLiteral) error {
	b, err := decodeLiteral(n.Text)
	if err != nil {
		return nodeError(n, "", err)
	}
	g.lit.Write(b)
	return nil
}

// decodeLiteral drops the surrounding quotes, turns \n into a newline byte and
// appends a NUL terminator. No other escapes are recognised.
func decodeLiteral(text string) ([]byte, error) {
	if len(text) < 2 {
		return nil, fmt.Errorf("string literal %q: %w", text, x86_64.ErrUnsupportedOperand)
	}
	body := text[1 : len(text)-1]
	out := make([]byte, 0, len(body)+1)
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) && body[i+1] == 'n' {
			out = append(out, 0x0a)
			i++
			continue
		}
		out = append(out, body[i])
	}
	return append(out, 0x00), nil
}

// A bare identifier emits nothing; the lookup is only logged.
func (g *Generator) VisitStringToken(n *ast.StringToken) error {
	matches := g.table.Lookup(n.Text)
	g.log.WithFields(logrus.Fields{"node": n.Kind(), "symbol": n.Text, "matches": len(matches)}).Debug("identifier")
	return nil
}

func (g *Generator) VisitJmpRel32(n *ast.Jump) error {
	s, err := g.table.Resolve(n.Target)
	if err != nil {
		return nodeError(n, n.Target, err)
	}
	if s.Kind == symtab.KindExtern {
		return nodeError(n, n.Target, fmt.Errorf("jump to extern: %w", x86_64.ErrUnsupportedOperand))
	}
	disp, err := x86_64.Rel32(s.Location, n.Site, x86_64.LenJmpRel32)
	if err != nil {
		return nodeError(n, n.Target, err)
	}
	g.enc.JmpRel32(&g.text, disp)
	g.trace(n, n.Ref, disp)
	return nil
}

func (g *Generator) VisitCall(n *ast.Call) error {
	label, lerr := g.table.ResolveKind(n.Target, symtab.KindLabel)
	_, eerr := g.table.ResolveKind(n.Target, symtab.KindExtern)

	switch {
	case lerr == nil && eerr == nil:
		return nodeError(n, n.Target, fmt.Errorf("both label and extern: %w", symtab.ErrAmbiguousSymbol))
	case lerr == nil:
		disp, err := x86_64.Rel32(label.Location, n.Site, x86_64.LenCallRel32)
		if err != nil {
			return nodeError(n, n.Target, err)
		}
		g.enc.CallRel32(&g.text, disp)
		g.trace(n, n.Ref, disp)
	case eerr == nil:
		g.pending = append(g.pending, arch.Reloc{
			Symbol: n.Target,
			Site:   n.Site,
			Offset: n.Site + 1,
			Kind:   arch.RelocPLT32,
			Addend: -4,
		})
		g.enc.CallRel32(&g.text, 0)
		g.trace(n, n.Ref, 0)
	default:
		return nodeError(n, n.Target, symtab.ErrUnknownSymbol)
	}
	return nil
}

func (g *Generator) VisitLeaRSI(n *ast.LeaRSI) error {
	return g.lea(n, n.Ref, "rsi", g.cfg.RSIDataDistance)
}

func (g *Generator) VisitLeaRDI(n *ast.LeaRDI) error {
	return g.lea(n, n.Ref, "rdi", g.cfg.RDIDataDistance)
}

func (g *Generator) lea(n ast.Node, ref ast.Ref, dst string, dataDistance int64) error {
	s, err := g.table.Resolve(ref.Target)
	if err != nil {
		return nodeError(n, ref.Target, err)
	}
	if s.Kind == symtab.KindExtern {
		return nodeError(n, ref.Target, fmt.Errorf("address of extern: %w", x86_64.ErrUnsupportedOperand))
	}

	var target int64
	switch s.Section {
	case symtab.SectionText:
		target = s.Location
	case symtab.SectionData:
		if g.cfg.DataRelocs {
			if err := g.enc.LeaRIP(&g.text, dst, 0); err != nil {
				return nodeError(n, ref.Target, err)
			}
			g.pending = append(g.pending, arch.Reloc{
				Symbol: ref.Target,
				Site:   ref.Site,
				Offset: ref.Site + 3,
				Kind:   arch.RelocPC32,
				Addend: -4,
			})
			g.trace(n, ref, 0)
			return nil
		}
		target = dataDistance + s.Location
	default:
		return nodeError(n, ref.Target, fmt.Errorf("section %q: %w", s.Section, x86_64.ErrUnsupportedOperand))
	}

	disp, err := x86_64.Rel32(target, ref.Site, x86_64.LenLeaRIP)
	if err != nil {
		return nodeError(n, ref.Target, err)
	}
	if err := g.enc.LeaRIP(&g.text, dst, disp); err != nil {
		return nodeError(n, ref.Target, err)
	}
	g.trace(n, ref, disp)
	return nil
}

func (g *Generator) VisitBinOp(n *ast.BinOp) error {
	switch n.Op {
	case ast.OpMovImm64:
		if _, ok := n.Right.(*ast.Reg64); !ok {
			return nodeError(n, n.Op.String(), fmt.Errorf("destination %s: %w", kindOf(n.Right), x86_64.ErrUnsupportedOperand))
		}
		if _, ok := n.Left.(*ast.IntConst); !ok {
			return nodeError(n, n.Op.String(), fmt.Errorf("source %s: %w", kindOf(n.Left), x86_64.ErrUnsupportedOperand))
		}
		// Register setup first, then its immediate.
		if err := n.Right.Accept(g); err != nil {
			return err
		}
		return n.Left.Accept(g)

	case ast.OpMovRegReg:
		dst, dok := n.Right.(*ast.Reg64)
		src, sok := n.Left.(*ast.Reg64)
		if !dok || !sok {
			return nodeError(n, n.Op.String(), fmt.Errorf("operands %s, %s: %w", kindOf(n.Right), kindOf(n.Left), x86_64.ErrUnsupportedOperand))
		}
		if err := g.enc.MovRegReg(&g.text, dst.Name, src.Name); err != nil {
			return nodeError(n, n.Op.String(), err)
		}
		return nil

	case ast.OpSubImm64:
		dst, dok := n.Right.(*ast.Reg64)
		imm, iok := n.Left.(*ast.IntConst)
		if !dok || !iok {
			return nodeError(n, n.Op.String(), fmt.Errorf("operands %s, %s: %w", kindOf(n.Right), kindOf(n.Left), x86_64.ErrUnsupportedOperand))
		}
		truncated, err := g.enc.SubImm32(&g.text, dst.Name, imm.Value)
		if err != nil {
			return nodeError(n, n.Op.String(), err)
		}
		if truncated {
			g.log.WithField("value", imm.Value).Warn("sub immediate truncated to 32 bits")
		}
		return nil
	}
	return nodeError(n, n.Op.String(), x86_64.ErrUnsupportedOperand)
}

func (g *Generator) trace(n ast.Node, ref ast.Ref, disp int32) {
	g.log.WithFields(logrus.Fields{
		"node":   n.Kind(),
		"symbol": ref.Target,
		"site":   ref.Site,
		"disp":   disp,
	}).Debug("emit")
}

func kindOf(n ast.Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Kind().String()
}
