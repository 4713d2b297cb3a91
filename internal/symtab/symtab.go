package symtab

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrAmbiguousSymbol = errors.New("ambiguous symbol")
	ErrSymbolTableFull = errors.New("symbol table full")
	ErrDuplicateSymbol = errors.New("duplicate symbol")
)

// DefaultCapacity matches the fixed table size the front end was written against.
const DefaultCapacity = 100

type Kind int

const (
	KindOther Kind = iota
	KindLabel
	KindExtern
)

func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "Label"
	case KindExtern:
		return "Extern"
	default:
		return "Other"
	}
}

type Section string

const (
	SectionText Section = ".text"
	SectionData Section = ".data"
)

type Symbol struct {
	Name     string
	Kind     Kind
	Section  Section
	Location int64
	Size     int64
	Global   bool
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s %s %s+%#x", s.Kind, s.Name, s.Section, s.Location)
}

// Table is an insertion-ordered symbol table. A name may be bound at most once
// per kind, so a Label and an Extern can share a name.
type Table struct {
	capacity int
	entries  []*Symbol
	byName   map[string][]*Symbol
}

// New returns a table holding at most capacity symbols; capacity <= 0 means no
// bound.
func New(capacity int) *Table {
	return &Table{
		capacity: capacity,
		byName:   make(map[string][]*Symbol),
	}
}

func (t *Table) Add(s Symbol) error {
	if t.capacity > 0 && len(t.entries) >= t.capacity {
		return fmt.Errorf("adding %s (capacity %d): %w", s.Name, t.capacity, ErrSymbolTableFull)
	}
	for _, e := range t.byName[s.Name] {
		if e.Kind == s.Kind {
			return fmt.Errorf("%s %s: %w", s.Kind, s.Name, ErrDuplicateSymbol)
		}
	}
	e := s
	t.entries = append(t.entries, &e)
	t.byName[s.Name] = append(t.byName[s.Name], &e)
	return nil
}

// Lookup returns every entry named name, in insertion order.
func (t *Table) Lookup(name string) []*Symbol {
	return t.byName[name]
}

// Resolve returns the single entry named name, whatever its kind.
func (t *Table) Resolve(name string) (*Symbol, error) {
	return exactlyOne(name, t.byName[name])
}

func (t *Table) ResolveKind(name string, kind Kind) (*Symbol, error) {
	for _, e := range t.byName[name] {
		if e.Kind == kind {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w", kind, name, ErrUnknownSymbol)
}

func (t *Table) SetLocation(name string, kind Kind, loc int64) error {
	s, err := t.ResolveKind(name, kind)
	if err != nil {
		return err
	}
	s.Location = loc
	return nil
}

// Symbols returns copies of all entries in insertion order.
func (t *Table) Symbols() []Symbol {
	out := make([]Symbol, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Capacity() int { return t.capacity }

// Clone returns an independent copy; mutations of one table are not visible in
// the other.
func (t *Table) Clone() *Table {
	c := New(t.capacity)
	for _, e := range t.entries {
		// Cannot fail: the source table already satisfied both invariants.
		_ = c.Add(*e)
	}
	return c
}

func exactlyOne(name string, matches []*Symbol) (*Symbol, error) {
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownSymbol)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%s matches %d symbols: %w", name, len(matches), ErrAmbiguousSymbol)
	}
}
