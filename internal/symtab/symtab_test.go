package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndResolve(t *testing.T) {
	tab := New(DefaultCapacity)
	require.NoError(t, tab.Add(Symbol{Name: "_start", Kind: KindLabel, Section: SectionText}))
	require.NoError(t, tab.Add(Symbol{Name: "msg", Kind: KindLabel, Section: SectionData, Location: 4, Size: 6}))

	s, err := tab.Resolve("msg")
	require.NoError(t, err)
	assert.Equal(t, SectionData, s.Section)
	assert.Equal(t, int64(4), s.Location)

	_, err = tab.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Equal(t, 2, tab.Len())
}

func TestLabelAndExternShareName(t *testing.T) {
	tab := New(0)
	require.NoError(t, tab.Add(Symbol{Name: "f", Kind: KindLabel, Section: SectionText, Location: 8}))
	require.NoError(t, tab.Add(Symbol{Name: "f", Kind: KindExtern, Section: SectionText}))

	assert.Len(t, tab.Lookup("f"), 2)

	_, err := tab.Resolve("f")
	assert.ErrorIs(t, err, ErrAmbiguousSymbol)

	l, err := tab.ResolveKind("f", KindLabel)
	require.NoError(t, err)
	assert.Equal(t, int64(8), l.Location)

	e, err := tab.ResolveKind("f", KindExtern)
	require.NoError(t, err)
	assert.Equal(t, KindExtern, e.Kind)
}

func TestDuplicateRejected(t *testing.T) {
	tab := New(0)
	require.NoError(t, tab.Add(Symbol{Name: "puts", Kind: KindExtern}))
	err := tab.Add(Symbol{Name: "puts", Kind: KindExtern})
	assert.ErrorIs(t, err, ErrDuplicateSymbol)
	assert.Equal(t, 1, tab.Len())
}

func TestCapacity(t *testing.T) {
	tab := New(2)
	require.NoError(t, tab.Add(Symbol{Name: "a", Kind: KindLabel}))
	require.NoError(t, tab.Add(Symbol{Name: "b", Kind: KindLabel}))
	err := tab.Add(Symbol{Name: "c", Kind: KindLabel})
	assert.ErrorIs(t, err, ErrSymbolTableFull)
	assert.Equal(t, 2, tab.Len())

	unbounded := New(0)
	for i := 0; i < DefaultCapacity+1; i++ {
		require.NoError(t, unbounded.Add(Symbol{Name: string(rune('a'+i%26)) + string(rune('0'+i/26)), Kind: KindLabel}))
	}
	assert.Equal(t, DefaultCapacity+1, unbounded.Len())
}

func TestSetLocation(t *testing.T) {
	tab := New(0)
	require.NoError(t, tab.Add(Symbol{Name: "puts", Kind: KindExtern}))
	require.NoError(t, tab.SetLocation("puts", KindExtern, 0x2a))
	assert.Equal(t, int64(0x2a), tab.Lookup("puts")[0].Location)

	err := tab.SetLocation("puts", KindLabel, 1)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestSymbolsPreserveOrderAndClone(t *testing.T) {
	tab := New(0)
	for _, n := range []string{"z", "a", "m"} {
		require.NoError(t, tab.Add(Symbol{Name: n, Kind: KindLabel}))
	}
	var names []string
	for _, s := range tab.Symbols() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)

	c := tab.Clone()
	require.NoError(t, c.SetLocation("a", KindLabel, 99))
	assert.Equal(t, int64(0), tab.Lookup("a")[0].Location)
	assert.Equal(t, int64(99), c.Lookup("a")[0].Location)
}
