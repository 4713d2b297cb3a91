package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncgen/internal/asm"
	"ncgen/internal/config"
)

func TestFormatError(t *testing.T) {
	colorErrors = false
	assert.Equal(t, "Error: boom", formatError(errors.New("boom")))

	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("line 1: a"), errors.New("line 2: b"))
	out := formatError(errors.Wrap(merr, "parse"))
	assert.Equal(t, "Error: 2 errors occurred:\n\t* line 1: a\n\t* line 2: b", out)
}

func TestWriteDump(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.Default()
	cfg.Format = "object"
	a, err := asm.NewAssembler(cfg, log)
	require.NoError(t, err)

	res, err := a.Assemble(strings.NewReader("extern puts\nsection .text\nmain:\n call puts\n ret\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeDump(&buf, res, true))
	out := buf.String()
	assert.Contains(t, out, "# ast\n   4: Call(puts @0x0)\n")
	assert.Contains(t, out, "puts  Extern")
	assert.Contains(t, out, "0x0001  R_X86_64_PLT32  puts-4  (site 0x0)")
	assert.Contains(t, out, "00000000  e8 00 00 00 00 c3")
}
