package config

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"ncgen/internal/arch"
	"ncgen/internal/codegen"
	"ncgen/internal/format"
	"ncgen/internal/symtab"
)

// Config is the on-disk configuration of ncgen. Every field can also be set
// from the environment; command line flags take precedence over both.
type Config struct {
	LogLevel string  `toml:"log_level"`
	Arch     string  `toml:"arch"`
	Format   string  `toml:"format"`
	Entry    string  `toml:"entry"`
	Symbols  Symbols `toml:"symbols"`
	Codegen  Codegen `toml:"codegen"`
	Layout   Layout  `toml:"layout"`
}

type Symbols struct {
	// Capacity bounds the symbol table, 0 means unbounded.
	Capacity int `toml:"capacity"`
}

type Codegen struct {
	RSIDataDistance int64 `toml:"rsi_data_distance"`
	RDIDataDistance int64 `toml:"rdi_data_distance"`
	CheckSites      bool  `toml:"check_sites"`
}

type Layout struct {
	// DataOffset is the distance from the start of .text to the start of
	// .data in an executable image.
	DataOffset int64 `toml:"data_offset"`
}

func Default() *Config {
	cg := codegen.DefaultConfig()
	return &Config{
		LogLevel: "warning",
		Arch:     arch.ArchX86_64.String(),
		Format:   "exec",
		Entry:    "_start",
		Symbols:  Symbols{Capacity: symtab.DefaultCapacity},
		Codegen: Codegen{
			RSIDataDistance: cg.RSIDataDistance,
			RDIDataDistance: cg.RDIDataDistance,
			CheckSites:      cg.CheckSites,
		},
		Layout: Layout{DataOffset: 0x1000},
	}
}

// Load reads path on top of the defaults and then applies environment
// overrides. An empty path skips the file. A missing file is an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading configuration file %s", path)
		}
		md, err := toml.Decode(string(contents), c)
		if err != nil {
			return nil, errors.Wrapf(err, "error decoding configuration file %s", path)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, errors.Errorf("unknown configuration key %q in %s", undec[0].String(), path)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	// env caches the environment on first use.
	env.Load()
	c.LogLevel = env.Str("NCGEN_LOG_LEVEL", c.LogLevel)
	c.Arch = env.Str("NCGEN_ARCH", c.Arch)
	c.Format = env.Str("NCGEN_FORMAT", c.Format)
	c.Entry = env.Str("NCGEN_ENTRY", c.Entry)
	c.Symbols.Capacity = env.Int("NCGEN_SYMBOL_CAPACITY", c.Symbols.Capacity)
}

func (c *Config) Validate() error {
	if c.Architecture() == arch.ArchUnknown {
		return errors.Errorf("unknown architecture %q", c.Arch)
	}
	if format.ParseFormat(c.Format) == format.FormatUnknown {
		return errors.Errorf("unknown output format %q", c.Format)
	}
	if c.Symbols.Capacity < 0 {
		return errors.Errorf("symbol capacity must not be negative, got %d", c.Symbols.Capacity)
	}
	if c.Layout.DataOffset <= 0 || c.Layout.DataOffset%0x1000 != 0 {
		return errors.Errorf("data offset %#x is not a positive multiple of the page size", c.Layout.DataOffset)
	}
	return nil
}

// Architecture is the target named by the arch key.
func (c *Config) Architecture() arch.Arch {
	return arch.ParseArch(c.Arch)
}

// CodegenConfig converts the codegen section. Object output always uses
// relocations for .data loads since section placement is up to the linker.
func (c *Config) CodegenConfig() codegen.Config {
	return codegen.Config{
		RSIDataDistance: c.Codegen.RSIDataDistance,
		RDIDataDistance: c.Codegen.RDIDataDistance,
		CheckSites:      c.Codegen.CheckSites,
		DataRelocs:      format.ParseFormat(c.Format) == format.FormatObject,
	}
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
