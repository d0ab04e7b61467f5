package main

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	macho "github.com/appsworld/go-macho-bind"
	"github.com/appsworld/go-macho-bind/internal/config"
	"github.com/appsworld/go-macho-bind/pkg/bind"
	"github.com/appsworld/go-macho-bind/types"
)

// image is one thin Mach-O picked out of the file on disk.
type image struct {
	*macho.File
	arch   string
	closer io.Closer
}

func (i *image) Close() error { return i.closer.Close() }

// openImage opens path as a universal binary and falls back to a thin one.
// arch selects the universal slice; empty means the first one.
func openImage(path, arch string, log *zap.Logger) (*image, error) {
	fc := macho.FileConfig{Logger: log}

	ff, err := macho.OpenFat(path, fc)
	if err == nil {
		a := &ff.Arches[0]
		if arch != "" {
			cpu, ok := types.CPUByName(arch)
			if !ok {
				ff.Close()
				return nil, fmt.Errorf("unknown architecture %q", arch)
			}
			if a = ff.Arch(cpu); a == nil {
				ff.Close()
				return nil, fmt.Errorf("%s does not contain a %s image", path, arch)
			}
		}
		log.Debug("opened universal binary",
			zap.String("path", path),
			zap.Int("arches", len(ff.Arches)),
			zap.Stringer("arch", a.CPU))
		return &image{File: a.File, arch: a.CPU.String(), closer: ff}, nil
	}
	if !macho.IsNotFat(err) {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	f, err := macho.Open(path, fc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if arch != "" && arch != f.CPU.String() {
		f.Close()
		return nil, fmt.Errorf("%s is a thin %s image, not %s", path, f.CPU, arch)
	}
	return &image{File: f, arch: f.CPU.String(), closer: f}, nil
}

func interpreterOptions(cfg *config.Config) []bind.Option {
	var opts []bind.Option
	if cfg.Concurrent {
		opts = append(opts, bind.WithConcurrentPasses())
	}
	if cfg.MaxImports != 0 {
		opts = append(opts, bind.WithMaxImports(cfg.MaxImports))
	}
	return opts
}

func run(cfg *config.Config, path string, w io.Writer, log *zap.Logger) error {
	img, err := openImage(path, cfg.Arch, log)
	if err != nil {
		return err
	}
	defer img.Close()

	p := newPrinter(w, cfg.Color)

	switch cfg.Format {
	case config.FormatOpcodes:
		bi, err := img.BindInterpreter(interpreterOptions(cfg)...)
		if err != nil {
			return err
		}
		for _, lazy := range []bool{false, true} {
			ops, err := bi.Disassemble(lazy)
			if err != nil {
				return fmt.Errorf("failed to disassemble: %w", err)
			}
			p.opcodes(lazy, ops)
		}
		return nil
	case config.FormatJSON:
		imports, err := img.Imports(interpreterOptions(cfg)...)
		if err != nil {
			return err
		}
		if imports == nil {
			imports = []bind.Import{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(imports)
	default:
		imports, err := img.Imports(interpreterOptions(cfg)...)
		if err != nil {
			return err
		}
		p.imports(path, img.arch, imports)
		return nil
	}
}
