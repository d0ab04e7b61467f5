// Command bindump prints the symbols a Mach-O image imports through its dyld
// bind and lazy bind opcodes, or disassembles the opcode streams.
//
//	bindump [-c config] [-json] [-opcodes] [-arch name] [-concurrent] [-V] <macho>
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/appsworld/go-macho-bind/internal/config"
)

func main() {
	var (
		cfgPath    = flag.String("c", "", "Path to a YAML or TOML config file")
		jsonOut    = flag.Bool("json", false, "Print imports as JSON")
		opcodes    = flag.Bool("opcodes", false, "Disassemble the bind opcode streams instead of resolving imports")
		arch       = flag.String("arch", "", "Image of a universal binary to read (e.g. arm64, x86_64)")
		concurrent = flag.Bool("concurrent", false, "Run the bind and lazy bind passes concurrently")
		verbose    = flag.Bool("V", false, "Verbose debug logging")
		color      = flag.String("color", "", "Colorize output: auto, always or never")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bindump [-c config] [-json] [-opcodes] [-arch name] [-concurrent] [-V] <macho>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// flags that were given win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "json":
			if *jsonOut {
				cfg.Format = config.FormatJSON
			}
		case "opcodes":
			if *opcodes {
				cfg.Format = config.FormatOpcodes
			}
		case "arch":
			cfg.Arch = *arch
		case "concurrent":
			cfg.Concurrent = *concurrent
		case "V":
			cfg.Verbose = *verbose
		case "color":
			cfg.Color = *color
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, flag.Arg(0), os.Stdout, log); err != nil {
		log.Debug("bindump failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger returns a development logger when verbose and otherwise a
// production logger that only reports warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
