package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/appsworld/go-macho-bind/internal/config"
	"github.com/appsworld/go-macho-bind/pkg/bind"
)

type printer struct {
	w io.Writer

	title lipgloss.Style
	addr  lipgloss.Style
	sym   lipgloss.Style
	lib   lipgloss.Style
	attr  lipgloss.Style
	op    lipgloss.Style
}

// useColor resolves the color mode; auto only colors a terminal stdout.
func useColor(w io.Writer, mode string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newPrinter(w io.Writer, mode string) *printer {
	r := lipgloss.NewRenderer(w)
	if useColor(w, mode) {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1),
		addr:  r.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		sym:   r.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		lib:   r.NewStyle().Foreground(lipgloss.Color("#666666")),
		attr:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		op:    r.NewStyle().Foreground(lipgloss.Color("#90EE90")),
	}
}

func (p *printer) imports(path, arch string, imports []bind.Import) {
	var eager, lazy []bind.Import
	for _, imp := range imports {
		if imp.Lazy {
			lazy = append(lazy, imp)
		} else {
			eager = append(eager, imp)
		}
	}

	fmt.Fprintln(p.w, p.title.Render(fmt.Sprintf("%s (%s)", filepath.Base(path), arch)))
	p.section("Bind", eager)
	p.section("Lazy Bind", lazy)
}

func (p *printer) section(name string, imports []bind.Import) {
	fmt.Fprintf(p.w, "\n%s (%d)\n", name, len(imports))
	for _, imp := range imports {
		var attrs []string
		if imp.Weak {
			attrs = append(attrs, "weak")
		}
		if imp.Addend != 0 {
			attrs = append(attrs, fmt.Sprintf("addend=%#x", imp.Addend))
		}
		line := fmt.Sprintf("  %s  %s  %s",
			p.addr.Render(fmt.Sprintf("%#016x", imp.Address)),
			p.sym.Render(imp.Name),
			p.lib.Render(filepath.Base(imp.Dylib)))
		if len(attrs) > 0 {
			line += "  " + p.attr.Render(strings.Join(attrs, ","))
		}
		fmt.Fprintln(p.w, line)
	}
}

func (p *printer) opcodes(lazy bool, ops []bind.Op) {
	name := "bind opcodes"
	if lazy {
		name = "lazy bind opcodes"
	}
	fmt.Fprintln(p.w, p.title.Render(name))
	for _, op := range ops {
		fmt.Fprintln(p.w, p.op.Render(op.String()))
	}
	fmt.Fprintln(p.w)
}
