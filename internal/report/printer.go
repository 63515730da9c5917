package report

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// clearLine returns the cursor to column zero and erases the line.
const clearLine = "\r\x1b[K"

// Printer writes progress and the size report for a finalize pass. On a
// terminal progress is redrawn in place; on any other writer every event is
// its own line.
type Printer struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	pending     bool

	dim   lipgloss.Style
	name  lipgloss.Style
	size  lipgloss.Style
	fail  lipgloss.Style
	ok    lipgloss.Style
	title lipgloss.Style
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)

	return &Printer{
		w:           w,
		interactive: isTerminal(w),
		dim:         r.NewStyle().Faint(true),
		name:        r.NewStyle().Foreground(lipgloss.Color("6")),
		size:        r.NewStyle().Faint(true).Bold(true),
		fail:        r.NewStyle().Foreground(lipgloss.Color("1")),
		ok:          r.NewStyle().Foreground(lipgloss.Color("2")),
		title:       r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	// #nosec G115 - file descriptors fit in an int
	return term.IsTerminal(int(f.Fd()))
}

// Start announces a finalize pass.
func (p *Printer) Start() {
	p.println("\n" + p.title.Render("html-mila working..."))
}

// Progress shows the target currently being processed.
func (p *Printer) Progress(outDir, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.dim.Render("transforming "+outDir) + p.name.Render(name)
	if p.interactive {
		fmt.Fprint(p.w, clearLine+msg)
		p.pending = true
		return
	}
	fmt.Fprintln(p.w, msg)
}

// Fail reports a target that could not be produced.
func (p *Printer) Fail(outDir, name string, err error) {
	p.println(p.dim.Render(outDir) + p.name.Render(name) + " " + p.fail.Render("FAIL") + " " + p.dim.Render(err.Error()))
}

// Report prints the aligned size table.
func (p *Printer) Report(outDir string, rows []Row) {
	for _, l := range Layout(rows) {
		p.println(p.dim.Render(outDir) + p.name.Render(l.Name) + "  " +
			p.size.Render(l.Source+" kB") + p.dim.Render(" │ "+l.Output+" kB │ gzip: "+l.Gzip+" kB"))
	}
}

// Count prints how many targets were produced.
func (p *Printer) Count(done, total int) {
	p.println(p.ok.Render(fmt.Sprintf("%d of %d files transformed.", done, total)))
}

// Elapsed prints the wall clock time of the pass in whole milliseconds,
// rounded up.
func (p *Printer) Elapsed(d time.Duration) {
	p.println(p.ok.Render(fmt.Sprintf("✓ built in %dms", Millis(d))))
}

// Millis rounds d up to whole milliseconds.
func Millis(d time.Duration) int64 {
	return int64(math.Ceil(float64(d) / float64(time.Millisecond)))
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending {
		fmt.Fprint(p.w, clearLine)
		p.pending = false
	}
	fmt.Fprintln(p.w, s)
}
