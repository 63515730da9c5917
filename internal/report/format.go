package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one successfully produced file.
type Row struct {
	Name       string
	SourceSize int
	OutputSize int
	GzipSize   int
}

// Line is a Row rendered to display strings, padded so every Line from the
// same Layout call lines up in a monospace block.
type Line struct {
	Name   string
	Source string
	Output string
	Gzip   string
}

// FormatSize renders a byte count as kilobytes with two decimals.
func FormatSize(bytes int) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1000)
}

// Layout pads names on the right and sizes on the left to the widest value of
// each column. Rows keep their order.
func Layout(rows []Row) []Line {
	lines := make([]Line, len(rows))

	var nameWidth, srcWidth, outWidth, gzWidth int
	for i, row := range rows {
		lines[i] = Line{
			Name:   row.Name,
			Source: FormatSize(row.SourceSize),
			Output: FormatSize(row.OutputSize),
			Gzip:   FormatSize(row.GzipSize),
		}
		nameWidth = max(nameWidth, lipgloss.Width(lines[i].Name))
		srcWidth = max(srcWidth, lipgloss.Width(lines[i].Source))
		outWidth = max(outWidth, lipgloss.Width(lines[i].Output))
		gzWidth = max(gzWidth, lipgloss.Width(lines[i].Gzip))
	}

	for i := range lines {
		lines[i].Name = padRight(lines[i].Name, nameWidth)
		lines[i].Source = padLeft(lines[i].Source, srcWidth)
		lines[i].Output = padLeft(lines[i].Output, outWidth)
		lines[i].Gzip = padLeft(lines[i].Gzip, gzWidth)
	}

	return lines
}

// Format renders rows as plain text, one string per row.
func Format(rows []Row, outDir string) []string {
	out := make([]string, 0, len(rows))
	for _, l := range Layout(rows) {
		out = append(out, outDir+l.Name+"  "+l.Source+" kB │ "+l.Output+" kB │ gzip: "+l.Gzip+" kB")
	}
	return out
}

func padRight(s string, width int) string {
	return s + strings.Repeat(" ", max(0, width-lipgloss.Width(s)))
}

func padLeft(s string, width int) string {
	return strings.Repeat(" ", max(0, width-lipgloss.Width(s))) + s
}
