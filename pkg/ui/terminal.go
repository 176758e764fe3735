package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ASCIILogo is printed by the CLI banner
const ASCIILogo = `
   ┌─┐┌─┐┬  ┬  ┌─┐┬ ┬┌─┐┬─┐┌─┐┌─┐┬ ┬
   ├┤ │ ││  │  │ ││││├─┤├┬┘├─┤├─┘├─┤
   └  └─┘┴─┘┴─┘└─┘└┴┘└─┘┴└─┴ ┴┴  ┴ ┴`

// Out receives every Print* call. Use SetOutput to change it.
var Out io.Writer = os.Stdout

var colorOn = colorSupported(os.Stdout)

// SetOutput redirects terminal output. Colour stays on only when w is a
// terminal and NO_COLOR is unset.
func SetOutput(w io.Writer) {
	Out = w
	colorOn = colorSupported(w)
}

func colorSupported(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var (
	Cyan    = colorize("36")
	Yellow  = colorize("33")
	Red     = colorize("31")
	Green   = colorize("32")
	Magenta = colorize("35")
	Dim     = colorize("2")
)

func colorize(code string) func(string) string {
	return func(text string) string {
		if !colorOn {
			return text
		}
		return "\033[" + code + "m" + text + "\033[0m"
	}
}

// PrintLogo prints the banner with the build version
func PrintLogo(version string) {
	fmt.Fprintln(Out, Cyan(ASCIILogo))
	fmt.Fprintln(Out, Dim("     follow graph crawler and matrix builder "+version))
	fmt.Fprintln(Out)
}

// PrintError prints msg in red, followed by the first arg if any
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintln(Out, Red(withDetail(msg, args)))
}

// PrintWarning prints msg in yellow, followed by the first arg if any
func PrintWarning(msg string, args ...interface{}) {
	fmt.Fprintln(Out, Yellow(withDetail(msg, args)))
}

func withDetail(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, args[0])
}

func PrintSuccess(msg string) {
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// Field is one labelled value of a PrintFields block
type Field struct {
	Label string
	Value interface{}
}

// PrintFields prints fields with their values aligned in one column
func PrintFields(fields ...Field) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}
	for _, f := range fields {
		pad := strings.Repeat(" ", width-len(f.Label))
		fmt.Fprintf(Out, "%s:%s %s\n", Cyan(f.Label), pad, Yellow(fmt.Sprint(f.Value)))
	}
}

// PrintCrawlSummary prints the outcome of a crawl. An interrupted crawl is
// reported as a warning since its checkpoint was saved.
func PrintCrawlSummary(s CrawlSummary) {
	if s.Err != nil {
		PrintWarning(s.Direction+" crawl interrupted", fmt.Sprintf("%d users left, checkpoint saved", s.Remaining))
		return
	}
	PrintSuccess(fmt.Sprintf("%s crawl finished in %s: %d resolved, %d errors, %d retried, %d left",
		s.Direction, formatDuration(s.Elapsed), s.Resolved, s.Errored, s.Retried, s.Remaining))
	if s.Backup != "" {
		PrintInfo("Backup", s.Backup)
	}
}

// PrintTileSummary prints the outcome of a matrix build
func PrintTileSummary(name string, computed, skipped, count int) {
	PrintSuccess(fmt.Sprintf("Matrix %s ready: %d tiles computed, %d skipped, count %d",
		name, computed, skipped, count))
}
