package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/coverage"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Box drawing characters (Unicode)
const (
	boxTopLeft     = "╔"
	boxTopRight    = "╗"
	boxBottomLeft  = "╚"
	boxBottomRight = "╝"
	boxHorizontal  = "═"
	boxVertical    = "║"
	boxTeeRight    = "╠"
	boxTeeLeft     = "╣"
)

const consoleWidth = 60

var entityLabels = map[coverage.CounterEntity]string{
	coverage.EntityInstruction: "Instructions",
	coverage.EntityBranch:      "Branches",
	coverage.EntityLine:        "Lines",
	coverage.EntityComplexity:  "Complexity",
	coverage.EntityMethod:      "Methods",
	coverage.EntityClass:       "Classes",
}

// ConsoleReporter draws a boxed summary of the bundle counters followed by
// every violated rule.
type ConsoleReporter struct {
	colorEnable bool
	showOK      bool
}

func init() {
	Register("console", func(options map[string]interface{}) (Reporter, error) {
		return NewConsoleReporter(boolOption(options, "color", IsTerminal()), boolOption(options, "show_ok", false)), nil
	})
}

// NewConsoleReporter creates a console reporter. showOK also lists the
// satisfied limits.
func NewConsoleReporter(color, showOK bool) *ConsoleReporter {
	return &ConsoleReporter{colorEnable: color, showOK: showOK}
}

func (r *ConsoleReporter) Ext() string { return "txt" }

func (r *ConsoleReporter) Write(w io.Writer, s *Summary) error {
	var sb strings.Builder
	width := consoleWidth

	name := "coverage"
	if s.Bundle != nil {
		name = s.Bundle.Name()
	}
	r.border(&sb, width, boxTopLeft, boxTopRight)
	title := fmt.Sprintf(" PROBECOV - %s ", name)
	if len(title) > width-2 {
		title = title[:width-2]
	}
	padding := (width - 2 - len(title)) / 2
	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString(strings.Repeat(" ", padding))
	sb.WriteString(r.colorize(title, colorBold+colorYellow))
	sb.WriteString(strings.Repeat(" ", width-2-padding-len(title)))
	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")
	r.border(&sb, width, boxTeeRight, boxTeeLeft)

	if s.Bundle != nil {
		for _, e := range coverage.Entities {
			c := s.Bundle.Counter(e)
			value := fmt.Sprintf("%d/%d (%s)", c.Covered, c.Total(), percent(c))
			sb.WriteString(r.formatRow(width, entityLabels[e], value, statusColor(c)))
		}
		r.border(&sb, width, boxTeeRight, boxTeeLeft)
		sb.WriteString(r.formatCoverageBar(width, s.Bundle.Counter(coverage.EntityInstruction)))
		r.border(&sb, width, boxTeeRight, boxTeeLeft)
	}

	sb.WriteString(r.formatRow(width, "Sessions", fmt.Sprintf("%d", len(s.Sessions)), colorWhite))
	violations := s.Violations()
	violColor := colorGreen
	if violations > 0 {
		violColor = colorRed + colorBold
	}
	sb.WriteString(r.formatRow(width, "Checks", fmt.Sprintf("%d", len(s.Results)), colorWhite))
	sb.WriteString(r.formatRow(width, "Violations", fmt.Sprintf("%d", violations), violColor))
	r.border(&sb, width, boxBottomLeft, boxBottomRight)

	for _, res := range s.Results {
		switch {
		case res.Result == check.Violated:
			sb.WriteString(r.colorize(res.Message(), colorRed))
			sb.WriteString("\n")
		case r.showOK:
			sb.WriteString(r.colorize(res.Message(), colorDim))
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (r *ConsoleReporter) border(sb *strings.Builder, width int, left, right string) {
	sb.WriteString(r.colorize(left, colorCyan))
	sb.WriteString(r.colorize(strings.Repeat(boxHorizontal, width-2), colorCyan))
	sb.WriteString(r.colorize(right, colorCyan))
	sb.WriteString("\n")
}

// formatRow formats a single row with label and value.
func (r *ConsoleReporter) formatRow(width int, label, value string, valueColor string) string {
	var sb strings.Builder

	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	labelWidth := 18
	sb.WriteString(r.colorize(label, colorDim))
	sb.WriteString(strings.Repeat(" ", max(0, labelWidth-len(label))))

	// Value (right aligned)
	valueWidth := width - labelWidth - 4
	if padding := valueWidth - len(value); padding > 0 {
		sb.WriteString(strings.Repeat(" ", padding))
	}
	sb.WriteString(r.colorize(value, valueColor))

	sb.WriteString(" ")
	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

// formatCoverageBar draws the covered share of c.
func (r *ConsoleReporter) formatCoverageBar(width int, c coverage.Counter) string {
	var sb strings.Builder

	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString(" ")

	barWidth := width - 6
	filledWidth := 0
	if c.Total() > 0 {
		filledWidth = int(float64(barWidth) * c.CoveredRatio())
	}
	filledWidth = min(filledWidth, barWidth)
	emptyWidth := barWidth - filledWidth

	sb.WriteString("[")
	if filledWidth > 0 {
		sb.WriteString(r.colorize(strings.Repeat("█", filledWidth), colorGreen))
	}
	if emptyWidth > 0 {
		sb.WriteString(r.colorize(strings.Repeat("░", emptyWidth), colorDim))
	}
	sb.WriteString("]")

	sb.WriteString(" ")
	sb.WriteString(r.colorize(boxVertical, colorCyan))
	sb.WriteString("\n")

	return sb.String()
}

func statusColor(c coverage.Counter) string {
	switch c.Status() {
	case coverage.StatusFullyCovered:
		return colorGreen
	case coverage.StatusNotCovered:
		return colorRed
	case coverage.StatusPartlyCovered:
		return colorYellow
	default:
		return colorWhite
	}
}

// colorize wraps text with ANSI color codes.
func (r *ConsoleReporter) colorize(text, color string) string {
	if !r.colorEnable {
		return text
	}
	return color + text + colorReset
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
