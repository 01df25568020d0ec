package progress

import (
	"fmt"
	"io"
	"strings"
)

// barWidth is the number of cells in a rendered bar.
const barWidth = 30

// Renderer draws stream updates as a single progress bar line on a terminal.
type Renderer struct {
	output io.Writer
}

// NewRenderer creates a Renderer writing to the given output.
func NewRenderer(output io.Writer) *Renderer {
	return &Renderer{output: output}
}

// Render redraws the bar for every update until the channel is closed.
func (r *Renderer) Render(updates <-chan Update) {
	for update := range updates {
		// Clear the current line using ANSI escape codes
		_, _ = fmt.Fprint(r.output, "\r\033[K", Line(update))
		if update.Final {
			_, _ = fmt.Fprintln(r.output)
		}
	}
}

// Line formats an update as a bar followed by the percentage and message.
func Line(update Update) string {
	percent := min(max(update.Percent, 0), 100)
	filled := percent * barWidth / 100

	return fmt.Sprintf("[%s%s] %3d%% %s",
		strings.Repeat("=", filled),
		strings.Repeat(" ", barWidth-filled),
		percent,
		update.Message)
}
