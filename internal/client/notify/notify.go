// Package notify delivers short user-facing notifications: the terminal
// counterpart of toast messages.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Notifier shows transient success and error messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Console writes styled notifications to an io.Writer. Colours are dropped
// automatically when w is not a terminal.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, renderer: lipgloss.NewRenderer(w)}
}

func (c *Console) Success(msg string) {
	c.print(successStyle.Renderer(c.renderer).Render("✔"), msg)
}

func (c *Console) Error(msg string) {
	c.print(errorStyle.Renderer(c.renderer).Render("✘"), msg)
}

func (c *Console) print(mark, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s\n", mark, msg)
}
