package pipeline

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// console prints progress lines. Batch runs share one writer, so lines are
// written whole under a lock and prefixed with the target name.
type console struct {
	w      io.Writer
	mu     *sync.Mutex
	prefix string
}

func newConsole(w io.Writer, mu *sync.Mutex, prefix string) *console {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return &console{w: w, mu: mu, prefix: prefix}
}

func (c *console) line(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, c.prefix, fmt.Sprintf(format, args...), "\n")
}

func (c *console) status(symbol string, attr color.Attribute, format string, args ...any) {
	c.line("%s %s", color.New(attr).Sprint(symbol), fmt.Sprintf(format, args...))
}

func (c *console) stage(n int, name string) {
	c.line("\n%s", color.New(color.FgCyan, color.Bold).Sprintf("[%d/3] %s", n, name))
}

func (c *console) ok(format string, args ...any)   { c.status("✓", color.FgGreen, format, args...) }
func (c *console) warn(format string, args ...any) { c.status("!", color.FgYellow, format, args...) }
func (c *console) fail(format string, args ...any) { c.status("✗", color.FgRed, format, args...) }

func (c *console) banner(title string) {
	rule := strings.Repeat("=", 60)
	c.line("%s\n%s\n%s", rule, color.New(color.Bold).Sprint(title), rule)
}

// verdictPhrase is the closing remark printed under the final grade.
func verdictPhrase(letter string) (string, color.Attribute) {
	switch {
	case strings.HasPrefix(letter, "A"):
		return "Excellent work!", color.FgGreen
	case strings.HasPrefix(letter, "B"):
		return "Good job!", color.FgGreen
	case strings.HasPrefix(letter, "C"):
		return "Passing grade", color.FgYellow
	}
	return "Needs improvement", color.FgYellow
}
