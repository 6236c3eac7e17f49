package jobs

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Confirmer decides whether a verified source may be deleted
type Confirmer interface {
	Confirm(path string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(path string) bool

func (f ConfirmFunc) Confirm(path string) bool { return f(path) }

// AutoConfirm approves every deletion (--yes)
var AutoConfirm Confirmer = ConfirmFunc(func(string) bool { return true })

// NeverConfirm keeps every source. Used when nobody can answer a prompt.
var NeverConfirm Confirmer = ConfirmFunc(func(string) bool { return false })

// PromptConfirmer asks on out and reads the answer from in
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptConfirmer creates a PromptConfirmer
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm returns true only for "y" or "yes". End of input declines.
func (p *PromptConfirmer) Confirm(path string) bool {
	fmt.Fprintf(p.out, "Delete original file '%s'? [y/N]: ", filepath.Base(path))
	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
