// Package clip copies rendered reports to the user's clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method names the mechanism that received the report.
type Method string

const (
	MethodNative Method = "native"
	MethodOSC52  Method = "osc52"
	// MethodFile means no clipboard was reachable and the report was saved
	// to a temporary file instead.
	MethodFile Method = "file"
)

// osc52Limit caps the payload; terminals silently drop larger sequences.
const osc52Limit = 100_000

// Result tells the caller where the text went.
type Result struct {
	Method Method
	Path   string
}

// String describes the result for a status line.
func (r Result) String() string {
	switch r.Method {
	case MethodNative:
		return "report copied to clipboard"
	case MethodOSC52:
		return "report sent to terminal clipboard"
	default:
		return "clipboard unavailable, report saved to " + r.Path
	}
}

// Copier tries the native clipboard, then OSC52, then a temp file.
type Copier struct {
	native   func(string) error
	terminal io.Writer
	isTTY    func() bool
	getenv   func(string) string
	tempDir  string
}

// New returns a copier writing OSC52 sequences to stderr.
func New() *Copier {
	return &Copier{
		native:   atotto.WriteAll,
		terminal: os.Stderr,
		isTTY:    func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
		getenv:   os.Getenv,
	}
}

// Copy places text on the first available clipboard.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.native != nil && !atotto.Unsupported {
		if err := c.native(text); err == nil {
			return Result{Method: MethodNative}, nil
		}
	}
	if err := c.osc52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.saveTemp(text)
	if err != nil {
		return Result{}, fmt.Errorf("saving report: %w", err)
	}
	return Result{Method: MethodFile, Path: path}, nil
}

func (c *Copier) osc52(text string) error {
	if c.terminal == nil || c.isTTY == nil || !c.isTTY() {
		return errors.New("no terminal")
	}
	if len(text) > osc52Limit {
		return fmt.Errorf("report too large for OSC52 (%d bytes)", len(text))
	}
	seq := osc52.New(text).Limit(osc52Limit)
	switch {
	case c.getenv("TMUX") != "":
		seq = seq.Tmux()
	case c.getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.terminal)
	return err
}

func (c *Copier) saveTemp(text string) (string, error) {
	f, err := os.CreateTemp(c.tempDir, "gate-report-*.md")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
