package clip

import "io"

// NewForTest builds a copier with injected backends.
func NewForTest(native func(string) error, terminal io.Writer, tty bool, env map[string]string, tempDir string) *Copier {
	return &Copier{
		native:   native,
		terminal: terminal,
		isTTY:    func() bool { return tty },
		getenv:   func(k string) string { return env[k] },
		tempDir:  tempDir,
	}
}
