package clip_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	atotto "github.com/atotto/clipboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/clip"
)

var errNoClipboard = errors.New("no clipboard")

func failNative(string) error { return errNoClipboard }

func TestCopy_Native(t *testing.T) {
	if atotto.Unsupported {
		t.Skip("native clipboard unsupported on this platform")
	}
	var got string
	c := clip.NewForTest(func(s string) error { got = s; return nil }, nil, false, nil, t.TempDir())

	res, err := c.Copy("# report")
	require.NoError(t, err)
	assert.Equal(t, clip.MethodNative, res.Method)
	assert.Equal(t, "# report", got)
	assert.Equal(t, "report copied to clipboard", res.String())
}

func TestCopy_OSC52(t *testing.T) {
	var term bytes.Buffer
	c := clip.NewForTest(failNative, &term, true, nil, t.TempDir())

	res, err := c.Copy("hello")
	require.NoError(t, err)
	assert.Equal(t, clip.MethodOSC52, res.Method)
	assert.True(t, strings.HasPrefix(term.String(), "\x1b]52;c;"))
}

func TestCopy_OSC52Tmux(t *testing.T) {
	var term bytes.Buffer
	c := clip.NewForTest(failNative, &term, true, map[string]string{"TMUX": "1"}, t.TempDir())

	_, err := c.Copy("hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(term.String(), "\x1bPtmux;"))
}

func TestCopy_FileFallback(t *testing.T) {
	c := clip.NewForTest(failNative, nil, false, nil, t.TempDir())

	res, err := c.Copy("saved text")
	require.NoError(t, err)
	assert.Equal(t, clip.MethodFile, res.Method)
	assert.True(t, strings.HasSuffix(res.Path, ".md"))
	assert.Contains(t, res.String(), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "saved text", string(data))
}

func TestCopy_TooLargeForOSC52FallsBackToFile(t *testing.T) {
	var term bytes.Buffer
	c := clip.NewForTest(failNative, &term, true, nil, t.TempDir())

	res, err := c.Copy(strings.Repeat("x", 100_001))
	require.NoError(t, err)
	assert.Equal(t, clip.MethodFile, res.Method)
	assert.Zero(t, term.Len())
}

func TestCopy_Empty(t *testing.T) {
	c := clip.NewForTest(failNative, nil, false, nil, t.TempDir())
	_, err := c.Copy("")
	assert.Error(t, err)
}

func TestCopy_TempDirMissing(t *testing.T) {
	c := clip.NewForTest(failNative, nil, false, nil, "/nonexistent/gate-clip-dir")
	_, err := c.Copy("text")
	assert.Error(t, err)
}
