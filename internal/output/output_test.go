package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PlainModeHasNoEscapeCodes(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Header("Entity Types")
	w.Success("fit complete")
	w.Warning("stale index")
	w.Error("backend down")
	w.KeyValue("indexed", "42")

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "plain mode must not emit ANSI sequences")
	assert.Contains(t, out, "✓ fit complete")
	assert.Contains(t, out, "! stale index")
	assert.Contains(t, out, "✗ backend down")
	assert.Contains(t, out, "indexed:")
}

func TestWriter_MessagesEndWithNewline(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Successf("indexed %d documents", 7)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "indexed 7 documents")
}

func TestWriter_QuietSuppressesAllButErrors(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)
	w.SetQuiet(true)

	w.Header("Entity Types")
	w.Success("fit complete")
	w.Warning("stale index")
	w.Plain("details")
	w.KeyValue("indexed", "42")
	w.Error("backend down")

	assert.Equal(t, "✗ backend down\n", buf.String())
}

func TestIsTTY_FalseForBuffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}
