package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarningAndErrorGoToErrOut(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "careful now")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"FILE", "VERDICT"})
	require.NoError(t, table.Append([]string{"main.go", "good"}))
	require.NoError(t, table.Render())

	assert.Contains(t, out.String(), "FILE")
	assert.Contains(t, out.String(), "main.go")
}

func TestStructured(t *testing.T) {
	type record struct {
		Name  string `json:"name" yaml:"name"`
		Count int    `json:"count" yaml:"count"`
	}

	u, out, _ := newTestUI()
	require.NoError(t, u.Structured(record{Name: "a.go", Count: 2}, FormatJSON))
	assert.Equal(t, "{\n  \"name\": \"a.go\",\n  \"count\": 2\n}\n", out.String())

	out.Reset()
	require.NoError(t, u.Structured(record{Name: "a.go", Count: 2}, FormatYAML))
	assert.Equal(t, "name: a.go\ncount: 2\n", out.String())

	err := u.Structured(record{}, "xml")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported output format"))
}

func TestConfidenceColor(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	assert.Equal(t, "90%", ConfidenceColor(0.9))
	assert.Equal(t, "50%", ConfidenceColor(0.5))
	assert.Equal(t, "0%", ConfidenceColor(0))
}
