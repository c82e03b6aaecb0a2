package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	berr "github.com/next-trace/scg-port-bridge/contract/errors"
)

// run executes the root command with isolated config lookup and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.ExecuteContext(t.Context())

	return out.String(), err
}

func TestInvokeInMemory(t *testing.T) {
	out, err := run(t, "", "invoke", "--input", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", out)
}

func TestInvokeFromStdinAndFile(t *testing.T) {
	out, err := run(t, "  [1,2,3]\n", "invoke")
	require.NoError(t, err)
	assert.Equal(t, "[1,2,3]\n", out)

	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte(`"hello"`), 0o600))

	out, err = run(t, "", "invoke", "--input-file", path)
	require.NoError(t, err)
	assert.Equal(t, "\"hello\"\n", out)
}

func TestInvokeHeaderCorrelation(t *testing.T) {
	out, err := run(t, "", "invoke", "--correlation", "header", "--input", `{"n":2}`)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":2}\n", out)
}

func TestInvokeRejectsInvalidJSON(t *testing.T) {
	_, err := run(t, "", "invoke", "--input", "{nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, berr.ErrSerializationFailed), "got %v", err)
}

func TestInvokeInvalidConfig(t *testing.T) {
	_, err := run(t, "", "invoke", "--transport", "nats", "--input", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url is required")

	_, err = run(t, "", "invoke", "--transport", "smoke-signals", "--input", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}

func TestInvokeConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correlation:\n  mode: field\n  field: meta.id\n"), 0o600))

	out, err := run(t, "", "--config", path, "invoke", "--input", `{"x":true}`)
	require.NoError(t, err)

	// field correlation stamps the invocation id into the document; the echo carries it back
	assert.True(t, gjson.Get(out, "x").Bool())
	assert.NotEmpty(t, gjson.Get(out, "meta.id").String())
}

func TestStreamInMemory(t *testing.T) {
	in := "{\"i\":1}\n\n{\"i\":2}\nnot-json\n{\"i\":4}\n"

	out, err := run(t, in, "stream", "--parallel", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	sort.Slice(lines, func(i, j int) bool {
		return gjson.Get(lines[i], "line").Int() < gjson.Get(lines[j], "line").Int()
	})

	assert.Equal(t, int64(1), gjson.Get(lines[0], "line").Int())
	assert.Equal(t, int64(1), gjson.Get(lines[0], "output.i").Int())
	assert.Equal(t, int64(3), gjson.Get(lines[1], "line").Int())
	assert.Equal(t, int64(2), gjson.Get(lines[1], "output.i").Int())
	assert.Equal(t, int64(4), gjson.Get(lines[2], "line").Int())
	assert.Contains(t, gjson.Get(lines[2], "error").String(), berr.ErrCodeSerializationFailed)
	assert.Equal(t, int64(5), gjson.Get(lines[3], "line").Int())
	assert.Equal(t, int64(4), gjson.Get(lines[3], "output.i").Int())
}

func TestStreamRejectsZeroParallel(t *testing.T) {
	_, err := run(t, "{}\n", "stream", "--parallel", "0")
	require.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "", "config", "--transport", "inmemory")
	require.NoError(t, err)
	assert.Contains(t, out, "transport = inmemory")
	assert.Contains(t, out, "nats.output_subject = portbridge.output")
}
