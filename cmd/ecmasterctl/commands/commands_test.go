package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
tick_interval: 1ms
slaves:
  - ring_position: 0
    vendor: 1
    product: 2
    domain: main
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ecmaster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))
	return path
}

// runCmd executes the root command with args and returns captured stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	os.Stdout = orig
	return buf.String(), runErr
}

func TestList_ShowsConfiguredSlave(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCmd(t, "list", "-m", "9101", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "POS")
	assert.Contains(t, out, "0x1")
}

func TestDomains_ShowsConfiguredDomain(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCmd(t, "domains", "-m", "9102", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "main")
}

func TestState_ShowsCurrentAndTarget(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCmd(t, "state", "-m", "9103", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "slave 0:")
}

func TestState_UnknownSlaveSelectorErrors(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCmd(t, "state", "-m", "9104", "-s", "7", "--config", cfg)
	assert.Error(t, err)
}

func TestSDO_RequiresDataOnWrite(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCmd(t, "sdo", "write", "0x1000", "0", "-m", "9105", "--config", cfg)
	assert.Error(t, err)
}
