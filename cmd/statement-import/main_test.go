package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQIF = `!Type:Bank
D01/15/2024
T-1,000.00
PRENT CO
^
D01/16/2024
T2,500.00
PEMPLOYER
^
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDetect(t *testing.T) {
	path := writeFile(t, "export.txt", sampleQIF)
	out, err := run(t, "detect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "format:  qif")
	assert.Contains(t, out, "method:  signature")
	assert.Contains(t, out, "does not match the content")
}

func TestDetect_Unsupported(t *testing.T) {
	path := writeFile(t, "blob.bin", "\x00\x01\x02\x03")
	_, err := run(t, "detect", path)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	path := writeFile(t, "export.qif", sampleQIF)
	out, err := run(t, "preview", path, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "qif via generic: 2 candidates, 2 complete")
	assert.Contains(t, out, "2024-01-15")
	assert.Contains(t, out, "-1000.00")
	assert.Contains(t, out, "... 1 more")
}

func TestAnalyze_InMemory(t *testing.T) {
	path := writeFile(t, "export.qif", sampleQIF)
	out, err := run(t, "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 candidates, 0 likely duplicates")
	assert.Contains(t, out, "new")
}

func TestAnalyze_BadTolerance(t *testing.T) {
	path := writeFile(t, "export.qif", sampleQIF)
	_, err := run(t, "analyze", path, "--tolerance", "lots")
	assert.Error(t, err)
}
