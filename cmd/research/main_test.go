package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func workspaceDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"auth.py":         "import jwt\n\ndef authenticate_user(name, password):\n    token = jwt.encode(name)\n    return token\n",
		"utils.py":        "def hash_password(p):\n    return p\n",
		"config/app.yaml": "auth:\n  jwt_secret: changeme\n",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"research"}, args...))
	return out.String(), err
}

func exitCode(err error) int {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

func TestRunCommandJSON(t *testing.T) {
	root := workspaceDir(t)
	out, err := run(t, "run", "--workspace", root, "--max-iterations", "1", "--format", "json", "authentication")
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "completed", rep["status"])
	assert.Equal(t, float64(1), rep["iterations_run"])
	top := rep["top_results"].([]any)
	require.NotEmpty(t, top)
	assert.Equal(t, "auth.py", top[0].(map[string]any)["path"])
}

func TestRunCommandWritesOutputFile(t *testing.T) {
	root := workspaceDir(t)
	path := filepath.Join(t.TempDir(), "report.md")
	out, err := run(t, "run", "-w", root, "--max-iterations", "1", "-f", "markdown", "-o", path, "password")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Research: password")
}

func TestRunCommandInvalidConfigExitsWithTwo(t *testing.T) {
	root := workspaceDir(t)
	_, err := run(t, "run", "--workspace", root, "--max-iterations", "0", "authentication")
	require.Error(t, err)
	assert.Equal(t, exitInvalidConfig, exitCode(err))

	_, err = run(t, "run", "--workspace", root, "--strategy", "telepathy", "authentication")
	assert.Equal(t, exitInvalidConfig, exitCode(err))

	_, err = run(t, "run", "--workspace", filepath.Join(root, "missing"), "authentication")
	assert.Equal(t, exitInvalidConfig, exitCode(err))

	_, err = run(t, "run", "--workspace", root)
	assert.Equal(t, exitInvalidConfig, exitCode(err))

	_, err = run(t, "run", "--workspace", root, "--format", "xml", "authentication")
	assert.Equal(t, exitInvalidConfig, exitCode(err))
}

func TestStrategiesCommand(t *testing.T) {
	root := workspaceDir(t)
	out, err := run(t, "strategies", "--workspace", root, "jwt config settings")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategies: dense, sparse, hybrid, literal, fuzzy, config")
	assert.Contains(t, out, "configuration vocabulary")

	out, err = run(t, "strategies", "--workspace", root, "-s", "sparse", "-s", "dense", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategies: dense, sparse")
}

func TestIndexCommand(t *testing.T) {
	root := workspaceDir(t)
	out, err := run(t, "index", "--workspace", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Files:        3")
	assert.Contains(t, out, "Documents:    3")
	assert.NotContains(t, out, "Skipped")
}
