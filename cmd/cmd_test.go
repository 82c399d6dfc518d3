package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor/extractortest"
	"github.com/tikpoptv/terrahost/internal/quality"
)

func writeConfig(t *testing.T, worker extractortest.Worker) string {
	t.Helper()
	dir := t.TempDir()
	args, err := json.Marshal(worker.Args)
	require.NoError(t, err)

	cfg := fmt.Sprintf(`database:
  path: %q
storage:
  backend: fs
  root: %q
scratch:
  directory: %q
worker:
  binary: %q
  args: %s
  timeout: 10s
  pool_size: 1
reports:
  directory: %q
log:
  level: error
`, filepath.Join(dir, "cli.db"), filepath.Join(dir, "blobs"), filepath.Join(dir, "scratch"),
		worker.Binary, args, filepath.Join(dir, "reports"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUploadProcessVerifyReport(t *testing.T) {
	configPath := writeConfig(t, extractortest.NewWorker(t, extractortest.SampleJSON(), "", 0))

	raster := filepath.Join(t.TempDir(), "MCD18A1_20250605.tif")
	require.NoError(t, os.WriteFile(raster, append([]byte("II*\x00\x08\x00\x00\x00"), make([]byte, 256)...), 0o600))

	out, err := run(t, "upload", raster, "--owner", "cli", "--config", configPath)
	require.NoError(t, err)
	var a database.Asset
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, "cli", a.OwnerID)

	out, err = run(t, "process", a.ID, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"band_count": 3`)

	out, err = run(t, "verify", a.ID, "--strict", "--config", configPath)
	require.NoError(t, err)
	var v quality.Verification
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, quality.AuditComplete, v.Status)

	out, err = run(t, "report", a.ID, "--config", configPath)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, ".md", filepath.Ext(path))
	assert.FileExists(t, path)
}

func TestProcessUnknownAsset(t *testing.T) {
	configPath := writeConfig(t, extractortest.NewWorker(t, extractortest.SampleJSON(), "", 0))
	_, err := run(t, "process", "missing", "--config", configPath)
	assert.Error(t, err)
}

func TestVerifyStrictFailsWithoutData(t *testing.T) {
	configPath := writeConfig(t, extractortest.NewWorker(t, extractortest.SampleJSON(), "", 0))
	_, err := run(t, "verify", "missing", "--strict", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), quality.AuditNoData)
}

func TestWorkerCommand(t *testing.T) {
	configPath := writeConfig(t, extractortest.NewWorker(t, extractortest.SampleJSON(), "", 0))
	out, err := run(t, "worker", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"installed": true`)

	missing := writeConfig(t, extractortest.Worker{Binary: "terrahost-no-such-worker"})
	_, err = run(t, "worker", "--config", missing)
	assert.Error(t, err)
}
