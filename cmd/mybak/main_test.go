package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/mybak/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mybak dev")
}

func TestListCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "20240309_FULL_0_100.xb.zst"), []byte("x"), 0o600))

	out, err := execute(t, "list", "--dir", root, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "20240309_FULL_0_100.xb.zst")
	assert.Contains(t, out, "next data backup: FULL")
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "run", "--dir", t.TempDir(), "--keep", "0", "--log-level", "error")
	require.Error(t, err)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "keep", verr.Flag)
}

func TestRunRejectsBadMode(t *testing.T) {
	_, err := execute(t, "run", "--mode", "3", "--dir", t.TempDir(), "--log-level", "error")
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mode", verr.Flag)
}

func TestListRejectsWeekdayOutOfRange(t *testing.T) {
	_, err := execute(t, "list", "--dir", t.TempDir(), "--weekday", "9", "--log-level", "error")
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "weekday", verr.Flag)
}

func TestRunValidatesBeforeDiscovery(t *testing.T) {
	_, err := execute(t, "run", "--mode", "logs", "--dir", filepath.Join(t.TempDir(), "absent"),
		"--dsn", "u:p@tcp(127.0.0.1:1)/", "--log-level", "error")
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dir", verr.Flag)
}
