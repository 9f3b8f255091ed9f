package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiffCommand_NoChanges(t *testing.T) {
	snap := `{"subdomain":"a.example.com","ips":["1.1.1.1"],"status":"resolved"}` + "\n"
	oldPath := writeSnapshot(t, "old.jsonl", snap)
	newPath := writeSnapshot(t, "new.jsonl", snap)

	root := newRootCommand()
	root.SetArgs([]string{"diff", oldPath, newPath, "--fail-on-changes"})
	assert.NoError(t, root.Execute())
}

func TestDiffCommand_FailOnChanges(t *testing.T) {
	oldPath := writeSnapshot(t, "old.jsonl", `{"subdomain":"a.example.com","ips":["1.1.1.1"],"status":"resolved"}`+"\n")
	newPath := writeSnapshot(t, "new.jsonl", `{"subdomain":"a.example.com","ips":["2.2.2.2"],"status":"resolved"}`+"\n")

	root := newRootCommand()
	root.SetArgs([]string{"diff", oldPath, newPath, "--fail-on-changes"})
	err := root.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitFailure, ee.code)
}

func TestDiffCommand_MissingFileIsUsageError(t *testing.T) {
	newPath := writeSnapshot(t, "new.jsonl", "")

	root := newRootCommand()
	root.SetArgs([]string{"diff", filepath.Join(t.TempDir(), "absent.jsonl"), newPath})
	err := root.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitUsage, ee.code)
}

func TestDiffCommand_InvalidLineIsUsageError(t *testing.T) {
	oldPath := writeSnapshot(t, "old.jsonl", "garbage\n")
	newPath := writeSnapshot(t, "new.jsonl", "")

	root := newRootCommand()
	root.SetArgs([]string{"diff", oldPath, newPath})
	err := root.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitUsage, ee.code)
}

func TestScanCommand_MutuallyExclusiveFlags(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{
		"scan",
		"--domain", "example.com",
		"--wordlist", "-",
		"--only-resolved",
		"--status", "resolved",
	})
	err := root.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitUsage, ee.code)
}

func TestScanCommand_ResumeRequiresFileOut(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{
		"scan",
		"--domain", "example.com",
		"--wordlist", "-",
		"--out", "-",
		"--resume",
	})
	err := root.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitUsage, ee.code)
}
