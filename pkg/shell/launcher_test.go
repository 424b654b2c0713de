package shell

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeShell(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestResolveExplicitOverride(t *testing.T) {
	fake := writeFakeShell(t, t.TempDir(), "mysh")

	l := NewLauncher(LauncherConfig{ExecPath: fake})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.Equal(t, fake, path)
}

func TestResolveExplicitOverrideMissing(t *testing.T) {
	l := NewLauncher(LauncherConfig{ExecPath: filepath.Join(t.TempDir(), "nope")})

	_, err := l.Resolve()
	require.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestResolveEnvOverride(t *testing.T) {
	fake := writeFakeShell(t, t.TempDir(), "envsh")
	t.Setenv("VESPER_TEST_SHELL", fake)

	l := NewLauncher(LauncherConfig{EnvOverride: "VESPER_TEST_SHELL"})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.Equal(t, fake, path)
}

func TestResolveEnvOverrideBeatsSearchRules(t *testing.T) {
	dir := t.TempDir()
	envShell := writeFakeShell(t, dir, "envsh")
	ruleShell := writeFakeShell(t, dir, "rulesh")
	t.Setenv("VESPER_TEST_SHELL", envShell)

	l := NewLauncher(LauncherConfig{
		EnvOverride: "VESPER_TEST_SHELL",
		SearchRules: []SearchRule{{Path: ruleShell}},
	})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.Equal(t, envShell, path)
}

func TestResolveSearchRules(t *testing.T) {
	dir := t.TempDir()
	fake := writeFakeShell(t, dir, "rulesh")

	l := NewLauncher(LauncherConfig{
		EnvOverride: "VESPER_TEST_UNSET",
		SearchRules: []SearchRule{
			{Path: filepath.Join(dir, "missing")},
			{GOOS: "plan9", Path: fake}, // wrong platform, skipped
			{Path: fake},
		},
	})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.Equal(t, fake, path)
}

func TestResolveSearchRulesHonorPriority(t *testing.T) {
	dir := t.TempDir()
	first := writeFakeShell(t, dir, "first")
	second := writeFakeShell(t, dir, "second")

	l := NewLauncher(LauncherConfig{
		EnvOverride: "VESPER_TEST_UNSET",
		SearchRules: []SearchRule{{Path: first}, {Path: second}},
	})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.Equal(t, first, path)
}

func TestResolveFallbackName(t *testing.T) {
	l := NewLauncher(LauncherConfig{
		EnvOverride:  "VESPER_TEST_UNSET",
		SearchRules:  []SearchRule{{Path: filepath.Join(t.TempDir(), "missing")}},
		FallbackName: "sh",
	})
	path, err := l.Resolve()

	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestResolveNotFound(t *testing.T) {
	l := NewLauncher(LauncherConfig{
		EnvOverride:  "VESPER_TEST_UNSET",
		SearchRules:  []SearchRule{{Path: filepath.Join(t.TempDir(), "missing")}},
		FallbackName: "vesper-no-such-shell-binary",
	})

	_, err := l.Resolve()
	require.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestDefaultSearchRulesCoverMajorPlatforms(t *testing.T) {
	rules := DefaultSearchRules()

	seen := map[string]bool{}
	for _, rule := range rules {
		require.NotEmpty(t, rule.Path)
		seen[rule.GOOS] = true
	}
	for _, goos := range []string{"linux", "darwin", "windows"} {
		assert.True(t, seen[goos], "no rule for %s", goos)
	}
}

func TestLaunchStartsProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	l := NewLauncher(LauncherConfig{WorkingDir: t.TempDir()})
	proc, err := l.Launch()
	require.NoError(t, err)
	defer func() {
		_ = proc.Kill()
		_ = proc.Wait()
	}()

	assert.Greater(t, proc.Pid(), 0)
	assert.NotNil(t, proc.Stdin)
	assert.NotNil(t, proc.Stdout)
	assert.NotNil(t, proc.Stderr)
}
