package shell

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog/log"
)

// EnvShellPath is the environment variable consulted for an explicit shell
// executable override
const EnvShellPath = "VESPER_SHELL_PATH"

// SearchRule describes one candidate location for the shell executable.
// Rules with a GOOS restriction apply only on that platform.
type SearchRule struct {
	// GOOS restricts the rule to one platform; empty matches all platforms
	GOOS string `json:"goos,omitempty"`

	// Path is the absolute path to probe
	Path string `json:"path"`
}

// DefaultSearchRules returns the built-in lookup table of well-known shell
// install locations, in priority order
func DefaultSearchRules() []SearchRule {
	return []SearchRule{
		{GOOS: "linux", Path: "/bin/bash"},
		{GOOS: "linux", Path: "/usr/bin/bash"},
		{GOOS: "linux", Path: "/usr/local/bin/bash"},
		{GOOS: "darwin", Path: "/opt/homebrew/bin/bash"},
		{GOOS: "darwin", Path: "/usr/local/bin/bash"},
		{GOOS: "darwin", Path: "/bin/bash"},
		{GOOS: "windows", Path: `C:\Program Files\Git\bin\bash.exe`},
		{GOOS: "windows", Path: `C:\Program Files (x86)\Git\bin\bash.exe`},
		{GOOS: "windows", Path: `C:\msys64\usr\bin\bash.exe`},
	}
}

// LauncherConfig configures shell executable resolution and process startup
type LauncherConfig struct {
	// ExecPath is an explicit executable path; when set it wins over
	// everything else
	ExecPath string `json:"exec_path,omitempty"`

	// EnvOverride is the environment variable consulted for an override
	// path; defaults to EnvShellPath
	EnvOverride string `json:"env_override,omitempty"`

	// SearchRules is the ordered candidate list; defaults to
	// DefaultSearchRules()
	SearchRules []SearchRule `json:"search_rules,omitempty"`

	// FallbackName is resolved through PATH when no rule matches;
	// defaults to "bash"
	FallbackName string `json:"fallback_name,omitempty"`

	// Args are the arguments the shell is started with; defaults to
	// []string{"-s"} so the shell reads commands from stdin
	Args []string `json:"args,omitempty"`

	// WorkingDir is the process working directory; defaults to the
	// user home directory
	WorkingDir string `json:"working_dir,omitempty"`

	// Env is the process environment; nil inherits the parent environment
	Env []string `json:"-"`
}

// Launcher resolves and starts shell processes
type Launcher struct {
	cfg LauncherConfig
}

// NewLauncher creates a launcher, filling config defaults
func NewLauncher(cfg LauncherConfig) *Launcher {
	if cfg.EnvOverride == "" {
		cfg.EnvOverride = EnvShellPath
	}
	if cfg.SearchRules == nil {
		cfg.SearchRules = DefaultSearchRules()
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = "bash"
	}
	if cfg.Args == nil {
		cfg.Args = []string{"-s"}
	}
	if cfg.WorkingDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.WorkingDir = home
		}
	}
	return &Launcher{cfg: cfg}
}

// Resolve returns the shell executable path, trying in order: the explicit
// config override, the environment override, the platform search rules, and
// finally a PATH lookup of the bare name
func (l *Launcher) Resolve() (string, error) {
	if l.cfg.ExecPath != "" {
		if !isExecutable(l.cfg.ExecPath) {
			return "", fmt.Errorf("configured path %q: %w", l.cfg.ExecPath, ErrExecutableNotFound)
		}
		return l.cfg.ExecPath, nil
	}

	if override := os.Getenv(l.cfg.EnvOverride); override != "" {
		if !isExecutable(override) {
			return "", fmt.Errorf("%s=%q: %w", l.cfg.EnvOverride, override, ErrExecutableNotFound)
		}
		return override, nil
	}

	for _, rule := range l.cfg.SearchRules {
		if rule.GOOS != "" && rule.GOOS != runtime.GOOS {
			continue
		}
		if isExecutable(rule.Path) {
			return rule.Path, nil
		}
	}

	if path, err := exec.LookPath(l.cfg.FallbackName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("no %q candidate on %s: %w", l.cfg.FallbackName, runtime.GOOS, ErrExecutableNotFound)
}

// Launch starts a shell process with piped stdin/stdout/stderr
func (l *Launcher) Launch() (*Process, error) {
	path, err := l.Resolve()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, l.cfg.Args...)
	cmd.Dir = l.cfg.WorkingDir
	if l.cfg.Env != nil {
		cmd.Env = l.cfg.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Strs("args", l.cfg.Args).
		Str("working_dir", l.cfg.WorkingDir).
		Int("pid", cmd.Process.Pid).
		Msg("Shell process started")

	return &Process{
		Path:   path,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		cmd:    cmd,
	}, nil
}

// Process is a launched shell process with its pipe endpoints
type Process struct {
	// Path is the resolved executable path
	Path string

	// Stdin is the process standard input
	Stdin io.WriteCloser

	// Stdout is the process standard output
	Stdout io.ReadCloser

	// Stderr is the process standard error
	Stderr io.ReadCloser

	cmd *exec.Cmd
}

// Pid returns the process ID
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Kill forcibly terminates the process
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
