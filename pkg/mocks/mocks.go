package mocks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marketpack/marketpack/pkg/runner"
)

// BuildToolRunner simulates the engine build tools. BuildPlugin writes a
// package tree into the directory given by its -Package= argument; other
// commands only print. Exit codes can be scripted per engine version.
type BuildToolRunner struct {
	mu        sync.Mutex
	exitCodes map[string]int
	startErr  error
	calls     []runner.Command
	versions  []string

	// Files are written below the package directory on a successful build
	Files map[string]string
	// OnInvoke runs before every simulated command
	OnInvoke func(cmd runner.Command)
}

// NewBuildToolRunner creates a runner that succeeds for every version
func NewBuildToolRunner() *BuildToolRunner {
	return &BuildToolRunner{
		exitCodes: make(map[string]int),
		Files: map[string]string{
			"Binaries/Win64/UnrealEditor-Plugin.dll": "binary",
			"Source/Plugin/Private/Plugin.cpp":       "// built",
			"Resources/Icon128.png":                  "png",
		},
	}
}

// SetExitCode makes commands for the given engine version exit with code
func (r *BuildToolRunner) SetExitCode(version string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitCodes[version] = code
}

// SetStartError makes every invocation fail to start
func (r *BuildToolRunner) SetStartError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

// Calls returns the commands invoked so far
func (r *BuildToolRunner) Calls() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.Command(nil), r.calls...)
}

// Versions returns the engine versions seen by BuildPlugin, in call order
func (r *BuildToolRunner) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.versions...)
}

// Invoke implements runner.Runner
func (r *BuildToolRunner) Invoke(ctx context.Context, cmd runner.Command, sink io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if sink == nil {
		sink = io.Discard
	}

	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	startErr := r.startErr
	r.mu.Unlock()

	if r.OnInvoke != nil {
		r.OnInvoke(cmd)
	}
	if startErr != nil {
		return -1, startErr
	}

	version := argValue(cmd.Args, "-EngineVersion=")
	if cmd.Name == "BuildPlugin" {
		r.mu.Lock()
		r.versions = append(r.versions, version)
		r.mu.Unlock()
	}

	r.mu.Lock()
	code := r.exitCodes[version]
	r.mu.Unlock()

	fmt.Fprintf(sink, "Running %s for %s\n", cmd.Name, version)
	if code != 0 {
		fmt.Fprintf(sink, "ERROR: %s failed\n", cmd.Name)
		return code, nil
	}

	if cmd.Name == "BuildPlugin" {
		pkg := argValue(cmd.Args, "-Package=")
		if pkg == "" {
			return 1, nil
		}
		for rel, content := range r.Files {
			path := filepath.Join(pkg, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return -1, err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return -1, err
			}
		}
		if plugin := argValue(cmd.Args, "-Plugin="); plugin != "" {
			data, err := os.ReadFile(plugin)
			if err != nil {
				return 1, nil
			}
			if err := os.WriteFile(filepath.Join(pkg, filepath.Base(plugin)), data, 0644); err != nil {
				return -1, err
			}
		}
	}

	fmt.Fprintf(sink, "BUILD SUCCESSFUL\n")
	return 0, nil
}

func argValue(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}
