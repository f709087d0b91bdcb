// Package runner invokes external build tools and captures their output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Command is a fully rendered external tool invocation
type Command struct {
	Name string
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// String returns the command line for logs
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Runner invokes a command, teeing combined output into sink.
// A non-zero exit code is not an error; error is reserved for failures to start.
type Runner interface {
	Invoke(ctx context.Context, cmd Command, sink io.Writer) (int, error)
}

// ExecRunner runs commands as child processes
type ExecRunner struct {
	live io.Writer
	log  logger.Logger
}

// NewExecRunner creates a runner. live receives the output of every command
// as it runs and may be nil.
func NewExecRunner(live io.Writer, log logger.Logger) *ExecRunner {
	if live == nil {
		live = io.Discard
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ExecRunner{live: live, log: log}
}

// Invoke runs cmd to completion. The context is only consulted before the
// process starts; a running tool is never interrupted.
func (r *ExecRunner) Invoke(ctx context.Context, cmd Command, sink io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if sink == nil {
		sink = io.Discard
	}

	startTime := time.Now()
	fmt.Fprintf(sink, "\n=== %s started at %s ===\n", cmd.Name, startTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(sink, "Executing: %s\n", cmd)

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = os.Environ()
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, cmd.Env[k]))
		}
	}

	out := io.MultiWriter(r.live, sink)
	c.Stdout = out
	c.Stderr = out

	err := c.Run()
	duration := time.Since(startTime).Round(time.Millisecond)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			fmt.Fprintf(sink, "\n=== %s FAILED with exit code %d after %s ===\n", cmd.Name, code, duration)
			r.log.Debug("Command exited with failure",
				logger.WithField("command", cmd.Name),
				logger.WithField("exit_code", code),
			)
			return code, nil
		}
		fmt.Fprintf(sink, "\n=== %s could not start: %v ===\n", cmd.Name, err)
		return -1, fmt.Errorf("failed to start %s: %w", cmd.Name, err)
	}

	fmt.Fprintf(sink, "\n=== %s SUCCEEDED after %s ===\n", cmd.Name, duration)
	return 0, nil
}

// TemplateData is available to command, argument and environment templates
type TemplateData struct {
	Version     string
	EngineDir   string
	PluginFile  string
	PackageDir  string
	ProjectFile string
	StagingDir  string
}

// Render expands a configured command into a runnable Command
func Render(name string, cfg *types.CommandConfig, data TemplateData) (Command, error) {
	if cfg == nil || cfg.Command == "" {
		return Command{}, fmt.Errorf("%w: no command configured for %s", types.ErrConfig, name)
	}

	path, err := utils.RenderTemplate(cfg.Command, data)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s command: %v", types.ErrConfig, name, err)
	}

	cmd := Command{Name: name, Path: path, Dir: data.StagingDir}
	for i, arg := range cfg.Args {
		rendered, err := utils.RenderTemplate(arg, data)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s argument %d: %v", types.ErrConfig, name, i, err)
		}
		cmd.Args = append(cmd.Args, rendered)
	}

	if len(cfg.Env) > 0 {
		cmd.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			rendered, err := utils.RenderTemplate(v, data)
			if err != nil {
				return Command{}, fmt.Errorf("%w: %s env %s: %v", types.ErrConfig, name, k, err)
			}
			cmd.Env[k] = rendered
		}
	}
	return cmd, nil
}

// Available reports whether the command's executable can be found
func Available(path string) bool {
	if strings.ContainsAny(path, `/\`) {
		return utils.FileExists(path)
	}
	_, err := exec.LookPath(path)
	return err == nil
}
