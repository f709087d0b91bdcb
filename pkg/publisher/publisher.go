// Package publisher uploads the categorized output tree after a run.
package publisher

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// DefaultCommand syncs the output tree when no publish command is configured
const DefaultCommand = "rclone"

// DefaultArgs is the argument template used with DefaultCommand
var DefaultArgs = []string{"sync", "{{.Source}}", "{{.Remote}}"}

// Categories are the output subdirectories that get published, in order
var Categories = []string{"plugins", "examples", "logs"}

// Publisher uploads sourceDir to remote
type Publisher interface {
	Publish(ctx context.Context, sourceDir, remote string) error
}

// New selects the publisher for the configured kind
func New(cfg *types.PublishConfig, run runner.Runner, sink io.Writer, log logger.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: publishing is not configured", types.ErrConfig)
	}
	switch cfg.Kind {
	case "", types.PublisherKindCommand:
		return NewCommandPublisher(cfg, run, sink, log), nil
	case types.PublisherKindDirectory:
		return NewDirectoryPublisher(log), nil
	default:
		return nil, fmt.Errorf("%w: unknown publisher kind %q", types.ErrConfig, cfg.Kind)
	}
}

// templateData is available to publish command arguments
type templateData struct {
	Source string
	Remote string
}

// CommandPublisher runs an external sync tool over the whole output tree
type CommandPublisher struct {
	command string
	args    []string
	runner  runner.Runner
	sink    io.Writer
	log     logger.Logger
}

// NewCommandPublisher creates a command publisher. Without a configured
// command it uses rclone.
func NewCommandPublisher(cfg *types.PublishConfig, run runner.Runner, sink io.Writer, log logger.Logger) *CommandPublisher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if run == nil {
		run = runner.NewExecRunner(nil, log)
	}
	p := &CommandPublisher{command: DefaultCommand, args: DefaultArgs, runner: run, sink: sink, log: log}
	if cfg != nil && cfg.Command != "" {
		p.command = cfg.Command
		p.args = cfg.Args
	}
	return p
}

// Publish renders and runs the sync command
func (p *CommandPublisher) Publish(ctx context.Context, sourceDir, remote string) error {
	if remote == "" {
		return fmt.Errorf("%w: no publish remote configured", types.ErrConfig)
	}
	data := templateData{Source: sourceDir, Remote: remote}

	path, err := utils.RenderTemplate(p.command, data)
	if err != nil {
		return fmt.Errorf("%w: publish command: %v", types.ErrConfig, err)
	}
	cmd := runner.Command{Name: "Publish", Path: path, Dir: sourceDir}
	for _, arg := range p.args {
		rendered, err := utils.RenderTemplate(arg, data)
		if err != nil {
			return fmt.Errorf("%w: publish argument: %v", types.ErrConfig, err)
		}
		cmd.Args = append(cmd.Args, rendered)
	}

	p.log.Info("Publishing output", logger.WithField("remote", remote))
	code, err := p.runner.Invoke(ctx, cmd, p.sink)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrExternalTool, err)
	}
	if code != 0 {
		return fmt.Errorf("%w: publish command exited with code %d", types.ErrExternalTool, code)
	}
	return nil
}

// DirectoryPublisher mirrors the output categories into a local or network directory
type DirectoryPublisher struct {
	log logger.Logger
}

// NewDirectoryPublisher creates a directory publisher
func NewDirectoryPublisher(log logger.Logger) *DirectoryPublisher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DirectoryPublisher{log: log}
}

// Publish copies plugins/, examples/ and logs/ below remote. Files already
// present with the same size and modification time are left alone.
func (p *DirectoryPublisher) Publish(ctx context.Context, sourceDir, remote string) error {
	if remote == "" {
		return fmt.Errorf("%w: no publish remote configured", types.ErrConfig)
	}

	copied, skipped := 0, 0
	for _, category := range Categories {
		root := filepath.Join(sourceDir, category)
		if !utils.DirectoryExists(root) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(sourceDir, path)
			if err != nil {
				return err
			}
			dest := filepath.Join(remote, rel)
			if upToDate(path, dest) {
				skipped++
				return nil
			}
			if err := utils.CopyFile(path, dest); err != nil {
				return err
			}
			info, err := d.Info()
			if err == nil {
				os.Chtimes(dest, info.ModTime(), info.ModTime())
			}
			copied++
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", category, err)
		}
	}

	p.log.Info("Published output",
		logger.WithField("remote", remote),
		logger.WithField("copied", copied),
		logger.WithField("unchanged", skipped),
	)
	return nil
}

func upToDate(src, dest string) bool {
	a, err := os.Stat(src)
	if err != nil {
		return false
	}
	b, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}
