// Package projector derives staged trees from a source tree using projection rules.
package projector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/manifest"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// CopyError describes a failed projection
type CopyError struct {
	Op   string
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

var (
	// ErrEmptySource is returned when the source root has no entries
	ErrEmptySource = errors.New("source directory is empty")

	// ErrNotDirectory is returned when the source root is not a directory
	ErrNotDirectory = errors.New("source is not a directory")

	// ErrEscapesRoot is returned for force-remove paths outside the staged root
	ErrEscapesRoot = errors.New("path escapes root")
)

// RewriteData is the template data available to ManifestRewrite set-field values
type RewriteData struct {
	Version string
	Name    string
}

// Projector copies and edits staged trees
type Projector struct {
	log logger.Logger
}

// New creates a projector. A nil logger discards output.
func New(log logger.Logger) *Projector {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Projector{log: log}
}

// Project copies sourceRoot into destRoot, skipping excluded directory names at
// every depth and files matching an excluded pattern. It returns the number of
// files copied.
func (p *Projector) Project(ctx context.Context, sourceRoot, destRoot string, rule *types.ProjectionRule) (int, error) {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		return 0, &CopyError{Op: "project", Path: sourceRoot, Err: err}
	}
	if !info.IsDir() {
		return 0, &CopyError{Op: "project", Path: sourceRoot, Err: ErrNotDirectory}
	}
	empty, err := utils.IsDirEmpty(sourceRoot)
	if err != nil {
		return 0, &CopyError{Op: "project", Path: sourceRoot, Err: err}
	}
	if empty {
		return 0, &CopyError{Op: "project", Path: sourceRoot, Err: ErrEmptySource}
	}

	if rule == nil {
		rule = &types.ProjectionRule{}
	}
	matcher, err := utils.NewExclusionMatcher(rule.ExcludeDirs, rule.ExcludeFiles)
	if err != nil {
		return 0, &CopyError{Op: "compile rule", Path: sourceRoot, Err: err}
	}

	absDest, err := filepath.Abs(destRoot)
	if err != nil {
		return 0, &CopyError{Op: "project", Path: destRoot, Err: err}
	}
	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return 0, &CopyError{Op: "mkdir", Path: destRoot, Err: err}
	}

	copied := 0
	err = filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		target := filepath.Join(destRoot, rel)

		if d.IsDir() {
			if matcher.ExcludesDir(d.Name()) {
				p.log.Debug("Excluded directory", logger.WithField("path", relSlash))
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && abs == absDest {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0755)
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := os.Stat(path)
			if err != nil || !resolved.Mode().IsRegular() {
				p.log.Debug("Skipping symlink", logger.WithField("path", relSlash))
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		if matcher.ExcludesFile(relSlash) {
			p.log.Debug("Excluded file", logger.WithField("path", relSlash))
			return nil
		}
		if err := utils.CopyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		var ce *CopyError
		if errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return copied, err
		}
		return copied, &CopyError{Op: "copy", Path: sourceRoot, Err: err}
	}

	p.log.Debug("Projected tree",
		logger.WithField("source", sourceRoot),
		logger.WithField("dest", destRoot),
		logger.WithField("files", copied),
	)
	return copied, nil
}

// ForceRemove deletes the listed relative paths under root. Missing paths are ignored.
func (p *Projector) ForceRemove(root string, relativePaths []string) error {
	for _, rel := range relativePaths {
		rel = filepath.FromSlash(utils.NormalizePattern(rel))
		if rel == "" || !filepath.IsLocal(rel) {
			return &CopyError{Op: "force-remove", Path: rel, Err: ErrEscapesRoot}
		}

		target := filepath.Join(root, rel)
		if err := os.RemoveAll(target); err != nil {
			return &CopyError{Op: "force-remove", Path: target, Err: err}
		}
		p.log.Debug("Force-removed path", logger.WithField("path", filepath.ToSlash(rel)))
	}
	return nil
}

// Rewrite applies a manifest rewrite to the manifest at manifestPath.
// Set-field values are templates rendered with data.
func (p *Projector) Rewrite(manifestPath string, rewrite *types.ManifestRewrite, data RewriteData) error {
	if rewrite.IsEmpty() {
		return nil
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrConfig, err)
	}

	for _, dep := range rewrite.RemoveDependencies {
		removed, err := m.RemoveDependency(rewrite.DependencyField, dep)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrConfig, err)
		}
		if removed > 0 {
			p.log.Debug("Removed dependency", logger.WithField("dependency", dep))
		}
	}

	for _, name := range rewrite.RemoveFields {
		m.RemoveField(name)
	}

	for _, name := range rewrite.SortedSetFields() {
		value, err := utils.RenderTemplate(rewrite.SetFields[name], data)
		if err != nil {
			return fmt.Errorf("%w: field %s: %w", types.ErrConfig, name, err)
		}
		if err := m.SetField(name, value); err != nil {
			return err
		}
	}

	return manifest.Save(m, manifestPath)
}
