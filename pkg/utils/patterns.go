package utils

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// PatternMatcher matches slash-separated relative paths against glob patterns.
// Patterns without a '/' also match the path's base name, so "*.pdb" matches
// "Binaries/Win64/Foo.pdb".
type PatternMatcher struct {
	patterns []string
	globs    []glob.Glob
	baseOnly []bool
}

// NewPatternMatcher compiles the given patterns
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	pm := &PatternMatcher{
		patterns: make([]string, 0, len(patterns)),
		globs:    make([]glob.Glob, 0, len(patterns)),
		baseOnly: make([]bool, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		pattern = NormalizePattern(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		pm.patterns = append(pm.patterns, pattern)
		pm.globs = append(pm.globs, g)
		pm.baseOnly = append(pm.baseOnly, !strings.Contains(pattern, "/"))
	}

	return pm, nil
}

// Match checks if a path matches any pattern
func (pm *PatternMatcher) Match(p string) bool {
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	base := path.Base(p)

	for i, g := range pm.globs {
		if g.Match(p) {
			return true
		}
		if pm.baseOnly[i] && g.Match(base) {
			return true
		}
	}
	return false
}

// NormalizePattern normalizes a file pattern
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")
	return pattern
}

// ExclusionMatcher combines exact directory-name exclusions with file globs
type ExclusionMatcher struct {
	dirs  map[string]struct{}
	files *PatternMatcher
}

// NewExclusionMatcher creates a matcher from directory names and file patterns.
// Directory names match exactly, at any depth.
func NewExclusionMatcher(dirNames, filePatterns []string) (*ExclusionMatcher, error) {
	files, err := NewPatternMatcher(filePatterns)
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]struct{}, len(dirNames))
	for _, name := range dirNames {
		name = NormalizePattern(name)
		if name != "" {
			dirs[name] = struct{}{}
		}
	}

	return &ExclusionMatcher{dirs: dirs, files: files}, nil
}

// ExcludesDir reports whether a directory with this name is excluded
func (em *ExclusionMatcher) ExcludesDir(name string) bool {
	_, ok := em.dirs[name]
	return ok
}

// ExcludesFile reports whether the file at the relative path matches a file pattern
func (em *ExclusionMatcher) ExcludesFile(relPath string) bool {
	return em.files.Match(relPath)
}

// DefaultExcludeDirs returns build-output directories never shipped in a package
func DefaultExcludeDirs() []string {
	return []string{
		"Binaries",
		"Intermediate",
		"Saved",
		"DerivedDataCache",
		".git",
		".svn",
		".vs",
		".vscode",
		".idea",
	}
}

// DefaultExcludeFiles returns file patterns never shipped in a package
func DefaultExcludeFiles() []string {
	return []string{
		"*.pdb",
		"*.sln",
		"*.suo",
		".DS_Store",
		"Thumbs.db",
		"*.tmp",
		"*~",
	}
}
