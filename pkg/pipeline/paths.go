package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Output layout, relative to the configured output directory
const (
	PluginsDir  = "plugins"
	ExamplesDir = "examples"
	LogsDir     = "logs"
)

// DefaultEnginePathTemplate locates an engine install below engines.root
const DefaultEnginePathTemplate = "{{.Root}}/UE_{{.Version}}"

type engineData struct {
	Root    string
	Version string
}

// PrimaryArtifactPath returns the primary package archive for a target
func PrimaryArtifactPath(cfg *types.PackagerConfig, version, ext string) string {
	return filepath.Join(cfg.Output, PluginsDir, fmt.Sprintf("%s_%s%s", cfg.Plugin.Name, version, ext))
}

// VariantArtifactPath returns the archive of one example variant for a target
func VariantArtifactPath(cfg *types.PackagerConfig, version, variant, ext string) string {
	return filepath.Join(cfg.Output, ExamplesDir, version,
		fmt.Sprintf("%s_%s_%s%s", cfg.Example.Name, variant, version, ext))
}

// LogPath returns the per-target log file
func LogPath(cfg *types.PackagerConfig, version string) string {
	logs := cfg.Logs
	if logs == "" {
		logs = filepath.Join(cfg.Output, LogsDir)
	}
	return filepath.Join(logs, version+".log")
}

// StagingPath returns the staging workspace owned by one target
func StagingPath(cfg *types.PackagerConfig, version string) string {
	return filepath.Join(cfg.Staging, version)
}

// ExpectedArtifacts lists every archive a successful run produces for the target
func ExpectedArtifacts(cfg *types.PackagerConfig, format types.ArchiveFormat, target types.Target) []types.ArtifactRecord {
	ext := format.Extension()
	artifacts := []types.ArtifactRecord{{
		Path:     PrimaryArtifactPath(cfg, target.Version, ext),
		Category: types.CategoryPrimary,
		Target:   target.Version,
	}}

	if cfg.HasExample() {
		for _, v := range cfg.Variants {
			artifacts = append(artifacts, types.ArtifactRecord{
				Path:     VariantArtifactPath(cfg, target.Version, v.Name, ext),
				Category: v.Category,
				Target:   target.Version,
				Variant:  v.Name,
			})
		}
	}
	return artifacts
}

// ResolveEngineDir returns the engine installation for a version: an explicit
// engines.paths entry wins over the path template.
func ResolveEngineDir(cfg *types.PackagerConfig, version string) (string, error) {
	engines := cfg.Engines
	if engines == nil {
		return "", fmt.Errorf("%w: no engine location configured", types.ErrPrerequisiteMissing)
	}
	if dir, ok := engines.Paths[version]; ok && dir != "" {
		return dir, nil
	}
	if engines.Root == "" {
		return "", fmt.Errorf("%w: no engine path for %s", types.ErrPrerequisiteMissing, version)
	}

	tmpl := engines.PathTemplate
	if tmpl == "" {
		tmpl = DefaultEnginePathTemplate
	}
	dir, err := utils.RenderTemplate(tmpl, engineData{Root: engines.Root, Version: version})
	if err != nil {
		return "", fmt.Errorf("%w: engine path template: %v", types.ErrConfig, err)
	}
	return filepath.Clean(dir), nil
}
