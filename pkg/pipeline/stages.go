package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/manifest"
	"github.com/marketpack/marketpack/pkg/projector"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Staging layout below <staging>/<version>
const (
	sourceDir   = "source"
	packageDir  = "package"
	exampleDir  = "example"
	primaryDir  = "primary"
	variantsDir = "variants"
)

// checkPrerequisites resolves the engine and verifies every tool the target
// needs. It has no side effects.
func (p *Pipeline) checkPrerequisites(target types.Target) (string, error) {
	engineDir, err := ResolveEngineDir(p.cfg, target.Version)
	if err != nil {
		return "", err
	}
	if !utils.DirectoryExists(engineDir) {
		return engineDir, fmt.Errorf("%w: engine %s not found at %s", types.ErrPrerequisiteMissing, target.Version, engineDir)
	}

	data := runner.TemplateData{Version: target.Version, EngineDir: engineDir}
	type tool struct {
		name string
		cfg  *types.CommandConfig
	}
	tools := []tool{{name: "BuildPlugin"}}
	if p.cfg.Build != nil {
		tools[0].cfg = p.cfg.Build.Plugin
		if p.cfg.HasExample() && p.cfg.Build.Upgrade != nil {
			tools = append(tools, tool{"Upgrade", p.cfg.Build.Upgrade})
		}
	}
	for _, t := range tools {
		cmd, err := runner.Render(t.name, t.cfg, data)
		if err != nil {
			return engineDir, err
		}
		if !runner.Available(cmd.Path) {
			return engineDir, fmt.Errorf("%w: %s tool not found: %s", types.ErrPrerequisiteMissing, t.name, cmd.Path)
		}
	}
	return engineDir, nil
}

func (r *targetRun) setup() error {
	r.stage = StageSetup

	engineDir, err := r.p.checkPrerequisites(r.target)
	if err != nil {
		return err
	}
	r.engineDir = engineDir

	if err := os.RemoveAll(r.staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(r.staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(r.logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	fmt.Fprintf(logFile, "=== Target %s started at %s ===\n", r.target.Version, time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(logFile, "Engine: %s\nCompiler: %s\n", engineDir, r.target.Toolchain.Compiler)

	r.logFile = logFile
	r.logWriter = r.log.Writer()
	r.sink = io.MultiWriter(logFile, r.logWriter)

	r.log.Debug("Setup complete",
		logger.WithField("engine", engineDir),
		logger.WithField("staging", r.staging),
	)
	return nil
}

func (r *targetRun) acquireToolchain() error {
	if r.p.toolchain == nil {
		return fmt.Errorf("%w: no toolchain manager", types.ErrConfig)
	}
	lease, err := r.p.toolchain.Acquire(r.ctx, r.target)
	if err != nil {
		return err
	}
	r.lease = lease
	fmt.Fprintf(r.sink, "Installed compiler %s into %s\n", r.target.Toolchain.Compiler, r.p.toolchain.SlotPath())
	return nil
}

func (r *targetRun) pluginManifest() string {
	return filepath.Join(r.dir(sourceDir, r.p.cfg.Plugin.Name), r.p.cfg.Plugin.ManifestFile())
}

func (r *targetRun) projectSource() error {
	cfg := r.p.cfg
	dest := r.dir(sourceDir, cfg.Plugin.Name)
	rule := cfg.Projection.Union(cfg.Plugin.Rule)

	count, err := r.p.projector.Project(r.ctx, cfg.Plugin.Source, dest, &rule)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.sink, "Copied %d plugin files\n", count)

	manifestPath := r.pluginManifest()
	if _, err := manifest.Load(manifestPath); err != nil {
		return fmt.Errorf("%w: plugin manifest: %w", types.ErrConfig, err)
	}
	if err := r.rewrite(dest, cfg.Plugin.ManifestFile(), cfg.Plugin.Rewrite, cfg.Plugin.Name); err != nil {
		return err
	}

	if cfg.HasExample() {
		dest := r.dir(exampleDir, cfg.Example.Name)
		rule := cfg.Projection.Union(cfg.Example.Rule)
		count, err := r.p.projector.Project(r.ctx, cfg.Example.Source, dest, &rule)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.sink, "Copied %d example files\n", count)
	}
	return nil
}

// rewrite applies a manifest rewrite inside a staged tree. The rewrite may
// name a different manifest than the tree's default one.
func (r *targetRun) rewrite(root, defaultManifest string, rw *types.ManifestRewrite, name string) error {
	if rw.IsEmpty() {
		return nil
	}
	rel := defaultManifest
	if rw.Manifest != "" {
		rel = rw.Manifest
	}
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: manifest %q escapes the staged tree", types.ErrConfig, rel)
	}
	return r.p.projector.Rewrite(filepath.Join(root, rel), rw, projector.RewriteData{
		Version: r.target.Version,
		Name:    name,
	})
}

func (r *targetRun) applyExclusions() error {
	cfg := r.p.cfg
	pluginRule := cfg.Projection.Union(cfg.Plugin.Rule)
	if err := r.p.projector.ForceRemove(r.dir(sourceDir, cfg.Plugin.Name), pluginRule.ForceRemove); err != nil {
		return err
	}
	if cfg.HasExample() {
		exampleRule := cfg.Projection.Union(cfg.Example.Rule)
		if err := r.p.projector.ForceRemove(r.dir(exampleDir, cfg.Example.Name), exampleRule.ForceRemove); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs an external tool and maps a non-zero exit to ErrExternalTool
func (r *targetRun) invoke(name string, cfg *types.CommandConfig, data runner.TemplateData) error {
	cmd, err := runner.Render(name, cfg, data)
	if err != nil {
		return err
	}
	r.log.Info("Running " + name)

	code, err := r.p.runner.Invoke(r.ctx, cmd, r.sink)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrExternalTool, err)
	}
	if code != 0 {
		return fmt.Errorf("%w: %s exited with code %d, see %s", types.ErrExternalTool, name, code, r.logPath)
	}
	return nil
}

func (r *targetRun) templateData() runner.TemplateData {
	data := runner.TemplateData{
		Version:    r.target.Version,
		EngineDir:  r.engineDir,
		PluginFile: r.pluginManifest(),
		PackageDir: r.dir(packageDir, r.p.cfg.Plugin.Name),
		StagingDir: r.staging,
	}
	if r.p.cfg.Example != nil {
		data.ProjectFile = filepath.Join(r.dir(exampleDir, r.p.cfg.Example.Name), r.p.cfg.Example.ManifestFile())
	}
	return data
}

func (r *targetRun) build() error {
	var cmd *types.CommandConfig
	if r.p.cfg.Build != nil {
		cmd = r.p.cfg.Build.Plugin
	}
	data := r.templateData()
	if err := r.invoke("BuildPlugin", cmd, data); err != nil {
		return err
	}

	empty, err := utils.IsDirEmpty(data.PackageDir)
	if err != nil || empty {
		return fmt.Errorf("%w: build produced no package in %s", types.ErrExternalTool, data.PackageDir)
	}
	return nil
}

func (r *targetRun) packagePrimary() error {
	cfg := r.p.cfg
	dest := r.dir(primaryDir, cfg.Plugin.Name)
	rule := cfg.Projection.Union(cfg.PrimaryRule)

	if _, err := r.p.projector.Project(r.ctx, r.dir(packageDir, cfg.Plugin.Name), dest, &rule); err != nil {
		return err
	}
	if err := r.p.projector.ForceRemove(dest, rule.ForceRemove); err != nil {
		return err
	}

	artifact := types.ArtifactRecord{
		Path:     PrimaryArtifactPath(cfg, r.target.Version, r.p.archiver.Extension()),
		Category: types.CategoryPrimary,
		Target:   r.target.Version,
	}
	return r.archive(dest, artifact)
}

func (r *targetRun) archive(stagedRoot string, artifact types.ArtifactRecord) error {
	if err := os.MkdirAll(filepath.Dir(artifact.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := r.p.archiver.Compress(r.ctx, stagedRoot, artifact.Path); err != nil {
		return err
	}
	r.result.Artifacts = append(r.result.Artifacts, artifact)
	fmt.Fprintf(r.sink, "Wrote %s\n", artifact.Path)
	fields := []logger.Field{logger.WithField("category", artifact.Category)}
	if staged, err := utils.GetDirectorySize(stagedRoot); err == nil {
		fields = append(fields, logger.WithField("staged", utils.FormatBytes(staged)))
	}
	if info, err := os.Stat(artifact.Path); err == nil {
		fields = append(fields, logger.WithField("size", utils.FormatBytes(info.Size())))
	}
	r.log.Info("Archived "+filepath.Base(artifact.Path), fields...)
	return nil
}

func (r *targetRun) upgradeVariantTree() error {
	cfg := r.p.cfg
	exampleRoot := r.dir(exampleDir, cfg.Example.Name)
	installed := filepath.Join(exampleRoot, "Plugins", cfg.Plugin.Name)

	if err := os.RemoveAll(installed); err != nil {
		return &projector.CopyError{Op: "install", Path: installed, Err: err}
	}
	if _, err := r.p.projector.Project(r.ctx, r.dir(packageDir, cfg.Plugin.Name), installed, nil); err != nil {
		return err
	}

	association := &types.ManifestRewrite{SetFields: map[string]string{"EngineAssociation": "{{.Version}}"}}
	if err := r.rewrite(exampleRoot, cfg.Example.ManifestFile(), association, cfg.Example.Name); err != nil {
		return err
	}

	if cfg.Build == nil || cfg.Build.Upgrade == nil {
		return nil
	}
	return r.invoke("Upgrade", cfg.Build.Upgrade, r.templateData())
}

func (r *targetRun) packageVariants() error {
	cfg := r.p.cfg
	exampleRoot := r.dir(exampleDir, cfg.Example.Name)

	for _, v := range cfg.Variants {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		dest := r.dir(variantsDir, v.Name, cfg.Example.Name)
		rule := cfg.Projection.Union(cfg.Example.Rule, v.Rule)

		if _, err := r.p.projector.Project(r.ctx, exampleRoot, dest, &rule); err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}
		if err := r.p.projector.ForceRemove(dest, rule.ForceRemove); err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}
		if err := r.rewrite(dest, cfg.Example.ManifestFile(), v.Rewrite, cfg.Example.Name); err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}

		artifact := types.ArtifactRecord{
			Path:     VariantArtifactPath(cfg, r.target.Version, v.Name, r.p.archiver.Extension()),
			Category: v.Category,
			Target:   r.target.Version,
			Variant:  v.Name,
		}
		if err := r.archive(dest, artifact); err != nil {
			return fmt.Errorf("variant %s: %w", v.Name, err)
		}
	}
	return nil
}
