// Package validation checks a loaded configuration against the machine it runs on
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marketpack/marketpack/pkg/manifest"
	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/publisher"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/toolchain"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

// ValidationError represents a validation finding. Subject is the part of the
// configuration it concerns: "plugin", "example", a variant name or a target version.
type ValidationError struct {
	Subject string
	Field   string
	Message string
	Level   ValidationLevel
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Subject, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(subject, field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Subject: subject,
		Field:   field,
		Message: message,
		Level:   level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Count returns the number of findings at level
func (r *ValidationResult) Count(level ValidationLevel) int {
	n := 0
	for _, e := range r.Errors {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Validator checks sources, engines and tools referenced by a configuration
type Validator struct {
	config *types.PackagerConfig
}

// NewValidator creates a new validator
func NewValidator(config *types.PackagerConfig) *Validator {
	return &Validator{config: config}
}

// Validate runs every check. Problems that only cause a target to be skipped
// are warnings; problems that would fail every target are errors.
func (v *Validator) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.validatePlugin(result)
	v.validateExample(result)
	v.validateVariants(result)
	v.validateDirectories(result)
	v.validateTargets(result)
	v.validateToolchain(result)
	v.validatePublish(result)

	return result
}

func (v *Validator) validatePlugin(result *ValidationResult) {
	plugin := v.config.Plugin
	if !utils.DirectoryExists(plugin.Source) {
		result.AddError("plugin", "source", fmt.Sprintf("plugin source does not exist: %s", plugin.Source), ValidationLevelError)
		return
	}

	path := filepath.Join(plugin.Source, plugin.ManifestFile())
	m, err := manifest.Load(path)
	if err != nil {
		result.AddError("plugin", "manifest", err.Error(), ValidationLevelError)
		return
	}
	if _, ok := m.GetString("FriendlyName"); !ok {
		result.AddError("plugin", "manifest", "FriendlyName is not set", ValidationLevelInfo)
	}

	v.validateRewrite("plugin", plugin.Rewrite, m, result)
}

func (v *Validator) validateExample(result *ValidationResult) {
	example := v.config.Example
	if example == nil {
		return
	}
	if !v.config.HasExample() {
		result.AddError("example", "variants", "example project is configured but no variants are defined", ValidationLevelWarning)
	}
	if !utils.DirectoryExists(example.Source) {
		result.AddError("example", "source", fmt.Sprintf("example source does not exist: %s", example.Source), ValidationLevelError)
		return
	}
	if _, err := manifest.Load(filepath.Join(example.Source, example.ManifestFile())); err != nil {
		result.AddError("example", "manifest", err.Error(), ValidationLevelError)
	}
}

func (v *Validator) validateVariants(result *ValidationResult) {
	var m *manifest.Manifest
	if ex := v.config.Example; ex != nil {
		m, _ = manifest.Load(filepath.Join(ex.Source, ex.ManifestFile()))
	}

	for _, variant := range v.config.Variants {
		if variant.Rule != nil {
			for _, rel := range variant.Rule.ForceRemove {
				if !filepath.IsLocal(filepath.FromSlash(rel)) {
					result.AddError(variant.Name, "rule.forceRemove",
						fmt.Sprintf("path must stay inside the staged tree: %s", rel), ValidationLevelError)
				}
			}
		}
		if m != nil {
			v.validateRewrite(variant.Name, variant.Rewrite, m, result)
		}
	}
}

// validateRewrite renders set-field templates and checks that removed
// dependencies are actually declared
func (v *Validator) validateRewrite(subject string, rw *types.ManifestRewrite, m *manifest.Manifest, result *ValidationResult) {
	if rw == nil {
		return
	}
	if rw.Manifest != "" && !filepath.IsLocal(filepath.FromSlash(rw.Manifest)) {
		result.AddError(subject, "rewrite.manifest", fmt.Sprintf("manifest must be inside the staged tree: %s", rw.Manifest), ValidationLevelError)
	}

	sample := struct{ Version, Name string }{Version: "5.4", Name: v.config.Plugin.Name}
	for _, field := range rw.SortedSetFields() {
		if _, err := utils.RenderTemplate(rw.SetFields[field], sample); err != nil {
			result.AddError(subject, "rewrite.setFields", fmt.Sprintf("%s: %v", field, err), ValidationLevelError)
		}
	}

	if len(rw.RemoveDependencies) == 0 {
		return
	}
	listField := rw.DependencyField
	if listField == "" {
		listField = manifest.DefaultDependencyField
	}
	declared := make(map[string]bool)
	for _, name := range m.Dependencies(listField) {
		declared[name] = true
	}
	for _, name := range rw.RemoveDependencies {
		if !declared[name] {
			result.AddError(subject, "rewrite.removeDependencies",
				fmt.Sprintf("%s is not listed in %s", name, listField), ValidationLevelWarning)
		}
	}
}

func (v *Validator) validateDirectories(result *ValidationResult) {
	sources := []string{v.config.Plugin.Source}
	if v.config.Example != nil {
		sources = append(sources, v.config.Example.Source)
	}

	dirs := map[string]string{"output": v.config.Output, "staging": v.config.Staging}
	for _, field := range []string{"output", "staging"} {
		dir := dirs[field]
		if dir == "" {
			continue
		}
		for _, src := range sources {
			if within(dir, src) {
				result.AddError("config", field,
					fmt.Sprintf("%s directory %s is inside source %s", field, dir, src), ValidationLevelError)
			}
		}
	}
}

func (v *Validator) validateTargets(result *ValidationResult) {
	var build *types.CommandConfig
	if v.config.Build != nil {
		build = v.config.Build.Plugin
	}

	for _, target := range v.config.Targets {
		engineDir, err := pipeline.ResolveEngineDir(v.config, target)
		if errors.Is(err, types.ErrConfig) {
			result.AddError(target, "engine", err.Error(), ValidationLevelError)
			continue
		}
		if err != nil {
			result.AddError(target, "engine", fmt.Sprintf("%v; target will be skipped", err), ValidationLevelWarning)
			continue
		}
		if !utils.DirectoryExists(engineDir) {
			result.AddError(target, "engine",
				fmt.Sprintf("engine not found at %s; target will be skipped", engineDir), ValidationLevelWarning)
			continue
		}

		cmd, err := runner.Render("BuildPlugin", build, runner.TemplateData{Version: target, EngineDir: engineDir})
		if err != nil {
			result.AddError(target, "build", err.Error(), ValidationLevelError)
			continue
		}
		if !runner.Available(cmd.Path) {
			result.AddError(target, "build",
				fmt.Sprintf("build tool not found: %s; target will be skipped", cmd.Path), ValidationLevelWarning)
		}
	}
}

func (v *Validator) validateToolchain(result *ValidationResult) {
	slot := v.config.Toolchain.SlotPath
	manager, err := toolchain.NewManager(v.config.Toolchain, nil)
	if err != nil {
		result.AddError("toolchain", "slotPath", err.Error(), ValidationLevelError)
		return
	}
	if manager.Pending() {
		result.AddError("toolchain", "slotPath",
			"toolchain slot was left installed by an interrupted run; it will be restored before the next build",
			ValidationLevelWarning)
	}
	if info, err := os.Stat(slot); err == nil && info.IsDir() {
		result.AddError("toolchain", "slotPath", fmt.Sprintf("slot path is a directory: %s", slot), ValidationLevelError)
	}
}

func (v *Validator) validatePublish(result *ValidationResult) {
	pub := v.config.Publish
	if pub == nil || !pub.Enabled {
		return
	}
	if pub.Remote == "" {
		result.AddError("publish", "remote", "publishing is enabled but no remote is set", ValidationLevelError)
	}
	if pub.Kind == types.PublisherKindCommand || pub.Kind == "" {
		command := pub.Command
		if command == "" {
			command = publisher.DefaultCommand
		}
		if !runner.Available(command) {
			result.AddError("publish", "command", fmt.Sprintf("publish command not found: %s", command), ValidationLevelWarning)
		}
	}
}

// within reports whether path is dir itself or below it
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
