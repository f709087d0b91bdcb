// Package types provides core types and configurations for marketpack
package types

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ArtifactCategory represents the logical kind of a produced archive
type ArtifactCategory string

const (
	CategoryPrimary  ArtifactCategory = "primary-package"
	CategoryVariantA ArtifactCategory = "variant-a"
	CategoryVariantB ArtifactCategory = "variant-b"
)

// Valid reports whether the category is one of the known categories
func (c ArtifactCategory) Valid() bool {
	switch c {
	case CategoryPrimary, CategoryVariantA, CategoryVariantB:
		return true
	}
	return false
}

// ArchiveFormat represents supported archive formats
type ArchiveFormat string

const (
	ArchiveFormatZip   ArchiveFormat = "zip"
	ArchiveFormatTarXZ ArchiveFormat = "tar.xz"
)

// Extension returns the file extension (with leading dot) for the format
func (f ArchiveFormat) Extension() string {
	if f == ArchiveFormatTarXZ {
		return ".tar.xz"
	}
	return ".zip"
}

// PublisherKind represents the publisher implementation to use
type PublisherKind string

const (
	PublisherKindCommand   PublisherKind = "command"
	PublisherKindDirectory PublisherKind = "directory"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// TargetStatus represents the terminal state of one target's pipeline
type TargetStatus string

const (
	StatusSucceeded TargetStatus = "DONE_SUCCESS"
	StatusFailed    TargetStatus = "DONE_FAILED"
	StatusSkipped   TargetStatus = "DONE_SKIPPED"
)

// Error taxonomy. Pipeline errors wrap one of these so callers can classify
// them with errors.Is.
var (
	// ErrPrerequisiteMissing marks an absent engine or tool; the target is skipped
	ErrPrerequisiteMissing = errors.New("prerequisite missing")

	// ErrConfig marks a malformed or missing manifest/config file
	ErrConfig = errors.New("configuration error")

	// ErrTransientIO marks a retryable I/O failure such as a locked file
	ErrTransientIO = errors.New("transient I/O error")

	// ErrExternalTool marks a non-zero exit from the build or upgrade tool
	ErrExternalTool = errors.New("external tool failure")

	// ErrResourceState marks a failure to restore the shared toolchain slot
	ErrResourceState = errors.New("toolchain slot state error")
)

// ToolchainDescriptor is the toolchain selection resolved for a target
type ToolchainDescriptor struct {
	Compiler string `json:"compiler"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Target is one engine version to build and package against.
// Targets are created at configuration time and never mutated.
type Target struct {
	Version   string              `json:"version"`
	Toolchain ToolchainDescriptor `json:"toolchain"`
}

func (t Target) String() string {
	return t.Version
}

// ArtifactRecord describes one expected or produced archive
type ArtifactRecord struct {
	Path     string           `json:"path"`
	Category ArtifactCategory `json:"category"`
	Target   string           `json:"target"`
	Variant  string           `json:"variant,omitempty"`
}

// ProjectionRule declares what a tree copy leaves out.
// Rules only ever combine by union.
type ProjectionRule struct {
	ExcludeDirs  []string `json:"excludeDirs,omitempty" yaml:"excludeDirs,omitempty" hcl:"exclude_dirs,optional"`
	ExcludeFiles []string `json:"excludeFiles,omitempty" yaml:"excludeFiles,omitempty" hcl:"exclude_files,optional"`
	ForceRemove  []string `json:"forceRemove,omitempty" yaml:"forceRemove,omitempty" hcl:"force_remove,optional"`
}

// Union returns a new rule containing the exclusions of r and all others.
// Nil rules are ignored.
func (r *ProjectionRule) Union(others ...*ProjectionRule) ProjectionRule {
	var out ProjectionRule
	for _, rule := range append([]*ProjectionRule{r}, others...) {
		if rule == nil {
			continue
		}
		out.ExcludeDirs = appendUnique(out.ExcludeDirs, rule.ExcludeDirs...)
		out.ExcludeFiles = appendUnique(out.ExcludeFiles, rule.ExcludeFiles...)
		out.ForceRemove = appendUnique(out.ForceRemove, rule.ForceRemove...)
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// ManifestRewrite describes edits applied to a manifest inside a staged tree
type ManifestRewrite struct {
	Manifest           string            `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	DependencyField    string            `json:"dependencyField,omitempty" yaml:"dependencyField,omitempty" hcl:"dependency_field,optional"`
	RemoveDependencies []string          `json:"removeDependencies,omitempty" yaml:"removeDependencies,omitempty" hcl:"remove_dependencies,optional"`
	RemoveFields       []string          `json:"removeFields,omitempty" yaml:"removeFields,omitempty" hcl:"remove_fields,optional"`
	SetFields          map[string]string `json:"setFields,omitempty" yaml:"setFields,omitempty" hcl:"set_fields,optional"`
}

// IsEmpty reports whether the rewrite would not change anything
func (r *ManifestRewrite) IsEmpty() bool {
	return r == nil || (len(r.RemoveDependencies) == 0 && len(r.RemoveFields) == 0 && len(r.SetFields) == 0)
}

// SortedSetFields returns the set-field names in a stable order
func (r *ManifestRewrite) SortedSetFields() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.SetFields))
	for name := range r.SetFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PluginConfig describes the plugin that is built for every target
type PluginConfig struct {
	Name     string           `json:"name" yaml:"name" hcl:"name"`
	Source   string           `json:"source" yaml:"source" hcl:"source"`
	Manifest string           `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	Rule     *ProjectionRule  `json:"rule,omitempty" yaml:"rule,omitempty" hcl:"rule,block"`
	Rewrite  *ManifestRewrite `json:"rewrite,omitempty" yaml:"rewrite,omitempty" hcl:"rewrite,block"`
}

// ManifestFile returns the manifest path relative to the plugin root
func (p *PluginConfig) ManifestFile() string {
	if p.Manifest != "" {
		return p.Manifest
	}
	return p.Name + ".uplugin"
}

// ExampleConfig describes the optional example project shipped as variants
type ExampleConfig struct {
	Name     string          `json:"name" yaml:"name" hcl:"name"`
	Source   string          `json:"source" yaml:"source" hcl:"source"`
	Manifest string          `json:"manifest,omitempty" yaml:"manifest,omitempty" hcl:"manifest,optional"`
	Rule     *ProjectionRule `json:"rule,omitempty" yaml:"rule,omitempty" hcl:"rule,block"`
}

// ManifestFile returns the project manifest path relative to the example root
func (e *ExampleConfig) ManifestFile() string {
	if e.Manifest != "" {
		return e.Manifest
	}
	return e.Name + ".uproject"
}

// EnginesConfig describes where engine installations live
type EnginesConfig struct {
	Root         string            `json:"root,omitempty" yaml:"root,omitempty" hcl:"root,optional"`
	PathTemplate string            `json:"pathTemplate,omitempty" yaml:"pathTemplate,omitempty" hcl:"path_template,optional"`
	Paths        map[string]string `json:"paths,omitempty" yaml:"paths,omitempty" hcl:"paths,optional"`
}

// ToolchainRule maps a version constraint to a compiler selection
type ToolchainRule struct {
	Constraint string `json:"constraint" yaml:"constraint" hcl:"constraint"`
	Compiler   string `json:"compiler" yaml:"compiler" hcl:"compiler"`
}

// ToolchainConfig describes the machine-wide toolchain slot
type ToolchainConfig struct {
	SlotPath string          `json:"slotPath" yaml:"slotPath" hcl:"slot_path"`
	Template string          `json:"template,omitempty" yaml:"template,omitempty" hcl:"template,optional"`
	Fallback string          `json:"fallback,omitempty" yaml:"fallback,omitempty" hcl:"fallback,optional"`
	Rules    []ToolchainRule `json:"rules,omitempty" yaml:"rules,omitempty" hcl:"rule,block"`
	LockFile string          `json:"lockFile,omitempty" yaml:"lockFile,omitempty" hcl:"lock_file,optional"`
}

// CommandConfig is a templated external command
type CommandConfig struct {
	Command string            `json:"command" yaml:"command" hcl:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" hcl:"args,optional"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" hcl:"env,optional"`
}

// BuildConfig holds the external build stage commands
type BuildConfig struct {
	Plugin  *CommandConfig `json:"plugin,omitempty" yaml:"plugin,omitempty" hcl:"plugin,block"`
	Upgrade *CommandConfig `json:"upgrade,omitempty" yaml:"upgrade,omitempty" hcl:"upgrade,block"`
}

// VariantConfig describes one derived distributable built from the example project
type VariantConfig struct {
	Name     string           `json:"name" yaml:"name" hcl:"name,label"`
	Category ArtifactCategory `json:"category" yaml:"category" hcl:"category"`
	Rule     *ProjectionRule  `json:"rule,omitempty" yaml:"rule,omitempty" hcl:"rule,block"`
	Rewrite  *ManifestRewrite `json:"rewrite,omitempty" yaml:"rewrite,omitempty" hcl:"rewrite,block"`
}

// ArchiveConfig controls archive format and retry policy
type ArchiveConfig struct {
	Format   ArchiveFormat `json:"format,omitempty" yaml:"format,omitempty" hcl:"format,optional"`
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty" hcl:"attempts,optional"`
	Delay    string        `json:"delay,omitempty" yaml:"delay,omitempty" hcl:"delay,optional"`
}

// RetryDelay parses Delay, defaulting to five seconds
func (a ArchiveConfig) RetryDelay() time.Duration {
	if a.Delay == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(a.Delay)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// CacheConfig controls the existence-based cache gate
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" hcl:"enabled,optional"`
}

// PublishConfig describes the final bulk upload
type PublishConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" hcl:"enabled,optional"`
	Kind      PublisherKind `json:"kind,omitempty" yaml:"kind,omitempty" hcl:"kind,optional"`
	Command   string        `json:"command,omitempty" yaml:"command,omitempty" hcl:"command,optional"`
	Args      []string      `json:"args,omitempty" yaml:"args,omitempty" hcl:"args,optional"`
	Remote    string        `json:"remote,omitempty" yaml:"remote,omitempty" hcl:"remote,optional"`
	OnFailure bool          `json:"onFailure,omitempty" yaml:"onFailure,omitempty" hcl:"on_failure,optional"`
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" hcl:"enabled,optional"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file,omitempty" yaml:"file,omitempty" hcl:"file,optional"`
	Level LogLevel `json:"level,omitempty" yaml:"level,omitempty" hcl:"level,optional"`
}

// PackagerConfig represents the main configuration
type PackagerConfig struct {
	Version       string              `json:"version" yaml:"version" hcl:"version"`
	Plugin        *PluginConfig       `json:"plugin" yaml:"plugin" hcl:"plugin,block"`
	Example       *ExampleConfig      `json:"example,omitempty" yaml:"example,omitempty" hcl:"example,block"`
	Output        string              `json:"output" yaml:"output" hcl:"output"`
	Staging       string              `json:"staging,omitempty" yaml:"staging,omitempty" hcl:"staging,optional"`
	Logs          string              `json:"logs,omitempty" yaml:"logs,omitempty" hcl:"logs,optional"`
	Targets       []string            `json:"targets" yaml:"targets" hcl:"targets"`
	Engines       *EnginesConfig      `json:"engines,omitempty" yaml:"engines,omitempty" hcl:"engines,block"`
	Toolchain     *ToolchainConfig    `json:"toolchain" yaml:"toolchain" hcl:"toolchain,block"`
	Projection    *ProjectionRule     `json:"projection,omitempty" yaml:"projection,omitempty" hcl:"projection,block"`
	PrimaryRule   *ProjectionRule     `json:"primaryRule,omitempty" yaml:"primaryRule,omitempty" hcl:"primary_rule,block"`
	Build         *BuildConfig        `json:"build,omitempty" yaml:"build,omitempty" hcl:"build,block"`
	Variants      []VariantConfig     `json:"variants,omitempty" yaml:"variants,omitempty" hcl:"variant,block"`
	Archive       *ArchiveConfig      `json:"archive,omitempty" yaml:"archive,omitempty" hcl:"archive,block"`
	Cache         *CacheConfig        `json:"cache,omitempty" yaml:"cache,omitempty" hcl:"cache,block"`
	Publish       *PublishConfig      `json:"publish,omitempty" yaml:"publish,omitempty" hcl:"publish,block"`
	Parallelism   int                 `json:"parallelism,omitempty" yaml:"parallelism,omitempty" hcl:"parallelism,optional"`
	FailFast      bool                `json:"failFast,omitempty" yaml:"failFast,omitempty" hcl:"fail_fast,optional"`
	NoCleanup     bool                `json:"noCleanup,omitempty" yaml:"noCleanup,omitempty" hcl:"no_cleanup,optional"`
	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty" hcl:"notifications,block"`
	Logging       *LoggingConfig      `json:"logging,omitempty" yaml:"logging,omitempty" hcl:"logging,block"`
}

// HasExample reports whether variants are built from an example project
func (c *PackagerConfig) HasExample() bool {
	return c.Example != nil && len(c.Variants) > 0
}

// TargetResult is the outcome of one target's pipeline
type TargetResult struct {
	Target      string           `json:"target"`
	Status      TargetStatus     `json:"status"`
	Stage       string           `json:"stage,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Error       error            `json:"-"`
	Duration    time.Duration    `json:"duration"`
	Artifacts   []ArtifactRecord `json:"artifacts,omitempty"`
	LogFile     string           `json:"logFile,omitempty"`
	PlannedOnly bool             `json:"plannedOnly,omitempty"`
}

// RunResult aggregates the per-target results of one run
type RunResult struct {
	RunID        string         `json:"runId"`
	StartedAt    time.Time      `json:"startedAt"`
	Duration     time.Duration  `json:"duration"`
	DryRun       bool           `json:"dryRun,omitempty"`
	Targets      []TargetResult `json:"targets"`
	Published    bool           `json:"published,omitempty"`
	PublishError string         `json:"publishError,omitempty"`
}

// AllSucceeded reports whether no target failed and publishing (if attempted) worked.
// Skipped targets do not count as failures.
func (r *RunResult) AllSucceeded() bool {
	if r.PublishError != "" {
		return false
	}
	for _, t := range r.Targets {
		if t.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Count returns how many targets ended in the given status
func (r *RunResult) Count(status TargetStatus) int {
	n := 0
	for _, t := range r.Targets {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Summary returns a one-line summary of the run
func (r *RunResult) Summary() string {
	return fmt.Sprintf("%d succeeded, %d skipped, %d failed",
		r.Count(StatusSucceeded), r.Count(StatusSkipped), r.Count(StatusFailed))
}
