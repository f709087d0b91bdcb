// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/marketpack/marketpack/pkg/toolchain"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// ConfigVersion is the only supported configuration schema version
const ConfigVersion = "1.0"

// FileNames are the configuration file names looked up in a project root, in order
var FileNames = []string{
	"marketpack.config.json",
	"marketpack.config.yaml",
	"marketpack.config.yml",
	"marketpack.config.hcl",
}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// Find returns the first configuration file present in dir
func Find(dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no configuration file found in %s", types.ErrConfig, dir)
}

// LoadConfig loads configuration from a file, applies defaults, resolves
// relative paths against the file's directory and validates the result.
func (m *Manager) LoadConfig(path string) (*types.PackagerConfig, error) {
	cfg, err := m.parse(path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	ApplyDefaults(cfg, filepath.Dir(abs))

	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) parse(path string) (*types.PackagerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", types.ErrConfig, err)
	}

	var cfg types.PackagerConfig
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		if err := hclsimple.Decode(filepath.Base(path), data, evalContext(), &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrConfig, err)
		}
		return &cfg, nil
	}

	// Try JSON first
	jsonErr := json.Unmarshal(data, &cfg)
	if jsonErr == nil {
		return &cfg, nil
	}

	cfg = types.PackagerConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config as JSON (%v) or YAML (%v)", types.ErrConfig, jsonErr, err)
	}
	return &cfg, nil
}

// evalContext exposes the process environment to HCL files as env.NAME
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" || !hclIdentifier(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func hclIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// ValidateConfig checks the structure of a configuration. Filesystem checks
// live in the validation package.
func (m *Manager) ValidateConfig(config *types.PackagerConfig) error {
	if config == nil {
		return fmt.Errorf("%w: configuration is empty", types.ErrConfig)
	}
	if config.Version != ConfigVersion {
		return fmt.Errorf("%w: unsupported config version: %s", types.ErrConfig, config.Version)
	}

	if config.Plugin == nil || config.Plugin.Name == "" {
		return fmt.Errorf("%w: plugin name is required", types.ErrConfig)
	}
	if config.Plugin.Source == "" {
		return fmt.Errorf("%w: plugin source is required", types.ErrConfig)
	}
	if config.Output == "" {
		return fmt.Errorf("%w: output directory is required", types.ErrConfig)
	}

	if len(config.Targets) == 0 {
		return fmt.Errorf("%w: no targets defined", types.ErrConfig)
	}
	seen := make(map[string]bool, len(config.Targets))
	for _, t := range config.Targets {
		if _, err := version.NewVersion(t); err != nil {
			return fmt.Errorf("%w: target %q is not an engine version", types.ErrConfig, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate target: %s", types.ErrConfig, t)
		}
		seen[t] = true
	}

	if config.Toolchain == nil || config.Toolchain.SlotPath == "" {
		return fmt.Errorf("%w: toolchain slotPath is required", types.ErrConfig)
	}
	if _, err := toolchain.NewResolver(config.Toolchain); err != nil {
		return err
	}

	if len(config.Variants) > 0 && config.Example == nil {
		return fmt.Errorf("%w: variants require an example project", types.ErrConfig)
	}
	if config.Example != nil && (config.Example.Name == "" || config.Example.Source == "") {
		return fmt.Errorf("%w: example name and source are required", types.ErrConfig)
	}
	variants := make(map[string]bool, len(config.Variants))
	for _, v := range config.Variants {
		if v.Name == "" {
			return fmt.Errorf("%w: variant name is required", types.ErrConfig)
		}
		if variants[v.Name] {
			return fmt.Errorf("%w: duplicate variant name: %s", types.ErrConfig, v.Name)
		}
		variants[v.Name] = true
		if v.Category != types.CategoryVariantA && v.Category != types.CategoryVariantB {
			return fmt.Errorf("%w: variant %s: invalid category %q", types.ErrConfig, v.Name, v.Category)
		}
	}

	if config.Archive != nil {
		switch config.Archive.Format {
		case "", types.ArchiveFormatZip, types.ArchiveFormatTarXZ:
		default:
			return fmt.Errorf("%w: invalid archive format: %s", types.ErrConfig, config.Archive.Format)
		}
		if config.Archive.Attempts < 0 {
			return fmt.Errorf("%w: archive attempts cannot be negative", types.ErrConfig)
		}
	}

	if config.Publish != nil {
		switch config.Publish.Kind {
		case "", types.PublisherKindCommand, types.PublisherKindDirectory:
		default:
			return fmt.Errorf("%w: invalid publisher kind: %s", types.ErrConfig, config.Publish.Kind)
		}
	}

	if config.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism cannot be negative", types.ErrConfig)
	}
	return nil
}

// GetDefaultConfig returns a starting configuration for a plugin project
func (m *Manager) GetDefaultConfig() *types.PackagerConfig {
	return &types.PackagerConfig{
		Version: ConfigVersion,
		Plugin: &types.PluginConfig{
			Name:   "MyPlugin",
			Source: "Plugins/MyPlugin",
		},
		Output:  "dist",
		Targets: []string{"5.3", "5.4", "5.5"},
		Engines: &types.EnginesConfig{Root: defaultEngineRoot()},
		Toolchain: &types.ToolchainConfig{
			SlotPath: defaultSlotPath(),
			Rules: []types.ToolchainRule{
				{Constraint: ">= 5.4", Compiler: "VisualStudio2022"},
				{Constraint: ">= 5.0, < 5.4", Compiler: "VisualStudio2019"},
			},
		},
		Archive:       &types.ArchiveConfig{Format: types.ArchiveFormatZip},
		Cache:         &types.CacheConfig{Enabled: true},
		Notifications: &types.NotificationConfig{Enabled: true},
	}
}

// ApplyDefaults fills in unset values and makes paths absolute relative to baseDir
func ApplyDefaults(cfg *types.PackagerConfig, baseDir string) {
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}

	if cfg.Plugin != nil {
		cfg.Plugin.Source = resolve(baseDir, cfg.Plugin.Source)
		if cfg.Plugin.Rewrite == nil {
			cfg.Plugin.Rewrite = &types.ManifestRewrite{
				SetFields: map[string]string{"EngineVersion": "{{.Version}}.0"},
			}
		}
	}
	if cfg.Example != nil {
		cfg.Example.Source = resolve(baseDir, cfg.Example.Source)
	}

	cfg.Output = resolve(baseDir, cfg.Output)
	if cfg.Staging == "" {
		cfg.Staging = filepath.Join(baseDir, ".marketpack", "staging")
	} else {
		cfg.Staging = resolve(baseDir, cfg.Staging)
	}
	cfg.Logs = resolve(baseDir, cfg.Logs)

	if cfg.Engines == nil {
		cfg.Engines = &types.EnginesConfig{Root: defaultEngineRoot()}
	}
	cfg.Engines.Root = resolve(baseDir, cfg.Engines.Root)
	for v, p := range cfg.Engines.Paths {
		cfg.Engines.Paths[v] = resolve(baseDir, p)
	}

	if cfg.Toolchain == nil {
		cfg.Toolchain = &types.ToolchainConfig{}
	}
	if cfg.Toolchain.SlotPath == "" {
		cfg.Toolchain.SlotPath = defaultSlotPath()
	}
	cfg.Toolchain.SlotPath = resolve(baseDir, cfg.Toolchain.SlotPath)

	defaults := &types.ProjectionRule{
		ExcludeDirs:  utils.DefaultExcludeDirs(),
		ExcludeFiles: utils.DefaultExcludeFiles(),
	}
	projection := defaults.Union(cfg.Projection)
	cfg.Projection = &projection

	if cfg.Build == nil {
		cfg.Build = &types.BuildConfig{}
	}
	if cfg.Build.Plugin == nil {
		cfg.Build.Plugin = DefaultBuildCommand()
	}

	if cfg.Archive == nil {
		cfg.Archive = &types.ArchiveConfig{}
	}
	if cfg.Archive.Format == "" {
		cfg.Archive.Format = types.ArchiveFormatZip
	}
	if cfg.Archive.Attempts == 0 {
		cfg.Archive.Attempts = 3
	}

	if cfg.Publish != nil {
		if cfg.Publish.Kind == "" {
			cfg.Publish.Kind = types.PublisherKindCommand
		}
		if cfg.Publish.Kind == types.PublisherKindDirectory {
			cfg.Publish.Remote = resolve(baseDir, cfg.Publish.Remote)
		}
	}

	if cfg.Parallelism == 0 {
		cfg.Parallelism = 1
	}

	if cfg.Logging == nil {
		cfg.Logging = &types.LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = types.LogLevelInfo
	}
	cfg.Logging.File = resolve(baseDir, cfg.Logging.File)
}

// DefaultBuildCommand runs the engine's automation tool to build the plugin
func DefaultBuildCommand() *types.CommandConfig {
	script := "RunUAT.sh"
	if runtime.GOOS == "windows" {
		script = "RunUAT.bat"
	}
	return &types.CommandConfig{
		Command: "{{.EngineDir}}/Engine/Build/BatchFiles/" + script,
		Args: []string{
			"BuildPlugin",
			"-Plugin={{.PluginFile}}",
			"-Package={{.PackageDir}}",
			"-Rocket",
		},
	}
}

func defaultEngineRoot() string {
	if runtime.GOOS == "windows" {
		return `C:\Program Files\Epic Games`
	}
	return ""
}

func defaultSlotPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "Unreal Engine", "UnrealBuildTool", "BuildConfiguration.xml")
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
