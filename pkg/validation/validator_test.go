package validation_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/validation"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newConfig(t *testing.T) *types.PackagerConfig {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Foo", "Foo.uplugin"), `{"FriendlyName": "Foo", "EngineVersion": "5.0.0"}`)
	writeFile(t, filepath.Join(root, "Demo", "Demo.uproject"),
		`{"Plugins": [{"Name": "Foo", "Enabled": true}, {"Name": "DemoTools", "Enabled": true}]}`)
	writeFile(t, filepath.Join(root, "engines", "UE_5.4", "RunUAT.sh"), "#!/bin/sh")

	return &types.PackagerConfig{
		Version: "1.0",
		Plugin: &types.PluginConfig{
			Name:    "Foo",
			Source:  filepath.Join(root, "Foo"),
			Rewrite: &types.ManifestRewrite{SetFields: map[string]string{"EngineVersion": "{{.Version}}.0"}},
		},
		Example: &types.ExampleConfig{Name: "Demo", Source: filepath.Join(root, "Demo")},
		Variants: []types.VariantConfig{
			{Name: "Full", Category: types.CategoryVariantA},
			{
				Name:     "Blueprint",
				Category: types.CategoryVariantB,
				Rule:     &types.ProjectionRule{ForceRemove: []string{"Plugins/DemoTools"}},
				Rewrite:  &types.ManifestRewrite{RemoveDependencies: []string{"DemoTools"}},
			},
		},
		Output:    filepath.Join(root, "out"),
		Staging:   filepath.Join(root, "staging"),
		Targets:   []string{"5.4"},
		Engines:   &types.EnginesConfig{Root: filepath.Join(root, "engines")},
		Toolchain: &types.ToolchainConfig{SlotPath: filepath.Join(root, "slot", "BuildConfiguration.xml")},
		Build: &types.BuildConfig{
			Plugin: &types.CommandConfig{Command: "{{.EngineDir}}/RunUAT.sh", Args: []string{"BuildPlugin"}},
		},
	}
}

func hasFinding(result *validation.ValidationResult, subject, field string, level validation.ValidationLevel) bool {
	for _, e := range result.Errors {
		if e.Subject == subject && e.Field == field && e.Level == level {
			return true
		}
	}
	return false
}

func TestValidator_ValidConfig(t *testing.T) {
	result := validation.NewValidator(newConfig(t)).Validate()
	if !result.Valid {
		t.Errorf("expected valid configuration, got %v", result.Errors)
	}
	if n := result.Count(validation.ValidationLevelWarning); n != 0 {
		t.Errorf("unexpected warnings: %v", result.Errors)
	}
}

func TestValidator_Findings(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*types.PackagerConfig)
		subject       string
		field         string
		level         validation.ValidationLevel
		expectInvalid bool
	}{
		{
			name:          "missing plugin source",
			mutate:        func(c *types.PackagerConfig) { c.Plugin.Source = filepath.Join(c.Output, "nope") },
			subject:       "plugin",
			field:         "source",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name: "malformed plugin manifest",
			mutate: func(c *types.PackagerConfig) {
				writeFile(t, filepath.Join(c.Plugin.Source, "Foo.uplugin"), `{"FriendlyName": `)
			},
			subject:       "plugin",
			field:         "manifest",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name:          "missing example manifest",
			mutate:        func(c *types.PackagerConfig) { c.Example.Manifest = "Other.uproject" },
			subject:       "example",
			field:         "manifest",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name:    "engine not installed",
			mutate:  func(c *types.PackagerConfig) { c.Targets = append(c.Targets, "5.3") },
			subject: "5.3",
			field:   "engine",
			level:   validation.ValidationLevelWarning,
		},
		{
			name: "build tool missing",
			mutate: func(c *types.PackagerConfig) {
				c.Build.Plugin.Command = "{{.EngineDir}}/Engine/Build/BatchFiles/RunUAT.sh"
			},
			subject: "5.4",
			field:   "build",
			level:   validation.ValidationLevelWarning,
		},
		{
			name:          "force remove escapes tree",
			mutate:        func(c *types.PackagerConfig) { c.Variants[1].Rule.ForceRemove = []string{"../Other"} },
			subject:       "Blueprint",
			field:         "rule.forceRemove",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name: "bad set-field template",
			mutate: func(c *types.PackagerConfig) {
				c.Plugin.Rewrite.SetFields["VersionName"] = "{{.Version"
			},
			subject:       "plugin",
			field:         "rewrite.setFields",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name: "removed dependency not declared",
			mutate: func(c *types.PackagerConfig) {
				c.Variants[1].Rewrite.RemoveDependencies = []string{"Missing"}
			},
			subject: "Blueprint",
			field:   "rewrite.removeDependencies",
			level:   validation.ValidationLevelWarning,
		},
		{
			name:          "output inside plugin source",
			mutate:        func(c *types.PackagerConfig) { c.Output = filepath.Join(c.Plugin.Source, "dist") },
			subject:       "config",
			field:         "output",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
		{
			name: "interrupted toolchain install",
			mutate: func(c *types.PackagerConfig) {
				writeFile(t, c.Toolchain.SlotPath+".marketpack.absent", "")
			},
			subject: "toolchain",
			field:   "slotPath",
			level:   validation.ValidationLevelWarning,
		},
		{
			name: "publish without remote",
			mutate: func(c *types.PackagerConfig) {
				c.Publish = &types.PublishConfig{Enabled: true, Kind: types.PublisherKindDirectory}
			},
			subject:       "publish",
			field:         "remote",
			level:         validation.ValidationLevelError,
			expectInvalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			tt.mutate(cfg)

			result := validation.NewValidator(cfg).Validate()
			if !hasFinding(result, tt.subject, tt.field, tt.level) {
				t.Errorf("missing %s finding for %s.%s in %v", tt.level, tt.subject, tt.field, result.Errors)
			}
			if result.Valid == tt.expectInvalid {
				t.Errorf("Valid = %v, expectInvalid = %v", result.Valid, tt.expectInvalid)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	e := validation.ValidationError{Subject: "5.4", Field: "engine", Message: "not found", Level: validation.ValidationLevelWarning}
	if got := e.Error(); !strings.Contains(got, "[warning] 5.4.engine: not found") {
		t.Errorf("Error() = %q", got)
	}
}
