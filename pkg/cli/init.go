package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marketpack/marketpack/pkg/config"
	"github.com/marketpack/marketpack/pkg/types"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new marketpack configuration",
		Long: `Initialize a new marketpack configuration file in the project root.
A plugin (.uplugin) and example project (.uproject) are detected when present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing configuration")
	return cmd
}

func (c *CLI) runInit(force bool) error {
	root := c.config.ProjectRoot
	configPath := c.config.ConfigFile
	if configPath == "" {
		configPath = filepath.Join(root, config.FileNames[0])
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists. Use --force to overwrite")
	}

	cfg := config.NewManager().GetDefaultConfig()

	if plugin := detectManifest(root, ".uplugin"); plugin != "" {
		name := strings.TrimSuffix(filepath.Base(plugin), ".uplugin")
		cfg.Plugin = &types.PluginConfig{Name: name, Source: relativeTo(root, filepath.Dir(plugin))}
		c.printInfo(fmt.Sprintf("Detected plugin: %s", name))
	} else {
		c.printInfo("No .uplugin found, using placeholder plugin 'MyPlugin'")
	}

	if project := detectManifest(root, ".uproject"); project != "" {
		name := strings.TrimSuffix(filepath.Base(project), ".uproject")
		cfg.Example = &types.ExampleConfig{Name: name, Source: relativeTo(root, filepath.Dir(project))}
		cfg.Variants = []types.VariantConfig{
			{Name: "Project", Category: types.CategoryVariantA},
		}
		c.printInfo(fmt.Sprintf("Detected example project: %s", name))
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.printSuccess(fmt.Sprintf("Created configuration at %s", configPath))
	c.printInfo("Edit the configuration to set your engine versions and toolchain rules")
	return nil
}

// detectManifest finds the first file with the given extension in root or
// one or two directory levels below it
func detectManifest(root, ext string) string {
	for _, pattern := range []string{"*", filepath.Join("*", "*"), filepath.Join("*", "*", "*")} {
		matches, _ := filepath.Glob(filepath.Join(root, pattern+ext))
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0]
		}
	}
	return ""
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
