// Package cli provides the command-line interface for marketpack
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marketpack/marketpack/pkg/config"
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/types"
)

// EnvPrefix is the prefix of environment variables that override flags,
// e.g. MARKETPACK_USE_CACHE=true
const EnvPrefix = "MARKETPACK"

// CLI encapsulates the command-line interface
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	console  *logger.ConsoleLogger
	runner   runner.Runner
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(config *Config) *CLI {
	if config == nil {
		config = NewConfig()
	}

	cli := &CLI{
		config:   config,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}
	cli.console = logger.NewConsoleLogger(cli.output, cli.errorOut)

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(config *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(config)
	cli.output = output
	cli.errorOut = errorOut
	cli.console = logger.NewConsoleLogger(output, errorOut)
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// WithRunner replaces the process runner used for external tools
func (c *CLI) WithRunner(r runner.Runner) *CLI {
	c.runner = r
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "marketpack",
		Short: "Package Unreal Engine plugins for marketplace submission",
		Long: `📦 marketpack - Build and package an Unreal Engine plugin for every supported
engine version, together with example projects, ready for marketplace upload.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("📦 marketpack v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newPlanCmd())
	c.rootCmd.AddCommand(c.newListCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newCleanCmd())
	c.rootCmd.AddCommand(c.newLogsCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newToolchainCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: marketpack.config.{json,yaml,yml,hcl} in the project root)")
	flags.StringVar(&c.config.ProjectRoot, "root", ".", "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")
}

// initializeConfig lets MARKETPACK_* environment variables fill in flags
// that were not given on the command line
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.viper.SetEnvPrefix(EnvPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := c.viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}

	c.config.ConfigFile = c.viper.GetString("config")
	c.config.ProjectRoot = c.viper.GetString("root")
	c.config.Verbosity = c.viper.GetString("verbosity")

	c.logger = c.createLogger("")
	return nil
}

func (c *CLI) createLogger(file string) logger.Logger {
	if c.output != os.Stdout {
		return logger.CreateLoggerWithOutput(c.config.Verbosity, c.output)
	}
	return logger.CreateLogger(file, c.config.Verbosity)
}

// loadConfig locates and loads the configuration. The logger is recreated
// so that it honors the configured log file.
func (c *CLI) loadConfig() (*types.PackagerConfig, error) {
	path, err := c.getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewManager().LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if cfg.Logging != nil && cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err == nil {
			c.logger = c.createLogger(cfg.Logging.File)
		}
	}
	c.logger.Debug("Loaded configuration", logger.WithField("file", path))
	return cfg, nil
}

func (c *CLI) getConfigPath() (string, error) {
	if c.config.ConfigFile != "" {
		return c.config.ConfigFile, nil
	}
	return config.Find(c.config.ProjectRoot)
}

// Helper methods for structured output

func (c *CLI) printSuccess(message string) {
	c.console.Success(message)
}

func (c *CLI) printError(message string) {
	c.console.Error(message)
}

func (c *CLI) printInfo(message string) {
	c.console.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.console.Warn(message)
}

// ExecuteWithVersion runs the CLI on the process arguments
func ExecuteWithVersion(version string) error {
	config := NewConfig()
	config.Version = version
	cli := NewCLI(config)
	return cli.Execute(os.Args[1:])
}
