package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marketpack/marketpack/internal/engine"
	"github.com/marketpack/marketpack/pkg/archive"
	"github.com/marketpack/marketpack/pkg/cache"
	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/process"
	"github.com/marketpack/marketpack/pkg/state"
	"github.com/marketpack/marketpack/pkg/toolchain"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/validation"
)

func (c *CLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured targets",
		Long:  `List the engine versions in the configuration with their toolchain and artifact state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runList()
		},
	}
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long:  `Check that the configuration is valid and that sources, engines and tools are in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate()
		},
	}
}

func (c *CLI) newCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staging directories",
		Long: `Remove the staging directory. With --all the output directory and the
recorded target history are removed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runClean(all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "also remove artifacts, logs and target history")
	return cmd
}

func (c *CLI) newLogsCmd() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs [version]",
		Short: "Show build logs",
		Long:  `Display the build log of one target, or of all targets.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := ""
			if len(args) > 0 {
				version = args[0]
			}
			return c.runLogs(version, lines)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [version]",
		Short: "Show the last outcome of every target",
		Long:  `Show the recorded outcome of every target, or the details of one target.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.runStatusDetail(args[0])
			}
			return c.runStatus()
		},
	}
}

func (c *CLI) newToolchainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Manage the machine-wide toolchain configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Restore a toolchain configuration left installed by an interrupted run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runToolchainRestore(cmd.Context())
		},
	})
	return cmd
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of marketpack",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "📦 marketpack v%s\n", c.config.Version)
		},
	}
}

// Implementation functions

func (c *CLI) runList() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	targets, err := engine.NewDependencyFactory(cfg, c.logger, nil).Targets(nil)
	if err != nil {
		return err
	}

	c.printInfo(fmt.Sprintf("Plugin: %s", cfg.Plugin.Name))
	fmt.Fprintln(c.output)

	format := archive.NewWriter(cfg.Archive, c.logger).Format()
	gate := cache.NewGate(true, c.logger)

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tTOOLCHAIN\tENGINE\tARTIFACTS")
	fmt.Fprintln(w, "-------\t---------\t------\t---------")

	for _, t := range targets {
		compiler := t.Toolchain.Compiler
		if t.Toolchain.Fallback {
			compiler += " (fallback)"
		}

		engineState := color.GreenString("✓")
		if dir, err := pipeline.ResolveEngineDir(cfg, t.Version); err != nil || !dirExists(dir) {
			engineState = color.RedString("✗ missing")
		}

		expected := pipeline.ExpectedArtifacts(cfg, format, t)
		missing := len(gate.Missing(expected))
		artifacts := color.GreenString("%d/%d", len(expected)-missing, len(expected))
		if missing > 0 {
			artifacts = color.YellowString("%d/%d", len(expected)-missing, len(expected))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.Version,
			compiler,
			engineState,
			artifacts,
		)
	}

	return w.Flush()
}

func (c *CLI) runStatus() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	states, err := state.NewStateManager(state.Dir(cfg), c.logger).DiscoverStates()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		c.printInfo("No runs recorded yet")
		return nil
	}

	var extra []string
	for v := range states {
		if !contains(cfg.Targets, v) {
			extra = append(extra, v)
		}
	}
	sort.Strings(extra)
	versions := append(append([]string(nil), cfg.Targets...), extra...)

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tLAST RUN\tOK\tFAILED\tSKIPPED\tLAST ERROR")
	fmt.Fprintln(w, "------\t------\t--------\t--\t------\t-------\t----------")

	for _, v := range versions {
		s, ok := states[v]
		if !ok {
			fmt.Fprintf(w, "%s\t%s\t-\t0\t0\t0\t\n", v, color.HiBlackString("never run"))
			continue
		}

		status := string(s.Status)
		switch s.Status {
		case types.StatusSucceeded:
			status = color.GreenString(status)
		case types.StatusFailed:
			status = color.RedString(status)
		case state.StatusRunning:
			status = color.CyanString("%s (pid %d)", status, s.ProcessID)
		}

		lastRun := "-"
		if !s.LastRunTime.IsZero() {
			lastRun = s.LastRunTime.Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			v,
			status,
			lastRun,
			s.SuccessCount,
			s.FailureCount,
			s.SkipCount,
			s.LastError,
		)
	}
	return w.Flush()
}

func (c *CLI) runStatusDetail(version string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	s, err := state.NewStateManager(state.Dir(cfg), c.logger).ReadState(version)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no state recorded for target %s", version)
		}
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Target:\t%s\n", s.Target)
	fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	if s.Stage != "" {
		fmt.Fprintf(w, "Stage:\t%s\n", s.Stage)
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:\t%s\n", s.RunID)
	}
	if !s.LastRunTime.IsZero() {
		fmt.Fprintf(w, "Last run:\t%s (%s)\n", s.LastRunTime.Format("2006-01-02 15:04:05"), s.Duration.Round(time.Second))
	}
	fmt.Fprintf(w, "Runs:\t%d succeeded, %d skipped, %d failed\n", s.SuccessCount, s.SkipCount, s.FailureCount)
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", s.LastError)
	}
	for _, a := range s.Artifacts {
		fmt.Fprintf(w, "Artifact:\t%s\n", a)
	}
	return w.Flush()
}

func (c *CLI) runValidate() error {
	cfg, err := c.loadConfig()
	if err != nil {
		c.printError(fmt.Sprintf("Configuration is invalid: %v", err))
		return &ExitError{Code: 1}
	}

	result := validation.NewValidator(cfg).Validate()
	c.printValidation(result)

	if !result.Valid {
		c.printError(fmt.Sprintf("Configuration has %d error(s)", result.Count(validation.ValidationLevelError)))
		return &ExitError{Code: 1}
	}
	if n := result.Count(validation.ValidationLevelWarning); n > 0 {
		c.printSuccess(fmt.Sprintf("Configuration is valid (%d warning(s))", n))
		return nil
	}
	c.printSuccess("Configuration is valid")
	return nil
}

func (c *CLI) runClean(all bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	sm := state.NewStateManager(state.Dir(cfg), c.logger)
	for _, v := range cfg.Targets {
		locked, err := sm.IsLocked(v)
		if err != nil {
			return err
		}
		if locked {
			return fmt.Errorf("%w: target %s is being packaged by another run", types.ErrResourceState, v)
		}
	}

	dirs := []string{cfg.Staging}
	if all {
		dirs = append(dirs, cfg.Output)
		if cfg.Logs != "" {
			dirs = append(dirs, cfg.Logs)
		}
	}

	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		c.logger.Debug("Removed directory: " + dir)
	}

	if all {
		for _, v := range cfg.Targets {
			if err := sm.RemoveState(v); err != nil {
				return err
			}
		}
		c.printSuccess("Removed staging, artifacts, logs and target history")
	} else {
		c.printSuccess("Removed staging directories")
	}
	return nil
}

func (c *CLI) runLogs(version string, lines int) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	var logFiles []string
	if version != "" {
		path := pipeline.LogPath(cfg, version)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("no log found for target: %s", version)
		}
		logFiles = []string{path}
	} else {
		for _, v := range cfg.Targets {
			path := pipeline.LogPath(cfg, v)
			if _, err := os.Stat(path); err == nil {
				logFiles = append(logFiles, path)
			}
		}
		sort.Strings(logFiles)
	}

	if len(logFiles) == 0 {
		c.printWarning("No logs found. Run 'marketpack run' first.")
		return nil
	}

	for _, logFile := range logFiles {
		content, err := readLastNLines(logFile, lines)
		if err != nil {
			c.printError(fmt.Sprintf("Failed to display %s: %v", filepath.Base(logFile), err))
			continue
		}
		fmt.Fprintf(c.output, "\n=== %s ===\n", strings.TrimSuffix(filepath.Base(logFile), ".log"))
		fmt.Fprint(c.output, content)
	}
	return nil
}

func (c *CLI) runToolchainRestore(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	active, err := state.NewStateManager(state.Dir(cfg), c.logger).ActiveRun()
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("%w: run %d is still packaging %s; restore after it ends",
			types.ErrResourceState, active.ProcessID, active.Target)
	}

	manager, err := toolchain.NewManager(cfg.Toolchain, c.logger)
	if err != nil {
		return err
	}

	ctx, _, stop := process.WithSignalCancel(ctx, c.logger)
	defer stop()

	restored, err := manager.Recover(ctx)
	if err != nil {
		return err
	}
	if restored {
		c.printSuccess(fmt.Sprintf("Restored %s", manager.SlotPath()))
	} else {
		c.printInfo("Toolchain configuration is not installed by marketpack; nothing to restore")
	}
	return nil
}

func readLastNLines(filename string, n int) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var allLines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	start := 0
	if len(allLines) > n {
		start = len(allLines) - n
	}
	return strings.Join(allLines[start:], "\n") + "\n", nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
