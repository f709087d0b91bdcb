package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marketpack/marketpack/internal/engine"
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/process"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/validation"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and package every target",
		Long: `Build the plugin against every configured engine version, package it and the
example project variants, and optionally publish the output directory.

Targets that fail do not stop the run; the exit code is 1 if any target failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPackaging(cmd.Context(), c.runOptions())
		},
	}

	flags := cmd.Flags()
	flags.Bool("dry-run", false, "show what would be done without building anything")
	flags.Bool("skip-validation", false, "skip environment validation before the run")
	flags.Bool("use-cache", false, "skip targets whose artifacts already exist")
	flags.Bool("fail-fast", false, "do not start further targets after a failure")
	flags.Bool("no-cleanup", false, "keep staging directories for inspection")
	flags.Bool("publish", false, "publish the output directory after the run")
	flags.Int("parallelism", 0, "number of targets processed concurrently (default from config)")
	flags.StringSliceP("target", "t", nil, "only process these engine versions")

	return cmd
}

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the stages and artifacts of every target",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.runOptions()
			opts.DryRun = true
			return c.runPackaging(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringSliceP("target", "t", nil, "only show these engine versions")
	return cmd
}

func (c *CLI) runOptions() RunOptions {
	return RunOptions{
		DryRun:         c.viper.GetBool("dry-run"),
		SkipValidation: c.viper.GetBool("skip-validation"),
		UseCache:       c.viper.GetBool("use-cache"),
		FailFast:       c.viper.GetBool("fail-fast"),
		NoCleanup:      c.viper.GetBool("no-cleanup"),
		Publish:        c.viper.GetBool("publish"),
		Parallelism:    c.viper.GetInt("parallelism"),
		Targets:        c.viper.GetStringSlice("target"),
	}
}

func (c *CLI) runPackaging(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.UseCache {
		cfg.Cache = &types.CacheConfig{Enabled: true}
	}

	if !opts.SkipValidation && !opts.DryRun {
		result := validation.NewValidator(cfg).Validate()
		c.printValidation(result)
		if !result.Valid {
			return &ExitError{Code: 1}
		}
	}

	var live io.Writer
	if c.config.Verbosity == "debug" {
		live = c.output
	}
	factory := engine.NewDependencyFactory(cfg, c.logger, live)
	if c.runner != nil {
		factory.WithRunner(c.runner)
	}

	targets, err := factory.Targets(opts.Targets)
	if err != nil {
		return err
	}
	deps, err := factory.CreateDefaults(opts.NoCleanup || cfg.NoCleanup)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pm := process.NewManager(c.logger)
	pm.RegisterShutdownHandler(cancel)
	started := time.Now()
	pm.SetHeartbeat(func() {
		c.logger.Info("Still packaging", logger.WithField("elapsed", time.Since(started).Round(time.Second)))
	}, process.DefaultHeartbeatInterval)
	pm.Start(ctx)
	defer pm.Stop()

	orchestrator := engine.New(cfg, c.logger, deps, engine.Options{
		DryRun:      opts.DryRun,
		FailFast:    opts.FailFast,
		Publish:     opts.Publish,
		Parallelism: opts.Parallelism,
	})

	if opts.DryRun {
		fmt.Fprint(c.output, renderPlan(cfg, orchestrator.Plan(targets)))
		return nil
	}

	result, err := orchestrator.Run(ctx, targets)
	if err != nil {
		return err
	}
	c.printResult(result)

	if !result.AllSucceeded() {
		return &ExitError{Code: 1}
	}
	return nil
}

// renderPlan draws the per-target plan as a tree
func renderPlan(cfg *types.PackagerConfig, plans []pipeline.Plan) string {
	root := gotree.New(fmt.Sprintf("%s → %s", cfg.Plugin.Name, cfg.Output))
	for _, plan := range plans {
		node := root.Add(fmt.Sprintf("%s (%s)", plan.Target.Version, plan.Target.Toolchain.Compiler))
		if plan.Problem != "" {
			node.Add("skip: " + plan.Problem)
			continue
		}
		node.Add("engine: " + plan.EngineDir)
		node.Add("stages: " + strings.Join(plan.Stages, " → "))
		node.Add("log: " + plan.LogFile)
		artifacts := node.Add("artifacts")
		for _, a := range plan.Artifacts {
			artifacts.Add(fmt.Sprintf("[%s] %s", a.Category, a.Path))
		}
	}
	return root.Print()
}

func (c *CLI) printResult(result *types.RunResult) {
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tSTAGE\tDURATION\tDETAILS")
	fmt.Fprintln(w, "------\t------\t-----\t--------\t-------")

	for _, r := range result.Targets {
		status := string(r.Status)
		switch r.Status {
		case types.StatusSucceeded:
			status = color.GreenString(status)
		case types.StatusFailed:
			status = color.RedString(status)
		case types.StatusSkipped:
			status = color.YellowString(status)
		}

		stage := r.Stage
		if stage == "" {
			stage = "-"
		}
		details := r.Reason
		if details == "" {
			details = fmt.Sprintf("%d artifact(s)", len(r.Artifacts))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Target,
			status,
			stage,
			r.Duration.Round(time.Second),
			details,
		)
	}
	w.Flush()

	if result.PublishError != "" {
		c.printError(fmt.Sprintf("Publish failed: %s", result.PublishError))
	} else if result.Published {
		c.printSuccess("Published output")
	}

	summary := result.Summary()
	if result.AllSucceeded() {
		c.printSuccess(summary)
	} else {
		c.printError(summary)
	}
}

func (c *CLI) printValidation(result *validation.ValidationResult) {
	for _, e := range result.Errors {
		line := fmt.Sprintf("%s.%s: %s", e.Subject, e.Field, e.Message)
		switch e.Level {
		case validation.ValidationLevelError:
			c.printError(line)
		case validation.ValidationLevelWarning:
			c.printWarning(line)
		default:
			c.logger.Debug(line)
		}
	}
}
