package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	pcontext "github.com/marketpack/marketpack/pkg/context"
	"github.com/marketpack/marketpack/pkg/interfaces"
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Skip and failure reasons set by the orchestrator itself
const (
	ReasonCached    = "cached"
	ReasonFailFast  = "not started: an earlier target failed"
	ReasonCancelled = "not started: run cancelled"
	ReasonDryRun    = "dry run"
)

// Options are per-run switches layered over the configuration
type Options struct {
	DryRun      bool
	FailFast    bool
	Publish     bool
	Parallelism int
}

// Orchestrator runs all targets of a configuration
type Orchestrator struct {
	config    *types.PackagerConfig
	logger    logger.Logger
	pipeline  interfaces.TargetPipeline
	toolchain interfaces.ToolchainRecoverer
	cache     interfaces.CacheGate
	publisher interfaces.Publisher
	notifier  interfaces.RunNotifier
	reporter  interfaces.Reporter
	state     interfaces.StateStore
	opts      Options
}

// New creates an orchestrator. The pipeline dependency is required.
func New(config *types.PackagerConfig, log logger.Logger, deps interfaces.Dependencies, opts Options) *Orchestrator {
	if deps.Pipeline == nil {
		panic("Pipeline dependency is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.Parallelism == 0 {
		opts.Parallelism = config.Parallelism
	}
	opts.FailFast = opts.FailFast || config.FailFast
	opts.Publish = opts.Publish || (config.Publish != nil && config.Publish.Enabled)

	return &Orchestrator{
		config:    config,
		logger:    log,
		pipeline:  deps.Pipeline,
		toolchain: deps.Toolchain,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		reporter:  deps.Reporter,
		state:     deps.State,
		opts:      opts,
	}
}

// Plan returns the plan of every target without side effects
func (o *Orchestrator) Plan(targets []types.Target) []pipeline.Plan {
	plans := make([]pipeline.Plan, 0, len(targets))
	for _, t := range targets {
		plans = append(plans, o.pipeline.Plan(t))
	}
	return plans
}

// Run processes targets and returns the aggregated result. Per-target
// failures are reported in the result; the error is reserved for problems
// that prevent the run from starting.
func (o *Orchestrator) Run(ctx context.Context, targets []types.Target) (*types.RunResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets to run", types.ErrConfig)
	}

	ctx = pcontext.EnrichContext(ctx)
	runID := pcontext.GetRunID(ctx)
	log := logger.WithContext(ctx, o.logger)

	result := &types.RunResult{
		RunID:     runID,
		StartedAt: time.Now(),
		DryRun:    o.opts.DryRun,
	}

	if o.opts.DryRun {
		for _, plan := range o.Plan(targets) {
			reason := ReasonDryRun
			if plan.Problem != "" {
				reason = plan.Problem
			}
			result.Targets = append(result.Targets, types.TargetResult{
				Target:      plan.Target.Version,
				Status:      types.StatusSkipped,
				Reason:      reason,
				Artifacts:   plan.Artifacts,
				LogFile:     plan.LogFile,
				PlannedOnly: true,
			})
		}
		result.Duration = time.Since(result.StartedAt)
		return result, nil
	}

	if o.state != nil {
		active, err := o.state.ActiveRun()
		if err != nil {
			log.Warn("Failed to read target state", logger.WithField("error", err))
		}
		if active != nil {
			return nil, fmt.Errorf("%w: another run (pid %d) is packaging %s", types.ErrResourceState, active.ProcessID, active.Target)
		}
		o.state.StartHeartbeat(ctx)
		defer func() {
			if err := o.state.Cleanup(); err != nil {
				log.Warn("Failed to release target state", logger.WithField("error", err))
			}
		}()
	}

	log.Info(fmt.Sprintf("Packaging %s for %d target(s)", o.config.Plugin.Name, len(targets)))

	if o.toolchain != nil {
		recovered, err := o.toolchain.Recover(ctx)
		switch {
		case err != nil:
			log.Error("Toolchain slot could not be restored; targets will retry before installing",
				logger.WithField("error", err))
		case recovered:
			log.Warn("Restored toolchain slot left behind by an earlier run")
		}
	}

	result.Targets = o.runTargets(ctx, targets)
	result.Duration = time.Since(result.StartedAt)

	// The report goes out with the published logs; it is rewritten once the
	// publish outcome is known.
	o.writeReport(result)
	if o.opts.Publish {
		o.publish(ctx, result)
		if result.Published || result.PublishError != "" {
			result.Duration = time.Since(result.StartedAt)
			o.writeReport(result)
		}
	}

	if o.notifier != nil {
		o.notifier.NotifyRunComplete(result)
	}

	summary := fmt.Sprintf("Run finished: %s", result.Summary())
	if result.AllSucceeded() {
		log.Success(summary, logger.WithField("duration", result.Duration.Round(time.Second)))
	} else {
		log.Error(summary, logger.WithField("duration", result.Duration.Round(time.Second)))
	}
	return result, nil
}

// runTargets runs every target and returns results in declaration order
func (o *Orchestrator) runTargets(ctx context.Context, targets []types.Target) []types.TargetResult {
	results := make([]types.TargetResult, len(targets))
	var failed atomic.Bool

	run := func(i int) {
		results[i] = o.runTarget(ctx, targets[i], &failed)
		if results[i].Status == types.StatusFailed {
			failed.Store(true)
		}
	}

	if o.opts.Parallelism <= 1 {
		for i := range targets {
			run(i)
		}
		return results
	}

	group, _ := NewSafeGroup(ctx, o.logger)
	group.SetLimit(o.opts.Parallelism)
	for i := range targets {
		i := i
		group.Go(targets[i].Version, func() error {
			run(i)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		o.logger.Error("Target goroutine failed", logger.WithField("error", err))
	}

	for i := range results {
		if results[i].Status == "" {
			results[i] = types.TargetResult{
				Target: targets[i].Version,
				Status: types.StatusFailed,
				Reason: "target aborted unexpectedly",
			}
		}
	}
	return results
}

func (o *Orchestrator) runTarget(ctx context.Context, target types.Target, failed *atomic.Bool) types.TargetResult {
	log := o.logger.WithTarget(target.Version)

	if ctx.Err() != nil {
		return types.TargetResult{Target: target.Version, Status: types.StatusFailed, Reason: ReasonCancelled}
	}
	if o.opts.FailFast && failed.Load() {
		log.Warn("Skipping target after earlier failure")
		return types.TargetResult{Target: target.Version, Status: types.StatusSkipped, Reason: ReasonFailFast}
	}

	expected := o.pipeline.ExpectedArtifacts(target)
	if o.cache != nil && o.cache.ShouldSkip(target, expected) {
		return types.TargetResult{
			Target:    target.Version,
			Status:    types.StatusSkipped,
			Reason:    ReasonCached,
			Artifacts: expected,
		}
	}

	if o.notifier != nil {
		o.notifier.NotifyTargetStart(target.Version)
	}
	if o.state != nil {
		if err := o.state.MarkRunning(target.Version, pcontext.GetRunID(ctx)); err != nil {
			log.Warn("Failed to record target state", logger.WithField("error", err))
		}
	}
	result := o.pipeline.Run(ctx, target)
	o.record(ctx, result)
	if o.notifier != nil {
		o.notifier.NotifyTargetResult(result)
	}
	return result
}

// record stores the outcome of a target the pipeline ran. Targets skipped
// before the pipeline leave no state behind.
func (o *Orchestrator) record(ctx context.Context, result types.TargetResult) {
	if o.state == nil {
		return
	}
	if err := o.state.RecordResult(pcontext.GetRunID(ctx), result); err != nil {
		o.logger.Warn("Failed to record target state",
			logger.WithField("target", result.Target),
			logger.WithField("error", err))
	}
}

func (o *Orchestrator) writeReport(result *types.RunResult) {
	if o.reporter == nil {
		return
	}
	if err := o.reporter.Write(result); err != nil {
		o.logger.Warn("Failed to write run report", logger.WithField("error", err))
	}
}

// collectLogs copies a log directory kept outside the output tree into
// <output>/logs so that it is published with the artifacts
func (o *Orchestrator) collectLogs() error {
	src := o.config.Logs
	dest := filepath.Join(o.config.Output, pipeline.LogsDir)
	if src == "" || filepath.Clean(src) == filepath.Clean(dest) {
		return nil
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := utils.CopyFile(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// publish uploads the output tree once all targets finished
func (o *Orchestrator) publish(ctx context.Context, result *types.RunResult) {
	if o.publisher == nil {
		result.PublishError = "publishing requested but no publisher configured"
		return
	}

	onFailure := o.config.Publish != nil && o.config.Publish.OnFailure
	if result.Count(types.StatusFailed) > 0 && !onFailure {
		o.logger.Warn("Skipping publish because a target failed")
		return
	}
	if err := ctx.Err(); err != nil {
		result.PublishError = fmt.Sprintf("publish skipped: %v", err)
		return
	}

	if err := o.collectLogs(); err != nil {
		o.logger.Warn("Failed to collect logs for publishing", logger.WithField("error", err))
	}

	remote := ""
	if o.config.Publish != nil {
		remote = o.config.Publish.Remote
	}
	if err := o.publisher.Publish(ctx, o.config.Output, remote); err != nil {
		o.logger.Error("Publish failed", logger.WithField("error", err))
		result.PublishError = err.Error()
		return
	}
	result.Published = true
	o.logger.Success("Published output", logger.WithField("remote", remote))
}
