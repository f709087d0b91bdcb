// Package pipeline runs the per-target build and packaging stages.
//
// Stages run in a fixed order:
//
//	SETUP → ACQUIRE_TOOLCHAIN → PROJECT_SOURCE → APPLY_EXCLUSIONS → BUILD →
//	PACKAGE_PRIMARY → [UPGRADE_VARIANT_TREE → PACKAGE_VARIANTS] → CLEANUP
//
// CLEANUP runs on every exit path after SETUP. A missing engine or tool in
// SETUP skips the target instead of failing it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marketpack/marketpack/pkg/archive"
	pcontext "github.com/marketpack/marketpack/pkg/context"
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/projector"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/toolchain"
	"github.com/marketpack/marketpack/pkg/types"
)

// Stage names
const (
	StageSetup              = "SETUP"
	StageAcquireToolchain   = "ACQUIRE_TOOLCHAIN"
	StageProjectSource      = "PROJECT_SOURCE"
	StageApplyExclusions    = "APPLY_EXCLUSIONS"
	StageBuild              = "BUILD"
	StagePackagePrimary     = "PACKAGE_PRIMARY"
	StageUpgradeVariantTree = "UPGRADE_VARIANT_TREE"
	StagePackageVariants    = "PACKAGE_VARIANTS"
	StageCleanup            = "CLEANUP"
)

// ErrCancelled marks a target stopped between stages
var ErrCancelled = errors.New("cancelled")

// StageError attributes a failure to the stage it happened in
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options wires a pipeline to its collaborators
type Options struct {
	Config    *types.PackagerConfig
	Toolchain *toolchain.Manager
	Projector *projector.Projector
	Archiver  *archive.Writer
	Runner    runner.Runner
	Logger    logger.Logger
	NoCleanup bool
}

// Pipeline processes one target at a time per Run call. Separate Run calls may
// execute concurrently; the toolchain manager serializes slot holders.
type Pipeline struct {
	cfg       *types.PackagerConfig
	toolchain *toolchain.Manager
	projector *projector.Projector
	archiver  *archive.Writer
	runner    runner.Runner
	log       logger.Logger
	noCleanup bool
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	proj := opts.Projector
	if proj == nil {
		proj = projector.New(log)
	}
	arch := opts.Archiver
	if arch == nil {
		arch = archive.NewWriter(opts.Config.Archive, log)
	}
	run := opts.Runner
	if run == nil {
		run = runner.NewExecRunner(nil, log)
	}

	return &Pipeline{
		cfg:       opts.Config,
		toolchain: opts.Toolchain,
		projector: proj,
		archiver:  arch,
		runner:    run,
		log:       log,
		noCleanup: opts.NoCleanup || opts.Config.NoCleanup,
	}
}

// ExpectedArtifacts lists the archives a successful run produces for target
func (p *Pipeline) ExpectedArtifacts(target types.Target) []types.ArtifactRecord {
	return ExpectedArtifacts(p.cfg, p.archiver.Format(), target)
}

// Stages returns the stage sequence for this configuration
func (p *Pipeline) Stages() []string {
	stages := []string{StageSetup, StageAcquireToolchain, StageProjectSource, StageApplyExclusions, StageBuild, StagePackagePrimary}
	if p.cfg.HasExample() {
		stages = append(stages, StageUpgradeVariantTree, StagePackageVariants)
	}
	return append(stages, StageCleanup)
}

// lastEngineStage is the final stage that needs the installed toolchain
func (p *Pipeline) lastEngineStage() string {
	if p.cfg.HasExample() && p.cfg.Build != nil && p.cfg.Build.Upgrade != nil {
		return StageUpgradeVariantTree
	}
	return StageBuild
}

// Plan describes what Run would do for a target without doing it
type Plan struct {
	Target    types.Target
	EngineDir string
	Stages    []string
	Artifacts []types.ArtifactRecord
	LogFile   string
	Problem   string
}

// Plan resolves paths and checks prerequisites without side effects
func (p *Pipeline) Plan(target types.Target) Plan {
	plan := Plan{
		Target:    target,
		Stages:    p.Stages(),
		Artifacts: p.ExpectedArtifacts(target),
		LogFile:   LogPath(p.cfg, target.Version),
	}
	dir, err := p.checkPrerequisites(target)
	plan.EngineDir = dir
	if err != nil {
		plan.Problem = err.Error()
	}
	return plan
}

// Run executes all stages for target and converts the outcome into a result.
// It never returns an error: failures are reported through the result status.
func (p *Pipeline) Run(ctx context.Context, target types.Target) (result types.TargetResult) {
	startTime := time.Now()
	ctx = pcontext.WithTarget(ctx, target.Version)
	log := logger.WithContext(ctx, p.log).WithTarget(target.Version)

	result = types.TargetResult{Target: target.Version}
	run := &targetRun{
		p:       p,
		ctx:     ctx,
		target:  target,
		log:     log,
		staging: StagingPath(p.cfg, target.Version),
		logPath: LogPath(p.cfg, target.Version),
		result:  &result,
	}
	defer func() {
		result.Duration = time.Since(startTime)
	}()

	if err := run.setup(); err != nil {
		run.close()
		if errors.Is(err, types.ErrPrerequisiteMissing) {
			log.Warn("Skipping target", logger.WithField("reason", err))
			result.Status = types.StatusSkipped
			result.Reason = err.Error()
			return result
		}
		run.removeStaging()
		log.Error("Target failed", logger.WithField("stage", StageSetup), logger.WithField("error", err))
		result.Status = types.StatusFailed
		result.Stage = StageSetup
		result.Reason = err.Error()
		result.Error = &StageError{Stage: StageSetup, Err: err}
		return result
	}
	result.LogFile = run.logPath

	var stageErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				stageErr = &StageError{Stage: run.stage, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		stageErr = run.execute()
	}()

	cleanupErr := run.cleanup()

	switch {
	case stageErr != nil:
		var se *StageError
		errors.As(stageErr, &se)
		result.Status = types.StatusFailed
		result.Stage = se.Stage
		result.Reason = se.Err.Error()
		result.Error = stageErr
		if cleanupErr != nil {
			result.Error = errors.Join(stageErr, &StageError{Stage: StageCleanup, Err: cleanupErr})
		}
		log.Error("Target failed",
			logger.WithField("stage", se.Stage),
			logger.WithField("error", se.Err),
			logger.WithField("log", run.logPath),
		)
	case cleanupErr != nil:
		result.Status = types.StatusFailed
		result.Stage = StageCleanup
		result.Reason = cleanupErr.Error()
		result.Error = &StageError{Stage: StageCleanup, Err: cleanupErr}
		log.Error("Target failed during cleanup", logger.WithField("error", cleanupErr))
	default:
		result.Status = types.StatusSucceeded
		log.Success(fmt.Sprintf("Packaged %d artifact(s)", len(result.Artifacts)),
			logger.WithField("duration", time.Since(startTime).Round(time.Second)),
		)
	}
	return result
}

// targetRun is the mutable state of one Run call
type targetRun struct {
	p      *Pipeline
	ctx    context.Context
	target types.Target
	log    logger.Logger
	result *types.TargetResult
	stage  string

	engineDir string
	staging   string
	logPath   string
	logFile   *os.File
	logWriter io.WriteCloser
	sink      io.Writer
	lease     *toolchain.Handle
}

func (r *targetRun) dir(parts ...string) string {
	return filepath.Join(append([]string{r.staging}, parts...)...)
}

func (r *targetRun) execute() error {
	type step struct {
		name string
		fn   func() error
	}
	steps := []step{
		{StageAcquireToolchain, r.acquireToolchain},
		{StageProjectSource, r.projectSource},
		{StageApplyExclusions, r.applyExclusions},
		{StageBuild, r.build},
		{StagePackagePrimary, r.packagePrimary},
	}
	if r.p.cfg.HasExample() {
		steps = append(steps,
			step{StageUpgradeVariantTree, r.upgradeVariantTree},
			step{StagePackageVariants, r.packageVariants},
		)
	}
	lastEngine := r.p.lastEngineStage()

	for _, s := range steps {
		if err := r.ctx.Err(); err != nil {
			return &StageError{Stage: s.name, Err: fmt.Errorf("%w: %v", ErrCancelled, err)}
		}
		r.stage = s.name
		r.ctx = pcontext.WithStage(r.ctx, s.name)
		r.log = logger.WithContext(r.ctx, r.p.log).WithTarget(r.target.Version)
		r.log.Info("Stage " + s.name)
		fmt.Fprintf(r.sink, "\n=== Stage %s ===\n", s.name)

		if err := s.fn(); err != nil {
			return &StageError{Stage: s.name, Err: err}
		}

		if s.name == lastEngine && r.lease != nil {
			if err := r.lease.Release(); err != nil {
				// Surfaced again by cleanup, which owns the failure.
				r.log.Error("Toolchain restore failed", logger.WithField("error", err))
			}
		}
	}
	return nil
}

// cleanup releases the toolchain, removes staging and closes the log.
// It runs on every path after a successful setup.
func (r *targetRun) cleanup() error {
	r.stage = StageCleanup
	var errs []error

	if r.lease != nil {
		if err := r.lease.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if !r.p.noCleanup {
		if err := r.removeStaging(); err != nil {
			errs = append(errs, err)
		}
	} else {
		r.log.Info("Keeping staging directory", logger.WithField("path", r.staging))
	}
	r.close()

	return errors.Join(errs...)
}

func (r *targetRun) removeStaging() error {
	if err := os.RemoveAll(r.staging); err != nil {
		r.log.Error("Failed to remove staging directory",
			logger.WithField("path", r.staging),
			logger.WithField("error", err),
		)
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	return nil
}

func (r *targetRun) close() {
	if r.logWriter != nil {
		r.logWriter.Close()
		r.logWriter = nil
	}
	if r.logFile != nil {
		fmt.Fprintf(r.logFile, "\n=== Target %s finished at %s ===\n", r.target.Version, time.Now().Format("2006-01-02 15:04:05"))
		r.logFile.Close()
		r.logFile = nil
	}
}
