// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"

	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/state"
	"github.com/marketpack/marketpack/pkg/types"
)

// TargetPipeline processes a single target through all stages
type TargetPipeline interface {
	Run(ctx context.Context, target types.Target) types.TargetResult
	Plan(target types.Target) pipeline.Plan
	ExpectedArtifacts(target types.Target) []types.ArtifactRecord
}

// ToolchainRecoverer restores a toolchain slot left behind by an aborted run
type ToolchainRecoverer interface {
	Recover(ctx context.Context) (bool, error)
}

// CacheGate decides whether a target's work can be skipped
type CacheGate interface {
	ShouldSkip(target types.Target, expected []types.ArtifactRecord) bool
}

// Publisher uploads the output tree after all targets complete
type Publisher interface {
	Publish(ctx context.Context, sourceDir, remote string) error
}

// RunNotifier reports run progress to the operator
type RunNotifier interface {
	NotifyTargetStart(target string)
	NotifyTargetResult(result types.TargetResult)
	NotifyRunComplete(result *types.RunResult)
}

// Reporter persists the run summary
type Reporter interface {
	Write(result *types.RunResult) error
}

// StateStore keeps per-target history and detects a run alive in another process
type StateStore interface {
	ActiveRun() (*state.TargetState, error)
	MarkRunning(target, runID string) error
	RecordResult(runID string, result types.TargetResult) error
	StartHeartbeat(ctx context.Context)
	Cleanup() error
}

// Dependencies contains all injectable dependencies of the orchestrator
type Dependencies struct {
	Pipeline  TargetPipeline
	Toolchain ToolchainRecoverer
	Cache     CacheGate
	Publisher Publisher
	Notifier  RunNotifier
	Reporter  Reporter
	State     StateStore
}
