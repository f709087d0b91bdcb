package engine

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/marketpack/marketpack/pkg/archive"
	"github.com/marketpack/marketpack/pkg/cache"
	"github.com/marketpack/marketpack/pkg/interfaces"
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/notifier"
	"github.com/marketpack/marketpack/pkg/pipeline"
	"github.com/marketpack/marketpack/pkg/projector"
	"github.com/marketpack/marketpack/pkg/publisher"
	"github.com/marketpack/marketpack/pkg/report"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/state"
	"github.com/marketpack/marketpack/pkg/toolchain"
	"github.com/marketpack/marketpack/pkg/types"
)

// DependencyFactory creates default implementations of the orchestrator's
// dependencies from a configuration.
type DependencyFactory struct {
	config *types.PackagerConfig
	logger logger.Logger
	live   io.Writer
	runner runner.Runner
}

// NewDependencyFactory creates a new dependency factory. live receives the
// output of external tools as they run and may be nil.
func NewDependencyFactory(config *types.PackagerConfig, log logger.Logger, live io.Writer) *DependencyFactory {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DependencyFactory{
		config: config,
		logger: log,
		live:   live,
	}
}

// WithRunner replaces the process runner used for build and publish commands
func (f *DependencyFactory) WithRunner(r runner.Runner) *DependencyFactory {
	f.runner = r
	return f
}

// Targets resolves the configured engine versions into targets. A non-empty
// only list restricts the run to those versions, keeping declaration order.
func (f *DependencyFactory) Targets(only []string) ([]types.Target, error) {
	resolver, err := toolchain.NewResolver(f.config.Toolchain)
	if err != nil {
		return nil, err
	}

	versions := f.config.Targets
	if len(only) > 0 {
		wanted := make(map[string]bool, len(only))
		for _, v := range only {
			wanted[v] = true
		}
		versions = nil
		for _, v := range f.config.Targets {
			if wanted[v] {
				versions = append(versions, v)
				delete(wanted, v)
			}
		}
		for v := range wanted {
			return nil, fmt.Errorf("%w: target %s is not configured", types.ErrConfig, v)
		}
	}
	return resolver.ResolveTargets(versions), nil
}

// CreateDefaults creates all default dependencies
func (f *DependencyFactory) CreateDefaults(noCleanup bool) (interfaces.Dependencies, error) {
	manager, err := f.createToolchainManager()
	if err != nil {
		return interfaces.Dependencies{}, err
	}

	deps := interfaces.Dependencies{
		Pipeline:  f.createPipeline(manager, noCleanup),
		Toolchain: manager,
		Cache:     cache.NewGate(f.config.Cache != nil && f.config.Cache.Enabled, f.logger),
		Reporter:  report.NewWriter(f.logsDir(), f.logger),
		State:     state.NewStateManager(state.Dir(f.config), f.logger),
	}

	if f.config.Publish != nil {
		pub, err := publisher.New(f.config.Publish, f.processRunner(), f.live, f.logger)
		if err != nil {
			return interfaces.Dependencies{}, err
		}
		deps.Publisher = pub
	}

	if f.config.Notifications != nil && f.config.Notifications.Enabled {
		deps.Notifier = f.createNotifier()
	}
	return deps, nil
}

// CreateWithOverrides creates dependencies with specific overrides.
// This is useful for testing or custom configurations.
func (f *DependencyFactory) CreateWithOverrides(noCleanup bool, overrides interfaces.Dependencies) (interfaces.Dependencies, error) {
	deps, err := f.CreateDefaults(noCleanup)
	if err != nil {
		return deps, err
	}

	// Apply overrides (non-nil values replace defaults)
	if overrides.Pipeline != nil {
		deps.Pipeline = overrides.Pipeline
	}
	if overrides.Toolchain != nil {
		deps.Toolchain = overrides.Toolchain
	}
	if overrides.Cache != nil {
		deps.Cache = overrides.Cache
	}
	if overrides.Publisher != nil {
		deps.Publisher = overrides.Publisher
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	if overrides.Reporter != nil {
		deps.Reporter = overrides.Reporter
	}
	if overrides.State != nil {
		deps.State = overrides.State
	}
	return deps, nil
}

// Individual factory methods for each dependency

func (f *DependencyFactory) logsDir() string {
	if f.config.Logs != "" {
		return f.config.Logs
	}
	return filepath.Join(f.config.Output, pipeline.LogsDir)
}

func (f *DependencyFactory) processRunner() runner.Runner {
	if f.runner != nil {
		return f.runner
	}
	return runner.NewExecRunner(f.live, f.logger)
}

func (f *DependencyFactory) createToolchainManager() (*toolchain.Manager, error) {
	return toolchain.NewManager(f.config.Toolchain, f.logger)
}

func (f *DependencyFactory) createPipeline(manager *toolchain.Manager, noCleanup bool) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Config:    f.config,
		Toolchain: manager,
		Projector: projector.New(f.logger),
		Archiver:  archive.NewWriter(f.config.Archive, f.logger),
		Runner:    f.processRunner(),
		Logger:    f.logger,
		NoCleanup: noCleanup,
	})
}

func (f *DependencyFactory) createNotifier() interfaces.RunNotifier {
	return notifier.New(notifier.Config{Enabled: true, Beep: true}, f.logger)
}
