// Package cache decides whether a target's outputs already exist.
//
// The check is existence-only: an artifact built from older sources is still
// treated as current. Delete the artifact (or run without --use-cache) to rebuild.
package cache

import (
	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Gate reports cache hits for targets
type Gate struct {
	enabled bool
	log     logger.Logger
}

// NewGate creates a cache gate. A disabled gate never skips.
func NewGate(enabled bool, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Gate{enabled: enabled, log: log}
}

// Enabled reports whether the gate can skip targets
func (g *Gate) Enabled() bool {
	return g.enabled
}

// ShouldSkip returns true only when caching is enabled, expected is non-empty
// and every expected artifact exists as a regular file
func (g *Gate) ShouldSkip(target types.Target, expected []types.ArtifactRecord) bool {
	if !g.enabled || len(expected) == 0 {
		return false
	}

	for _, artifact := range expected {
		if !utils.FileExists(artifact.Path) {
			g.log.Debug("Cache miss",
				logger.WithField("version", target.Version),
				logger.WithField("missing", artifact.Path),
			)
			return false
		}
	}

	g.log.Info("Cache hit, skipping target",
		logger.WithField("version", target.Version),
		logger.WithField("artifacts", len(expected)),
	)
	return true
}

// Missing returns the expected artifacts that do not exist yet
func (g *Gate) Missing(expected []types.ArtifactRecord) []types.ArtifactRecord {
	var missing []types.ArtifactRecord
	for _, artifact := range expected {
		if !utils.FileExists(artifact.Path) {
			missing = append(missing, artifact)
		}
	}
	return missing
}
