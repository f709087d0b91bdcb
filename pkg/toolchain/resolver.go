// Package toolchain selects and installs the machine-wide compiler configuration for a target.
package toolchain

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/marketpack/marketpack/pkg/types"
)

// DefaultFallbackCompiler is used when no rule matches and no fallback is configured
const DefaultFallbackCompiler = "Default"

type compiledRule struct {
	constraints version.Constraints
	compiler    string
}

// Resolver maps engine versions to compiler selections through an ordered rule table.
// The first matching rule wins.
type Resolver struct {
	rules    []compiledRule
	fallback string
}

// NewResolver compiles the rule table of a toolchain configuration
func NewResolver(cfg *types.ToolchainConfig) (*Resolver, error) {
	r := &Resolver{fallback: DefaultFallbackCompiler}
	if cfg == nil {
		return r, nil
	}
	if cfg.Fallback != "" {
		r.fallback = cfg.Fallback
	}

	for i, rule := range cfg.Rules {
		constraints, err := version.NewConstraint(rule.Constraint)
		if err != nil {
			return nil, fmt.Errorf("%w: toolchain rule %d: invalid constraint %q: %v", types.ErrConfig, i, rule.Constraint, err)
		}
		if rule.Compiler == "" {
			return nil, fmt.Errorf("%w: toolchain rule %d: compiler is required", types.ErrConfig, i)
		}
		r.rules = append(r.rules, compiledRule{constraints: constraints, compiler: rule.Compiler})
	}
	return r, nil
}

// Resolve returns the toolchain descriptor for an engine version.
// Unparseable or unmatched versions get the fallback compiler.
func (r *Resolver) Resolve(engineVersion string) types.ToolchainDescriptor {
	v, err := version.NewVersion(engineVersion)
	if err != nil {
		return types.ToolchainDescriptor{Compiler: r.fallback, Fallback: true}
	}
	for _, rule := range r.rules {
		if rule.constraints.Check(v) {
			return types.ToolchainDescriptor{Compiler: rule.compiler}
		}
	}
	return types.ToolchainDescriptor{Compiler: r.fallback, Fallback: true}
}

// ResolveTargets builds the immutable target list in declaration order
func (r *Resolver) ResolveTargets(versions []string) []types.Target {
	targets := make([]types.Target, 0, len(versions))
	for _, v := range versions {
		targets = append(targets, types.Target{Version: v, Toolchain: r.Resolve(v)})
	}
	return targets
}
