// Package engine runs packaging targets and aggregates their results.
//
// The Orchestrator walks the configured targets in declaration order, consults
// the cache gate, hands each remaining target to the pipeline and, once all
// targets finished, publishes the output tree, writes the run report and
// notifies the operator. DependencyFactory wires the default collaborators.
package engine
