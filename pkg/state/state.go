// Package state persists per-target run history and detects runs that are
// still alive in another process
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
	"github.com/marketpack/marketpack/pkg/utils"
)

// Statuses that only exist in the state store
const (
	StatusIdle    types.TargetStatus = "IDLE"
	StatusRunning types.TargetStatus = "RUNNING"
)

const (
	// DefaultHeartbeatInterval is how often running targets refresh their heartbeat
	DefaultHeartbeatInterval = 10 * time.Second
	// StaleAfter is the heartbeat age after which a running target is considered dead
	StaleAfter = 30 * time.Second
)

// TargetState is the persisted state of one engine version
type TargetState struct {
	Target       string             `json:"target"`
	Status       types.TargetStatus `json:"status"`
	Stage        string             `json:"stage,omitempty"`
	RunID        string             `json:"runId,omitempty"`
	LastRunTime  time.Time          `json:"lastRunTime,omitempty"`
	Duration     time.Duration      `json:"duration,omitempty"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
	SkipCount    int                `json:"skipCount"`
	ProcessID    int                `json:"processId"`
	Heartbeat    time.Time          `json:"heartbeat"`
	LastError    string             `json:"lastError,omitempty"`
	Artifacts    []string           `json:"artifacts,omitempty"`
}

// Dir returns the state directory for a configuration. It sits next to the
// staging root so that cleaning staging keeps the history.
func Dir(cfg *types.PackagerConfig) string {
	return filepath.Join(filepath.Dir(cfg.Staging), "state")
}

// StateManager handles persistent state files
type StateManager struct {
	stateDir          string
	logger            logger.Logger
	mu                sync.RWMutex
	states            map[string]*TargetState
	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}
	heartbeatTimer    *time.Ticker
}

// NewStateManager creates a state manager storing files in stateDir
func NewStateManager(stateDir string, log logger.Logger) *StateManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StateManager{
		stateDir:          stateDir,
		logger:            log,
		states:            make(map[string]*TargetState),
		heartbeatInterval: DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval changes the heartbeat period. It must be called before StartHeartbeat.
func (sm *StateManager) SetHeartbeatInterval(d time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.heartbeatInterval = d
}

// InitializeState loads or creates the state of a target and claims it for
// this process. Counters from earlier runs are preserved.
func (sm *StateManager) InitializeState(target string) (*TargetState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, err := sm.loadStateFile(target)
	if err != nil {
		state = &TargetState{Target: target, Status: StatusIdle}
	}
	state.ProcessID = os.Getpid()
	state.Heartbeat = time.Now()

	if err := sm.saveStateFile(state); err != nil {
		return nil, fmt.Errorf("failed to save initial state: %w", err)
	}
	sm.states[target] = state
	copied := *state
	return &copied, nil
}

// ReadState reads the state for a target
func (sm *StateManager) ReadState(target string) (*TargetState, error) {
	sm.mu.RLock()
	if state, ok := sm.states[target]; ok {
		copied := *state
		sm.mu.RUnlock()
		return &copied, nil
	}
	sm.mu.RUnlock()

	return sm.loadStateFile(target)
}

// UpdateState applies update to the state of a target and saves it
func (sm *StateManager) UpdateState(target string, update func(*TargetState)) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, ok := sm.states[target]
	if !ok {
		var err error
		state, err = sm.loadStateFile(target)
		if err != nil {
			return fmt.Errorf("target state not found: %s", target)
		}
		sm.states[target] = state
	}

	update(state)
	state.Heartbeat = time.Now()
	return sm.saveStateFile(state)
}

// MarkRunning records that this process started working on a target
func (sm *StateManager) MarkRunning(target, runID string) error {
	if _, err := sm.InitializeState(target); err != nil {
		return err
	}
	return sm.UpdateState(target, func(s *TargetState) {
		s.Status = StatusRunning
		s.RunID = runID
		s.Stage = ""
	})
}

// RecordResult stores the outcome of a target and updates its counters
func (sm *StateManager) RecordResult(runID string, result types.TargetResult) error {
	sm.mu.RLock()
	_, known := sm.states[result.Target]
	sm.mu.RUnlock()
	if !known {
		if _, err := sm.InitializeState(result.Target); err != nil {
			return err
		}
	}

	return sm.UpdateState(result.Target, func(s *TargetState) {
		s.Status = result.Status
		s.Stage = result.Stage
		s.RunID = runID
		s.LastRunTime = time.Now()
		s.Duration = result.Duration
		s.LastError = result.Reason
		if result.Error != nil {
			s.LastError = result.Error.Error()
		}

		switch result.Status {
		case types.StatusSucceeded:
			s.SuccessCount++
			s.LastError = ""
		case types.StatusFailed:
			s.FailureCount++
		case types.StatusSkipped:
			s.SkipCount++
		}

		s.Artifacts = s.Artifacts[:0]
		for _, a := range result.Artifacts {
			s.Artifacts = append(s.Artifacts, a.Path)
		}
	})
}

// RemoveState removes the state for a target
func (sm *StateManager) RemoveState(target string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, target)

	if err := os.Remove(sm.getStateFilePath(target)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// IsLocked reports whether another live process is running the target
func (sm *StateManager) IsLocked(target string) (bool, error) {
	state, err := sm.loadStateFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return isLive(state), nil
}

func isLive(state *TargetState) bool {
	if state.Status != StatusRunning || state.ProcessID == 0 {
		return false
	}
	if state.ProcessID == os.Getpid() {
		return false
	}
	return time.Since(state.Heartbeat) <= StaleAfter
}

// ActiveRun returns a target that another live process is running, or nil
func (sm *StateManager) ActiveRun() (*TargetState, error) {
	states, err := sm.DiscoverStates()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if isLive(states[name]) {
			return states[name], nil
		}
	}
	return nil, nil
}

// DiscoverStates finds all existing state files
func (sm *StateManager) DiscoverStates() (map[string]*TargetState, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	states := make(map[string]*TargetState)

	files, err := os.ReadDir(sm.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		target := strings.TrimSuffix(file.Name(), ".json")
		state, err := sm.loadStateFile(target)
		if err != nil {
			sm.logger.Warn("Failed to load state file",
				logger.WithField("target", target),
				logger.WithField("error", err))
			continue
		}
		states[target] = state
	}

	return states, nil
}

// StartHeartbeat refreshes the heartbeat of every claimed target until ctx
// ends or StopHeartbeat is called
func (sm *StateManager) StartHeartbeat(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.heartbeatTimer != nil {
		return
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(sm.heartbeatInterval)
	sm.heartbeatStop = stop
	sm.heartbeatTimer = ticker

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				sm.updateHeartbeats()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat updater
func (sm *StateManager) StopHeartbeat() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.heartbeatTimer != nil {
		sm.heartbeatTimer.Stop()
		sm.heartbeatTimer = nil
	}
	if sm.heartbeatStop != nil {
		close(sm.heartbeatStop)
		sm.heartbeatStop = nil
	}
}

// Cleanup stops the heartbeat and releases every target claimed by this
// process. A target still marked running was interrupted and becomes idle.
func (sm *StateManager) Cleanup() error {
	sm.StopHeartbeat()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, state := range sm.states {
		if state.Status == StatusRunning {
			state.Status = StatusIdle
			state.LastError = "interrupted"
		}
		state.ProcessID = 0
		if err := sm.saveStateFile(state); err != nil {
			sm.logger.Warn("Failed to save final state",
				logger.WithField("target", state.Target),
				logger.WithField("error", err))
		}
	}
	return nil
}

func (sm *StateManager) getStateFilePath(target string) string {
	return filepath.Join(sm.stateDir, target+".json")
}

func (sm *StateManager) loadStateFile(target string) (*TargetState, error) {
	data, err := os.ReadFile(sm.getStateFilePath(target))
	if err != nil {
		return nil, err
	}

	var state TargetState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

func (sm *StateManager) saveStateFile(state *TargetState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(sm.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := utils.WriteFileAtomic(sm.getStateFilePath(state.Target), data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (sm *StateManager) updateHeartbeats() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for _, state := range sm.states {
		if state.ProcessID == 0 {
			continue
		}
		state.Heartbeat = now
		if err := sm.saveStateFile(state); err != nil {
			sm.logger.Debug("Failed to update heartbeat",
				logger.WithField("target", state.Target),
				logger.WithField("error", err))
		}
	}
}
