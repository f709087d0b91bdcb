package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/marketpack/marketpack/pkg/state"
	"github.com/marketpack/marketpack/pkg/types"
)

func writeState(t *testing.T, dir string, s *state.TargetState) {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, s.Target+".json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDir(t *testing.T) {
	cfg := &types.PackagerConfig{Staging: filepath.Join("project", ".marketpack", "staging")}
	if got, want := state.Dir(cfg), filepath.Join("project", ".marketpack", "state"); got != want {
		t.Errorf("Dir() = %q, want %q", got, want)
	}
}

func TestStateManager_InitializeState(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewStateManager(dir, nil)

	s, err := sm.InitializeState("5.4")
	if err != nil {
		t.Fatalf("InitializeState() error = %v", err)
	}
	if s.Target != "5.4" || s.Status != state.StatusIdle {
		t.Errorf("state = %+v", s)
	}
	if s.ProcessID != os.Getpid() {
		t.Errorf("ProcessID = %d, want %d", s.ProcessID, os.Getpid())
	}
	if _, err := os.Stat(filepath.Join(dir, "5.4.json")); err != nil {
		t.Errorf("state file was not created: %v", err)
	}
}

func TestStateManager_InitializeKeepsCounters(t *testing.T) {
	dir := t.TempDir()
	writeState(t, dir, &state.TargetState{Target: "5.3", Status: types.StatusFailed, SuccessCount: 4, FailureCount: 2})

	s, err := state.NewStateManager(dir, nil).InitializeState("5.3")
	if err != nil {
		t.Fatal(err)
	}
	if s.SuccessCount != 4 || s.FailureCount != 2 || s.Status != types.StatusFailed {
		t.Errorf("history lost: %+v", s)
	}
}

func TestStateManager_ReadState(t *testing.T) {
	sm := state.NewStateManager(t.TempDir(), nil)
	if _, err := sm.InitializeState("5.4"); err != nil {
		t.Fatal(err)
	}

	s, err := sm.ReadState("5.4")
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if s.Target != "5.4" {
		t.Errorf("Target = %q", s.Target)
	}

	if _, err := sm.ReadState("4.27"); err == nil {
		t.Error("expected error reading a missing state")
	}
}

func TestStateManager_UpdateState(t *testing.T) {
	sm := state.NewStateManager(t.TempDir(), nil)
	if _, err := sm.InitializeState("5.4"); err != nil {
		t.Fatal(err)
	}

	err := sm.UpdateState("5.4", func(s *state.TargetState) {
		s.Stage = "BUILD"
		s.LastError = "compile error"
	})
	if err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	s, _ := sm.ReadState("5.4")
	if s.Stage != "BUILD" || s.LastError != "compile error" {
		t.Errorf("state = %+v", s)
	}

	if err := sm.UpdateState("4.27", func(*state.TargetState) {}); err == nil {
		t.Error("expected error updating an unknown target")
	}
}

func TestStateManager_RecordResult(t *testing.T) {
	tests := []struct {
		name    string
		results []types.TargetResult
		want    state.TargetState
	}{
		{
			name: "success",
			results: []types.TargetResult{{
				Target:    "5.4",
				Status:    types.StatusSucceeded,
				Duration:  time.Minute,
				Artifacts: []types.ArtifactRecord{{Path: "out/plugins/Foo_5.4.zip"}},
			}},
			want: state.TargetState{
				Target:       "5.4",
				Status:       types.StatusSucceeded,
				Duration:     time.Minute,
				SuccessCount: 1,
				Artifacts:    []string{"out/plugins/Foo_5.4.zip"},
			},
		},
		{
			name: "failure then success clears the error",
			results: []types.TargetResult{
				{Target: "5.4", Status: types.StatusFailed, Stage: "BUILD", Error: errors.New("exit 6")},
				{Target: "5.4", Status: types.StatusSucceeded},
			},
			want: state.TargetState{
				Target:       "5.4",
				Status:       types.StatusSucceeded,
				SuccessCount: 1,
				FailureCount: 1,
			},
		},
		{
			name:    "skip keeps the reason",
			results: []types.TargetResult{{Target: "5.4", Status: types.StatusSkipped, Reason: "cached"}},
			want: state.TargetState{
				Target:    "5.4",
				Status:    types.StatusSkipped,
				SkipCount: 1,
				LastError: "cached",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := state.NewStateManager(t.TempDir(), nil)
			for _, r := range tt.results {
				if err := sm.RecordResult("run-1", r); err != nil {
					t.Fatalf("RecordResult() error = %v", err)
				}
			}

			got, err := sm.ReadState("5.4")
			if err != nil {
				t.Fatal(err)
			}
			if got.RunID != "run-1" || got.LastRunTime.IsZero() {
				t.Errorf("run bookkeeping missing: %+v", got)
			}
			got.RunID, got.LastRunTime, got.Heartbeat, got.ProcessID = "", time.Time{}, time.Time{}, 0
			if len(got.Artifacts) == 0 {
				got.Artifacts = nil
			}
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStateManager_RemoveState(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewStateManager(dir, nil)
	if _, err := sm.InitializeState("5.4"); err != nil {
		t.Fatal(err)
	}

	if err := sm.RemoveState("5.4"); err != nil {
		t.Fatalf("RemoveState() error = %v", err)
	}
	if _, err := sm.ReadState("5.4"); err == nil {
		t.Error("expected error reading removed state")
	}
	if _, err := os.Stat(filepath.Join(dir, "5.4.json")); !os.IsNotExist(err) {
		t.Error("state file was not removed")
	}
}

func TestStateManager_IsLocked(t *testing.T) {
	tests := []struct {
		name  string
		state *state.TargetState
		want  bool
	}{
		{
			name:  "live foreign run",
			state: &state.TargetState{Status: state.StatusRunning, ProcessID: os.Getpid() + 1, Heartbeat: time.Now()},
			want:  true,
		},
		{
			name:  "stale heartbeat",
			state: &state.TargetState{Status: state.StatusRunning, ProcessID: os.Getpid() + 1, Heartbeat: time.Now().Add(-time.Hour)},
		},
		{
			name:  "own process",
			state: &state.TargetState{Status: state.StatusRunning, ProcessID: os.Getpid(), Heartbeat: time.Now()},
		},
		{
			name:  "finished",
			state: &state.TargetState{Status: types.StatusSucceeded, ProcessID: os.Getpid() + 1, Heartbeat: time.Now()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.state.Target = "5.4"
			writeState(t, dir, tt.state)
			sm := state.NewStateManager(dir, nil)

			locked, err := sm.IsLocked("5.4")
			if err != nil {
				t.Fatalf("IsLocked() error = %v", err)
			}
			if locked != tt.want {
				t.Errorf("IsLocked() = %v, want %v", locked, tt.want)
			}

			active, err := sm.ActiveRun()
			if err != nil {
				t.Fatal(err)
			}
			if (active != nil) != tt.want {
				t.Errorf("ActiveRun() = %+v, want live = %v", active, tt.want)
			}
		})
	}

	locked, err := state.NewStateManager(t.TempDir(), nil).IsLocked("5.4")
	if err != nil || locked {
		t.Errorf("missing state: locked = %v, err = %v", locked, err)
	}
}

func TestStateManager_DiscoverStates(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewStateManager(dir, nil)

	versions := []string{"5.3", "5.4", "5.5"}
	for _, v := range versions {
		if _, err := sm.InitializeState(v); err != nil {
			t.Fatalf("InitializeState(%s) error = %v", v, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	states, err := sm.DiscoverStates()
	if err != nil {
		t.Fatalf("DiscoverStates() error = %v", err)
	}
	if len(states) != len(versions) {
		t.Errorf("discovered %d states, want %d", len(states), len(versions))
	}
	for _, v := range versions {
		if _, ok := states[v]; !ok {
			t.Errorf("state for %s not discovered", v)
		}
	}

	empty, err := state.NewStateManager(filepath.Join(dir, "missing"), nil).DiscoverStates()
	if err != nil || len(empty) != 0 {
		t.Errorf("missing directory: %v, %v", empty, err)
	}
}

func TestStateManager_Heartbeat(t *testing.T) {
	sm := state.NewStateManager(t.TempDir(), nil)
	sm.SetHeartbeatInterval(10 * time.Millisecond)

	initial, err := sm.InitializeState("5.4")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.StartHeartbeat(ctx)
	defer sm.StopHeartbeat()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := sm.ReadState("5.4")
		if err != nil {
			t.Fatal(err)
		}
		if s.Heartbeat.After(initial.Heartbeat) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("heartbeat was not updated")
}

func TestStateManager_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewStateManager(dir, nil)

	if err := sm.MarkRunning("5.3", "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := sm.MarkRunning("5.4", "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := sm.RecordResult("run-1", types.TargetResult{Target: "5.4", Status: types.StatusSucceeded}); err != nil {
		t.Fatal(err)
	}

	if err := sm.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	reader := state.NewStateManager(dir, nil)
	want := map[string]types.TargetStatus{"5.3": state.StatusIdle, "5.4": types.StatusSucceeded}
	for v, status := range want {
		s, err := reader.ReadState(v)
		if err != nil {
			t.Fatal(err)
		}
		if s.Status != status {
			t.Errorf("%s status = %s, want %s", v, s.Status, status)
		}
		if s.ProcessID != 0 {
			t.Errorf("%s still claimed by pid %d", v, s.ProcessID)
		}
	}
}

func TestStateManager_ConcurrentUpdates(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewStateManager(dir, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			status := types.StatusFailed
			if id%2 == 0 {
				status = types.StatusSucceeded
			}
			if err := sm.RecordResult("run-1", types.TargetResult{Target: "5.4", Status: status}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent update error: %v", err)
	}

	s, err := sm.ReadState("5.4")
	if err != nil {
		t.Fatal(err)
	}
	if s.SuccessCount+s.FailureCount != 100 {
		t.Errorf("counters = %d + %d, want 100 in total", s.SuccessCount, s.FailureCount)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "5.4.json"))
	var parsed state.TargetState
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Errorf("state file contains invalid JSON: %v", err)
	}
}

func BenchmarkStateManager_RecordResult(b *testing.B) {
	sm := state.NewStateManager(b.TempDir(), nil)
	result := types.TargetResult{Target: "5.4", Status: types.StatusSucceeded}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sm.RecordResult("bench", result)
	}
}
