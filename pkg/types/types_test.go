package types_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/marketpack/marketpack/pkg/types"
)

func TestProjectionRule_Union(t *testing.T) {
	base := &types.ProjectionRule{
		ExcludeDirs:  []string{"Binaries", "Intermediate"},
		ExcludeFiles: []string{"*.pdb"},
	}
	primary := &types.ProjectionRule{
		ExcludeDirs: []string{"Intermediate", "Content"},
		ForceRemove: []string{"Config/Secret.ini"},
	}

	got := base.Union(nil, primary)
	want := types.ProjectionRule{
		ExcludeDirs:  []string{"Binaries", "Intermediate", "Content"},
		ExcludeFiles: []string{"*.pdb"},
		ForceRemove:  []string{"Config/Secret.ini"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Union() mismatch (-want +got):\n%s", diff)
	}

	// The receiver must not be modified.
	if len(base.ExcludeDirs) != 2 {
		t.Errorf("receiver mutated: %v", base.ExcludeDirs)
	}
}

func TestProjectionRule_UnionNilReceiver(t *testing.T) {
	var rule *types.ProjectionRule
	got := rule.Union(&types.ProjectionRule{ExcludeFiles: []string{"*.log"}})
	if diff := cmp.Diff([]string{"*.log"}, got.ExcludeFiles); diff != "" {
		t.Errorf("Union() mismatch (-want +got):\n%s", diff)
	}
}

func TestArtifactCategory_Valid(t *testing.T) {
	tests := []struct {
		category types.ArtifactCategory
		want     bool
	}{
		{types.CategoryPrimary, true},
		{types.CategoryVariantA, true},
		{types.CategoryVariantB, true},
		{"variant-c", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := tt.category.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArchiveFormat_Extension(t *testing.T) {
	if got := types.ArchiveFormatZip.Extension(); got != ".zip" {
		t.Errorf("zip extension = %q", got)
	}
	if got := types.ArchiveFormatTarXZ.Extension(); got != ".tar.xz" {
		t.Errorf("tar.xz extension = %q", got)
	}
	if got := types.ArchiveFormat("").Extension(); got != ".zip" {
		t.Errorf("default extension = %q", got)
	}
}

func TestArchiveConfig_RetryDelay(t *testing.T) {
	tests := []struct {
		delay string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"not-a-duration", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := (types.ArchiveConfig{Delay: tt.delay}).RetryDelay(); got != tt.want {
			t.Errorf("RetryDelay(%q) = %v, want %v", tt.delay, got, tt.want)
		}
	}
}

func TestManifestFileDefaults(t *testing.T) {
	plugin := &types.PluginConfig{Name: "Foo"}
	if got := plugin.ManifestFile(); got != "Foo.uplugin" {
		t.Errorf("plugin manifest = %q", got)
	}
	plugin.Manifest = "Custom.uplugin"
	if got := plugin.ManifestFile(); got != "Custom.uplugin" {
		t.Errorf("plugin manifest override = %q", got)
	}

	example := &types.ExampleConfig{Name: "FooExample"}
	if got := example.ManifestFile(); got != "FooExample.uproject" {
		t.Errorf("example manifest = %q", got)
	}
}

func TestManifestRewrite(t *testing.T) {
	var nilRewrite *types.ManifestRewrite
	if !nilRewrite.IsEmpty() {
		t.Error("nil rewrite should be empty")
	}

	rw := &types.ManifestRewrite{SetFields: map[string]string{"b": "2", "a": "1"}}
	if rw.IsEmpty() {
		t.Error("rewrite with set fields should not be empty")
	}
	if diff := cmp.Diff([]string{"a", "b"}, rw.SortedSetFields()); diff != "" {
		t.Errorf("SortedSetFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestRunResult(t *testing.T) {
	result := &types.RunResult{
		Targets: []types.TargetResult{
			{Target: "5.2", Status: types.StatusSkipped},
			{Target: "5.3", Status: types.StatusSucceeded},
			{Target: "5.4", Status: types.StatusSucceeded},
		},
	}
	if !result.AllSucceeded() {
		t.Error("skipped targets must not fail the run")
	}
	if got := result.Summary(); got != "2 succeeded, 1 skipped, 0 failed" {
		t.Errorf("Summary() = %q", got)
	}

	result.PublishError = "remote unreachable"
	if result.AllSucceeded() {
		t.Error("publish error must fail the run")
	}

	result.PublishError = ""
	result.Targets[1].Status = types.StatusFailed
	if result.AllSucceeded() {
		t.Error("failed target must fail the run")
	}
}

func TestTargetResult_JSONOmitsError(t *testing.T) {
	res := types.TargetResult{
		Target: "5.4",
		Status: types.StatusFailed,
		Stage:  "BUILD",
		Error:  errors.New("boom"),
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["Error"]; ok {
		t.Error("error must not be serialized")
	}
	if decoded["status"] != "DONE_FAILED" {
		t.Errorf("status = %v", decoded["status"])
	}
}

func TestPackagerConfig_HasExample(t *testing.T) {
	cfg := &types.PackagerConfig{}
	if cfg.HasExample() {
		t.Error("empty config has no example")
	}
	cfg.Example = &types.ExampleConfig{Name: "Ex"}
	if cfg.HasExample() {
		t.Error("example without variants produces nothing")
	}
	cfg.Variants = []types.VariantConfig{{Name: "full", Category: types.CategoryVariantA}}
	if !cfg.HasExample() {
		t.Error("expected HasExample with variants")
	}
}
