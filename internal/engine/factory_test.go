package engine_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marketpack/marketpack/internal/engine"
	"github.com/marketpack/marketpack/pkg/interfaces"
	"github.com/marketpack/marketpack/pkg/mocks"
	"github.com/marketpack/marketpack/pkg/types"
)

func TestDependencyFactory_Targets(t *testing.T) {
	tests := []struct {
		name    string
		only    []string
		want    []types.Target
		wantErr error
	}{
		{
			name: "all targets in declaration order",
			want: []types.Target{
				{Version: "5.3", Toolchain: types.ToolchainDescriptor{Compiler: "VisualStudio2019"}},
				{Version: "5.4", Toolchain: types.ToolchainDescriptor{Compiler: "VisualStudio2022"}},
			},
		},
		{
			name: "filter keeps declaration order",
			only: []string{"5.4", "5.3"},
			want: []types.Target{
				{Version: "5.3", Toolchain: types.ToolchainDescriptor{Compiler: "VisualStudio2019"}},
				{Version: "5.4", Toolchain: types.ToolchainDescriptor{Compiler: "VisualStudio2022"}},
			},
		},
		{
			name: "single target",
			only: []string{"5.4"},
			want: []types.Target{
				{Version: "5.4", Toolchain: types.ToolchainDescriptor{Compiler: "VisualStudio2022"}},
			},
		},
		{
			name:    "unknown target",
			only:    []string{"4.27"},
			wantErr: types.ErrConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, "5.3", "5.4")
			got, err := engine.NewDependencyFactory(cfg, nil, nil).Targets(tt.only)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Targets() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Targets() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDependencyFactory_CreateDefaults(t *testing.T) {
	cfg := newConfig(t, "5.4")
	cfg.Publish = &types.PublishConfig{Enabled: true, Kind: types.PublisherKindDirectory, Remote: t.TempDir()}
	cfg.Notifications = &types.NotificationConfig{Enabled: true}

	deps, err := engine.NewDependencyFactory(cfg, nil, nil).CreateDefaults(false)
	if err != nil {
		t.Fatalf("CreateDefaults() error = %v", err)
	}
	if deps.Pipeline == nil || deps.Toolchain == nil || deps.Cache == nil || deps.Reporter == nil {
		t.Errorf("core dependencies missing: %+v", deps)
	}
	if deps.Publisher == nil {
		t.Error("publisher not created for publish config")
	}
	if deps.Notifier == nil {
		t.Error("notifier not created when notifications are enabled")
	}
}

func TestDependencyFactory_CreateDefaultsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.PackagerConfig)
	}{
		{"missing toolchain", func(c *types.PackagerConfig) { c.Toolchain = nil }},
		{"unknown publisher", func(c *types.PackagerConfig) {
			c.Publish = &types.PublishConfig{Enabled: true, Kind: "ftp"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, "5.4")
			tt.mutate(cfg)
			if _, err := engine.NewDependencyFactory(cfg, nil, nil).CreateDefaults(false); !errors.Is(err, types.ErrConfig) {
				t.Errorf("CreateDefaults() error = %v, want ErrConfig", err)
			}
		})
	}
}

func TestDependencyFactory_Overrides(t *testing.T) {
	cfg := newConfig(t, "5.4")
	gate := mocks.NewMockCacheGate(nil)

	deps, err := engine.NewDependencyFactory(cfg, nil, nil).
		CreateWithOverrides(false, interfaces.Dependencies{Cache: gate})
	if err != nil {
		t.Fatal(err)
	}
	if deps.Cache != gate {
		t.Error("override was not applied")
	}
	if deps.Pipeline == nil {
		t.Error("defaults must remain for fields without an override")
	}
}
