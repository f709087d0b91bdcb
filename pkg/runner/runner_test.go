package runner_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/types"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunner_TeesOutput(t *testing.T) {
	requireShell(t)

	var live, sink bytes.Buffer
	r := runner.NewExecRunner(&live, nil)

	code, err := r.Invoke(context.Background(), runner.Command{
		Name: "BuildPlugin",
		Path: "sh",
		Args: []string{"-c", "echo compiling; echo warning >&2"},
	}, &sink)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d", code)
	}

	for _, want := range []string{"compiling", "warning"} {
		if !strings.Contains(live.String(), want) {
			t.Errorf("live output missing %q", want)
		}
		if !strings.Contains(sink.String(), want) {
			t.Errorf("sink missing %q", want)
		}
	}
	if !strings.Contains(sink.String(), "=== BuildPlugin SUCCEEDED") {
		t.Errorf("sink missing completion marker:\n%s", sink.String())
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)

	var sink bytes.Buffer
	code, err := runner.NewExecRunner(nil, nil).Invoke(context.Background(), runner.Command{
		Name: "BuildPlugin",
		Path: "sh",
		Args: []string{"-c", "echo ERROR: missing module; exit 3"},
	}, &sink)
	if err != nil {
		t.Fatalf("non-zero exit is not an invocation error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if !strings.Contains(sink.String(), "FAILED with exit code 3") {
		t.Errorf("sink missing failure marker:\n%s", sink.String())
	}
}

func TestExecRunner_EnvAndDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	var sink bytes.Buffer
	_, err := runner.NewExecRunner(nil, nil).Invoke(context.Background(), runner.Command{
		Name: "env",
		Path: "sh",
		Args: []string{"-c", "echo $MARKETPACK_TEST; pwd"},
		Dir:  dir,
		Env:  map[string]string{"MARKETPACK_TEST": "from-env"},
	}, &sink)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sink.String(), "from-env") {
		t.Errorf("env not passed:\n%s", sink.String())
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(sink.String(), filepath.Base(resolved)) {
		t.Errorf("working directory not applied:\n%s", sink.String())
	}
}

func TestExecRunner_StartFailure(t *testing.T) {
	code, err := runner.NewExecRunner(nil, nil).Invoke(context.Background(), runner.Command{
		Name: "missing",
		Path: filepath.Join(t.TempDir(), "no-such-tool"),
	}, nil)
	if err == nil {
		t.Fatal("expected start failure")
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1", code)
	}
}

func TestExecRunner_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sink bytes.Buffer
	_, err := runner.NewExecRunner(nil, nil).Invoke(ctx, runner.Command{Name: "x", Path: "sh"}, &sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.Len() != 0 {
		t.Error("nothing should be written for a command that never started")
	}
}

func TestRender(t *testing.T) {
	cfg := &types.CommandConfig{
		Command: "{{.EngineDir}}/Engine/Build/BatchFiles/RunUAT.bat",
		Args: []string{
			"BuildPlugin",
			"-Plugin={{.PluginFile}}",
			"-Package={{.PackageDir}}",
			"-Rocket",
		},
		Env: map[string]string{"UE_VERSION": "{{.Version}}"},
	}
	data := runner.TemplateData{
		Version:    "5.4",
		EngineDir:  "C:/Epic/UE_5.4",
		PluginFile: "C:/stage/source/Foo/Foo.uplugin",
		PackageDir: "C:/stage/package/Foo",
		StagingDir: "C:/stage",
	}

	cmd, err := runner.Render("BuildPlugin", cfg, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := runner.Command{
		Name: "BuildPlugin",
		Path: "C:/Epic/UE_5.4/Engine/Build/BatchFiles/RunUAT.bat",
		Args: []string{
			"BuildPlugin",
			"-Plugin=C:/stage/source/Foo/Foo.uplugin",
			"-Package=C:/stage/package/Foo",
			"-Rocket",
		},
		Dir: "C:/stage",
		Env: map[string]string{"UE_VERSION": "5.4"},
	}
	if diff := cmp.Diff(want, cmd); diff != "" {
		t.Errorf("Render() mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := runner.Render("x", nil, runner.TemplateData{}); !errors.Is(err, types.ErrConfig) {
		t.Errorf("nil config: %v", err)
	}
	_, err := runner.Render("x", &types.CommandConfig{Command: "{{.Nope}}"}, runner.TemplateData{})
	if !errors.Is(err, types.ErrConfig) {
		t.Errorf("bad template: %v", err)
	}
}

func TestCommandString(t *testing.T) {
	cmd := runner.Command{Path: "RunUAT.bat", Args: []string{"BuildPlugin", "-Plugin=C:/My Plugins/Foo.uplugin"}}
	want := `RunUAT.bat BuildPlugin "-Plugin=C:/My Plugins/Foo.uplugin"`
	if got := cmd.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAvailable(t *testing.T) {
	requireShell(t)
	if !runner.Available("sh") {
		t.Error("sh should be on PATH")
	}
	if runner.Available(filepath.Join(t.TempDir(), "nope")) {
		t.Error("missing absolute path should not be available")
	}
}
