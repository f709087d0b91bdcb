//go:build integration

package integration_test

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ulikunitz/xz"

	"github.com/marketpack/marketpack/pkg/cli"
	"github.com/marketpack/marketpack/pkg/mocks"
	"github.com/marketpack/marketpack/pkg/report"
)

const hclConfig = `
version = "1.0"
output  = "out"
targets = ["5.3", "5.4"]

plugin {
  name   = "Foo"
  source = "src/Foo"
}

example {
  name   = "FooDemo"
  source = "src/FooDemo"
}

engines {
  root = "engines"
}

toolchain {
  slot_path = "slot/BuildConfiguration.xml"

  rule {
    constraint = ">= 5.4"
    compiler   = "VisualStudio2022"
  }
  rule {
    constraint = ">= 5.0, < 5.4"
    compiler   = "VisualStudio2019"
  }
}

build {
  plugin {
    command = "{{.EngineDir}}/Engine/Build/BatchFiles/RunUAT.sh"
    args    = ["BuildPlugin", "-Plugin={{.PluginFile}}", "-Package={{.PackageDir}}", "-EngineVersion={{.Version}}"]
  }
  upgrade {
    command = "{{.EngineDir}}/Engine/Build/BatchFiles/RunUAT.sh"
    args    = ["Upgrade", "-Project={{.ProjectFile}}", "-EngineVersion={{.Version}}"]
  }
}

variant "Full" {
  category = "variant-a"
}

variant "Lite" {
  category = "variant-b"
  rule {
    exclude_dirs = ["Content"]
  }
  rewrite {
    remove_fields = ["Description"]
  }
}

archive {
  format = "tar.xz"
}

publish {
  kind   = "directory"
  remote = "published"
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "Foo", "Foo.uplugin"), `{"FileVersion": 3, "FriendlyName": "Foo", "EngineVersion": "5.0.0"}`)
	writeFile(t, filepath.Join(root, "src", "Foo", "Source", "Foo", "Foo.cpp"), "// foo")
	writeFile(t, filepath.Join(root, "src", "Foo", "Intermediate", "Build.tmp"), "junk")
	writeFile(t, filepath.Join(root, "src", "FooDemo", "FooDemo.uproject"),
		`{"FileVersion": 3, "EngineAssociation": "5.0", "Description": "demo", "Plugins": [{"Name": "Foo", "Enabled": true}]}`)
	writeFile(t, filepath.Join(root, "src", "FooDemo", "Content", "Map.umap"), "map")
	writeFile(t, filepath.Join(root, "src", "FooDemo", "Config", "DefaultGame.ini"), "[/Script]")
	for _, v := range []string{"5.3", "5.4"} {
		writeFile(t, filepath.Join(root, "engines", "UE_"+v, "Engine", "Build", "BatchFiles", "RunUAT.sh"), "#!/bin/sh\n")
	}
	writeFile(t, filepath.Join(root, "marketpack.config.hcl"), hclConfig)
	return root
}

// readTarXZ returns the regular files of an archive keyed by entry name
func readTarXZ(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		t.Fatalf("%s is not an xz stream: %v", path, err)
	}
	tr := tar.NewReader(xr)

	files := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		files[hdr.Name] = string(data)
	}
	return files
}

func names(files map[string]string) []string {
	out := make([]string, 0, len(files))
	for name := range files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TestEndToEndPackaging runs two engine versions with example variants and
// publishes the result, then reruns with the cache enabled
func TestEndToEndPackaging(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	root := newProject(t)
	tool := mocks.NewBuildToolRunner()
	var stdout, stderr bytes.Buffer
	c := cli.NewCLIWithOutput(cli.NewConfig(), &stdout, &stderr).WithRunner(tool)

	if err := c.Execute([]string{"run", "--root", root, "--publish"}); err != nil {
		t.Fatalf("run error = %v\nstderr: %s", err, stderr.String())
	}

	var upgrades []string
	for _, call := range tool.Calls() {
		if call.Name == "Upgrade" {
			upgrades = append(upgrades, call.Args[len(call.Args)-1])
		}
	}
	if diff := cmp.Diff([]string{"-EngineVersion=5.3", "-EngineVersion=5.4"}, upgrades); diff != "" {
		t.Errorf("upgrade calls mismatch (-want +got):\n%s", diff)
	}

	out := filepath.Join(root, "out")
	primary := readTarXZ(t, filepath.Join(out, "plugins", "Foo_5.4.tar.xz"))
	wantPrimary := []string{
		"Foo/Foo.uplugin",
		"Foo/Resources/Icon128.png",
		"Foo/Source/Plugin/Private/Plugin.cpp",
	}
	if diff := cmp.Diff(wantPrimary, names(primary)); diff != "" {
		t.Errorf("primary archive mismatch (-want +got):\n%s", diff)
	}
	var descriptor map[string]interface{}
	if err := json.Unmarshal([]byte(primary["Foo/Foo.uplugin"]), &descriptor); err != nil {
		t.Fatalf("packaged descriptor: %v", err)
	}
	if descriptor["EngineVersion"] != "5.4.0" {
		t.Errorf("EngineVersion = %v, want 5.4.0", descriptor["EngineVersion"])
	}

	full := readTarXZ(t, filepath.Join(out, "examples", "5.4", "FooDemo_Full_5.4.tar.xz"))
	lite := readTarXZ(t, filepath.Join(out, "examples", "5.4", "FooDemo_Lite_5.4.tar.xz"))

	if _, ok := full["FooDemo/Content/Map.umap"]; !ok {
		t.Errorf("full variant misses content: %v", names(full))
	}
	if _, ok := lite["FooDemo/Content/Map.umap"]; ok {
		t.Errorf("lite variant ships excluded content")
	}
	for name, files := range map[string]map[string]string{"Full": full, "Lite": lite} {
		if _, ok := files["FooDemo/Plugins/Foo/Foo.uplugin"]; !ok {
			t.Errorf("%s variant misses the installed plugin: %v", name, names(files))
		}
	}

	var project map[string]interface{}
	if err := json.Unmarshal([]byte(lite["FooDemo/FooDemo.uproject"]), &project); err != nil {
		t.Fatalf("lite project manifest: %v", err)
	}
	if project["EngineAssociation"] != "5.4" {
		t.Errorf("EngineAssociation = %v, want 5.4", project["EngineAssociation"])
	}
	if _, ok := project["Description"]; ok {
		t.Error("lite project manifest still has Description")
	}

	for _, rel := range []string{
		"plugins/Foo_5.3.tar.xz",
		"examples/5.3/FooDemo_Lite_5.3.tar.xz",
		"logs/5.4.log",
	} {
		if _, err := os.Stat(filepath.Join(root, "published", filepath.FromSlash(rel))); err != nil {
			t.Errorf("not published: %s", rel)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "slot", "BuildConfiguration.xml")); !os.IsNotExist(err) {
		t.Errorf("toolchain slot left installed: %v", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(root, ".marketpack", "staging")); len(entries) != 0 {
		t.Errorf("staging not cleaned up: %d entries", len(entries))
	}

	// Second run: every artifact exists, so nothing is built.
	calls := len(tool.Calls())
	stdout.Reset()
	if err := c.Execute([]string{"run", "--root", root, "--use-cache"}); err != nil {
		t.Fatalf("cached run error = %v", err)
	}
	if got := len(tool.Calls()); got != calls {
		t.Errorf("cached run invoked the tool %d more time(s)", got-calls)
	}
	if !strings.Contains(stdout.String(), "0 succeeded, 2 skipped, 0 failed") {
		t.Errorf("cached run summary missing:\n%s", stdout.String())
	}

	rep, err := report.Load(filepath.Join(out, "logs", report.FileName))
	if err != nil {
		t.Fatalf("run report: %v", err)
	}
	if rep.Summary != "0 succeeded, 2 skipped, 0 failed" {
		t.Errorf("report summary = %q", rep.Summary)
	}
}
