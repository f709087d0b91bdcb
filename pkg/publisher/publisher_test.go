package publisher_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"

	"github.com/marketpack/marketpack/pkg/mocks"
	"github.com/marketpack/marketpack/pkg/publisher"
	"github.com/marketpack/marketpack/pkg/runner"
	"github.com/marketpack/marketpack/pkg/types"
)

func TestCommandPublisher_DefaultsToRclone(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockRunner(ctrl)

	var sink bytes.Buffer
	want := runner.Command{
		Name: "Publish",
		Path: "rclone",
		Args: []string{"sync", "/out", "remote:marketplace"},
		Dir:  "/out",
	}
	mock.EXPECT().Invoke(gomock.Any(), gomock.Any(), &sink).
		DoAndReturn(func(_ context.Context, cmd runner.Command, _ io.Writer) (int, error) {
			if diff := cmp.Diff(want, cmd); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
			return 0, nil
		})

	p := publisher.NewCommandPublisher(&types.PublishConfig{Enabled: true}, mock, &sink, nil)
	if err := p.Publish(context.Background(), "/out", "remote:marketplace"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestCommandPublisher_CustomCommandAndFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockRunner(ctrl)
	mock.EXPECT().Invoke(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd runner.Command, _ io.Writer) (int, error) {
			if cmd.Path != "aws" {
				t.Errorf("path = %s", cmd.Path)
			}
			if diff := cmp.Diff([]string{"s3", "sync", "/out", "s3://bucket/packages"}, cmd.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
			return 2, nil
		})

	cfg := &types.PublishConfig{Command: "aws", Args: []string{"s3", "sync", "{{.Source}}", "{{.Remote}}"}}
	err := publisher.NewCommandPublisher(cfg, mock, nil, nil).Publish(context.Background(), "/out", "s3://bucket/packages")
	if !errors.Is(err, types.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
}

func TestCommandPublisher_RequiresRemote(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := publisher.NewCommandPublisher(nil, mocks.NewMockRunner(ctrl), nil, nil)
	if err := p.Publish(context.Background(), "/out", ""); !errors.Is(err, types.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestDirectoryPublisher_MirrorsCategories(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"plugins/Foo_5.4.zip":             "zip",
		"examples/5.4/Demo_Full_5.4.zip":  "full",
		"logs/5.4.log":                    "log",
		".staging/5.4/source/Foo.uplugin": "staging",
		"unrelated.txt":                   "x",
	}
	for rel, content := range files {
		path := filepath.Join(src, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	remote := filepath.Join(t.TempDir(), "share")
	p := publisher.NewDirectoryPublisher(nil)
	if err := p.Publish(context.Background(), src, remote); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, rel := range []string{"plugins/Foo_5.4.zip", "examples/5.4/Demo_Full_5.4.zip", "logs/5.4.log"} {
		data, err := os.ReadFile(filepath.Join(remote, filepath.FromSlash(rel)))
		if err != nil || string(data) != files[rel] {
			t.Errorf("%s = %q, %v", rel, data, err)
		}
	}
	for _, rel := range []string{".staging", "unrelated.txt"} {
		if _, err := os.Stat(filepath.Join(remote, rel)); !os.IsNotExist(err) {
			t.Errorf("%s must not be published", rel)
		}
	}

	// A second publish leaves unchanged files alone and picks up new content
	if err := os.WriteFile(filepath.Join(src, "logs", "5.4.log"), []byte("log, second run"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), src, remote); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(remote, "logs", "5.4.log"))
	if string(data) != "log, second run" {
		t.Errorf("updated log not republished: %q", data)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *types.PublishConfig
		want    string
		wantErr bool
	}{
		{"default kind", &types.PublishConfig{}, "*publisher.CommandPublisher", false},
		{"command", &types.PublishConfig{Kind: types.PublisherKindCommand}, "*publisher.CommandPublisher", false},
		{"directory", &types.PublishConfig{Kind: types.PublisherKindDirectory}, "*publisher.DirectoryPublisher", false},
		{"unknown", &types.PublishConfig{Kind: "ftp"}, "", true},
		{"nil", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := publisher.New(tt.cfg, nil, nil, nil)
			if tt.wantErr {
				if !errors.Is(err, types.ErrConfig) {
					t.Errorf("error = %v, want ErrConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			switch p.(type) {
			case *publisher.CommandPublisher:
				if tt.want != "*publisher.CommandPublisher" {
					t.Errorf("got CommandPublisher, want %s", tt.want)
				}
			case *publisher.DirectoryPublisher:
				if tt.want != "*publisher.DirectoryPublisher" {
					t.Errorf("got DirectoryPublisher, want %s", tt.want)
				}
			}
		})
	}
}
