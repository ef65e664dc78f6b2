package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-augment-go/pkg/interfaces"
	"media-augment-go/pkg/types"
)

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp4":
			if r.Header.Get("User-Agent") == "" {
				t.Error("missing User-Agent")
			}
			w.Write([]byte("video-bytes"))
		case "/gone.mp4":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMechanisms(t *testing.T) {
	srv := mediaServer(t)
	mechanisms := map[string]func(dir string) interfaces.DownloadMechanism{
		"native": func(dir string) interfaces.DownloadMechanism { return NewNative(srv.Client(), dir) },
		"blob":   func(dir string) interfaces.DownloadMechanism { return NewBlob(srv.Client(), dir) },
	}
	for name, build := range mechanisms {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			m := build(dir)

			res := m.Download(context.Background(), srv.URL+"/ok.mp4", "abc123.mp4")
			if !res.Succeeded() {
				t.Fatalf("Download() error = %v", res.Err)
			}
			data, err := os.ReadFile(filepath.Join(dir, "abc123.mp4"))
			if err != nil || string(data) != "video-bytes" {
				t.Fatalf("saved file = %q, %v", data, err)
			}
			if res.Bytes != int64(len("video-bytes")) {
				t.Errorf("Bytes = %d", res.Bytes)
			}

			res = m.Download(context.Background(), srv.URL+"/gone.mp4", "gone.mp4")
			if !errors.Is(res.Err, types.ErrDownload) {
				t.Errorf("404 error = %v, want ErrDownload", res.Err)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 1 {
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					names = append(names, e.Name())
				}
				t.Errorf("download dir holds %v, want only abc123.mp4", names)
			}
		})
	}
}

func TestFilenameIsConfinedToDir(t *testing.T) {
	srv := mediaServer(t)
	dir := t.TempDir()
	res := NewNative(srv.Client(), dir).Download(context.Background(), srv.URL+"/ok.mp4", "../../escape.mp4")
	if !res.Succeeded() {
		t.Fatalf("Download() error = %v", res.Err)
	}
	if filepath.Dir(res.Path) != dir {
		t.Errorf("Path = %s, want inside %s", res.Path, dir)
	}
	if res := NewNative(srv.Client(), dir).Download(context.Background(), srv.URL+"/ok.mp4", ".."); res.Err == nil {
		t.Error("expected error for invalid filename")
	}
}

func TestBlobLimit(t *testing.T) {
	srv := mediaServer(t)
	b := NewBlob(srv.Client(), t.TempDir())
	b.maxSize = 4
	if res := b.Download(context.Background(), srv.URL+"/ok.mp4", "big.mp4"); !errors.Is(res.Err, types.ErrDownload) {
		t.Errorf("error = %v, want ErrDownload", res.Err)
	}
}

func TestProgress(t *testing.T) {
	srv := mediaServer(t)
	var out bytes.Buffer
	res := NewNative(srv.Client(), t.TempDir(), WithProgress(&out)).Download(context.Background(), srv.URL+"/ok.mp4", "p.mp4")
	if !res.Succeeded() {
		t.Fatalf("Download() error = %v", res.Err)
	}
	if !strings.Contains(out.String(), "p.mp4") {
		t.Errorf("progress output %q missing description", out.String())
	}
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{ModeNative, "*download.Native", false},
		{ModeBlob, "*download.Blob", false},
		{ModeAuto, "*download.Native", false},
		{"ftp", "", true},
	}
	for _, tt := range tests {
		m, err := New(tt.mode, http.DefaultClient, dir)
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q) error = %v", tt.mode, err)
		}
		if err != nil {
			continue
		}
		if got := typeName(m); got != tt.want {
			t.Errorf("New(%q) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func typeName(m interfaces.DownloadMechanism) string {
	switch m.(type) {
	case *Native:
		return "*download.Native"
	case *Blob:
		return "*download.Blob"
	}
	return "?"
}
