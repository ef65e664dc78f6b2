package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"media-augment-go/pkg/config"
	"media-augment-go/pkg/logging"
)

func TestServeRunsHooksOnShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.APIPassword = "secret"
	srv := New(cfg, logging.New("error", "text", io.Discard))
	srv.Router().HandleFunc("GET /api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	hooks := make(chan string, 2)
	srv.OnShutdown(func() { hooks <- "first" })
	srv.OnShutdown(func() { hooks <- "second" })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/api/info")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without password status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	resp, err = http.Get(base + "/api/info?api_password=secret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with password status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if first, second := <-hooks, <-hooks; first != "first" || second != "second" {
		t.Errorf("hooks ran as %s, %s", first, second)
	}
}
