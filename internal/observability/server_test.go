package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServer_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s := NewServer("127.0.0.1:0", handler)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestServer_BadAddress(t *testing.T) {
	s := NewServer("256.0.0.1:-1", http.NotFoundHandler())
	if err := s.Start(); err == nil {
		t.Error("expected bind error")
	}
}
