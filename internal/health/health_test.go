package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisChecker_HealthCheck(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	if err := NewRedisChecker(client).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy redis, got %v", err)
	}
}

func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	if err := NewRedisChecker(client).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

func TestUpstreamChecker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"not found", http.StatusNotFound, false},
		{"redirect", http.StatusFound, false},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusFound {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewUpstreamChecker(srv.URL).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpstreamChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewUpstreamChecker(url).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestUpstreamChecker_EmptyURL(t *testing.T) {
	err := NewUpstreamChecker("").HealthCheck(context.Background())
	if !errors.Is(err, ErrURLNotConfigured) {
		t.Errorf("expected ErrURLNotConfigured, got %v", err)
	}
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()

	if err := NewDirChecker(filepath.Join(dir, "events.jsonl")).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected existing directory to pass, got %v", err)
	}
	if err := NewDirChecker(filepath.Join(dir, "missing", "events.jsonl")).HealthCheck(context.Background()); err == nil {
		t.Error("expected missing directory to fail")
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewDirChecker(filepath.Join(file, "events.jsonl")).HealthCheck(context.Background()); err == nil {
		t.Error("expected non-directory parent to fail")
	}
}
