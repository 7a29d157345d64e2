package serverrun

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/relay/internal/config"
	logpkg "github.com/rzbill/relay/pkg/log"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxConcurrentStreams: 10\nhttpAddr: \":7000\"\n"), 0o644))
	t.Setenv("RELAY_HTTP_ADDR", ":7001")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.MaxConcurrentStreams, "file value lost")
	require.Equal(t, ":7001", cfg.HTTPAddr, "env did not override file")
	require.Equal(t, cfgpkg.Default().GRPCAddr, cfg.GRPCAddr, "default lost")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRunServesAndStops(t *testing.T) {
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := cfgpkg.Default()
	cfg.Monitor.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Config:       cfg,
			Logger:       logpkg.Discard(),
			GRPCListener: grpcLis,
			HTTPListener: httpLis,
		})
	}()

	base := "http://" + httpLis.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond, "server never became healthy")

	resp, err := http.Post(base+"/api/messages/publish", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "Message published successfully", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunFailsOnInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Ingest.Mode = "bogus"
	require.Error(t, Run(context.Background(), Options{Config: cfg, Logger: logpkg.Discard()}))
}

func TestRunStartsWithUnreachableBackplane(t *testing.T) {
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := cfgpkg.Default()
	cfg.Monitor.Interval = time.Hour
	cfg.Backplane.Kind = cfgpkg.BackplaneRedis
	cfg.Backplane.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: cfg, Logger: logpkg.Discard(), GRPCListener: grpcLis, HTTPListener: httpLis})
	}()

	base := "http://" + httpLis.Addr().String()
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Post(base+"/api/messages/publish", "text/plain", strings.NewReader("local"))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, "publish never succeeded")
	require.Equal(t, "Message published successfully", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
