package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/server"
)

const testAPIKey = "integration-key"

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

func testConfig() *config.Config {
	cfg := *config.Default()
	cfg.Security.APIKey = testAPIKey
	cfg.RateLimit.MaxTokens = 1000
	cfg.Server.Host = "127.0.0.1"
	return &cfg
}

func definition(name string, kind, target string) *agentdef.Definition {
	return &agentdef.Definition{
		Metadata: agentdef.Metadata{Name: name, DisplayName: strings.ToUpper(name[:1]) + name[1:]},
		Executor: agentdef.ExecutorConfig{Kind: kind, Target: target},
	}
}

// runningAgent is one agent server bound to an IPv4 loopback port.
type runningAgent struct {
	srv *server.Server
	url string
}

// startAgent binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func startAgent(t *testing.T, opts server.Options) *runningAgent {
	t.Helper()
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping agent server setup: %v", err)
		}
		require.NoError(t, err)
	}

	srv := server.New(opts)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	})

	agent := &runningAgent{srv: srv, url: "http://" + listener.Addr().String()}
	require.Eventually(t, srv.Health().Ready, 2*time.Second, 10*time.Millisecond)
	return agent
}

func authorizedGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
