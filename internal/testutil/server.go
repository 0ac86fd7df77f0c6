package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewIPv4TestServer starts a test server bound to IPv4 loopback to avoid IPv6 listener issues.
// The server is closed when the test completes.
func NewIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen on IPv4 loopback: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	t.Cleanup(server.Close)
	return server
}
