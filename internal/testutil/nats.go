package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// FreePort reserves a local TCP port and releases it for the caller.
func FreePort(tb testing.TB) int {
	tb.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// StartJetStream runs a local nats-server with JetStream for one test.
// Params: test handle; the test is skipped when nats-server is not installed.
// Returns: server URL; the process is stopped in t.Cleanup.
func StartJetStream(tb testing.TB) string {
	tb.Helper()

	binary, err := exec.LookPath("nats-server")
	if err != nil {
		tb.Skipf("nats-server is required for integration test: %v", err)
	}
	port := FreePort(tb)
	cmd := exec.Command(binary, "-js", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("start nats-server: %v", err)
	}
	tb.Cleanup(func() {
		if cmd.Process == nil {
			return
		}
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			_, _ = cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
	})

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	waitForNATS(tb, url, 8*time.Second)
	return url
}

func waitForNATS(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(url)
		if err == nil {
			nc.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("nats did not become ready at %s", url)
}
