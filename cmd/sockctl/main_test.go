package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/protocol/socket"
	"github.com/danmuck/postproc/internal/testutil/testlog"
)

// echoServer answers one exchange with the first message, wrapped in a
// map that also records how many messages arrived.
func echoServer(t *testing.T, secondary bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echo.sock")
	cfg := socket.DefaultConfig()
	cfg.ReceiveTimeout = 2 * time.Second
	l, err := socket.Listen(path, cfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, payload, err := l.Await()
		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		defer conn.Close()
		req, err := document.Parse(document.FormatMsgpack, payload)
		if err != nil {
			return
		}
		messages := uint64(1)
		if secondary {
			if _, err := conn.Receive(); err != nil {
				return
			}
			messages++
		}
		resp, err := document.Encode(document.FormatMsgpack, document.Map(
			document.Pair("request", req),
			document.Pair("messages", document.Uint(messages)),
		))
		if err != nil {
			return
		}
		_ = conn.Send(resp)
	}()
	t.Cleanup(func() {
		<-done
		_ = l.Close()
	})
	return path
}

func TestRunConvertsJSONRequest(t *testing.T) {
	testlog.Start(t)
	path := echoServer(t, false)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-socket", path, "-json"}, strings.NewReader(`{"Timestamp":100}`), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d stderr=%s", code, stderr.String())
	}
	if got, want := stdout.String(), "{\"request\":{\"Timestamp\":100},\"messages\":1}\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRunSendsHeaderAsSecondaryMessage(t *testing.T) {
	testlog.Start(t)
	path := echoServer(t, true)

	dir := t.TempDir()
	in := filepath.Join(dir, "req.json")
	header := filepath.Join(dir, "header.json")
	if err := os.WriteFile(in, []byte(`{"Width":4}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(header, []byte(`{"SHMID":1,"Width":4,"Height":4,"Channels":3}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-socket", path, "-json", "-in", in, "-header", header}, strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"messages":2`) {
		t.Fatalf("secondary message not delivered: %s", stdout.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	testlog.Start(t)
	var stdout, stderr bytes.Buffer
	if code := run(nil, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 without -socket, got %d", code)
	}
	if code := run([]string{"-socket", "/tmp/x.sock", "-format", "yaml"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for unknown format, got %d", code)
	}
}

func TestRunConnectFailure(t *testing.T) {
	testlog.Start(t)
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "none.sock")
	if code := run([]string{"-socket", missing, "-json"}, strings.NewReader(`{}`), &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
