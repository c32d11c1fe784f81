package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danmuck/postproc/internal/testutil/testlog"
)

func TestAccessLevel(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   zerolog.Level
	}{
		{"/healthz", http.StatusOK, zerolog.TraceLevel},
		{"/metrics", http.StatusOK, zerolog.TraceLevel},
		{"/healthz", http.StatusServiceUnavailable, zerolog.WarnLevel},
		{"/debug", http.StatusOK, zerolog.InfoLevel},
		{"/missing", http.StatusNotFound, zerolog.WarnLevel},
		{"/debug", http.StatusInternalServerError, zerolog.ErrorLevel},
	}
	for _, tc := range cases {
		if got := accessLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("accessLevel(%s, %d) = %s want %s", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestDiagnosticsAccessTagsWorkerState(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.ReleaseMode)
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)

	r := gin.New()
	r.Use(diagnosticsAccess("access-test", logger, func() (string, bool) { return "handling", true }))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/debug", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/healthz", "/debug"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	wantLevels := []string{"trace", "info"}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line %d: %v", i, err)
		}
		if entry["level"] != wantLevels[i] {
			t.Fatalf("line %d level=%v want %s", i, entry["level"], wantLevels[i])
		}
		if entry["worker"] != "access-test" || entry["worker_state"] != "handling" {
			t.Fatalf("line %d missing worker tags: %v", i, entry)
		}
	}
}
