package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logs "github.com/danmuck/postproc/internal/logging"
)

// HealthFunc reports the worker state label and whether it is serving.
type HealthFunc func() (state string, ok bool)

// Diagnostics serves /metrics and /healthz for one worker process.
type Diagnostics struct {
	worker  string
	started time.Time
	health  HealthFunc
	router  *gin.Engine
	srv     *http.Server
	ln      net.Listener
}

func NewDiagnostics(worker string, health HealthFunc) *Diagnostics {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(diagnosticsAccess(worker, InitLogger(worker), health))

	d := &Diagnostics{worker: worker, started: time.Now(), health: health, router: r}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", d.healthz)
	return d
}

func (d *Diagnostics) healthz(c *gin.Context) {
	state, ok := "unknown", true
	if d.health != nil {
		state, ok = d.health()
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"worker": d.worker,
		"state":  state,
		"uptime": time.Since(d.started).String(),
	})
}

func (d *Diagnostics) Handler() http.Handler {
	return d.router
}

// Start listens on addr and serves in the background.
func (d *Diagnostics) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen %s: %w", addr, err)
	}
	d.ln = ln
	d.srv = &http.Server{
		Handler:           d.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errf("observability.Diagnostics.Start serve failed addr=%s err=%v", addr, err)
		}
	}()
	logs.Infof("observability.Diagnostics.Start worker=%s addr=%s", d.worker, ln.Addr())
	return nil
}

func (d *Diagnostics) Addr() string {
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

func (d *Diagnostics) Shutdown(ctx context.Context) error {
	if d.srv == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}
