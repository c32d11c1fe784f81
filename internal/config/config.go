package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/protocol/frame"
	"github.com/danmuck/postproc/internal/protocol/socket"
)

const EnvConfigPath = "POSTPROC_CONFIG"

// TransformConfig holds the knobs the bundled transforms read on every
// exchange. These are the settings a reload may change.
type TransformConfig struct {
	OutputName    string
	OutputValue   string
	BBoxClass     string
	CountKey      string
	EventID       string
	EventCaption  string
	AnnotateKey   string
	AnnotateValue string
}

type WorkerConfig struct {
	LogLevel        string
	ReceiveTimeout  time.Duration
	SendTimeout     time.Duration
	Backlog         int
	MaxPayloadBytes uint32
	MetricsAddr     string
	Transform       TransformConfig
}

func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		OutputName:    "Go-MsgPack-Socket-Postprocessor",
		OutputValue:   "Processed",
		BBoxClass:     "test",
		CountKey:      "ImageBytesCumulative",
		EventID:       "ex.example.event",
		EventCaption:  "Example Event",
		AnnotateKey:   "examplePostProcessor",
		AnnotateValue: "Processed",
	}
}

func DefaultWorkerConfig() WorkerConfig {
	sock := socket.DefaultConfig()
	return WorkerConfig{
		LogLevel:        "info",
		ReceiveTimeout:  sock.ReceiveTimeout,
		SendTimeout:     sock.SendTimeout,
		Backlog:         sock.Backlog,
		MaxPayloadBytes: sock.Limits.MaxPayloadBytes,
		MetricsAddr:     "",
		Transform:       DefaultTransformConfig(),
	}
}

// SocketConfig projects the listener settings.
func (c WorkerConfig) SocketConfig() socket.Config {
	return socket.Config{
		ReceiveTimeout: c.ReceiveTimeout,
		SendTimeout:    c.SendTimeout,
		Backlog:        c.Backlog,
		Limits:         frame.Limits{MaxPayloadBytes: c.MaxPayloadBytes},
	}
}

type fileTransform struct {
	OutputName    string `toml:"output_name"`
	OutputValue   string `toml:"output_value"`
	BBoxClass     string `toml:"bbox_class"`
	CountKey      string `toml:"count_key"`
	EventID       string `toml:"event_id"`
	EventCaption  string `toml:"event_caption"`
	AnnotateKey   string `toml:"annotate_key"`
	AnnotateValue string `toml:"annotate_value"`
}

type fileConfig struct {
	LogLevel        string        `toml:"log_level"`
	ReceiveTimeout  string        `toml:"receive_timeout"`
	SendTimeout     string        `toml:"send_timeout"`
	Backlog         int           `toml:"backlog"`
	MaxPayloadBytes int64         `toml:"max_payload_bytes"`
	MetricsAddr     string        `toml:"metrics_addr"`
	Transform       fileTransform `toml:"transform"`
}

// LoadWorkerConfig overlays the keys present in path onto the defaults.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("load worker config: %w", err)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("receive_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReceiveTimeout))
		if err != nil {
			return WorkerConfig{}, fmt.Errorf("parse receive_timeout: %w", err)
		}
		cfg.ReceiveTimeout = d
	}
	if meta.IsDefined("send_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SendTimeout))
		if err != nil {
			return WorkerConfig{}, fmt.Errorf("parse send_timeout: %w", err)
		}
		cfg.SendTimeout = d
	}
	if meta.IsDefined("backlog") {
		cfg.Backlog = raw.Backlog
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > int64(^uint32(0)) {
			return WorkerConfig{}, fmt.Errorf("max_payload_bytes out of range: %d", raw.MaxPayloadBytes)
		}
		cfg.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	t := &cfg.Transform
	overrides := []struct {
		key string
		src string
		dst *string
	}{
		{"output_name", raw.Transform.OutputName, &t.OutputName},
		{"output_value", raw.Transform.OutputValue, &t.OutputValue},
		{"bbox_class", raw.Transform.BBoxClass, &t.BBoxClass},
		{"count_key", raw.Transform.CountKey, &t.CountKey},
		{"event_id", raw.Transform.EventID, &t.EventID},
		{"event_caption", raw.Transform.EventCaption, &t.EventCaption},
		{"annotate_key", raw.Transform.AnnotateKey, &t.AnnotateKey},
		{"annotate_value", raw.Transform.AnnotateValue, &t.AnnotateValue},
	}
	for _, o := range overrides {
		if meta.IsDefined("transform", o.key) {
			*o.dst = o.src
		}
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logs.Warnf("config.LoadWorkerConfig unknown keys path=%q keys=%v", path, undecoded)
	}

	if err := ValidateWorkerConfig(cfg); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}

func ValidateWorkerConfig(cfg WorkerConfig) error {
	if _, ok := logs.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("worker config invalid log_level: %q", cfg.LogLevel)
	}
	if cfg.ReceiveTimeout <= 0 {
		return fmt.Errorf("worker config receive_timeout must be positive")
	}
	if cfg.SendTimeout <= 0 {
		return fmt.Errorf("worker config send_timeout must be positive")
	}
	if cfg.Backlog <= 0 {
		return fmt.Errorf("worker config backlog must be positive")
	}
	if cfg.MaxPayloadBytes == 0 {
		return fmt.Errorf("worker config max_payload_bytes must be positive")
	}
	if strings.TrimSpace(cfg.Transform.CountKey) == "" {
		return fmt.Errorf("worker config transform.count_key is required")
	}
	return nil
}

// Locate finds the config file for binary: POSTPROC_CONFIG when set,
// otherwise <exe dir>/../etc/<binary>.toml when that file exists.
func Locate(binary string) (string, bool) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, true
	}
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(filepath.Dir(exe), "..", "etc", binary+".toml")
	if _, err := os.Stat(candidate); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logs.Warnf("config.Locate stat failed path=%q err=%v", candidate, err)
		}
		return "", false
	}
	return candidate, true
}
