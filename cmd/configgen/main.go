package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/danmuck/postproc/internal/config"
	logs "github.com/danmuck/postproc/internal/logging"
)

func main() {
	logs.ConfigureRuntime()

	binary := flag.String("binary", "postproc-image-bytes", "worker binary the config is for")
	output := flag.String("output", "", "output path for config template (defaults to etc/<binary>.toml)")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to etc/<binary>.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	defaultPath := filepath.Join("etc", *binary+".toml")

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		cfg, err := config.LoadWorkerConfig(path)
		if err != nil {
			logs.Errf("configgen validate failed path=%q err=%v", path, err)
			os.Exit(1)
		}
		logs.Infof("Validated %s config at %s (log_level=%s receive_timeout=%s)", *binary, path, cfg.LogLevel, cfg.ReceiveTimeout)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logs.Errf("configgen mkdir failed dir=%q err=%v", dir, err)
			os.Exit(1)
		}
	}
	if err := config.WriteTemplate(target, *binary, config.DefaultTransformConfig(), *force); err != nil {
		logs.Errf("configgen write failed path=%q err=%v", target, err)
		os.Exit(1)
	}
	logs.Infof("Wrote %s config template to %s", *binary, target)
}
