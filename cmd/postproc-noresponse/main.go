package main

import (
	"os"

	"github.com/danmuck/postproc/internal/transforms"
	"github.com/danmuck/postproc/internal/worker"
)

func main() {
	os.Exit(worker.Main("postproc-noresponse", transforms.Builder(transforms.NameNoResponse, nil)))
}
