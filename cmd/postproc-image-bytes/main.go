package main

import (
	"os"

	"github.com/danmuck/postproc/internal/shm"
	"github.com/danmuck/postproc/internal/transforms"
	"github.com/danmuck/postproc/internal/worker"
)

func main() {
	os.Exit(worker.Main("postproc-image-bytes", transforms.Builder(transforms.NameImageBytes, shm.SysV{})))
}
