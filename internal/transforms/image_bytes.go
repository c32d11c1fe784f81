package transforms

import (
	"errors"
	"fmt"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/inference"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/shm"
	"github.com/danmuck/postproc/internal/worker"
)

const NameImageBytes = "image-bytes"

var ErrNoSHM = errors.New("transforms: shared memory reader required")

func init() {
	Register(NameImageBytes, func(deps Deps) worker.Transform { return &imageBytes{deps: deps} })
}

// imageBytes reads the tensor header sent as the secondary message, sums
// every byte of the referenced segment and reports it as a count.
type imageBytes struct {
	deps Deps
}

func (t *imageBytes) Process(ex *worker.Exchange) ([]byte, error) {
	if t.deps.SHM == nil {
		return nil, ErrNoSHM
	}
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	res, err := inference.ReadResults(root)
	if err != nil {
		return nil, err
	}

	raw, err := ex.Receive()
	if err != nil {
		return nil, fmt.Errorf("%s: tensor header: %w", NameImageBytes, err)
	}
	headerDoc, err := document.Parse(document.FormatMsgpack, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: tensor header: %w", NameImageBytes, err)
	}
	header, err := inference.ReadTensorHeader(headerDoc)
	if err != nil {
		return nil, err
	}

	total, err := sumSegment(t.deps.SHM, header)
	if err != nil {
		return nil, err
	}

	s := t.deps.settings()
	res.AddCount(s.CountKey, total)
	return inference.EncodeResults(root, res, document.FormatMsgpack)
}

func sumSegment(reader shm.Reader, h inference.TensorHeader) (uint64, error) {
	seg, err := reader.Read(h.SHMID)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := seg.Close(); err != nil {
			logs.Warnf("transforms.imageBytes detach shm=%d err=%v", h.SHMID, err)
		}
	}()
	logs.Debugf("transforms.imageBytes shm=%d read_size=%d actual_size=%d", h.SHMID, len(seg.Data), h.Size())
	return shm.Sum(seg.Data), nil
}
