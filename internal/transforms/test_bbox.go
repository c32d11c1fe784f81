package transforms

import (
	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/inference"
	"github.com/danmuck/postproc/internal/worker"
)

const NameTestBBox = "test-bbox"

func init() {
	Register(NameTestBBox, func(deps Deps) worker.Transform { return &testBBox{deps: deps} })
}

var testBoxCoordinates = []float32{100, 100, 200, 200}

type testBBox struct {
	deps Deps
}

func (t *testBBox) Process(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	res, err := inference.ReadResults(root)
	if err != nil {
		return nil, err
	}
	res.AddBBox(t.deps.settings().BBoxClass, testBoxCoordinates...)
	return inference.EncodeResults(root, res, document.FormatMsgpack)
}
