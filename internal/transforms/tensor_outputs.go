package transforms

import (
	"fmt"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/inference"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/worker"
)

const NameTensorOutputs = "tensor-outputs"

func init() {
	Register(NameTensorOutputs, func(deps Deps) worker.Transform { return &tensorOutputs{deps: deps} })
}

// tensorOutputs appends one string output tensor to the raw output layout.
type tensorOutputs struct {
	deps Deps
}

func (t *tensorOutputs) Process(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	outputs, err := inference.ReadOutputs(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameTensorOutputs, err)
	}

	s := t.deps.settings()
	value := []byte(s.OutputValue)
	outputs = append(outputs, inference.Output{
		Name:     s.OutputName,
		Data:     value,
		Rank:     1,
		Shape:    []int64{int64(len(value))},
		DataType: inference.DataTypeString,
	})
	logs.Debugf("transforms.tensorOutputs outputs=%d added=%q", len(outputs), s.OutputName)

	b := document.NewBuilder()
	if err := inference.WriteOutputs(root, outputs, b); err != nil {
		return nil, err
	}
	return b.Encode(document.FormatMsgpack)
}
