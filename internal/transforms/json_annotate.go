package transforms

import (
	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/transcode"
	"github.com/danmuck/postproc/internal/worker"
)

const (
	NameJSONAnnotate = "json-annotate"

	keyOutput = "output"
)

func init() {
	Register(NameJSONAnnotate, func(deps Deps) worker.Transform { return &jsonAnnotate{deps: deps} })
}

// jsonAnnotate sets output.<AnnotateKey> = <AnnotateValue> on a JSON
// document. The output object is created when absent and is written last.
type jsonAnnotate struct {
	deps Deps
}

var outputKey = transcode.KeySet(keyOutput)

func (t *jsonAnnotate) Process(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatJSON, ex.Payload)
	if err != nil {
		return nil, err
	}
	s := t.deps.settings()

	b := document.NewBuilder()
	if err := transcode.CopyMapExcluding(root, b, outputKey); err != nil {
		return nil, err
	}
	b.String(keyOutput)
	output := root.Lookup(keyOutput)
	if output.Kind() != document.KindMap {
		output = document.Map()
	}
	if err := transcode.CopyMapExcluding(output, b, transcode.KeySet(s.AnnotateKey)); err != nil {
		return nil, err
	}
	b.String(s.AnnotateKey)
	b.String(s.AnnotateValue)
	b.CompleteMap()
	b.CompleteMap()
	return b.Encode(document.FormatJSON)
}
