package transforms

import (
	"github.com/danmuck/postproc/internal/document"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/worker"
)

const NameNoResponse = "noresponse"

func init() {
	Register(NameNoResponse, func(Deps) worker.Transform { return worker.TransformFunc(noResponse) })
}

// noResponse logs the decoded request and never replies. Msgpack is tried
// first, then JSON.
func noResponse(ex *worker.Exchange) ([]byte, error) {
	doc, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		var jsonErr error
		if doc, jsonErr = document.Parse(document.FormatJSON, ex.Payload); jsonErr != nil {
			return nil, err
		}
	}
	logs.Infof("transforms.noResponse received bytes=%d doc=%s", len(ex.Payload), doc)
	return nil, nil
}
