package transforms

import (
	"fmt"
	"strings"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/inference"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/worker"
)

const NameEvents = "events"

func init() {
	Register(NameEvents, func(deps Deps) worker.Transform { return &events{deps: deps} })
}

// events appends one event describing the detected boxes per class.
type events struct {
	deps Deps
}

func (t *events) Process(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	res, err := inference.ReadResults(root)
	if err != nil {
		return nil, err
	}

	s := t.deps.settings()
	res.AddEvent(inference.Event{
		ID:          s.EventID,
		Caption:     s.EventCaption,
		Description: describeBoxes(res.BBoxes),
	})
	logs.Debugf("transforms.events added id=%s events=%d", s.EventID, len(res.Events))
	return inference.EncodeResults(root, res, document.FormatMsgpack)
}

// describeBoxes renders e.g. "\nThere are 2 cat's in the frame 1 dog's in
// the frame". Classes without coordinates are left out.
func describeBoxes(boxes []inference.BBox) string {
	var sb strings.Builder
	for _, box := range boxes {
		n := len(box.Coordinates) / 4
		if n == 0 {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("\nThere are")
		}
		fmt.Fprintf(&sb, " %d %s's in the frame", n, box.Class)
	}
	if sb.Len() == 0 {
		return "\nThere are no objects in the frame."
	}
	return sb.String()
}
