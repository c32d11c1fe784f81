package transforms

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/postproc/internal/document"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/transcode"
	"github.com/danmuck/postproc/internal/worker"
)

const (
	NameConfidences = "confidences"

	keyObjectsMetaData = "ObjectsMetaData"
	keyConfidences     = "Confidences"
	keyAttributeKeys   = "AttributeKeys"
	keyAttributeValues = "AttributeValues"
	confidenceAttr     = "Confidence"
)

func init() {
	Register(NameConfidences, func(Deps) worker.Transform { return worker.TransformFunc(confidences) })
}

// confidences appends each object's confidence, rounded to two places, to
// its attribute key/value lists in ObjectsMetaData. A document without
// metadata is passed through unchanged.
func confidences(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	if root.Kind() != document.KindMap {
		return nil, fmt.Errorf("%w: kind=%s", transcode.ErrNotMap, root.Kind())
	}

	b := document.NewBuilder()
	b.BuildMap()
	for _, e := range root.Entries() {
		if entryKey(e) != keyObjectsMetaData || e.Value.Kind() != document.KindMap {
			transcode.CopyEntry(e, b)
			continue
		}
		b.String(keyObjectsMetaData)
		if err := writeMetaData(e.Value, b); err != nil {
			return nil, err
		}
	}
	b.CompleteMap()
	return b.Encode(document.FormatMsgpack)
}

func entryKey(e document.Entry) string {
	s, _ := e.Key.Str()
	return s
}

func writeMetaData(meta document.Value, b *document.Builder) error {
	b.BuildMap()
	for _, e := range meta.Entries() {
		if e.Value.Kind() != document.KindMap || !transcode.Writable(e.Key) {
			transcode.CopyEntry(e, b)
			continue
		}
		transcode.Transcode(e.Key, b)
		if err := writeClassMetaData(e.Value, b); err != nil {
			return fmt.Errorf("%s[%s]: %w", keyObjectsMetaData, e.Key, err)
		}
	}
	b.CompleteMap()
	return nil
}

func writeClassMetaData(class document.Value, b *document.Builder) error {
	var values []string
	for i, item := range class.Lookup(keyConfidences).Items() {
		c, err := item.Float64()
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", keyConfidences, i, err)
		}
		values = append(values, formatConfidence(c))
	}
	logs.Tracef("transforms.confidences objects=%d", len(values))

	wroteKeys, wroteValues := false, false
	b.BuildMap()
	for _, e := range class.Entries() {
		switch entryKey(e) {
		case keyAttributeKeys:
			b.String(keyAttributeKeys)
			appendAttribute(e.Value, len(values), func(int) string { return confidenceAttr }, b)
			wroteKeys = true
		case keyAttributeValues:
			b.String(keyAttributeValues)
			appendAttribute(e.Value, len(values), func(i int) string { return values[i] }, b)
			wroteValues = true
		default:
			transcode.CopyEntry(e, b)
		}
	}
	if !wroteKeys && len(values) > 0 {
		b.String(keyAttributeKeys)
		appendAttribute(document.Missing, len(values), func(int) string { return confidenceAttr }, b)
	}
	if !wroteValues && len(values) > 0 {
		b.String(keyAttributeValues)
		appendAttribute(document.Missing, len(values), func(i int) string { return values[i] }, b)
	}
	b.CompleteMap()
	return nil
}

// appendAttribute rewrites a per-object list of lists, appending attr(i)
// to the first n rows. Missing rows are created.
func appendAttribute(lists document.Value, n int, attr func(i int) string, b *document.Builder) {
	rows := max(lists.Len(), n)
	if lists.Kind() != document.KindArray {
		rows = n
	}
	b.StartArray(rows)
	for i := 0; i < rows; i++ {
		var items []document.Value
		if row := lists.Index(i); row.Kind() == document.KindArray {
			items = row.Items()
		}
		extra := 0
		if i < n {
			extra = 1
		}
		b.StartArray(transcode.CountWritable(items) + extra)
		for _, item := range items {
			transcode.Transcode(item, b)
		}
		if i < n {
			b.String(attr(i))
		}
		b.FinishArray()
	}
	b.FinishArray()
}

// formatConfidence renders c rounded to two places, keeping a fraction on
// whole numbers ("1.0", "0.5", "0.88").
func formatConfidence(c float64) string {
	s := strconv.FormatFloat(math.Round(c*100)/100, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
