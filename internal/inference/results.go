// Package inference maps the runtime's inference-result documents onto
// typed records and writes them back in the layout the runtime expects.
package inference

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/transcode"
)

var ErrSchema = errors.New("inference: unexpected document layout")

const (
	KeyBBoxes = "BBoxes_xyxy"
	KeyScores = "Scores"
	KeyCounts = "Counts"
	KeyEvents = "Events"

	FormatXYXY   = "xyxy"
	UnknownClass = "unknown"
)

type BBox struct {
	Class       string
	Coordinates []float32
	Format      string
}

type Score struct {
	Class string
	Score float32
}

type Count struct {
	Class string
	Count uint64
}

type Event struct {
	ID          string
	Caption     string
	Description string
}

// Results holds the replaceable sections of an inference document.
// A nil section was absent on read; an empty one is omitted on write.
type Results struct {
	BBoxes []BBox
	Scores []Score
	Counts []Count
	Events []Event
}

// AddCount increments class by n, appending it when new.
func (r *Results) AddCount(class string, n uint64) {
	for i := range r.Counts {
		if r.Counts[i].Class == class {
			r.Counts[i].Count += n
			return
		}
	}
	r.Counts = append(r.Counts, Count{Class: class, Count: n})
}

// AddBBox appends one xyxy box, merging into an existing class entry.
func (r *Results) AddBBox(class string, coords ...float32) {
	for i := range r.BBoxes {
		if r.BBoxes[i].Class == class && r.BBoxes[i].Format == FormatXYXY {
			r.BBoxes[i].Coordinates = append(r.BBoxes[i].Coordinates, coords...)
			return
		}
	}
	r.BBoxes = append(r.BBoxes, BBox{Class: class, Coordinates: append([]float32(nil), coords...), Format: FormatXYXY})
}

func (r *Results) AddEvent(e Event) {
	r.Events = append(r.Events, e)
}

// ReadResults extracts the optional result sections from root.
func ReadResults(root document.Value) (Results, error) {
	var res Results
	if root.Kind() != document.KindMap {
		return res, fmt.Errorf("%w: root kind=%s", ErrSchema, root.Kind())
	}

	if v := root.Lookup(KeyBBoxes); !v.IsMissing() {
		entries, err := sectionEntries(KeyBBoxes, v)
		if err != nil {
			return res, err
		}
		res.BBoxes = make([]BBox, 0, len(entries))
		for _, e := range entries {
			class, err := e.Key.Str()
			if err != nil {
				return res, fmt.Errorf("%w: %s key: %w", ErrSchema, KeyBBoxes, err)
			}
			coords, err := readCoordinates(e.Value)
			if err != nil {
				return res, fmt.Errorf("%w: %s[%q]: %w", ErrSchema, KeyBBoxes, class, err)
			}
			res.BBoxes = append(res.BBoxes, BBox{Class: class, Coordinates: coords, Format: FormatXYXY})
		}
	}

	if v := root.Lookup(KeyScores); !v.IsMissing() {
		entries, err := sectionEntries(KeyScores, v)
		if err != nil {
			return res, err
		}
		res.Scores = make([]Score, 0, len(entries))
		for _, e := range entries {
			class, err := e.Key.Str()
			if err != nil {
				return res, fmt.Errorf("%w: %s key: %w", ErrSchema, KeyScores, err)
			}
			s, err := e.Value.Float32()
			if err != nil {
				return res, fmt.Errorf("%w: %s[%q]: %w", ErrSchema, KeyScores, class, err)
			}
			res.Scores = append(res.Scores, Score{Class: class, Score: s})
		}
	}

	if v := root.Lookup(KeyCounts); !v.IsMissing() {
		entries, err := sectionEntries(KeyCounts, v)
		if err != nil {
			return res, err
		}
		res.Counts = make([]Count, 0, len(entries))
		for _, e := range entries {
			class, err := e.Key.Str()
			if err != nil {
				return res, fmt.Errorf("%w: %s key: %w", ErrSchema, KeyCounts, err)
			}
			n, err := e.Value.Uint()
			if err != nil {
				return res, fmt.Errorf("%w: %s[%q]: %w", ErrSchema, KeyCounts, class, err)
			}
			res.Counts = append(res.Counts, Count{Class: class, Count: n})
		}
	}

	if v := root.Lookup(KeyEvents); !v.IsMissing() {
		if v.Kind() != document.KindArray {
			return res, fmt.Errorf("%w: %s kind=%s", ErrSchema, KeyEvents, v.Kind())
		}
		res.Events = make([]Event, 0, v.Len())
		for i, item := range v.Items() {
			if item.Kind() != document.KindMap {
				return res, fmt.Errorf("%w: %s[%d] kind=%s", ErrSchema, KeyEvents, i, item.Kind())
			}
			res.Events = append(res.Events, Event{
				ID:          optionalString(item, "ID"),
				Caption:     optionalString(item, "Caption"),
				Description: optionalString(item, "Description"),
			})
		}
	}

	return res, nil
}

func sectionEntries(key string, v document.Value) ([]document.Entry, error) {
	if v.Kind() != document.KindMap {
		return nil, fmt.Errorf("%w: %s kind=%s", ErrSchema, key, v.Kind())
	}
	return v.Entries(), nil
}

func optionalString(v document.Value, key string) string {
	s, _ := v.Lookup(key).Str()
	return s
}

// readCoordinates accepts packed little-endian float32 binaries and, for
// JSON documents, either the base64 text the JSON encoder writes for
// binaries or plain numeric arrays.
func readCoordinates(v document.Value) ([]float32, error) {
	switch v.Kind() {
	case document.KindBinary:
		raw, _ := v.Bytes()
		return UnpackCoordinates(raw)
	case document.KindString:
		text, _ := v.Bytes()
		raw, err := base64.StdEncoding.DecodeString(string(text))
		if err != nil {
			return nil, fmt.Errorf("coordinates base64: %w", err)
		}
		return UnpackCoordinates(raw)
	case document.KindArray:
		out := make([]float32, 0, v.Len())
		for _, item := range v.Items() {
			f, err := item.Float32()
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("coordinates kind=%s", v.Kind())
	}
}

func UnpackCoordinates(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("coordinate payload length %d not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func PackCoordinates(coords []float32) []byte {
	out := make([]byte, len(coords)*4)
	for i, c := range coords {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(c))
	}
	return out
}

func className(class string) string {
	if class == "" {
		return UnknownClass
	}
	return class
}

func (box BBox) writable() bool {
	return box.Format == "" || box.Format == FormatXYXY
}

func writableBoxes(boxes []BBox) int {
	n := 0
	for _, box := range boxes {
		if box.writable() {
			n++
		}
	}
	return n
}

var resultKeys = transcode.KeySet(KeyBBoxes, KeyScores, KeyCounts, KeyEvents)

// WriteResults copies root without its result sections, then appends the
// sections from res in the order bboxes, scores, counts, events. A
// section with no entries is left out entirely. Only xyxy boxes are
// written.
func WriteResults(root document.Value, res Results, b *document.Builder) error {
	if err := transcode.CopyMapExcluding(root, b, resultKeys); err != nil {
		return err
	}

	if n := writableBoxes(res.BBoxes); n > 0 {
		b.String(KeyBBoxes)
		b.StartMap(n)
		for _, box := range res.BBoxes {
			if !box.writable() {
				continue
			}
			b.String(className(box.Class))
			b.Binary(PackCoordinates(box.Coordinates))
		}
		b.FinishMap()
	}

	if len(res.Scores) > 0 {
		b.String(KeyScores)
		b.StartMap(len(res.Scores))
		for _, s := range res.Scores {
			b.String(className(s.Class))
			b.Float(s.Score)
		}
		b.FinishMap()
	}

	if len(res.Counts) > 0 {
		b.String(KeyCounts)
		b.StartMap(len(res.Counts))
		for _, c := range res.Counts {
			b.String(className(c.Class))
			b.Uint(c.Count)
		}
		b.FinishMap()
	}

	if len(res.Events) > 0 {
		b.String(KeyEvents)
		b.StartArray(len(res.Events))
		for _, e := range res.Events {
			b.StartMap(3)
			b.String("ID")
			b.String(e.ID)
			b.String("Caption")
			b.String(e.Caption)
			b.String("Description")
			b.String(e.Description)
			b.FinishMap()
		}
		b.FinishArray()
	}

	b.CompleteMap()
	return b.Err()
}

// EncodeResults rewrites root with res and serialises it.
func EncodeResults(root document.Value, res Results, format document.Format) ([]byte, error) {
	b := document.NewBuilder()
	if err := WriteResults(root, res, b); err != nil {
		return nil, err
	}
	return b.Encode(format)
}
