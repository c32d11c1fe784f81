package transforms

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/inference"
	logs "github.com/danmuck/postproc/internal/logging"
	"github.com/danmuck/postproc/internal/transcode"
	"github.com/danmuck/postproc/internal/worker"
)

const (
	NameTracker = "tracker"

	keyDeviceID  = "DeviceID"
	keyObjectIDs = "ObjectIDs"

	// defaultMaxTracked bounds the boxes remembered per device and class.
	defaultMaxTracked = 256
)

func init() {
	Register(NameTracker, func(Deps) worker.Transform { return newTracker(defaultMaxTracked) })
}

type trackedClass struct {
	boxes [][4]float32
	ids   []uuid.UUID
}

// tracker gives each detected box a stable ObjectIDs entry by matching it
// against the boxes seen earlier for the same device and class.
type tracker struct {
	mu         sync.Mutex
	maxTracked int
	devices    map[string]map[string]*trackedClass
}

func newTracker(maxTracked int) *tracker {
	return &tracker{maxTracked: maxTracked, devices: make(map[string]map[string]*trackedClass)}
}

var objectIDsKey = transcode.KeySet(keyObjectIDs)

func (t *tracker) Process(ex *worker.Exchange) ([]byte, error) {
	root, err := document.Parse(document.FormatMsgpack, ex.Payload)
	if err != nil {
		return nil, err
	}
	res, err := inference.ReadResults(root)
	if err != nil {
		return nil, err
	}
	device := deviceID(root)
	assigned := t.track(device, res.BBoxes)

	b := document.NewBuilder()
	if err := transcode.CopyMapExcluding(root, b, objectIDsKey); err != nil {
		return nil, err
	}
	b.String(keyObjectIDs)
	b.StartMap(len(res.BBoxes))
	for i, box := range res.BBoxes {
		b.String(box.Class)
		b.StartArray(len(assigned[i]))
		for _, id := range assigned[i] {
			b.Binary(id[:])
		}
		b.FinishArray()
	}
	b.FinishMap()
	b.CompleteMap()
	return b.Encode(document.FormatMsgpack)
}

func deviceID(root document.Value) string {
	v := root.Lookup(keyDeviceID)
	if s, err := v.Str(); err == nil {
		return s
	}
	if v.IsMissing() {
		return ""
	}
	return v.String()
}

// track returns the ids for each box of each class, in input order.
func (t *tracker) track(device string, classes []inference.BBox) [][]uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	cache, ok := t.devices[device]
	if !ok {
		cache = make(map[string]*trackedClass)
		t.devices[device] = cache
	}

	out := make([][]uuid.UUID, len(classes))
	for i, class := range classes {
		tc, ok := cache[class.Class]
		if !ok {
			tc = &trackedClass{}
			cache[class.Class] = tc
		}
		out[i] = tc.match(splitBoxes(class.Coordinates), t.maxTracked)
		logs.Tracef("transforms.tracker device=%q class=%s boxes=%d tracked=%d", device, class.Class, len(out[i]), len(tc.ids))
	}
	return out
}

func splitBoxes(coords []float32) [][4]float32 {
	boxes := make([][4]float32, len(coords)/4)
	for i := range boxes {
		copy(boxes[i][:], coords[i*4:])
	}
	return boxes
}

type overlap struct {
	iou      float64
	old, new int
}

// match pairs new boxes with remembered ones, highest overlap first.
// Matched boxes take the remembered id and update its position; the rest
// get a fresh id and are remembered, dropping the oldest past maxTracked.
func (tc *trackedClass) match(boxes [][4]float32, maxTracked int) []uuid.UUID {
	var pairs []overlap
	for n, box := range boxes {
		for o, old := range tc.boxes {
			if iou := boxIOU(old, box); iou > 0 {
				pairs = append(pairs, overlap{iou: iou, old: o, new: n})
			}
		}
	}
	slices.SortStableFunc(pairs, func(a, b overlap) int { return cmp.Compare(b.iou, a.iou) })

	ids := make([]uuid.UUID, len(boxes))
	oldUsed := make([]bool, len(tc.boxes))
	newUsed := make([]bool, len(boxes))
	for _, p := range pairs {
		if oldUsed[p.old] || newUsed[p.new] {
			continue
		}
		oldUsed[p.old], newUsed[p.new] = true, true
		tc.boxes[p.old] = boxes[p.new]
		ids[p.new] = tc.ids[p.old]
	}

	for n := range boxes {
		if newUsed[n] {
			continue
		}
		ids[n] = uuid.New()
		tc.boxes = append(tc.boxes, boxes[n])
		tc.ids = append(tc.ids, ids[n])
	}
	if maxTracked > 0 && len(tc.ids) > maxTracked {
		drop := len(tc.ids) - maxTracked
		tc.boxes = slices.Delete(tc.boxes, 0, drop)
		tc.ids = slices.Delete(tc.ids, 0, drop)
	}
	return ids
}

// boxIOU treats coordinates as inclusive pixels, so boxes sharing an edge
// column or row overlap.
func boxIOU(a, b [4]float32) float64 {
	xA := max(a[0], b[0])
	yA := max(a[1], b[1])
	xB := min(a[2], b[2])
	yB := min(a[3], b[3])

	inter := float64(max(0, xB-xA+1)) * float64(max(0, yB-yA+1))
	areaA := float64(a[2]-a[0]+1) * float64(a[3]-a[1]+1)
	areaB := float64(b[2]-b[0]+1) * float64(b[3]-b[1]+1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
