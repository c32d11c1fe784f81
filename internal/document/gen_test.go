package document

import (
	"math"

	"pgregory.net/rapid"
)

// genValue draws documents the msgpack codec reproduces exactly. Signed
// integers are always negative since non-negative ones read back unsigned.
func genValue(json bool) *rapid.Generator[Value] {
	return genDepth(json, 3)
}

func genScalar(json bool) *rapid.Generator[Value] {
	gens := []*rapid.Generator[Value]{
		rapid.Just(Nil()),
		rapid.Map(rapid.Bool(), Bool),
		rapid.Map(rapid.Uint64(), Uint),
		rapid.Map(rapid.Int64Range(math.MinInt64, -1), Int),
		rapid.Map(rapid.Float64().Filter(finite), Double),
		rapid.Map(rapid.StringN(0, 24, -1), String),
	}
	if !json {
		gens = append(gens,
			rapid.Map(rapid.Float32().Filter(func(f float32) bool { return finite(float64(f)) }), Float),
			rapid.Map(rapid.SliceOfN(rapid.Byte(), 0, 48), Binary),
		)
	}
	return rapid.OneOf(gens...)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func genDepth(json bool, depth int) *rapid.Generator[Value] {
	if depth == 0 {
		return genScalar(json)
	}
	child := genDepth(json, depth-1)
	return rapid.OneOf(
		genScalar(json),
		rapid.Map(rapid.SliceOfN(child, 0, 5), func(items []Value) Value {
			return Array(items...)
		}),
		rapid.Custom(func(t *rapid.T) Value {
			n := rapid.IntRange(0, 5).Draw(t, "pairs")
			entries := make([]Entry, 0, n)
			for i := 0; i < n; i++ {
				key := rapid.StringN(0, 12, -1).Draw(t, "key")
				entries = append(entries, Pair(key, child.Draw(t, "value")))
			}
			return Map(entries...)
		}),
	)
}
