package room

// palette assigned to room members. Each room owns a fresh pool.
var palette = []string{
	"#00FF00",
	"#0000FF",
	"#FFFF00",
	"#00FFFF",
	"#FF00FF",
	"#808080",
	"#A52A2A",
	"#5F9EA0",
	"#7FFF00",
	"#D2B48C",
	"#008080",
	"#FF6347",
	"#ADD8E6",
	"#000000",
}

type colorRef struct {
	color    string
	refCount int
}

func newColorPool() []colorRef {
	pool := make([]colorRef, len(palette))
	for i, c := range palette {
		pool[i] = colorRef{color: c}
	}
	return pool
}

// refColor picks the least-referenced color, preferring the first with
// zero references, and takes a reference on it. Ties go to the first
// encountered.
func refColor(pool []colorRef) string {
	minIdx := 0
	for i := range pool {
		if pool[i].refCount == 0 {
			minIdx = i
			break
		}
		if pool[i].refCount < pool[minIdx].refCount {
			minIdx = i
		}
	}
	pool[minIdx].refCount++
	return pool[minIdx].color
}

// unrefColor releases one reference on color.
func unrefColor(pool []colorRef, color string) {
	for i := range pool {
		if pool[i].color == color {
			pool[i].refCount--
		}
	}
}
