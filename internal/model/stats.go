package model

// Histogram dimensions of a StatBucket
const (
	DIM_ROLE   = "role"
	DIM_RACE   = "race"
	DIM_GENDER = "gender"
	DIM_ALIGN  = "align"
)

var Dimensions = []string{DIM_ROLE, DIM_RACE, DIM_GENDER, DIM_ALIGN}

// StatBucket holds the counters and histograms for one period. The JSON
// shape is what nodes exchange in stats replies.
type StatBucket struct {
	Games    int64 `json:"games" bson:"games"`
	Scum     int64 `json:"scum" bson:"scum"`
	Ascend   int64 `json:"ascend" bson:"ascend"`
	Turns    int64 `json:"turns" bson:"turns"`
	Points   int64 `json:"points" bson:"points"`
	RealTime int64 `json:"realtime" bson:"realtime"`

	Role   map[string]int64 `json:"role" bson:"role"`
	Race   map[string]int64 `json:"race" bson:"race"`
	Gender map[string]int64 `json:"gender" bson:"gender"`
	Align  map[string]int64 `json:"align" bson:"align"`
}

func NewStatBucket() StatBucket {
	return StatBucket{
		Role:   map[string]int64{},
		Race:   map[string]int64{},
		Gender: map[string]int64{},
		Align:  map[string]int64{},
	}
}

// Histogram returns the map for dim, or nil for an unknown dimension
func (b StatBucket) Histogram(dim string) map[string]int64 {
	switch dim {
	case DIM_ROLE:
		return b.Role
	case DIM_RACE:
		return b.Race
	case DIM_GENDER:
		return b.Gender
	case DIM_ALIGN:
		return b.Align
	}
	return nil
}

// NonScum is the number of games that count towards sums and histograms
func (b StatBucket) NonScum() int64 {
	return b.Games - b.Scum
}

func (b StatBucket) Clone() StatBucket {
	out := b
	out.Role = cloneCounts(b.Role)
	out.Race = cloneCounts(b.Race)
	out.Gender = cloneCounts(b.Gender)
	out.Align = cloneCounts(b.Align)
	return out
}

// Merge adds o into b
func (b *StatBucket) Merge(o StatBucket) {
	b.Games += o.Games
	b.Scum += o.Scum
	b.Ascend += o.Ascend
	b.Turns += o.Turns
	b.Points += o.Points
	b.RealTime += o.RealTime
	b.ensureMaps()
	for _, dim := range Dimensions {
		dst := b.Histogram(dim)
		for k, v := range o.Histogram(dim) {
			dst[k] += v
		}
	}
}

func (b StatBucket) Summary() Summary {
	return Summary{
		Games:    b.Games,
		Ascend:   b.Ascend,
		Points:   b.Points,
		Turns:    b.Turns,
		RealTime: b.RealTime,
	}
}

// ensureMaps makes a bucket decoded from a peer with missing histograms usable
func (b *StatBucket) ensureMaps() {
	if b.Role == nil {
		b.Role = map[string]int64{}
	}
	if b.Race == nil {
		b.Race = map[string]int64{}
	}
	if b.Gender == nil {
		b.Gender = map[string]int64{}
	}
	if b.Align == nil {
		b.Align = map[string]int64{}
	}
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
