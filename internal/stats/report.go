package stats

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"croesus/internal/model"
)

// An hourly report needs at least this many non-scum games
const MIN_HOURLY_GAMES = 10

// Hourly reports pick one histogram; role is the most interesting
var hourlyDimensionWeights = []struct {
	dim    string
	weight int
}{
	{model.DIM_ROLE, 5},
	{model.DIM_RACE, 3},
	{model.DIM_ALIGN, 2},
	{model.DIM_GENDER, 1},
}

var allDimensions = []string{model.DIM_ROLE, model.DIM_RACE, model.DIM_ALIGN, model.DIM_GENDER}

// FormatReport renders a stats report of the given presentation type. It
// returns nil when an hourly report has too few games to be worth sending.
// countdown is appended to every report except the final one.
func FormatReport(kind string, b model.StatBucket, now time.Time, countdown string, rng *rand.Rand) []string {
	if kind == TYPE_HOUR && b.NonScum() < MIN_HOURLY_GAMES {
		return nil
	}

	var msg strings.Builder
	msg.WriteString(reportHeader(kind, now.UTC()))
	fmt.Fprintf(&msg, "Games: %d, Asc: %d, Scum: %d. ", b.Games, b.Ascend, b.Scum)

	if b.Games != 0 {
		totals := []string{
			fmt.Sprintf("%d turns, %d points. ", b.Turns, b.Points),
			gametime(b.RealTime),
		}
		dims := allDimensions
		if kind == TYPE_HOUR {
			totals = []string{totals[rng.IntN(len(totals))]}
			dims = []string{pickDimension(rng)}
		}
		for _, t := range totals {
			msg.WriteString(t)
		}
		for _, dim := range dims {
			name, count, ok := topEntry(b.Histogram(dim))
			if !ok || b.NonScum() == 0 {
				continue
			}
			pct := int(math.Round(float64(count) * 100 / float64(b.NonScum())))
			fmt.Fprintf(&msg, "(%d%%%s), ", pct, name)
		}
	}

	if kind == TYPE_FULL {
		return []string{
			msg.String(),
			"We hope you enjoyed The November Nethack Tournament.",
			"Thank you for playing.",
		}
	}
	msg.WriteString(countdown)
	return []string{msg.String()}
}

func reportHeader(kind string, now time.Time) string {
	switch kind {
	case TYPE_HOUR:
		return now.Format("Hourly Stats at 2006-01-02 15:00 MST: ")
	case TYPE_DAY:
		return now.Format("DAILY STATS AT 2006-01-02 15:00 MST: ")
	case TYPE_FULL:
		return "FINAL TOURNAMENT STATISTICS: "
	}
	return now.Format("Current Day as of 2006-01-02 15:04 MST: ")
}

func gametime(seconds int64) string {
	d := seconds / 86400
	h := seconds / 3600 % 24
	m := seconds / 60 % 60
	return fmt.Sprintf("%dd %02d:%02d gametime. ", d, h, m)
}

func pickDimension(rng *rand.Rand) string {
	total := 0
	for _, w := range hourlyDimensionWeights {
		total += w.weight
	}
	n := rng.IntN(total)
	for _, w := range hourlyDimensionWeights {
		if n < w.weight {
			return w.dim
		}
		n -= w.weight
	}
	return model.DIM_ROLE
}

// topEntry returns the most common key; ties go to the alphabetically first
func topEntry(hist map[string]int64) (string, int64, bool) {
	if len(hist) == 0 {
		return "", 0, false
	}
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if hist[k] > hist[best] {
			best = k
		}
	}
	return best, hist[best], true
}
