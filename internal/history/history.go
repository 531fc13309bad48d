// Package history keeps per-player game counts, last game and ascension
// dump links, and ascension breakdowns.
package history

import (
	"sync"

	"croesus/internal/model"
)

// Ascensions is one player's ascension breakdown
type Ascensions struct {
	Total  int64            `json:"total"`
	Role   map[string]int64 `json:"role"`
	Race   map[string]int64 `json:"race"`
	Gender map[string]int64 `json:"gender"`
	Align  map[string]int64 `json:"align"`
}

type History struct {
	mu         sync.RWMutex
	allGames   map[string]int64
	lastGame   map[string]string
	lastAsc    map[string]string
	ascensions map[string]*Ascensions
	latestGame string
	latestAsc  string
}

func New() *History {
	h := &History{}
	h.Clear()
	return h
}

// Clear empties every table
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allGames = make(map[string]int64)
	h.lastGame = make(map[string]string)
	h.lastAsc = make(map[string]string)
	h.ascensions = make(map[string]*Ascensions)
	h.latestGame = ""
	h.latestAsc = ""
}

// Record counts a finished game, scummed ones included, and remembers its
// dump link
func (h *History) Record(g model.Game, dumpURL string) {
	player := g.Player()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.allGames[player]++
	h.lastGame[player] = dumpURL
	h.latestGame = dumpURL

	if !g.Ascended() {
		return
	}
	h.lastAsc[player] = dumpURL
	h.latestAsc = dumpURL

	a, ok := h.ascensions[player]
	if !ok {
		a = &Ascensions{
			Role:   map[string]int64{},
			Race:   map[string]int64{},
			Gender: map[string]int64{},
			Align:  map[string]int64{},
		}
		h.ascensions[player] = a
	}
	a.Total++
	a.Role[g.Role]++
	a.Race[g.Race]++
	a.Gender[g.Gender]++
	a.Align[g.Align]++
}

// Games returns how many games player (lowercased) has finished
func (h *History) Games(player string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.allGames[player]
}

// LastGame returns the dump link of the player's last game, or of the last
// game anyone played when player is empty
func (h *History) LastGame(player string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if player == "" {
		return h.latestGame, h.latestGame != ""
	}
	url, ok := h.lastGame[player]
	return url, ok
}

func (h *History) LastAscension(player string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if player == "" {
		return h.latestAsc, h.latestAsc != ""
	}
	url, ok := h.lastAsc[player]
	return url, ok
}

// Ascensions returns a copy of the player's ascension breakdown
func (h *History) Ascensions(player string) (Ascensions, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.ascensions[player]
	if !ok {
		return Ascensions{}, false
	}
	return Ascensions{
		Total:  a.Total,
		Role:   copyCounts(a.Role),
		Race:   copyCounts(a.Race),
		Gender: copyCounts(a.Gender),
		Align:  copyCounts(a.Align),
	}, true
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
