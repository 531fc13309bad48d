// Package streak tracks consecutive ascensions per player.
package streak

import (
	"sort"
	"sync"

	"croesus/internal/model"
)

type Tracker struct {
	mu      sync.Mutex
	current map[string]model.Streak
	longest map[string]model.Streak
}

func NewTracker() *Tracker {
	return &Tracker{
		current: make(map[string]model.Streak),
		longest: make(map[string]model.Streak),
	}
}

// Observe applies a finished game. An ascension extends the player's current
// streak (starting one at the game's start time if there is none); anything
// else ends it. Scummed games must not be passed in: they never break a
// streak.
func (t *Tracker) Observe(g model.Game) {
	player := g.Player()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !g.Ascended() {
		delete(t.current, player)
		return
	}

	cur, ok := t.current[player]
	if !ok {
		cur = model.Streak{Start: g.StartTime}
	}
	cur.End = g.EndTime
	cur.Length++
	t.current[player] = cur

	if cur.Length > t.longest[player].Length {
		t.longest[player] = cur
	}
}

// Get returns the current and longest streaks for player (lowercased).
// Zero-length streaks mean none.
func (t *Tracker) Get(player string) (current, longest model.Streak) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[player], t.longest[player]
}

// Entry is one player's streaks
type Entry struct {
	Player  string       `json:"player"`
	Current model.Streak `json:"current"`
	Longest model.Streak `json:"longest"`
}

// Top returns up to n players ordered by longest streak
func (t *Tracker) Top(n int) []Entry {
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.longest))
	for player, l := range t.longest {
		entries = append(entries, Entry{Player: player, Current: t.current[player], Longest: l})
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Longest.Length != entries[j].Longest.Length {
			return entries[i].Longest.Length > entries[j].Longest.Length
		}
		return entries[i].Player < entries[j].Player
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
