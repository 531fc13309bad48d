package streak

import (
	"fmt"
	"sync"

	"croesus/internal/model"
)

// Every this many consecutive short games a summary line goes out
const SHORT_GAME_SUMMARY_EVERY = 100

// ShortGames batches runs of games under model.SHORT_GAME_TURNS turns so
// they are not reported one by one.
type ShortGames struct {
	mu     sync.Mutex
	counts map[string]int
}

// Batch says what to do with one game's report line
type Batch struct {
	// Suppressed is set for short games, which are never reported on their own
	Suppressed bool
	// Summary is set on every SHORT_GAME_SUMMARY_EVERY-th short game in a run
	Summary string
	// Suffix is appended to the first full game after a run of short ones
	Suffix string
}

func NewShortGames() *ShortGames {
	return &ShortGames{counts: make(map[string]int)}
}

func (s *ShortGames) Track(g model.Game) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Short() {
		s.counts[g.Name]++
		n := s.counts[g.Name]
		b := Batch{Suppressed: true}
		if n%SHORT_GAME_SUMMARY_EVERY == 0 {
			b.Summary = fmt.Sprintf("%s has %d consecutive games less than %d turns.", g.Name, n, model.SHORT_GAME_TURNS)
		}
		return b
	}

	n, ok := s.counts[g.Name]
	if !ok {
		return Batch{}
	}
	delete(s.counts, g.Name)
	if n == 1 {
		return Batch{Suffix: " (and one other game not reported)"}
	}
	return Batch{Suffix: fmt.Sprintf(" (and %d other games not reported)", n)}
}

// Pending returns the length of the player's current short-game run
func (s *ShortGames) Pending(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}
