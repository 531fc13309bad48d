package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"croesus/internal/cache"
	"croesus/internal/model"

	"github.com/rs/zerolog/log"
)

const milestoneStateKey = "milestones"

var milestoneNames = map[int64]string{
	1_000_000:     "One million",
	5_000_000:     "Five million",
	10_000_000:    "Ten million",
	50_000_000:    "50 million",
	100_000_000:   "100 million",
	500_000_000:   "500 million",
	1_000_000_000: "One billion",
	5_000_000_000: "Five billion",
}

type milestoneStat struct {
	name       string
	label      string
	thresholds []int64
	value      func(model.Summary) int64
}

// realtime is compared in whole days
var milestoneStats = []milestoneStat{
	{"games", "games played", []int64{500, 1000, 5000, 10000, 50000, 100000},
		func(s model.Summary) int64 { return s.Games }},
	{"ascend", "ascended games", []int64{50, 100, 200, 300, 400, 500},
		func(s model.Summary) int64 { return s.Ascend }},
	{"points", "nethack points scored", []int64{50_000_000, 100_000_000, 500_000_000, 1_000_000_000, 5_000_000_000},
		func(s model.Summary) int64 { return s.Points }},
	{"turns", "turns played", []int64{1_000_000, 5_000_000, 10_000_000, 50_000_000, 100_000_000},
		func(s model.Summary) int64 { return s.Turns }},
	{"realtime", "days spent playing nethack", []int64{50, 100, 500, 1000, 5000},
		func(s model.Summary) int64 { return s.RealTime / 86400 }},
}

type milestoneState struct {
	Summaries map[string]model.Summary `json:"summaries"`
	Totals    map[string]int64         `json:"totals"`
}

// Milestones sums the summaries nodes push and reports tournament-wide
// totals crossing a threshold. State is kept in a cache so a restarted
// master neither repeats nor misses milestones.
type Milestones struct {
	mu    sync.Mutex
	store cache.Cache
	state milestoneState
}

func NewMilestones(store cache.Cache, peers []string) *Milestones {
	m := &Milestones{
		store: store,
		state: milestoneState{
			Summaries: make(map[string]model.Summary, len(peers)),
			Totals:    make(map[string]int64, len(milestoneStats)),
		},
	}
	for _, p := range peers {
		m.state.Summaries[p] = model.Summary{}
	}
	return m
}

// Load restores saved state. Peers no longer configured are dropped.
func (m *Milestones) Load(ctx context.Context) {
	data, err := m.store.Get(ctx, milestoneStateKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load milestone state")
		return
	}

	var saved milestoneState
	if err := json.Unmarshal(data, &saved); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable milestone state")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for peer := range m.state.Summaries {
		if s, ok := saved.Summaries[peer]; ok {
			m.state.Summaries[peer] = s
		}
	}
	for k, v := range saved.Totals {
		m.state.Totals[k] = v
	}
	log.Info().Int("peers", len(saved.Summaries)).Msg("Loaded milestone state")
}

// Observe records peer's latest summary and returns the milestones the
// new totals crossed. Nothing is reported on a peer's first contact, since
// its games may already have been counted before a restart.
func (m *Milestones) Observe(ctx context.Context, peer string, s model.Summary) []string {
	m.mu.Lock()
	prev, known := m.state.Summaries[peer]
	if !known {
		m.mu.Unlock()
		log.Warn().Str("peer", peer).Msg("Summary from unexpected peer ignored")
		return nil
	}
	firstContact := prev.Games == 0
	m.state.Summaries[peer] = s

	var total model.Summary
	for _, ps := range m.state.Summaries {
		total.Add(ps)
	}

	var out []string
	for _, stat := range milestoneStats {
		t := stat.value(total)
		before := m.state.Totals[stat.name]
		if !firstContact && before != 0 {
			for _, threshold := range stat.thresholds {
				if before < threshold && t >= threshold {
					out = append(out, fmt.Sprintf("TOURNAMENT MILESTONE: %s %s.", milestoneName(threshold), stat.label))
				}
			}
		}
		m.state.Totals[stat.name] = t
	}

	data, err := json.Marshal(m.state)
	m.mu.Unlock()

	if err == nil {
		err = m.store.Set(ctx, milestoneStateKey, data, 0)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to save milestone state")
	}
	return out
}

func milestoneName(n int64) string {
	if name, ok := milestoneNames[n]; ok {
		return name
	}
	return fmt.Sprint(n)
}

// checkMilestones is the summary push handler
func (r *Relay) checkMilestones(ctx context.Context, peer, payload string) {
	var s model.Summary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		log.Warn().Err(err).Str("peer", peer).Msg("Undecodable summary dropped")
		return
	}
	for _, line := range r.milestones.Observe(ctx, peer, s) {
		r.announce(ctx, line, false)
	}
}
