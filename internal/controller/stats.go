package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"croesus/internal/database"
	"croesus/internal/history"
	"croesus/internal/model"
	"croesus/internal/stats"
	"croesus/internal/streak"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownPeriod   = errors.New("unknown stats period")
	ErrArchiveDisabled = errors.New("game archive is not configured")
	ErrNotFound        = errors.New("not found")
)

// StatsController answers read-only questions about this node's games
type StatsController interface {
	// Stats returns a copy of the hour, day or full bucket
	Stats(period string) (model.StatBucket, error)

	// Streak returns a player's current and longest streaks
	Streak(player string) (current, longest model.Streak, err error)

	// TopStreaks lists up to n players by longest streak
	TopStreaks(n int) []streak.Entry

	// Ascensions returns a player's ascension breakdown and game count
	Ascensions(player string) (history.Ascensions, int64, error)

	// LastGame and LastAscension return dump links; an empty player means
	// anyone
	LastGame(player string) (string, error)
	LastAscension(player string) (string, error)

	// Distribution counts archived non-scum games since a time by field
	Distribution(ctx context.Context, field string, since time.Time) (map[string]int64, error)
}

type statsController struct {
	stats   *stats.Aggregator
	streaks *streak.Tracker
	history *history.History
	games   database.GameDatabase
}

// NewStats builds the controller over the relay's tables. games may be nil
// when no archive is configured.
func NewStats(agg *stats.Aggregator, streaks *streak.Tracker, hist *history.History, games database.GameDatabase) StatsController {
	return &statsController{
		stats:   agg,
		streaks: streaks,
		history: hist,
		games:   games,
	}
}

func (c *statsController) Stats(period string) (model.StatBucket, error) {
	switch period {
	case model.PERIOD_HOUR, model.PERIOD_DAY, model.PERIOD_FULL:
		return c.stats.Read(period, false), nil
	}
	return model.StatBucket{}, ErrUnknownPeriod
}

func (c *statsController) Streak(player string) (model.Streak, model.Streak, error) {
	current, longest := c.streaks.Get(strings.ToLower(player))
	if longest.Length == 0 {
		return current, longest, ErrNotFound
	}
	return current, longest, nil
}

func (c *statsController) TopStreaks(n int) []streak.Entry {
	return c.streaks.Top(n)
}

func (c *statsController) Ascensions(player string) (history.Ascensions, int64, error) {
	key := strings.ToLower(player)
	games := c.history.Games(key)
	asc, ok := c.history.Ascensions(key)
	if !ok {
		return history.Ascensions{}, games, ErrNotFound
	}
	return asc, games, nil
}

func (c *statsController) LastGame(player string) (string, error) {
	url, ok := c.history.LastGame(strings.ToLower(player))
	if !ok {
		return "", ErrNotFound
	}
	return url, nil
}

func (c *statsController) LastAscension(player string) (string, error) {
	url, ok := c.history.LastAscension(strings.ToLower(player))
	if !ok {
		return "", ErrNotFound
	}
	return url, nil
}

func (c *statsController) Distribution(ctx context.Context, field string, since time.Time) (map[string]int64, error) {
	if c.games == nil {
		return nil, ErrArchiveDisabled
	}
	counts, err := c.games.Distribution(ctx, field, since)
	if err != nil {
		log.Error().Err(err).
			Str("field", field).
			Time("since", since).
			Msg("Failed to get game distribution")
		return nil, err
	}
	return counts, nil
}
