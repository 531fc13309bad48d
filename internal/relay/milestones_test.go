package relay

import (
	"context"
	"strings"
	"testing"

	"croesus/internal/cache"
	"croesus/internal/model"
)

func TestMilestonesCrossing(t *testing.T) {
	ctx := context.Background()
	m := NewMilestones(cache.NewMemoryCache(), []string{"eu", "us"})

	if got := m.Observe(ctx, "eu", model.Summary{Games: 400}); len(got) != 0 {
		t.Fatalf("first contact announced %q", got)
	}
	if got := m.Observe(ctx, "us", model.Summary{Games: 50}); len(got) != 0 {
		t.Fatalf("first contact announced %q", got)
	}

	got := m.Observe(ctx, "eu", model.Summary{Games: 460, Turns: 2_000_000})
	want := []string{"TOURNAMENT MILESTONE: 500 games played."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("milestones = %q, want %q", got, want)
	}

	// the same total again crosses nothing
	if got := m.Observe(ctx, "eu", model.Summary{Games: 460, Turns: 2_000_000}); len(got) != 0 {
		t.Fatalf("repeated milestones %q", got)
	}
	if got := m.Observe(ctx, "mallory", model.Summary{Games: 1_000_000}); got != nil {
		t.Fatalf("unknown peer produced %q", got)
	}
}

func TestMilestonesSeveralAtOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMilestones(cache.NewMemoryCache(), []string{"eu"})

	m.Observe(ctx, "eu", model.Summary{Games: 10, Turns: 900_000, RealTime: 49 * 86400})
	got := m.Observe(ctx, "eu", model.Summary{Games: 20, Turns: 5_500_000, RealTime: 51 * 86400})
	want := []string{
		"TOURNAMENT MILESTONE: One million turns played.",
		"TOURNAMENT MILESTONE: Five million turns played.",
		"TOURNAMENT MILESTONE: 50 days spent playing nethack.",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("milestones = %q, want %q", got, want)
	}
}

func TestMilestonesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()

	m := NewMilestones(store, []string{"eu", "us"})
	m.Observe(ctx, "eu", model.Summary{Games: 460})
	m.Observe(ctx, "us", model.Summary{Games: 50})

	restarted := NewMilestones(store, []string{"eu", "us"})
	restarted.Load(ctx)
	got := restarted.Observe(ctx, "us", model.Summary{Games: 540})
	want := []string{"TOURNAMENT MILESTONE: 1000 games played."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("milestones after restart = %q, want %q", got, want)
	}
}
