package processor

import (
	"context"
	"fmt"
	"strings"

	"croesus/internal/config"
	"croesus/internal/xlog"
)

// LivelogProcessor reports in-game events
type LivelogProcessor struct{}

func (LivelogProcessor) Kind() string { return config.SourceLivelog }

func (LivelogProcessor) Name() string { return "livelog" }

func (LivelogProcessor) Process(_ context.Context, in Input) ([]string, StatusError) {
	line, ok := FormatEvent(in.Record)
	if !ok {
		return nil, NewSkippedError("unreported event")
	}
	return []string{line}, nil
}

// FormatEvent renders one livelog event; ok is false for event types that
// are not announced
func FormatEvent(ev xlog.Record) (string, bool) {
	player := ev.Str("player")
	if charname := ev.Str("charname"); charname != "" {
		switch {
		case player == "":
			player = charname
		case player != charname:
			player = charname + " (" + player + ")"
		}
	}

	who := fmt.Sprintf("%s (%s %s %s %s) ", player, ev.Str("role"), ev.Str("race"), ev.Str("gender"), ev.Str("align"))
	turns, _ := ev.Lookup("turns")

	var what string
	switch {
	case ev.Has("message"):
		what = fmt.Sprintf("%s, on T:%s", ev.Str("message"), turns)
	case ev.Has("historic_event"):
		what = fmt.Sprintf("%s, on T:%s", strings.TrimSuffix(ev.Str("historic_event"), "."), turns)
	case ev.Has("wish"):
		what = fmt.Sprintf("wished for \"%s\", on T:%s", ev.Str("wish"), turns)
	case ev.Has("shout"):
		what = fmt.Sprintf("shouted \"%s\", on T:%s", ev.Str("shout"), turns)
	case ev.Has("bones_killed"):
		rank := ev.Str("bones_rank")
		if rank == "" {
			rank = ev.Str("bones_role")
		}
		what = fmt.Sprintf("killed the %s of %s, the former %s, on T:%s", ev.Str("bones_monst"), ev.Str("bones_killed"), rank, turns)
	case ev.Has("killed_uniq"):
		what = fmt.Sprintf("killed %s, on T:%s", ev.Str("killed_uniq"), turns)
	case ev.Has("defeated"):
		what = fmt.Sprintf("defeated %s, on T:%s", ev.Str("defeated"), turns)
	case ev.Has("genocided_monster"):
		scope := "dungeon wide"
		if wide, ok := ev.Lookup("dungeon_wide"); ok && wide != "yes" {
			scope = "locally"
		}
		what = fmt.Sprintf("genocided %s %s on T:%s", ev.Str("genocided_monster"), scope, turns)
	case ev.Has("shoplifted"):
		what = fmt.Sprintf("stole %s zorkmids of merchandise from the %s of %s on T:%s", ev.Str("shoplifted"), ev.Str("shop"), ev.Str("shopkeeper"), turns)
	case ev.Has("killed_shopkeeper"):
		what = fmt.Sprintf("killed %s on T:%s", ev.Str("killed_shopkeeper"), turns)
	default:
		return "", false
	}
	return who + what, true
}
