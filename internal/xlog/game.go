package xlog

import "croesus/internal/model"

// Game extracts the fields every finished-game record carries
func (r Record) Game() model.Game {
	return model.Game{
		Name:      r.Str("name"),
		Charname:  r.Str("charname"),
		Role:      r.Str("role"),
		Race:      r.Str("race"),
		Gender:    r.Str("gender"),
		Align:     r.Str("align"),
		Death:     r.Str("death"),
		While:     r.Str("while"),
		Mode:      r.Str("mode"),
		Points:    r.Int("points"),
		Turns:     r.Int("turns"),
		RealTime:  r.Int("realtime"),
		StartTime: r.Int("starttime"),
		EndTime:   r.Int("endtime"),
	}
}
