package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// Stat periods
	PERIOD_HOUR = "hour"
	PERIOD_DAY  = "day"
	PERIOD_FULL = "full"

	// Games with fewer turns than this are batched instead of reported
	SHORT_GAME_TURNS = 100

	// Quits and escapes scoring less than this are scum
	SCUM_POINTS = 1000
)

// Game is the typed view of a finished game from an xlogfile record
type Game struct {
	Name     string `json:"name" bson:"name"`
	Charname string `json:"charname,omitempty" bson:"charname,omitempty"`
	Role     string `json:"role" bson:"role"`
	Race     string `json:"race" bson:"race"`
	Gender   string `json:"gender" bson:"gender"`
	Align    string `json:"align" bson:"align"`
	Death    string `json:"death" bson:"death"`
	While    string `json:"while,omitempty" bson:"while,omitempty"`
	Mode     string `json:"mode,omitempty" bson:"mode,omitempty"`

	Points    int64 `json:"points" bson:"points"`
	Turns     int64 `json:"turns" bson:"turns"`
	RealTime  int64 `json:"realtime" bson:"realtime"`
	StartTime int64 `json:"starttime" bson:"starttime"`
	EndTime   int64 `json:"endtime" bson:"endtime"`
}

// Player is the key every per-player table is indexed by
func (g Game) Player() string {
	return strings.ToLower(g.Name)
}

func (g Game) Ascended() bool {
	return strings.HasPrefix(g.Death, "ascended")
}

// Scummed reports whether the game was abandoned early (quit or escaped
// with fewer than SCUM_POINTS points)
func (g Game) Scummed() bool {
	death := strings.ToLower(g.Death)
	return (death == "quit" || death == "escaped") && g.Points < SCUM_POINTS
}

func (g Game) Short() bool {
	return g.Turns < SHORT_GAME_TURNS
}

func (g Game) Ended() time.Time {
	return time.Unix(g.EndTime, 0).UTC()
}

// Streak is a run of consecutive ascensions, bounded by game timestamps
type Streak struct {
	Start  int64 `json:"start"`
	End    int64 `json:"end"`
	Length int   `json:"length"`
}

// Summary is the full-bucket totals a node pushes to its masters
type Summary struct {
	Games    int64 `json:"games"`
	Ascend   int64 `json:"ascend"`
	Points   int64 `json:"points"`
	Turns    int64 `json:"turns"`
	RealTime int64 `json:"realtime"`
}

func (s *Summary) Add(o Summary) {
	s.Games += o.Games
	s.Ascend += o.Ascend
	s.Points += o.Points
	s.Turns += o.Turns
	s.RealTime += o.RealTime
}

// GameDocument is an archived game
type GameDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Server     string             `bson:"server"`
	Game       `bson:",inline"`
	Scum       bool      `bson:"scum"`
	DumpURL    string    `bson:"dump_url,omitempty"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// StatSnapshot is a stat bucket stored when a daily or final report goes out
type StatSnapshot struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Server   string             `bson:"server" json:"server"`
	Report   string             `bson:"report" json:"report"`
	Period   string             `bson:"period" json:"period"`
	Bucket   StatBucket         `bson:"bucket" json:"bucket"`
	TakenAt  time.Time          `bson:"taken_at" json:"taken_at"`
	Complete bool               `bson:"complete" json:"complete"`
}
