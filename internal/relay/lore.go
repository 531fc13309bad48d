package relay

// Display order of ascension breakdowns
var (
	roleOrder   = []string{"Arc", "Bar", "Cav", "Hea", "Kni", "Mon", "Pri", "Rog", "Ran", "Sam", "Tou", "Val", "Wiz"}
	raceOrder   = []string{"Hum", "Elf", "Dwa", "Gno", "Orc"}
	alignOrder  = []string{"Law", "Neu", "Cha"}
	genderOrder = []string{"Mal", "Fem"}
)

// dungeons is indexed by the dnum field of a whereis record
var dungeons = []string{
	"The Dungeons of Doom",
	"Gehennom",
	"The Gnomish Mines",
	"The Quest",
	"Sokoban",
	"Fort Ludios",
	"DevTeam's Office",
	"Vlad's Tower",
	"The Elemental Planes",
}

func dungeonName(dnum int64) string {
	if dnum < 0 || int(dnum) >= len(dungeons) {
		return "an unknown dungeon"
	}
	return dungeons[dnum]
}
