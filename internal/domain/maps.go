package domain

// MapPool is the versus campaign rotation offered in the map vote.
var MapPool = []string{
	"c1_deadcenter",
	"c2_darkcarnival",
	"c3_swampfever",
	"c4_hardrain",
	"c5_parish",
	"c8_nomercy",
	"c13_coldstream",
}

func ValidMap(mapID string) bool {
	for _, m := range MapPool {
		if m == mapID {
			return true
		}
	}
	return false
}
