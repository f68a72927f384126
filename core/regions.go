package core

import "strings"

// NZRegions are the regional council areas of New Zealand.
var NZRegions = []string{
	"Northland",
	"Auckland",
	"Waikato",
	"Bay of Plenty",
	"Gisborne",
	"Hawke's Bay",
	"Taranaki",
	"Manawatū-Whanganui",
	"Wellington",
	"Tasman",
	"Nelson",
	"Marlborough",
	"West Coast",
	"Canterbury",
	"Otago",
	"Southland",
}

// NormalizeRegion returns the canonical spelling of region (case-insensitive, macrons optional), or "".
func NormalizeRegion(region string) string {
	key := regionKey(region)
	if key == "" {
		return ""
	}
	for _, r := range NZRegions {
		if regionKey(r) == key {
			return r
		}
	}
	return ""
}

func IsNZRegion(region string) bool { return NormalizeRegion(region) != "" }

func regionKey(s string) string {
	s = strings.ToLower(CleanString(s))
	return strings.NewReplacer("ū", "u", "ā", "a", "’", "'").Replace(s)
}
