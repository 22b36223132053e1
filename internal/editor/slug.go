package editor

import (
	"math/rand"
	"strings"
)

var (
	slugWords = []string{
		"apple", "banana", "cherry", "date", "elder", "fig", "grape", "honey",
		"kiwi", "lemon", "mango", "nectar", "olive", "peach", "quince", "rasp",
		"straw", "tangerine", "ugli", "vanilla", "water", "xigua", "yam", "zucchini",
	}
	slugColors = []string{"red", "blue", "green", "yellow", "purple"}
	slugNouns  = []string{"apple", "banana", "cherry", "date", "elder"}
)

// GenerateRouteID produces a memorable three-word slug for a new route.
// Slugs are identifiers for humans, not keys; the GUID stays authoritative.
func GenerateRouteID() string {
	return strings.Join([]string{
		slugWords[rand.Intn(len(slugWords))],
		slugColors[rand.Intn(len(slugColors))],
		slugNouns[rand.Intn(len(slugNouns))],
	}, "-")
}
