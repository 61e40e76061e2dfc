package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var (
	moods = []string{
		"cozy", "sleepy", "jolly", "fuzzy", "sparkly", "calm", "brave", "merry", "silly", "gentle",
		"golden", "velvet", "misty", "sunny", "quiet", "lucky", "bouncy", "swift", "mellow", "breezy",
	}
	snacks = []string{
		"popcorn", "nachos", "pretzel", "toffee", "waffle", "muffin", "cocoa", "churro", "mochi", "crumble",
		"fudge", "taffy", "biscuit", "dumpling", "samosa", "brownie", "sorbet", "praline", "scone", "pudding",
	}
	scenes = []string{
		"matinee", "premiere", "encore", "montage", "sequel", "trailer", "finale", "cameo", "reel", "marquee",
		"balcony", "curtain", "spotlight", "intermission", "credits", "prologue", "epilogue", "flashback", "closeup", "stunt",
	}
	critters = []string{
		"otter", "panda", "koala", "fox", "hedgehog", "owl", "penguin", "narwhal", "badger", "lynx",
		"heron", "gecko", "walrus", "puffin", "marmot", "tapir", "axolotl", "quokka", "ferret", "wombat",
	}
)

// NewID returns a random, memorable room ID such as
// "cozy-popcorn-matinee-otter". Rooms come into existence on first join, so
// any unused ID works.
func NewID() string {
	words := make([]string, 0, 4)
	for _, list := range [][]string{moods, snacks, scenes, critters} {
		words = append(words, list[randomIndex(len(list))])
	}
	return strings.Join(words, "-")
}

// randomIndex returns a cryptographically secure random index below n.
func randomIndex(n int) int {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("room: failed to read random bytes: " + err.Error())
	}
	return int(i.Int64())
}
