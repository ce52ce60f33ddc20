package chat

import (
	"fmt"
	"hash/fnv"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "gentle", "brave", "calm", "swift", "silent",
	"noisy", "bouncy", "fuzzy", "plucky", "merry", "peppy", "curious", "quiet", "witty", "mellow",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"raccoon", "beaver", "seahorse", "dolphin", "whale", "narwhal", "penguin", "flamingo", "pelican", "sparrow",
	"robin", "toucan", "parrot", "canary", "owl", "lynx", "badger", "gecko", "lemur", "walrus",
}

// Nickname maps a client id to a stable, readable alias like "sleepy-otter".
// The same id always yields the same alias so both sides of a chat can refer
// to a stranger without exposing the raw id.
func Nickname(id string) string {
	if id == "" {
		return "stranger"
	}

	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()

	adj := adjectives[sum%uint32(len(adjectives))]
	animal := animals[(sum/uint32(len(adjectives)))%uint32(len(animals))]
	return fmt.Sprintf("%s-%s", adj, animal)
}
