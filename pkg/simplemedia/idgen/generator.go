// Package idgen provides the opaque id strategies. Generated ids only use
// [a-zA-Z0-9_-] and never start with "http", so they can never be mistaken
// for a path, a blob name or a remote URL.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
)

// Strategy names accepted by New
const (
	StrategyHash          = "hash"
	StrategyShortID       = "shortid"
	StrategySillyID       = "sillyid"
	StrategyHumanReadable = "human-readable"
	StrategyBronze        = "bronze"

	DefaultStrategy = StrategySillyID
)

// Generator produces candidate ids. Candidates may collide; callers check
// uniqueness.
type Generator interface {
	Generate(hash string) string
}

// New returns the generator for strategy. An empty strategy selects the default.
func New(strategy string) (Generator, error) {
	switch strategy {
	case StrategyHash:
		return HashGenerator{}, nil
	case StrategyShortID:
		g, err := NewShortIDGenerator()
		if err != nil {
			return nil, err
		}
		return g, nil
	case StrategySillyID, "":
		return SillyIDGenerator{}, nil
	case StrategyHumanReadable:
		return HumanReadableGenerator{}, nil
	case StrategyBronze:
		return NewBronzeGenerator(), nil
	}
	return nil, fmt.Errorf("unknown id generation strategy %q", strategy)
}

// Strategies lists the accepted strategy names.
func Strategies() []string {
	return []string{StrategyHash, StrategyShortID, StrategySillyID, StrategyHumanReadable, StrategyBronze}
}

// HashGenerator uses the content hash itself.
type HashGenerator struct{}

func (HashGenerator) Generate(hash string) string { return hash }

// ShortIDGenerator produces 9 character alphanumeric codes.
type ShortIDGenerator struct {
	gen *password.Generator
}

func NewShortIDGenerator() (*ShortIDGenerator, error) {
	gen, err := password.NewGenerator(&password.GeneratorInput{Symbols: "-_"})
	if err != nil {
		return nil, fmt.Errorf("create shortid generator: %w", err)
	}
	return &ShortIDGenerator{gen: gen}, nil
}

func (g *ShortIDGenerator) Generate(hash string) string {
	for {
		id, err := g.gen.Generate(9, 2, 1, false, true)
		if err != nil {
			return hash
		}
		if safe(id) {
			return id
		}
	}
}

// SillyIDGenerator produces CamelCase phrases such as "BraveGentleOtter".
type SillyIDGenerator struct{}

func (SillyIDGenerator) Generate(string) string {
	return capitalize(pick(adjectives)) + capitalize(pick(adjectives)) + capitalize(pick(animals))
}

// HumanReadableGenerator produces phrases such as "brave-otter-42".
type HumanReadableGenerator struct{}

func (HumanReadableGenerator) Generate(string) string {
	return pick(adjectives) + "-" + pick(animals) + "-" + strconv.Itoa(randInt(100))
}

// BronzeGenerator produces time ordered ids: base36 milliseconds, a per
// process sequence and a node tag.
type BronzeGenerator struct {
	node string
	seq  atomic.Uint32
	now  func() time.Time
}

func NewBronzeGenerator() *BronzeGenerator {
	id := uuid.New()
	return &BronzeGenerator{
		node: fmt.Sprintf("%08x", binary.BigEndian.Uint32(id[:4])),
		now:  time.Now,
	}
}

func (g *BronzeGenerator) Generate(string) string {
	ms := g.now().UnixMilli()
	seq := g.seq.Add(1)
	return strconv.FormatInt(ms, 36) + "-" + strconv.FormatUint(uint64(seq), 36) + "-" + g.node
}

func safe(id string) bool {
	return id != "" && !strings.HasPrefix(strings.ToLower(id), "http")
}

func pick(words []string) string {
	return words[randInt(len(words))]
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(v.Int64())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
