// Package names generates playful display names for new scans.
package names

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Strategy identifies how a name was built.
type Strategy int

const (
	StrategyTemplate Strategy = iota
	StrategyAdjectiveNoun
	StrategyFunPhrase
	StrategyDated
)

var strategyNames = map[string]Strategy{
	"template":       StrategyTemplate,
	"adjective_noun": StrategyAdjectiveNoun,
	"fun_phrase":     StrategyFunPhrase,
	"dated":          StrategyDated,
}

// ParseStrategy maps a style name such as "fun_phrase" to its Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st, ok := strategyNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown name style %q", s)
	}
	return st, nil
}

var (
	templates = []string{
		"Scan-tastic",
		"Paper Trail",
		"Doc & Roll",
		"Scan Master",
		"Sheet Storm",
		"Page Turner",
		"Pixel Perfect",
		"Quick Capture",
		"Paper Chase",
	}

	adjectives = []string{
		"Mighty", "Cosmic", "Turbo", "Supreme", "Ultra",
		"Epic", "Legendary", "Mystical", "Golden", "Royal",
		"Radical", "Awesome", "Stellar", "Fantastic", "Brilliant",
		"Magnificent", "Spectacular", "Phenomenal", "Incredible", "Marvelous",
	}

	nouns = []string{
		"Document", "Papers", "Files", "Pages", "Sheets",
		"Records", "Forms", "Notes", "Receipts", "Contracts",
		"Reports", "Letters", "Bills", "Tickets", "Certificates",
	}

	funPhrases = []string{
		"The Scanpocalypse",
		"Digitize This!",
		"Scan-o-Rama",
		"Paper Patrol",
		"Scan Squad",
		"Doc Block",
		"Sheet Happens",
		"Scan Solo",
		"The Document-ary",
		"Scan-demonium",
	}

	datedPrefixes = []string{"Epic", "Super", "Mega", "Ultra"}
)

const (
	shortDateLayout = "Jan 02"
	longDateLayout  = "Jan 02, 2006"
)

// Generator picks names from fixed catalogs. Names are not unique.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithClock sets the clock used by dated names.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a Generator seeded from the runtime's random source.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a name built by one of the four strategies, chosen uniformly.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.build(Strategy(g.rng.IntN(4)))
}

// GenerateWithDate returns Generate() followed by " (Jan 02, 2006)".
func (g *Generator) GenerateWithDate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	base := g.build(Strategy(g.rng.IntN(4)))
	return base + " (" + g.now().Format(longDateLayout) + ")"
}

// GenerateWith builds a name with a specific strategy.
func (g *Generator) GenerateWith(s Strategy) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.build(s)
}

func (g *Generator) build(s Strategy) string {
	switch s {
	case StrategyTemplate:
		return g.pick(templates)
	case StrategyAdjectiveNoun:
		return g.pick(adjectives) + " " + g.pick(nouns)
	case StrategyFunPhrase:
		return g.pick(funPhrases)
	default:
		return g.pick(datedPrefixes) + " Scan - " + g.now().Format(shortDateLayout)
	}
}

func (g *Generator) pick(from []string) string {
	return from[g.rng.IntN(len(from))]
}
