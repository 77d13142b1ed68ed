// Package generator builds synthetic election exports in the legacy wide
// layout.
package generator

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/verte-zerg/electmap/internal/workspace"
)

// Default sizes for a generated export.
const (
	DefaultParties   = 5
	DefaultProvinces = 4
	DefaultDistricts = 24
	DefaultMaxVotes  = 50000
)

var partyNames = []string{
	"Harbor", "Granite", "Meadow", "Lantern", "Summit", "Orchard",
	"Compass", "Ember", "Tide", "Juniper", "Beacon", "Prairie",
}

// Options controls the shape of a generated export.
type Options struct {
	Parties   int
	Provinces int
	Districts int
	MaxVotes  int
	// BlankPct is the probability that a vote cell is left empty.
	BlankPct float64
	// Stronghold is the extra weight a province's favored party gets.
	Stronghold float64
}

// Generator produces randomized wide tables.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator with a fixed seed.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// NewRandom returns a Generator seeded with the current time.
func NewRandom() *Generator {
	return New(time.Now().UnixNano())
}

func (o Options) withDefaults() Options {
	if o.Parties <= 0 {
		o.Parties = DefaultParties
	}
	if o.Provinces <= 0 {
		o.Provinces = DefaultProvinces
	}
	if o.Districts <= 0 {
		o.Districts = DefaultDistricts
	}
	if o.MaxVotes <= 0 {
		o.MaxVotes = DefaultMaxVotes
	}
	if o.BlankPct < 0 {
		o.BlankPct = 0
	}
	if o.Stronghold < 0 {
		o.Stronghold = 0
	}
	return o
}

// Generate returns a META row, a header row and one row per district.
func (g *Generator) Generate(opts Options) [][]string {
	opts = opts.withDefaults()

	palette := colorful.FastHappyPaletteWithRand(opts.Parties, g.rnd)
	meta := []string{"META"}
	header := []string{"Province_ID", "District_ID"}
	for i := 0; i < opts.Parties; i++ {
		meta = append(meta, partyName(i)+":"+palette[i].Clamped().Hex())
		header = append(header, fmt.Sprintf("P_%02d", i+1))
	}

	favored := make([]int, opts.Provinces)
	for i := range favored {
		favored[i] = g.rnd.Intn(opts.Parties)
	}

	rows := [][]string{meta, header}
	for d := 0; d < opts.Districts; d++ {
		province := d % opts.Provinces
		row := []string{
			fmt.Sprintf("PR%02d", province+1),
			fmt.Sprintf("D%03d", d+1),
		}
		turnout := 1 + g.rnd.Intn(opts.MaxVotes)
		weights := g.weights(opts.Parties, favored[province], opts.Stronghold)
		for p := 0; p < opts.Parties; p++ {
			if opts.BlankPct > 0 && g.rnd.Float64() < opts.BlankPct {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.Itoa(int(float64(turnout)*weights[p])))
		}
		rows = append(rows, row)
	}
	return rows
}

// Write generates an export and writes it as CSV with a byte-order mark.
func (g *Generator) Write(w io.Writer, opts Options) error {
	if err := workspace.WriteRecords(w, g.Generate(opts)); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	return nil
}

// weights returns vote shares summing to at most 1, biased toward favored.
func (g *Generator) weights(n, favored int, stronghold float64) []float64 {
	weights := make([]float64, n)
	total := 0.0
	for i := range weights {
		w := 0.2 + g.rnd.Float64()
		if i == favored {
			w += stronghold
		}
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func partyName(i int) string {
	if i < len(partyNames) {
		return partyNames[i]
	}
	return fmt.Sprintf("%s %d", partyNames[i%len(partyNames)], i/len(partyNames)+1)
}
