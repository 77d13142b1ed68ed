package generator

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/verte-zerg/electmap/internal/color"
	"github.com/verte-zerg/electmap/internal/legacy"
	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/swing"
	"github.com/verte-zerg/electmap/internal/tally"
)

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	opts := Options{Parties: 3, Provinces: 2, Districts: 6}
	a := New(42).Generate(opts)
	b := New(42).Generate(opts)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different tables (-a +b):\n%s", diff)
	}
	c := New(43).Generate(opts)
	if cmp.Equal(a, c) {
		t.Fatalf("expected different seeds to differ")
	}
}

func TestGenerateShape(t *testing.T) {
	rows := New(1).Generate(Options{Parties: 4, Provinces: 3, Districts: 10})
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
	if len(rows[0]) != 5 || rows[0][0] != "META" {
		t.Fatalf("unexpected meta row: %v", rows[0])
	}
	for _, cell := range rows[0][1:] {
		name, hex, ok := strings.Cut(cell, ":")
		if !ok || name == "" || !color.Valid(hex) {
			t.Fatalf("unexpected party cell %q", cell)
		}
	}
	for i, row := range rows[2:] {
		if len(row) != 6 {
			t.Fatalf("row %d: expected 6 cells, got %d", i, len(row))
		}
		for _, cell := range row[2:] {
			if _, ok := model.ParseCount(cell); !ok {
				t.Fatalf("row %d: expected count, got %q", i, cell)
			}
		}
	}
}

func TestGenerateDefaults(t *testing.T) {
	rows := New(1).Generate(Options{})
	if len(rows) != DefaultDistricts+2 {
		t.Fatalf("expected %d rows, got %d", DefaultDistricts+2, len(rows))
	}
	if len(rows[0]) != DefaultParties+1 {
		t.Fatalf("expected %d meta cells, got %d", DefaultParties+1, len(rows[0]))
	}
}

func TestGenerateBlankCells(t *testing.T) {
	rows := New(3).Generate(Options{Parties: 3, Districts: 40, BlankPct: 1})
	for _, row := range rows[2:] {
		for _, cell := range row[2:] {
			if cell != "" {
				t.Fatalf("expected blank cells, got %q", cell)
			}
		}
	}
	ds, err := legacy.Normalize(rows)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	res := tally.AggregateDataset(ds)
	for _, id := range res.Order {
		if res.Districts[id].WinnerName != model.NoDataLabel {
			t.Fatalf("district %s: expected no data, got %+v", id, res.Districts[id])
		}
	}
}

func TestWriteRoundTripsThroughLegacyImport(t *testing.T) {
	var buf bytes.Buffer
	if err := New(9).Write(&buf, Options{Parties: 3, Districts: 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\ufeff")) {
		t.Fatalf("expected byte-order mark")
	}
	ds, err := legacy.ReadWide(&buf)
	if err != nil {
		t.Fatalf("read wide: %v", err)
	}
	if len(ds.Parties) != 3 || len(ds.Districts) != 5 || len(ds.Votes.Rows) != 5 {
		t.Fatalf("unexpected dataset sizes: %d parties, %d districts, %d rows",
			len(ds.Parties), len(ds.Districts), len(ds.Votes.Rows))
	}
}

// Every generated district is won by its first column with the largest count.
func TestAggregatedWinnerIsLargestColumn(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		rows := New(seed).Generate(Options{Parties: 4, Districts: 12, BlankPct: 0.1, Stronghold: 0.5})
		ds, err := legacy.Normalize(rows)
		if err != nil {
			t.Fatalf("seed %d: normalize: %v", seed, err)
		}
		res := tally.AggregateDataset(ds)
		for _, row := range rows[2:] {
			districtID := row[1]
			want := ""
			best := -1
			total := 0
			for i, cell := range row[2:] {
				n, ok := model.ParseCount(cell)
				if !ok {
					continue
				}
				total += n
				if n > best {
					best = n
					want = fmt.Sprintf("P_%02d", i+1)
				}
			}
			got := res.Districts[districtID]
			if total == 0 {
				if got.WinnerName != model.NoDataLabel {
					t.Fatalf("seed %d district %s: expected no data, got %+v", seed, districtID, got)
				}
				continue
			}
			if got.WinnerID != want {
				t.Fatalf("seed %d district %s: expected winner %s, got %s", seed, districtID, want, got.WinnerID)
			}
		}
		seats := 0
		for _, p := range res.Parties {
			seats += p.Seats
		}
		contested := 0
		for _, id := range res.Order {
			if res.Districts[id].Contested {
				contested++
			}
		}
		if seats != contested {
			t.Fatalf("seed %d: expected %d seats, got %d", seed, contested, seats)
		}
	}
}

func TestLockedSwingConservesGeneratedTotals(t *testing.T) {
	rows := New(11).Generate(Options{Parties: 5, Districts: 30})
	ds, err := legacy.Normalize(rows)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var ids []string
	for _, d := range ds.Districts {
		ids = append(ids, d.ID)
	}
	for _, pct := range []float64{-40, -5, 5, 25, 80} {
		rate, err := swing.FromPercent(pct)
		if err != nil {
			t.Fatalf("rate %v: %v", pct, err)
		}
		next, _, err := swing.Apply(ds.Votes, swing.Params{DistrictIDs: ids, PartyID: "P_02", Rate: rate, LockTotal: true})
		if err != nil {
			t.Fatalf("apply %v: %v", pct, err)
		}
		for i, row := range next.Rows {
			_, _, before := ds.Votes.Counts(ds.Votes.Rows[i])
			_, _, after := next.Counts(row)
			if before != after {
				t.Fatalf("pct %v district %s: total %d -> %d", pct, row.DistrictID, before, after)
			}
		}
	}
}
