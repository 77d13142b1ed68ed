// Package swing simulates vote swings toward a party across districts.
package swing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/verte-zerg/electmap/internal/model"
)

// Params describes one batch swing.
type Params struct {
	DistrictIDs []string
	PartyID     string
	// Rate is a fraction of each district's total vote; 0.10 moves 10%.
	Rate float64
	// LockTotal redistributes the opposite of the target's change across the
	// other parties so each district total is unchanged.
	LockTotal bool
}

// Change records the effect of a swing on one district.
type Change struct {
	DistrictID string `json:"district_id"`
	Delta      int    `json:"delta"`
	Before     int    `json:"before"`
	After      int    `json:"after"`
}

// Outcome reports what Apply did.
type Outcome struct {
	Changes []Change
}

// Mutated reports whether any district changed.
func (o Outcome) Mutated() bool {
	return len(o.Changes) > 0
}

// ChangedIDs lists the districts that changed, in table order.
func (o Outcome) ChangedIDs() []string {
	ids := make([]string, len(o.Changes))
	for i, c := range o.Changes {
		ids[i] = c.DistrictID
	}
	return ids
}

// ParsePercent converts a user-supplied percent into a swing rate.
func ParsePercent(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: percent %q is not a number", model.ErrValidation, raw)
	}
	return FromPercent(pct)
}

// FromPercent converts a percent value into a swing rate.
func FromPercent(pct float64) (float64, error) {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0, fmt.Errorf("%w: percent must be finite", model.ErrValidation)
	}
	return pct / 100, nil
}

// Validate checks the request against the table before anything is changed.
func (p Params) Validate(table model.VoteTable) error {
	if strings.TrimSpace(p.PartyID) == "" {
		return fmt.Errorf("%w: party id is required", model.ErrValidation)
	}
	if len(p.DistrictIDs) == 0 {
		return fmt.Errorf("%w: at least one district id is required", model.ErrValidation)
	}
	if math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0) {
		return fmt.Errorf("%w: swing rate must be finite", model.ErrValidation)
	}
	if !table.HasParty(p.PartyID) {
		return fmt.Errorf("%w: party %q has no vote column", model.ErrValidation, p.PartyID)
	}
	return nil
}

// Apply returns a copy of table with the swing applied to the targeted rows.
// Rows outside p.DistrictIDs are untouched, and districts with no votes or a
// zero delta after truncation are skipped.
func Apply(table model.VoteTable, p Params) (model.VoteTable, Outcome, error) {
	if err := p.Validate(table); err != nil {
		return table, Outcome{}, err
	}
	targets := make(map[string]struct{}, len(p.DistrictIDs))
	for _, id := range p.DistrictIDs {
		targets[id] = struct{}{}
	}

	out := table.Clone()
	var outcome Outcome
	for i := range out.Rows {
		row := &out.Rows[i]
		if _, ok := targets[row.DistrictID]; !ok {
			continue
		}
		if change, ok := swingRow(out, row, p); ok {
			outcome.Changes = append(outcome.Changes, change)
		}
	}
	if !outcome.Mutated() {
		return table, outcome, nil
	}
	return out, outcome, nil
}

func swingRow(table model.VoteTable, row *model.VoteRow, p Params) (Change, bool) {
	ids, counts, total := table.Counts(*row)
	if total == 0 {
		return Change{}, false
	}
	current := make(map[string]int, len(ids))
	for i, pid := range ids {
		current[pid] = counts[i]
	}
	target := current[p.PartyID]

	otherIDs := make([]string, 0, len(ids))
	otherTotal := 0
	for i, pid := range ids {
		if pid == p.PartyID {
			continue
		}
		otherIDs = append(otherIDs, pid)
		otherTotal += counts[i]
	}

	delta := int(float64(total) * p.Rate)
	if target+delta < 0 {
		delta = -target
	}
	if p.LockTotal && otherTotal > 0 && delta > otherTotal {
		delta = otherTotal
	}
	if delta == 0 {
		return Change{}, false
	}

	row.Cells[p.PartyID] = strconv.Itoa(target + delta)
	if p.LockTotal && otherTotal > 0 {
		next := redistribute(otherIDs, current, otherTotal, -delta)
		for _, pid := range otherIDs {
			if next[pid] != current[pid] {
				row.Cells[pid] = strconv.Itoa(next[pid])
			}
		}
	}
	return Change{DistrictID: row.DistrictID, Delta: delta, Before: target, After: target + delta}, true
}

// redistribute spreads amount across ids in proportion to their current
// counts. Shares truncate toward zero and the last party takes the exact
// remainder. Counts are floored at zero; whatever a floor swallows is taken
// from the remaining parties in column order.
func redistribute(ids []string, current map[string]int, otherTotal, amount int) map[string]int {
	next := make(map[string]int, len(ids))
	distributed := 0
	residual := 0
	for i, pid := range ids {
		share := amount - distributed
		if i < len(ids)-1 {
			share = amount * current[pid] / otherTotal
		}
		distributed += share
		value := current[pid] + share
		if value < 0 {
			residual += value
			value = 0
		}
		next[pid] = value
	}
	for _, pid := range ids {
		if residual == 0 {
			break
		}
		take := next[pid]
		if take > -residual {
			take = -residual
		}
		next[pid] -= take
		residual += take
	}
	return next
}
