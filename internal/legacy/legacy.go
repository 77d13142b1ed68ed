// Package legacy converts the single-table wide export into the three
// workspace tables.
package legacy

import (
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/workspace"
)

const minDataCells = 3

// ReadWide parses a wide export, tolerating a leading byte-order mark.
func ReadWide(r io.Reader) (model.Dataset, error) {
	rows, err := workspace.ReadRecords(r)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("%w: %v", model.ErrFormat, err)
	}
	return Normalize(rows)
}

// Normalize splits a wide table into parties, districts and votes.
//
// Row 0 carries "<name>:<color>" cells after a leading label cell; each one
// becomes a party with a sequential ID (P_01, P_02, ...). Row 1 is the column
// header. Every later row with at least three cells is province ID, district
// ID, then votes in the same order as the party cells.
func Normalize(rows [][]string) (model.Dataset, error) {
	if len(rows) < 2 {
		return model.Dataset{}, fmt.Errorf("%w: expected META and header rows, got %d row(s)", model.ErrFormat, len(rows))
	}

	var ds model.Dataset
	meta := rows[0]
	if len(meta) > 0 {
		meta = meta[1:]
	}
	for _, cell := range meta {
		name, hex, ok := strings.Cut(cell, ":")
		if !ok {
			continue
		}
		id := fmt.Sprintf("P_%02d", len(ds.Parties)+1)
		ds.Parties = append(ds.Parties, model.Party{
			ID:       id,
			Name:     strings.TrimSpace(name),
			Color:    strings.TrimSpace(hex),
			Alliance: model.DefaultAlliance,
		})
		ds.Votes.PartyIDs = append(ds.Votes.PartyIDs, id)
	}

	for _, row := range rows[2:] {
		if len(row) < minDataCells {
			continue
		}
		provinceID := strings.TrimSpace(row[0])
		districtID := strings.TrimSpace(row[1])
		ds.Districts = append(ds.Districts, model.District{
			ID:         districtID,
			ProvinceID: provinceID,
			Name:       districtID,
			Type:       model.DefaultDistrictType,
			Seats:      model.DefaultSeats,
		})
		cells := make(map[string]string, len(ds.Votes.PartyIDs))
		for i, raw := range row[2:] {
			if i >= len(ds.Votes.PartyIDs) {
				break
			}
			cells[ds.Votes.PartyIDs[i]] = raw
		}
		ds.Votes.Rows = append(ds.Votes.Rows, model.VoteRow{DistrictID: districtID, Cells: cells})
	}
	return ds, nil
}
