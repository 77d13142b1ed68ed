// Package model defines shared data structures.
package model

import "time"

// Party is a contesting party. Identity is ID; Name is presentation only.
type Party struct {
	ID       string
	Name     string
	Color    string
	Alliance string
}

// District is the smallest electoral unit. Seats == 0 marks a district where
// no election was held.
type District struct {
	ID         string
	ProvinceID string
	Name       string
	Type       string
	Seats      int
}

// VoteRow holds the raw vote cells of one district keyed by party ID.
// A party missing from Cells has no data for that district.
type VoteRow struct {
	DistrictID string
	Cells      map[string]string
}

// VoteTable is the wide vote table. PartyIDs is the column order after
// District_ID and is preserved on save.
type VoteTable struct {
	PartyIDs []string
	Rows     []VoteRow
}

// Dataset bundles the three workspace tables.
type Dataset struct {
	Parties   []Party
	Districts []District
	Votes     VoteTable
}

// DistrictResult is the derived outcome for one district.
type DistrictResult struct {
	DistrictID string
	WinnerID   string
	WinnerName string
	Ratio      float64
	Color      string
	Seats      int
	TotalVotes int
	Contested  bool
}

// PartyTotal is the aggregate seat count of one party.
type PartyTotal struct {
	PartyID string
	Name    string
	Color   string
	Seats   int
}

// Results is the output of one aggregation pass.
type Results struct {
	// Order lists district IDs in vote table row order.
	Order     []string
	Districts map[string]DistrictResult
	// Parties follows party table order.
	Parties []PartyTotal
	Seats   map[string]int
	Colors  map[string]string
}

// PartyVotes is one entry of a district vote breakdown.
type PartyVotes struct {
	PartyID string
	Name    string
	Count   int
}

// DistrictDetail is the single-district view used by editors.
type DistrictDetail struct {
	District District
	Votes    []PartyVotes
	Total    int
}

// Sentinel labels and colors used for districts without a winner.
const (
	NoDataLabel     = "No Data"
	NoElectionLabel = "No Election"
	NoContestColor  = "#dddddd"
	FallbackColor   = "#aaaaaa"
	MalformedColor  = "#808080"

	DefaultAlliance     = "Default"
	DefaultDistrictType = "FPTP"
	DefaultSeats        = 1
)

// Clone returns a deep copy of the vote table.
func (t VoteTable) Clone() VoteTable {
	out := VoteTable{
		PartyIDs: append([]string(nil), t.PartyIDs...),
		Rows:     make([]VoteRow, len(t.Rows)),
	}
	for i, row := range t.Rows {
		cells := make(map[string]string, len(row.Cells))
		for k, v := range row.Cells {
			cells[k] = v
		}
		out.Rows[i] = VoteRow{DistrictID: row.DistrictID, Cells: cells}
	}
	return out
}

// RowIndex returns the index of the row for districtID, or -1.
func (t VoteTable) RowIndex(districtID string) int {
	for i, row := range t.Rows {
		if row.DistrictID == districtID {
			return i
		}
	}
	return -1
}

// HasParty reports whether partyID is one of the table's columns.
func (t VoteTable) HasParty(partyID string) bool {
	for _, id := range t.PartyIDs {
		if id == partyID {
			return true
		}
	}
	return false
}

// Counts parses the numeric cells of a row in column order. Non-numeric and
// missing cells are skipped.
func (t VoteTable) Counts(row VoteRow) (ids []string, counts []int, total int) {
	for _, pid := range t.PartyIDs {
		cell, ok := row.Cells[pid]
		if !ok {
			continue
		}
		n, ok := ParseCount(cell)
		if !ok {
			continue
		}
		ids = append(ids, pid)
		counts = append(counts, n)
		total += n
	}
	return ids, counts, total
}

// FindDistrict returns the district with the given ID.
func (d Dataset) FindDistrict(id string) (District, bool) {
	for _, district := range d.Districts {
		if district.ID == id {
			return district, true
		}
	}
	return District{}, false
}

// PartyNames maps party IDs to display names.
func (d Dataset) PartyNames() map[string]string {
	names := make(map[string]string, len(d.Parties))
	for _, p := range d.Parties {
		names[p.ID] = p.Name
	}
	return names
}

// Operation kinds recorded in the journal.
const (
	OpImport = "import"
	OpUpdate = "update"
	OpSwing  = "swing"
)

// Operation is one journaled workspace mutation.
type Operation struct {
	ID         string
	RecordedAt time.Time
	Kind       string
	// Params is the JSON encoding of the request that caused the change.
	Params  string
	Changed int
}

// SeatPoint is a party's seat total after one operation.
type SeatPoint struct {
	OperationID string
	RecordedAt  time.Time
	Kind        string
	Seats       int
}
