package model

import "testing"

func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12", 12, true},
		{" 7 ", 7, true},
		{"0", 0, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"1.5", 0, false},
		{"-3", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseCount(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseCount(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCountsSkipsAbsentAndMalformedCells(t *testing.T) {
	table := VoteTable{PartyIDs: []string{"P_01", "P_02", "P_03"}}
	row := VoteRow{DistrictID: "D1", Cells: map[string]string{"P_01": "10", "P_02": "x"}}
	ids, counts, total := table.Counts(row)
	if len(ids) != 1 || ids[0] != "P_01" || counts[0] != 10 {
		t.Fatalf("unexpected counts: %v %v", ids, counts)
	}
	if total != 10 {
		t.Fatalf("expected total 10, got %d", total)
	}
}

func TestCloneIsDeep(t *testing.T) {
	table := VoteTable{
		PartyIDs: []string{"A"},
		Rows:     []VoteRow{{DistrictID: "D1", Cells: map[string]string{"A": "1"}}},
	}
	clone := table.Clone()
	clone.Rows[0].Cells["A"] = "2"
	clone.PartyIDs[0] = "B"
	if table.Rows[0].Cells["A"] != "1" || table.PartyIDs[0] != "A" {
		t.Fatalf("clone shares state with original")
	}
	if clone.RowIndex("D1") != 0 || clone.RowIndex("D2") != -1 {
		t.Fatalf("unexpected row index")
	}
}
