package workspace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/verte-zerg/electmap/internal/model"
)

func sampleDataset() model.Dataset {
	return model.Dataset{
		Parties: []model.Party{
			{ID: "P_01", Name: "自由党", Color: "#3366CC", Alliance: "Default"},
			{ID: "P_02", Name: "Labour", Color: "#DC241F", Alliance: "Default"},
		},
		Districts: []model.District{
			{ID: "XJ-1", ProvinceID: "XJ", Name: "XJ-1", Type: "FPTP", Seats: 2},
			{ID: "XJ-2", ProvinceID: "XJ", Name: "XJ-2", Type: "FPTP", Seats: 0},
		},
		Votes: model.VoteTable{
			PartyIDs: []string{"P_01", "P_02"},
			Rows: []model.VoteRow{
				{DistrictID: "XJ-1", Cells: map[string]string{"P_01": "120", "P_02": "80"}},
				{DistrictID: "XJ-2", Cells: map[string]string{"P_01": "n/a", "P_02": "5"}},
			},
		},
	}
}

func TestOpenCreatesEmptyTables(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, name := range []string{PartiesTable, DistrictsTable, VotesTable} {
		data, err := os.ReadFile(filepath.Join(dir, name+".csv"))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.HasPrefix(data, byteOrderMark) {
			t.Fatalf("expected BOM in %s", name)
		}
	}
	ds, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Parties) != 0 || len(ds.Districts) != 0 || len(ds.Votes.Rows) != 0 {
		t.Fatalf("expected empty dataset, got %+v", ds)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := sampleDataset()
	if err := st.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dataset mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAcceptsLegacyHeadersWithoutBOM(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	parties := "Party_ID,Name_CN,Color,Alliance\nP_01,Green,#00ff00,Default\n"
	if err := os.WriteFile(filepath.Join(dir, "parties.csv"), []byte(parties), 0o644); err != nil {
		t.Fatalf("write parties: %v", err)
	}
	votes := "\xEF\xBB\xBFDistrict_ID,P_01,P_02\nD1,10\n"
	if err := os.WriteFile(filepath.Join(dir, "votes.csv"), []byte(votes), 0o644); err != nil {
		t.Fatalf("write votes: %v", err)
	}
	ds, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Parties) != 1 || ds.Parties[0].Name != "Green" {
		t.Fatalf("unexpected parties: %+v", ds.Parties)
	}
	if diff := cmp.Diff([]string{"P_01", "P_02"}, ds.Votes.PartyIDs); diff != "" {
		t.Fatalf("party columns mismatch:\n%s", diff)
	}
	if _, ok := ds.Votes.Rows[0].Cells["P_02"]; ok {
		t.Fatalf("short row should leave P_02 absent")
	}
}

func TestDecodeDistrictsDefaultsBadSeats(t *testing.T) {
	tbl := Table{
		Columns: districtColumns,
		Rows:    [][]string{{"D1", "P", "North", "FPTP", "many"}, {"D2", "P", "South", "FPTP", "3"}},
	}
	districts := decodeDistricts(tbl)
	if districts[0].Seats != model.DefaultSeats || districts[1].Seats != 3 {
		t.Fatalf("unexpected seats: %+v", districts)
	}
}

func TestUpdateErrorLeavesTablesUntouched(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(sampleDataset()); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(dir, "votes.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	boom := errors.New("boom")
	err = st.Update(func(ds *model.Dataset) error {
		ds.Votes.Rows[0].Cells["P_01"] = "0"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	after, err := os.ReadFile(filepath.Join(dir, "votes.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("votes table changed after failed update")
	}
}

func TestUpdateSkipSaveWritesNothing(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(sampleDataset()); err != nil {
		t.Fatalf("save: %v", err)
	}
	err = st.Update(func(ds *model.Dataset) error {
		ds.Votes.Rows[0].Cells["P_01"] = "0"
		return ErrSkipSave
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	ds, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Votes.Rows[0].Cells["P_01"] == "0" {
		t.Fatalf("skipped update was saved")
	}
}

func TestUpdateSerializesWriters(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(sampleDataset()); err != nil {
		t.Fatalf("save: %v", err)
	}
	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Update(func(ds *model.Dataset) error {
				n, _ := strconv.Atoi(ds.Votes.Rows[0].Cells["P_02"])
				ds.Votes.Rows[0].Cells["P_02"] = strconv.Itoa(n + 1)
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	ds, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ds.Votes.Rows[0].Cells["P_02"]; got != strconv.Itoa(80+writers) {
		t.Fatalf("expected %d, got %s", 80+writers, got)
	}
}

func TestReadRecordsStripsBOM(t *testing.T) {
	records, err := ReadRecords(strings.NewReader("\xEF\xBB\xBFa,b\n1\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if records[0][0] != "a" || len(records[1]) != 1 {
		t.Fatalf("unexpected records: %q", records)
	}
}
