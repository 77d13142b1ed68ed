// Package workspace persists the party, district and vote tables as CSV files
// in a workspace directory.
//
// Every mutation is a whole-table read-modify-write. Writers within one
// process are serialized by Store; separate processes sharing a directory can
// still lose updates.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/verte-zerg/electmap/internal/model"
)

// Table names.
const (
	PartiesTable   = "parties"
	DistrictsTable = "districts"
	VotesTable     = "votes"
)

// Column names.
const (
	ColPartyID    = "Party_ID"
	ColName       = "Name"
	ColLegacyName = "Name_CN"
	ColColor      = "Color"
	ColAlliance   = "Alliance"
	ColDistrictID = "District_ID"
	ColProvinceID = "Province_ID"
	ColType       = "Type"
	ColSeats      = "Seats"
)

var (
	partyColumns    = []string{ColPartyID, ColName, ColColor, ColAlliance}
	districtColumns = []string{ColDistrictID, ColProvinceID, ColName, ColType, ColSeats}
)

// Table is an ordered set of rows with named columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of the first matching column name, or -1.
func (t Table) Index(names ...string) int {
	for _, name := range names {
		for i, col := range t.Columns {
			if strings.TrimSpace(col) == name {
				return i
			}
		}
	}
	return -1
}

// Store is a workspace directory holding the three tables.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open prepares the workspace directory and creates empty tables that do not
// exist yet.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	s := &Store{dir: dir}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the workspace directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) init() error {
	empty := map[string][]string{
		PartiesTable:   partyColumns,
		DistrictsTable: districtColumns,
		VotesTable:     {ColDistrictID},
	}
	for _, name := range []string{PartiesTable, DistrictsTable, VotesTable} {
		path := s.path(name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := s.SaveTable(name, Table{Columns: empty[name]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// LoadTable reads one table. A missing file loads as an empty table.
func (s *Store) LoadTable(name string) (Table, error) {
	file, err := os.Open(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Table{}, nil
		}
		return Table{}, fmt.Errorf("failed to open %s table: %w", name, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only table.
			_ = cerr
		}
	}()
	records, err := ReadRecords(file)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read %s table: %w", name, err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Columns: records[0], Rows: records[1:]}, nil
}

// SaveTable replaces one table on disk, keeping the column order given.
func (s *Store) SaveTable(name string, t Table) error {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Columns)
	records = append(records, t.Rows...)

	tmpFile, err := os.CreateTemp(s.dir, name+"-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp %s table: %w", name, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()
	if err := WriteRecords(tmpFile, records); err != nil {
		return fmt.Errorf("failed to write %s table: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s table: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace %s table: %w", name, err)
	}
	return nil
}

// Load reads all three tables.
func (s *Store) Load() (model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes all three tables.
func (s *Store) Save(ds model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ds)
}

// ErrSkipSave may be returned by an Update callback to finish without
// writing. Update then returns nil.
var ErrSkipSave = errors.New("skip save")

// Update runs fn on a freshly loaded dataset and saves the result unless fn
// returns an error. Concurrent updates on the same Store run one at a time.
func (s *Store) Update(fn func(ds *model.Dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&ds); err != nil {
		if errors.Is(err, ErrSkipSave) {
			return nil
		}
		return err
	}
	return s.save(ds)
}

func (s *Store) load() (model.Dataset, error) {
	var ds model.Dataset
	parties, err := s.LoadTable(PartiesTable)
	if err != nil {
		return ds, err
	}
	districts, err := s.LoadTable(DistrictsTable)
	if err != nil {
		return ds, err
	}
	votes, err := s.LoadTable(VotesTable)
	if err != nil {
		return ds, err
	}
	ds.Parties = decodeParties(parties)
	ds.Districts = decodeDistricts(districts)
	ds.Votes = DecodeVotes(votes)
	return ds, nil
}

func (s *Store) save(ds model.Dataset) error {
	if err := s.SaveTable(PartiesTable, encodeParties(ds.Parties)); err != nil {
		return err
	}
	if err := s.SaveTable(DistrictsTable, encodeDistricts(ds.Districts)); err != nil {
		return err
	}
	return s.SaveTable(VotesTable, EncodeVotes(ds.Votes))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func decodeParties(t Table) []model.Party {
	id := t.Index(ColPartyID)
	name := t.Index(ColName, ColLegacyName)
	hex := t.Index(ColColor)
	alliance := t.Index(ColAlliance)
	parties := make([]model.Party, 0, len(t.Rows))
	for _, row := range t.Rows {
		pid := cell(row, id)
		if pid == "" {
			continue
		}
		parties = append(parties, model.Party{
			ID:       pid,
			Name:     cell(row, name),
			Color:    cell(row, hex),
			Alliance: cell(row, alliance),
		})
	}
	return parties
}

func encodeParties(parties []model.Party) Table {
	t := Table{Columns: partyColumns}
	for _, p := range parties {
		t.Rows = append(t.Rows, []string{p.ID, p.Name, p.Color, p.Alliance})
	}
	return t
}

func decodeDistricts(t Table) []model.District {
	id := t.Index(ColDistrictID)
	province := t.Index(ColProvinceID)
	name := t.Index(ColName)
	kind := t.Index(ColType)
	seatsIdx := t.Index(ColSeats)
	districts := make([]model.District, 0, len(t.Rows))
	for _, row := range t.Rows {
		did := cell(row, id)
		if did == "" {
			continue
		}
		seats, err := strconv.Atoi(cell(row, seatsIdx))
		if err != nil || seats < 0 {
			seats = model.DefaultSeats
		}
		districts = append(districts, model.District{
			ID:         did,
			ProvinceID: cell(row, province),
			Name:       cell(row, name),
			Type:       cell(row, kind),
			Seats:      seats,
		})
	}
	return districts
}

func encodeDistricts(districts []model.District) Table {
	t := Table{Columns: districtColumns}
	for _, d := range districts {
		t.Rows = append(t.Rows, []string{d.ID, d.ProvinceID, d.Name, d.Type, strconv.Itoa(d.Seats)})
	}
	return t
}

// DecodeVotes converts a raw votes table. Every column other than
// District_ID is a party ID; short rows leave trailing parties absent.
func DecodeVotes(t Table) model.VoteTable {
	var votes model.VoteTable
	idIdx := t.Index(ColDistrictID)
	if idIdx < 0 {
		idIdx = 0
	}
	partyIdx := make([]int, 0, len(t.Columns))
	for i, col := range t.Columns {
		col = strings.TrimSpace(col)
		if i == idIdx || col == "" {
			continue
		}
		votes.PartyIDs = append(votes.PartyIDs, col)
		partyIdx = append(partyIdx, i)
	}
	for _, row := range t.Rows {
		did := cell(row, idIdx)
		if did == "" {
			continue
		}
		cells := make(map[string]string, len(partyIdx))
		for j, idx := range partyIdx {
			if idx < len(row) {
				cells[votes.PartyIDs[j]] = row[idx]
			}
		}
		votes.Rows = append(votes.Rows, model.VoteRow{DistrictID: did, Cells: cells})
	}
	return votes
}

// EncodeVotes converts a vote table to District_ID followed by the party columns.
func EncodeVotes(votes model.VoteTable) Table {
	t := Table{Columns: append([]string{ColDistrictID}, votes.PartyIDs...)}
	for _, row := range votes.Rows {
		record := make([]string, 0, len(votes.PartyIDs)+1)
		record = append(record, row.DistrictID)
		for _, pid := range votes.PartyIDs {
			record = append(record, row.Cells[pid])
		}
		t.Rows = append(t.Rows, record)
	}
	return t
}
