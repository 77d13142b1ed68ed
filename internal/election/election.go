// Package election exposes the workspace operations used by the CLI, the
// browser and the HTTP API: import, results, district detail, district update
// and batch swing.
package election

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/verte-zerg/electmap/internal/legacy"
	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/swing"
	"github.com/verte-zerg/electmap/internal/tally"
	"github.com/verte-zerg/electmap/internal/workspace"
)

// Journal records completed operations.
type Journal interface {
	RecordOperation(ctx context.Context, op model.Operation, seats []model.PartyTotal) (string, error)
	ListOperations(ctx context.Context, limit int) ([]model.Operation, error)
	SeatTimeline(ctx context.Context, partyID string) ([]model.SeatPoint, error)
}

// Service runs operations against one workspace.
type Service struct {
	ws      *workspace.Store
	journal Journal
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records every successful mutation in j.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithLogger sets the logger used for journal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Service over ws.
func New(ws *workspace.Store, opts ...Option) *Service {
	s := &Service{ws: ws, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	Parties   int `json:"parties"`
	Districts int `json:"districts"`
	Rows      int `json:"rows"`
}

// UpdateRequest edits one district. Nil Seats keeps the current value. Votes
// for parties without a column in the vote table are ignored.
type UpdateRequest struct {
	DistrictID string         `json:"district_id"`
	Seats      *int           `json:"seats,omitempty"`
	Votes      map[string]int `json:"votes"`
}

// UpdateResult reports whether a district was found and written.
type UpdateResult struct {
	Updated bool `json:"updated"`
}

// SwingRequest is a batch swing. Percent is a percentage, so "10" moves 10%
// of each district's votes; a trailing "%" is accepted.
type SwingRequest struct {
	DistrictIDs []string `json:"district_ids"`
	PartyID     string   `json:"party_id"`
	Percent     string   `json:"percent"`
	LockTotal   bool     `json:"lock_total"`
}

// SwingResult reports which districts a swing changed.
type SwingResult struct {
	Mutated bool           `json:"mutated"`
	Changes []swing.Change `json:"changes"`
}

// Import replaces the workspace with the tables derived from a wide export.
// A malformed export leaves the workspace untouched.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	if err := ctx.Err(); err != nil {
		return ImportSummary{}, err
	}
	ds, err := legacy.ReadWide(r)
	if err != nil {
		return ImportSummary{}, err
	}
	if err := s.ws.Save(ds); err != nil {
		return ImportSummary{}, fmt.Errorf("failed to save import: %w", err)
	}
	summary := ImportSummary{
		Parties:   len(ds.Parties),
		Districts: len(ds.Districts),
		Rows:      len(ds.Votes.Rows),
	}
	s.record(ctx, model.OpImport, summary, summary.Rows, ds)
	return summary, nil
}

// Dataset loads the current tables.
func (s *Service) Dataset(ctx context.Context) (model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return model.Dataset{}, err
	}
	ds, err := s.ws.Load()
	if err != nil {
		return model.Dataset{}, fmt.Errorf("failed to load workspace: %w", err)
	}
	return ds, nil
}

// Results aggregates the current tables.
func (s *Service) Results(ctx context.Context) (model.Results, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return model.Results{}, err
	}
	return tally.AggregateDataset(ds), nil
}

// District returns one district with its votes sorted by count, descending.
func (s *Service) District(ctx context.Context, districtID string) (model.DistrictDetail, error) {
	districtID = strings.TrimSpace(districtID)
	if districtID == "" {
		return model.DistrictDetail{}, fmt.Errorf("%w: district id is required", model.ErrValidation)
	}
	ds, err := s.Dataset(ctx)
	if err != nil {
		return model.DistrictDetail{}, err
	}
	return tally.Detail(ds, districtID)
}

// UpdateDistrict writes seats and votes for one district. A district missing
// from the district table is reported as not updated and nothing is written.
func (s *Service) UpdateDistrict(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}
	req.DistrictID = strings.TrimSpace(req.DistrictID)
	if req.DistrictID == "" {
		return UpdateResult{}, fmt.Errorf("%w: district id is required", model.ErrValidation)
	}
	if req.Seats != nil && *req.Seats < 0 {
		return UpdateResult{}, fmt.Errorf("%w: seats must not be negative", model.ErrValidation)
	}
	for pid, n := range req.Votes {
		if n < 0 {
			return UpdateResult{}, fmt.Errorf("%w: votes for %q must not be negative", model.ErrValidation, pid)
		}
	}

	var result UpdateResult
	var after model.Dataset
	err := s.ws.Update(func(ds *model.Dataset) error {
		idx := -1
		for i, d := range ds.Districts {
			if d.ID == req.DistrictID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return workspace.ErrSkipSave
		}
		if req.Seats != nil {
			ds.Districts[idx].Seats = *req.Seats
		}
		if row := ds.Votes.RowIndex(req.DistrictID); row >= 0 {
			cells := ds.Votes.Rows[row].Cells
			for pid, n := range req.Votes {
				if ds.Votes.HasParty(pid) {
					cells[pid] = strconv.Itoa(n)
				}
			}
		}
		result.Updated = true
		after = *ds
		return nil
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update district %s: %w", req.DistrictID, err)
	}
	if result.Updated {
		s.record(ctx, model.OpUpdate, req, 1, after)
	}
	return result, nil
}

// Swing applies a batch swing and saves the vote table if any district
// changed. Invalid requests fail before anything is written.
func (s *Service) Swing(ctx context.Context, req SwingRequest) (SwingResult, error) {
	if err := ctx.Err(); err != nil {
		return SwingResult{}, err
	}
	rate, err := swing.ParsePercent(req.Percent)
	if err != nil {
		return SwingResult{}, err
	}
	params := swing.Params{
		DistrictIDs: cleanIDs(req.DistrictIDs),
		PartyID:     strings.TrimSpace(req.PartyID),
		Rate:        rate,
		LockTotal:   req.LockTotal,
	}

	var result SwingResult
	var after model.Dataset
	err = s.ws.Update(func(ds *model.Dataset) error {
		next, outcome, err := swing.Apply(ds.Votes, params)
		if err != nil {
			return err
		}
		result.Changes = outcome.Changes
		if !outcome.Mutated() {
			return workspace.ErrSkipSave
		}
		result.Mutated = true
		ds.Votes = next
		after = *ds
		return nil
	})
	if err != nil {
		return SwingResult{}, fmt.Errorf("failed to apply swing: %w", err)
	}
	if result.Changes == nil {
		result.Changes = []swing.Change{}
	}
	if result.Mutated {
		s.record(ctx, model.OpSwing, req, len(result.Changes), after)
	}
	return result, nil
}

// History returns the most recent journaled operations, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]model.Operation, error) {
	if s.journal == nil {
		return nil, nil
	}
	ops, err := s.journal.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// SeatTimeline returns a party's journaled seat totals, oldest first.
func (s *Service) SeatTimeline(ctx context.Context, partyID string) ([]model.SeatPoint, error) {
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return nil, fmt.Errorf("%w: party id is required", model.ErrValidation)
	}
	if s.journal == nil {
		return nil, nil
	}
	points, err := s.journal.SeatTimeline(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seat timeline: %w", err)
	}
	return points, nil
}

// record journals a completed mutation. Failures are logged only; the
// workspace write has already happened.
func (s *Service) record(ctx context.Context, kind string, params any, changed int, ds model.Dataset) {
	if s.journal == nil {
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		s.logger.Warn("failed to encode operation params", "kind", kind, "error", err)
		raw = []byte("{}")
	}
	res := tally.AggregateDataset(ds)
	op := model.Operation{Kind: kind, Params: string(raw), Changed: changed}
	if _, err := s.journal.RecordOperation(ctx, op, res.Parties); err != nil {
		s.logger.Warn("failed to journal operation", "kind", kind, "error", err)
	}
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
