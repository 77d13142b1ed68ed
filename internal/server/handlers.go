package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/model"
	"github.com/verte-zerg/electmap/internal/swing"
)

type districtJSON struct {
	DistrictID string  `json:"district_id"`
	WinnerID   string  `json:"winner_id,omitempty"`
	WinnerName string  `json:"winner_name"`
	Ratio      float64 `json:"ratio"`
	Color      string  `json:"color"`
	Seats      int     `json:"seats"`
	TotalVotes int     `json:"total_votes"`
	Contested  bool    `json:"contested"`
}

type partyJSON struct {
	PartyID string `json:"party_id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	Seats   int    `json:"seats"`
}

type resultsResponse struct {
	Title       string         `json:"title"`
	StrokeWidth float64        `json:"stroke_width"`
	Districts   []districtJSON `json:"districts"`
	Parties     []partyJSON    `json:"parties"`
	TotalSeats  int            `json:"total_seats"`
}

type districtInfoJSON struct {
	ID         string `json:"id"`
	ProvinceID string `json:"province_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Seats      int    `json:"seats"`
}

type voteJSON struct {
	PartyID string `json:"party_id"`
	Name    string `json:"name"`
	Count   int    `json:"count"`
}

type districtResponse struct {
	Info  districtInfoJSON `json:"info"`
	Votes []voteJSON       `json:"votes"`
	Total int              `json:"total"`
}

// flexInt accepts a JSON number or a numeric string, as form-backed clients
// send counts as text.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s is not an integer", model.ErrValidation, string(data))
	}
	*n = flexInt(v)
	return nil
}

type updateRequest struct {
	DistrictID string             `json:"district_id"`
	Seats      *flexInt           `json:"seats"`
	Votes      map[string]flexInt `json:"votes"`
}

type swingRequest struct {
	DistrictIDs []string `json:"district_ids"`
	PartyID     string   `json:"party_id"`
	Percent     any      `json:"percent"`
	LockTotal   *bool    `json:"lock_total"`
}

type swingResponse struct {
	Mutated bool           `json:"mutated"`
	Changed []swing.Change `json:"changed"`
}

type operationJSON struct {
	ID         string          `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params"`
	Changed    int             `json:"changed"`
}

type seatPointJSON struct {
	OperationID string    `json:"operation_id"`
	RecordedAt  time.Time `json:"recorded_at"`
	Kind        string    `json:"kind"`
	Seats       int       `json:"seats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Results(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := resultsResponse{
		Title:       s.opts.Title,
		StrokeWidth: s.opts.StrokeWidth,
		Districts:   make([]districtJSON, 0, len(res.Order)),
		Parties:     make([]partyJSON, 0, len(res.Parties)),
	}
	for _, id := range res.Order {
		d := res.Districts[id]
		resp.Districts = append(resp.Districts, districtJSON{
			DistrictID: d.DistrictID,
			WinnerID:   d.WinnerID,
			WinnerName: d.WinnerName,
			Ratio:      d.Ratio,
			Color:      d.Color,
			Seats:      d.Seats,
			TotalVotes: d.TotalVotes,
			Contested:  d.Contested,
		})
	}
	for _, p := range res.Parties {
		resp.Parties = append(resp.Parties, partyJSON{PartyID: p.PartyID, Name: p.Name, Color: p.Color, Seats: p.Seats})
		resp.TotalSeats += p.Seats
	}
	JSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleDistrict(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.District(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d := detail.District
	resp := districtResponse{
		Info:  districtInfoJSON{ID: d.ID, ProvinceID: d.ProvinceID, Name: d.Name, Type: d.Type, Seats: d.Seats},
		Votes: make([]voteJSON, 0, len(detail.Votes)),
		Total: detail.Total,
	}
	for _, v := range detail.Votes {
		resp.Votes = append(resp.Votes, voteJSON{PartyID: v.PartyID, Name: v.Name, Count: v.Count})
	}
	JSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateDistrict(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if err := ParseJSONBody(r, &body); err != nil {
		s.fail(w, r, bodyError(err))
		return
	}
	req := election.UpdateRequest{DistrictID: body.DistrictID}
	if body.Seats != nil {
		seats := int(*body.Seats)
		req.Seats = &seats
	}
	if len(body.Votes) > 0 {
		req.Votes = make(map[string]int, len(body.Votes))
		for pid, n := range body.Votes {
			req.Votes[pid] = int(n)
		}
	}
	res, err := s.svc.UpdateDistrict(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, res)
}

func (s *Server) handleSwing(w http.ResponseWriter, r *http.Request) {
	var body swingRequest
	if err := ParseJSONBody(r, &body); err != nil {
		s.fail(w, r, bodyError(err))
		return
	}
	if body.Percent == nil {
		s.fail(w, r, fmt.Errorf("%w: percent is required", model.ErrValidation))
		return
	}
	lockTotal := s.opts.LockTotal
	if body.LockTotal != nil {
		lockTotal = *body.LockTotal
	}
	res, err := s.svc.Swing(r.Context(), election.SwingRequest{
		DistrictIDs: body.DistrictIDs,
		PartyID:     body.PartyID,
		Percent:     fmt.Sprint(body.Percent),
		LockTotal:   lockTotal,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, swingResponse{Mutated: res.Mutated, Changed: res.Changes})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	src, closeSrc, err := importSource(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer closeSrc()

	summary, err := s.svc.Import(r.Context(), src)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, summary)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(w, r, fmt.Errorf("%w: limit %q must be a non-negative integer", model.ErrValidation, raw))
			return
		}
		limit = n
	}
	ops, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]operationJSON, 0, len(ops))
	for _, op := range ops {
		params := json.RawMessage(op.Params)
		if !json.Valid(params) {
			params = json.RawMessage("null")
		}
		out = append(out, operationJSON{ID: op.ID, RecordedAt: op.RecordedAt, Kind: op.Kind, Params: params, Changed: op.Changed})
	}
	JSONResponse(w, http.StatusOK, out)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	points, err := s.svc.SeatTimeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]seatPointJSON, 0, len(points))
	for _, p := range points {
		out = append(out, seatPointJSON{OperationID: p.OperationID, RecordedAt: p.RecordedAt, Kind: p.Kind, Seats: p.Seats})
	}
	JSONResponse(w, http.StatusOK, out)
}

// importSource returns the uploaded csv_file part of a multipart form, or
// the raw body otherwise.
func importSource(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to read body: %v", model.ErrValidation, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil, fmt.Errorf("%w: empty import body", model.ErrValidation)
		}
		return bytes.NewReader(data), func() {}, nil
	}
	file, _, err := r.FormFile("csv_file")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: csv_file is required: %v", model.ErrValidation, err)
	}
	return file, func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort upload close.
			_ = cerr
		}
	}, nil
}

func bodyError(err error) error {
	if errors.Is(err, model.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: invalid JSON body: %v", model.ErrValidation, err)
}
