package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/store"
	"github.com/verte-zerg/electmap/internal/swing"
	"github.com/verte-zerg/electmap/internal/workspace"
)

const wideExport = "\ufeffMETA,Alpha:#ff0000,Beta:#0000ff\n" +
	"Province_ID,District_ID,P_01,P_02\n" +
	"PR1,D1,30,70\n" +
	"PR1,D2,50,10\n" +
	"PR2,D3,0,0\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	dir := t.TempDir()
	ws, err := workspace.Open(filepath.Join(dir, "ws"))
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	journal, err := store.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() {
		_ = journal.Close()
	})
	svc := election.New(ws, election.WithJournal(journal), election.WithLogger(quietLogger()))
	if _, err := svc.Import(context.Background(), strings.NewReader(wideExport)); err != nil {
		t.Fatalf("import: %v", err)
	}
	opts.Logger = quietLogger()
	return New(svc, opts).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func seats(t *testing.T, h http.Handler) map[string]int {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/api/results", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("results: status %d", rec.Code)
	}
	res := decode[resultsResponse](t, rec)
	out := make(map[string]int, len(res.Parties))
	for _, p := range res.Parties {
		out[p.PartyID] = p.Seats
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestResults(t *testing.T) {
	h := newTestServer(t, Options{Title: "Test Map", LockTotal: true})
	rec := do(t, h, http.MethodGet, "/api/results", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	res := decode[resultsResponse](t, rec)
	if res.Title != "Test Map" || res.StrokeWidth != DefaultStrokeWidth {
		t.Fatalf("unexpected presentation: %q %v", res.Title, res.StrokeWidth)
	}
	var ids, winners []string
	for _, d := range res.Districts {
		ids = append(ids, d.DistrictID)
		winners = append(winners, d.WinnerName)
	}
	if diff := cmp.Diff([]string{"D1", "D2", "D3"}, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Beta", "Alpha", "No Data"}, winners); diff != "" {
		t.Fatalf("winners mismatch (-want +got):\n%s", diff)
	}
	want := []partyJSON{
		{PartyID: "P_01", Name: "Alpha", Color: "#ff0000", Seats: 1},
		{PartyID: "P_02", Name: "Beta", Color: "#0000ff", Seats: 1},
	}
	if diff := cmp.Diff(want, res.Parties); diff != "" {
		t.Fatalf("parties mismatch (-want +got):\n%s", diff)
	}
	if res.TotalSeats != 2 {
		t.Fatalf("expected 2 seats, got %d", res.TotalSeats)
	}
}

func TestDistrict(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodGet, "/api/district/D1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[districtResponse](t, rec)
	want := districtResponse{
		Info: districtInfoJSON{ID: "D1", ProvinceID: "PR1", Name: "D1", Type: "FPTP", Seats: 1},
		Votes: []voteJSON{
			{PartyID: "P_02", Name: "Beta", Count: 70},
			{PartyID: "P_01", Name: "Alpha", Count: 30},
		},
		Total: 100,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("district mismatch (-want +got):\n%s", diff)
	}
}

func TestDistrictNotFound(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodGet, "/api/district/D99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Error != "Not Found" || !strings.Contains(got.Message, "D99") {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestUpdateDistrictAcceptsStrings(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodPost, "/api/district/update",
		`{"district_id":"D2","seats":"3","votes":{"P_01":"5","P_02":40}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[election.UpdateResult](t, rec); !got.Updated {
		t.Fatalf("expected update")
	}
	if diff := cmp.Diff(map[string]int{"P_01": 0, "P_02": 4}, seats(t, h)); diff != "" {
		t.Fatalf("seats mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateDistrictMissingIsNotUpdated(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodPost, "/api/district/update", `{"district_id":"D99","votes":{"P_01":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[election.UpdateResult](t, rec); got.Updated {
		t.Fatalf("expected no update")
	}
}

func TestUpdateDistrictRejectsBadInput(t *testing.T) {
	h := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "non numeric vote", body: `{"district_id":"D1","votes":{"P_01":"many"}}`},
		{name: "negative seats", body: `{"district_id":"D1","seats":-1}`},
		{name: "missing id", body: `{"votes":{"P_01":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/district/update", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSwingUsesDefaultLockTotal(t *testing.T) {
	h := newTestServer(t, Options{LockTotal: true})
	rec := do(t, h, http.MethodPost, "/api/swing", `{"district_ids":["D1"],"party_id":"P_01","percent":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[swingResponse](t, rec)
	want := swingResponse{
		Mutated: true,
		Changed: []swing.Change{{DistrictID: "D1", Delta: 10, Before: 30, After: 40}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("swing mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/api/district/D1", "")
	if d := decode[districtResponse](t, rec); d.Total != 100 {
		t.Fatalf("expected conserved total, got %d", d.Total)
	}
}

func TestSwingAcceptsStringPercent(t *testing.T) {
	h := newTestServer(t, Options{LockTotal: true})
	rec := do(t, h, http.MethodPost, "/api/swing", `{"district_ids":["D1"],"party_id":"P_01","percent":"30%"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff(map[string]int{"P_01": 2, "P_02": 0}, seats(t, h)); diff != "" {
		t.Fatalf("seats mismatch (-want +got):\n%s", diff)
	}
}

func TestSwingNoChangeReportsEmpty(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodPost, "/api/swing", `{"district_ids":["D99"],"party_id":"P_01","percent":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"changed":[]`) {
		t.Fatalf("expected empty changed list, got %s", rec.Body.String())
	}
}

func TestSwingValidation(t *testing.T) {
	h := newTestServer(t, Options{})
	for _, body := range []string{
		`{"district_ids":["D1"],"party_id":"P_01"}`,
		`{"district_ids":["D1"],"party_id":"P_01","percent":"lots"}`,
		`{"district_ids":["D1"],"party_id":"P_09","percent":5}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/swing", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestImportMultipart(t *testing.T) {
	h := newTestServer(t, Options{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("csv_file", "export.csv")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	export := "META,Red:#ff0000\nProvince_ID,District_ID,P_01\nPR1,X1,4\n"
	if _, err := part.Write([]byte(export)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	want := election.ImportSummary{Parties: 1, Districts: 1, Rows: 1}
	if diff := cmp.Diff(want, decode[election.ImportSummary](t, rec)); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"P_01": 1}, seats(t, h)); diff != "" {
		t.Fatalf("seats mismatch (-want +got):\n%s", diff)
	}
}

func TestImportRawBodyErrors(t *testing.T) {
	h := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("not,an,export\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/import", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
	if diff := cmp.Diff(map[string]int{"P_01": 1, "P_02": 1}, seats(t, h)); diff != "" {
		t.Fatalf("failed import changed the workspace (-want +got):\n%s", diff)
	}
}

func TestHistoryAndTimeline(t *testing.T) {
	h := newTestServer(t, Options{LockTotal: true})
	if rec := do(t, h, http.MethodPost, "/api/swing", `{"district_ids":["D1"],"party_id":"P_01","percent":30}`); rec.Code != http.StatusOK {
		t.Fatalf("swing: %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/history?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ops := decode[[]operationJSON](t, rec)
	if len(ops) != 1 || ops[0].Kind != "swing" || ops[0].Changed != 1 {
		t.Fatalf("unexpected history %+v", ops)
	}
	var params map[string]any
	if err := json.Unmarshal(ops[0].Params, &params); err != nil || params["party_id"] != "P_01" {
		t.Fatalf("unexpected params %s: %v", ops[0].Params, err)
	}

	rec = do(t, h, http.MethodGet, "/api/parties/P_01/timeline", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []int
	for _, p := range decode[[]seatPointJSON](t, rec) {
		got = append(got, p.Seats)
	}
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Fatalf("timeline mismatch (-want +got):\n%s", diff)
	}

	if rec := do(t, h, http.MethodGet, "/api/history?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}
