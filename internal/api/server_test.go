package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgarprofiles/engine/internal/config"
	"github.com/edgarprofiles/engine/pkg/profile"
)

type fakeProfiles struct {
	docs  map[string]profile.Document
	edges map[string]profile.RelationshipEdge
}

func (f *fakeProfiles) GetProfile(cik string) (profile.Document, bool, error) {
	d, ok := f.docs[cik]
	return d, ok, nil
}

func (f *fakeProfiles) ListProfilesByQuality(maxGradeRank int, gradeRank func(grade string) int) ([]profile.Document, error) {
	var out []profile.Document
	for _, d := range f.docs {
		if gradeRank(d.Quality.Grade) <= maxGradeRank {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeProfiles) GetEdge(key string) (profile.RelationshipEdge, bool, error) {
	e, ok := f.edges[key]
	return e, ok, nil
}

type fakeFailures struct {
	recs map[string]profile.FailureRecord
}

func (f *fakeFailures) GetFailure(ticker string) (profile.FailureRecord, bool, error) {
	r, ok := f.recs[ticker]
	return r, ok, nil
}

func (f *fakeFailures) ListFailures() ([]profile.FailureRecord, error) {
	var out []profile.FailureRecord
	for _, r := range f.recs {
		out = append(out, r)
	}
	return out, nil
}

type fakeResolver struct {
	ciks map[string]string
}

func (f *fakeResolver) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	if cik, ok := f.ciks[ticker]; ok {
		return cik, nil
	}
	return "", errors.New("unknown ticker")
}

func testServer() *Server {
	profiles := &fakeProfiles{
		docs: map[string]profile.Document{
			"0000320193": {CIK: "0000320193", CompanyInfo: profile.Company{Ticker: "AAPL", Name: "Apple Inc."}, Quality: profile.Quality{Grade: "A", Score: 90}},
		},
		edges: map[string]profile.RelationshipEdge{},
	}
	failures := &fakeFailures{recs: map[string]profile.FailureRecord{
		"BADCO": {Ticker: "BADCO", ReasonCode: profile.FailureNoFilings},
	}}
	resolver := &fakeResolver{ciks: map[string]string{"AAPL": "0000320193"}}

	cfg := &config.APIConfig{Host: "0.0.0.0", Port: 8090}
	return NewServer(cfg, profiles, failures, resolver, nil)
}

func TestHandleHealth(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}
}

func TestHandleGetProfileByTicker(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/AAPL", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}
}

func TestHandleGetProfileNotFound(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/NOPE", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleListProblematicDefaultsToAllGrades(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleGetFailure(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/failures/BADCO", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleBatchRoutesUnavailableWithoutController(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when no batch controller is configured", w.Code)
	}
}
