package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgarprofiles/engine/pkg/profile"
)

func TestPingSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "llama3")
	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
}

func TestPingUnreachable(t *testing.T) {
	a := NewAnalyzer("http://127.0.0.1:1", "llama3")
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail against an unreachable server")
	}
}

func TestPingNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "llama3")
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail on a non-200 response")
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if req.Model != "llama3" {
			t.Errorf("request model = %q, want llama3", req.Model)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages (system + user), got %d", len(req.Messages))
		}

		resp := chatResponse{
			Message: chatMessage{Role: "assistant", Content: "  Apple looks healthy.  "},
			Done:    true,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "llama3")
	doc := &profile.Document{
		CompanyInfo: profile.Company{Name: "Apple Inc.", Ticker: "AAPL"},
		Quality:     profile.Quality{Grade: "A", Score: 91},
	}

	result, err := a.Analyze(context.Background(), doc)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result["model"] != "llama3" {
		t.Errorf("result[model] = %v, want llama3", result["model"])
	}
	if result["summary"] != "Apple looks healthy." {
		t.Errorf("result[summary] = %q, want trimmed summary text", result["summary"])
	}
}

func TestAnalyzeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not loaded"))
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "llama3")
	doc := &profile.Document{CompanyInfo: profile.Company{Name: "Apple Inc.", Ticker: "AAPL"}}

	if _, err := a.Analyze(context.Background(), doc); err == nil {
		t.Fatal("expected Analyze to return an error on a non-200 response")
	}
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	a := NewAnalyzer(srv.URL, "llama3")
	doc := &profile.Document{CompanyInfo: profile.Company{Name: "Apple Inc.", Ticker: "AAPL"}}

	if _, err := a.Analyze(context.Background(), doc); err == nil {
		t.Fatal("expected Analyze to return an error on malformed JSON")
	}
}

func TestNewAnalyzerDefaults(t *testing.T) {
	a := NewAnalyzer("", "")
	if a.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default", a.baseURL)
	}
	if a.model != "llama3" {
		t.Errorf("model = %q, want default llama3", a.model)
	}
}
