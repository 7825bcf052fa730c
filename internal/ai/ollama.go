// Package ai implements the optional local LLM analyzer (spec §9 Open
// Questions): disabled by default, and when enabled, produces a
// narrative summary the aggregator attaches to a profile's
// ai_analysis key. The engine never blocks profile persistence on
// this package — a failed or slow analysis degrades to a missing key,
// never a failed run.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// Analyzer talks to a local Ollama instance to produce a qualitative
// summary of an already-aggregated profile.
type Analyzer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewAnalyzer builds an Analyzer against baseURL (e.g.
// "http://localhost:11434") using model (e.g. "llama3").
func NewAnalyzer(baseURL, model string) *Analyzer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &Analyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Ping reports whether the Ollama server is reachable, used by the CLI
// to warn the operator before a batch run if ai.enabled is set but the
// server is down.
func (a *Analyzer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("ai: ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai: ollama returned status %d", resp.StatusCode)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Analyze sends a compact summary of doc's computed metrics and
// extractor output to the local model and returns the narrative it
// produces, keyed for direct assignment to Document.AIAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, doc *profile.Document) (map[string]any, error) {
	body := chatRequest{
		Model:  a.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: summarize(doc)},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai: ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ai: ollama HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ai: decode response: %w", err)
	}

	return map[string]any{
		"model":   a.model,
		"summary": strings.TrimSpace(result.Message.Content),
	}, nil
}

const systemPrompt = "You are a financial analyst. Given structured metrics from a company's SEC filings, " +
	"write a concise 3-5 sentence qualitative summary. Do not invent figures not present in the input."

func summarize(doc *profile.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s (%s)\n", doc.CompanyInfo.Name, doc.CompanyInfo.Ticker)
	fmt.Fprintf(&b, "Quality grade: %s (score %.1f)\n", doc.Quality.Grade, doc.Quality.Score)
	fmt.Fprintf(&b, "Health: %s (overall %.1f)\n", doc.HealthIndicators.Grade, doc.HealthIndicators.Overall)
	for metric, v := range doc.LatestFinancials {
		fmt.Fprintf(&b, "%s: %.0f\n", metric, v)
	}
	if doc.MaterialEvents.Available {
		fmt.Fprintf(&b, "8-K filings in window: %d, recent 90-day: %d, risk flags: %v\n",
			doc.MaterialEvents.TotalCount, doc.MaterialEvents.Recent90Day, doc.MaterialEvents.RiskFlags)
	}
	if doc.InsiderTrading.Available {
		fmt.Fprintf(&b, "insider records: %d\n", len(doc.InsiderTrading.Insiders))
	}
	return b.String()
}
