// Package edgar implements the SEC EDGAR data client: company
// submissions, XBRL company facts, raw filing archive retrieval, CIK
// resolution, full-text search, and the Atom discovery feed. All
// requests are rate-limited and retried per SEC's published fair-access
// policy.
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edgarprofiles/engine/internal/parsers"
	"github.com/edgarprofiles/engine/pkg/profile"
)

const (
	dataBaseURL   = "https://data.sec.gov"
	wwwBaseURL    = "https://www.sec.gov"
	searchBaseURL = "https://efts.sec.gov/LATEST/search-index"
)

// NotFoundError indicates a terminal 404 from EDGAR: the resource does
// not exist and retrying will not help.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("edgar: not found: %s", e.URL) }

// Client is a rate-limited, retrying HTTP client for SEC EDGAR.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
	log        *zap.Logger
}

// Config configures a new Client.
type Config struct {
	UserAgent         string
	RequestsPerSecond int
	Burst             int
	MaxRetries        int
	RequestTimeout    time.Duration
}

// New builds a Client. RequestsPerSecond/Burst default to 10/10 (SEC's
// published limit) when unset.
func New(cfg Config, log *zap.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		userAgent:  cfg.UserAgent,
		maxRetries: maxRetries,
		log:        log,
	}
}

// do performs a GET with rate limiting, retry/backoff, and a hard
// per-request timeout. 404s are terminal and returned as *NotFoundError
// without retry.
func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if status == http.StatusNotFound {
			return nil, &NotFoundError{URL: url}
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("edgar: request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("edgar: HTTP %d for %s", resp.StatusCode, url)
	}
	return body, resp.StatusCode, nil
}

// GetSubmissions fetches a company's filing history and identity,
// following every files.filings continuation page until exhausted and
// concatenating the paginated arrays in the order EDGAR returns them
// (spec §4.A operation 1 pagination contract).
func (c *Client) GetSubmissions(ctx context.Context, cik string) (profile.Company, []profile.FilingReference, error) {
	cik = profile.PadCIK(cik)
	url := fmt.Sprintf("%s/submissions/CIK%s.json", dataBaseURL, cik)

	body, err := c.do(ctx, url)
	if err != nil {
		return profile.Company{}, nil, err
	}

	var sub submissionsResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		return profile.Company{}, nil, fmt.Errorf("edgar: parse submissions: %w", err)
	}

	ticker := ""
	if len(sub.Tickers) > 0 {
		ticker = sub.Tickers[0]
	}
	company := profile.Company{
		CIK:    profile.NormalizeCIK(sub.CIK),
		Ticker: ticker,
		Name:   sub.Name,
	}

	refs := buildReferences(cik, sub.Filings.Recent)

	for _, f := range sub.Filings.Files {
		pageURL := fmt.Sprintf("%s/submissions/%s", dataBaseURL, f.Name)
		pageBody, err := c.do(ctx, pageURL)
		if err != nil {
			return profile.Company{}, nil, fmt.Errorf("edgar: fetch submissions page %s: %w", f.Name, err)
		}

		var page recentFilingSet
		if err := json.Unmarshal(pageBody, &page); err != nil {
			return profile.Company{}, nil, fmt.Errorf("edgar: parse submissions page %s: %w", f.Name, err)
		}
		refs = append(refs, buildReferences(cik, page)...)
	}

	return company, refs, nil
}

func buildReferences(cik string, set recentFilingSet) []profile.FilingReference {
	refs := make([]profile.FilingReference, 0, len(set.AccessionNumber))
	for i := range set.AccessionNumber {
		ref := profile.FilingReference{
			CIK:        cik,
			Accession:  set.AccessionNumber[i],
			FormType:   profile.FormType(at(set.Form, i)),
			FiledDate:  at(set.FilingDate, i),
			ReportDate: at(set.ReportDate, i),
		}
		if i < len(set.PrimaryDocument) {
			ref.PrimaryDocumentPath = set.PrimaryDocument[i]
		}
		refs = append(refs, ref)
	}
	return refs
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// GetCompanyFacts fetches the raw XBRL company facts document and
// hands it to the XBRL facts parser (internal/parsers) for concept
// mapping. Some registrants (foreign private issuers, shell
// companies) file no XBRL facts at all; that 404 is not fatal.
func (c *Client) GetCompanyFacts(ctx context.Context, cik string) (profile.FinancialTimeSeries, error) {
	cik = profile.PadCIK(cik)
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", dataBaseURL, cik)

	body, err := c.do(ctx, url)
	if err != nil {
		if errors.As(err, new(*NotFoundError)) {
			return profile.FinancialTimeSeries{Available: false, Warnings: []string{"no XBRL facts filed"}}, nil
		}
		return profile.FinancialTimeSeries{}, err
	}

	return parsers.ParseXBRLFacts(body)
}

// FetchArchive retrieves the raw bytes of a filing's primary document
// (and, when paths are supplied, sub-documents) from the EDGAR archive.
func (c *Client) FetchArchive(ctx context.Context, ref profile.FilingReference, subPaths ...string) (profile.Bundle, error) {
	bundle := profile.Bundle{Reference: ref, FetchedAt: time.Now()}

	primaryURL := ref.ArchiveURL()
	body, err := c.do(ctx, primaryURL)
	if err != nil {
		return bundle, err
	}
	bundle.PrimaryBody = body

	for _, p := range subPaths {
		docURL := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
			wwwBaseURL, profile.NormalizeCIK(ref.CIK), profile.AccessionDigitsOnly(ref.Accession), p)
		docBody, err := c.do(ctx, docURL)
		if err != nil {
			continue
		}
		bundle.SubDocuments = append(bundle.SubDocuments, profile.SubDocument{Path: p, Body: docBody})
	}
	return bundle, nil
}

// ResolveCIK looks up a ticker's CIK via the company_tickers.json
// mapping file (spec §4.A).
func (c *Client) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	body, err := c.do(ctx, wwwBaseURL+"/files/company_tickers.json")
	if err != nil {
		return "", err
	}

	var mapping map[string]tickerEntry
	if err := json.Unmarshal(body, &mapping); err != nil {
		return "", fmt.Errorf("edgar: parse company_tickers.json: %w", err)
	}

	wanted := strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range mapping {
		if strings.ToUpper(entry.Ticker) == wanted {
			return profile.PadCIK(strconv.Itoa(entry.CIKStr)), nil
		}
	}
	return "", &NotFoundError{URL: "ticker:" + ticker}
}

// DirectoryEntry is one row of the company_tickers.json mapping,
// exported for callers (the relationship directory loader) that need
// the full set rather than a single lookup.
type DirectoryEntry struct {
	CIK    string
	Ticker string
	Name   string
}

// ListCompanyDirectory fetches and flattens the entire
// company_tickers.json mapping (spec §4.D "mention matching against a
// known-company directory").
func (c *Client) ListCompanyDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	body, err := c.do(ctx, wwwBaseURL+"/files/company_tickers.json")
	if err != nil {
		return nil, err
	}

	var mapping map[string]tickerEntry
	if err := json.Unmarshal(body, &mapping); err != nil {
		return nil, fmt.Errorf("edgar: parse company_tickers.json: %w", err)
	}

	out := make([]DirectoryEntry, 0, len(mapping))
	for _, entry := range mapping {
		out = append(out, DirectoryEntry{
			CIK:    profile.PadCIK(strconv.Itoa(entry.CIKStr)),
			Ticker: entry.Ticker,
			Name:   entry.Title,
		})
	}
	return out, nil
}

// SearchFilings runs EDGAR full-text search for a free-text query,
// used by the financial-relationship sub-extractor to find filings
// that mention a named counterparty.
func (c *Client) SearchFilings(ctx context.Context, query string) ([]profile.FilingReference, error) {
	url := fmt.Sprintf("%s?q=%s", searchBaseURL, strings.ReplaceAll(query, " ", "+"))
	body, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp fullTextSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("edgar: parse full text search: %w", err)
	}

	refs := make([]profile.FilingReference, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		if len(h.Source.CIKs) == 0 {
			continue
		}
		refs = append(refs, profile.FilingReference{
			CIK:       h.Source.CIKs[0],
			Accession: h.Source.ADSH,
			FormType:  profile.FormType(h.Source.FormType),
			FiledDate: h.Source.FileDate,
		})
	}
	return refs, nil
}

// PollDiscoveryFeed polls a company's Atom filing feed and returns any
// entries, used by the Batch Controller to auto-discover new filings
// between scheduled full refreshes.
func (c *Client) PollDiscoveryFeed(ctx context.Context, cik string) ([]profile.FilingReference, error) {
	url := fmt.Sprintf("%s/cgi-bin/browse-edgar?action=getcompany&CIK=%s&type=&dateb=&owner=include&count=40&output=atom",
		wwwBaseURL, profile.NormalizeCIK(cik))

	body, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("edgar: parse discovery feed: %w", err)
	}

	refs := make([]profile.FilingReference, 0, len(feed.Items))
	for _, item := range feed.Items {
		ref := profile.FilingReference{CIK: profile.NormalizeCIK(cik)}
		if item.PublishedParsed != nil {
			ref.FiledDate = item.PublishedParsed.Format("2006-01-02")
		}
		ref.FormType = profile.FormType(extractFormFromTitle(item.Title))
		refs = append(refs, ref)
	}
	return refs, nil
}

func extractFormFromTitle(title string) string {
	idx := strings.Index(title, " - ")
	if idx < 0 {
		return title
	}
	return strings.TrimSpace(title[:idx])
}
