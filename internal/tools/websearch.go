package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"localcog/internal/domain"
)

const (
	DefaultSearchURL = "https://html.duckduckgo.com/html/"
	// NoResults is returned when no result page could be read.
	NoResults = "No results"

	maxResults    = 5
	maxPageChars  = 20000
	maxTotalChars = 35000
	userAgent     = "Mozilla/5.0 (compatible; localcog)"
)

// WebSearch searches the web, reads the top result pages and summarises them.
type WebSearch struct {
	searchURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
	summarizer domain.Summarizer
	logger     *log.Logger
}

// WebSearchOption configures a WebSearch.
type WebSearchOption func(*WebSearch)

// WithSearchURL points the tool at another HTML search endpoint.
func WithSearchURL(u string) WebSearchOption {
	return func(w *WebSearch) { w.searchURL = u }
}

// WithHTTPClient sets the client used for every outbound request.
func WithHTTPClient(c *http.Client) WebSearchOption {
	return func(w *WebSearch) { w.httpClient = c }
}

// WithRequestsPerMinute throttles outbound requests.
func WithRequestsPerMinute(n int) WebSearchOption {
	return func(w *WebSearch) {
		if n > 0 {
			w.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}
}

func NewWebSearch(summarizer domain.Summarizer, logger *log.Logger, opts ...WebSearchOption) *WebSearch {
	w := &WebSearch{
		searchURL:  DefaultSearchURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), maxResults+1),
		summarizer: summarizer,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebSearch) Kind() Kind { return KindWebSearch }

// Result is one search hit.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Invoke returns a summary of the pages found for query, or NoResults.
func (w *WebSearch) Invoke(ctx context.Context, query string) (string, error) {
	results, err := w.Search(ctx, query)
	if err != nil {
		return "", err
	}

	var texts []string
	for _, res := range results {
		text, err := w.fetchText(ctx, res.URL)
		if err != nil {
			w.logger.Debug().Err(err).Str("url", res.URL).Msg("skipping result page")
			continue
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	joined := clip(strings.Join(texts, "\n\n"), maxTotalChars)
	if joined == "" {
		return NoResults, nil
	}

	summary, err := w.summarizer.Summarize(ctx, joined)
	if err != nil || strings.TrimSpace(summary) == "" {
		w.logger.Warn().Err(err).Msg("summary unavailable, returning page text")
		return clip(joined, 1000), nil
	}
	return summary, nil
}

// Search returns the top results for query.
func (w *WebSearch) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	doc, err := w.document(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	var results []Result
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		results = append(results, Result{Title: strings.TrimSpace(s.Text()), URL: resolveResultURL(href)})
		return len(results) < maxResults
	})
	return results, nil
}

func (w *WebSearch) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	doc, err := w.document(req)
	if err != nil {
		return "", err
	}
	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if p := strings.Join(strings.Fields(s.Text()), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
	})
	return clip(strings.Join(paragraphs, "\n"), maxPageChars), nil
}

func (w *WebSearch) document(req *http.Request) (*goquery.Document, error) {
	if err := w.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// resolveResultURL unwraps DuckDuckGo redirect links.
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
