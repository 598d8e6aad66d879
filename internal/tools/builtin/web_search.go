package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"agentloop/internal/agent/ports"
	"agentloop/internal/memory"
	"agentloop/internal/shared/logging"
)

const noResults = "No results found."

// SearchBackend answers one web query with plain text.
type SearchBackend interface {
	Search(ctx context.Context, query string) (string, error)
	Name() string
}

type webSearch struct {
	backend SearchBackend
	memory  ports.MemoryStore
	logger  logging.Logger
}

// WebSearchOption customizes the web_search tool.
type WebSearchOption func(*webSearch)

// WithSearchMemory records successful results as session memory.
func WithSearchMemory(store ports.MemoryStore) WebSearchOption {
	return func(t *webSearch) { t.memory = store }
}

// NewWebSearch creates the web_search tool over a backend.
func NewWebSearch(backend SearchBackend, opts ...WebSearchOption) ports.ToolExecutor {
	t := &webSearch{backend: backend, logger: logging.NewComponentLogger("web_search")}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *webSearch) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:        ports.ToolWebSearch,
		Description: "Search the web for current information. Args: {\"query\": \"...\"}",
	}
}

func (t *webSearch) Execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	args, ok := call.Args.(ports.WebSearchArgs)
	if !ok || strings.TrimSpace(args.Query) == "" {
		return ports.ToolResult{ToolName: ports.ToolWebSearch, Output: "invalid arguments", IsError: true}
	}

	text, err := t.backend.Search(ctx, args.Query)
	if err != nil {
		msg := fmt.Sprintf("Web search error: %v", err)
		return ports.ToolResult{ToolName: ports.ToolWebSearch, Output: msg, IsError: true, ErrorSnippet: msg}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ports.ToolResult{ToolName: ports.ToolWebSearch, Output: noResults}
	}

	if t.memory != nil && call.SessionID != "" {
		if _, err := t.memory.Append(ctx, call.SessionID, memory.SearchResultEntry(args.Query, text)); err != nil {
			t.logger.Warn("Failed to record search result for session %s: %v", call.SessionID, err)
		}
	}
	return ports.ToolResult{ToolName: ports.ToolWebSearch, Output: text}
}

// LLMSearch asks the reasoning service to answer the query directly.
type LLMSearch struct {
	Client ports.ReasoningClient
}

func (b LLMSearch) Name() string { return "llm" }

func (b LLMSearch) Search(ctx context.Context, query string) (string, error) {
	if b.Client == nil {
		return "", fmt.Errorf("reasoning client not configured")
	}
	return b.Client.Complete(ctx, "Search the web for: "+query)
}

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilySearch queries the Tavily search API.
type TavilySearch struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer,omitempty"`
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (b TavilySearch) Name() string { return "tavily" }

func (b TavilySearch) Search(ctx context.Context, query string) (string, error) {
	if b.APIKey == "" {
		return "", fmt.Errorf("tavily api key not configured")
	}
	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:        b.APIKey,
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(b.HTTPClient).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return formatTavily(parsed), nil
}

func formatTavily(resp tavilyResponse) string {
	var sb strings.Builder
	if resp.Answer != "" {
		sb.WriteString("Answer: ")
		sb.WriteString(strings.TrimSpace(resp.Answer))
		sb.WriteString("\n\n")
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, strings.TrimSpace(r.Title), r.URL)
		if content := strings.TrimSpace(r.Content); content != "" {
			sb.WriteString("   ")
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGoSearch scrapes the HTML results page. No API key needed.
type DuckDuckGoSearch struct {
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

func (b DuckDuckGoSearch) Name() string { return "duckduckgo" }

func (b DuckDuckGoSearch) Search(ctx context.Context, query string) (string, error) {
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "agentloop/1.0")

	resp, err := httpClient(b.HTTPClient).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("parse results: %w", err)
	}

	limit := b.MaxResults
	if limit <= 0 {
		limit = 5
	}
	var sb strings.Builder
	count := 0
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(".result__a").First().Text())
		if title == "" {
			return true
		}
		href, _ := s.Find(".result__a").First().Attr("href")
		summary := strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " ")
		count++
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", count, title, strings.TrimSpace(href))
		if summary != "" {
			sb.WriteString("   ")
			sb.WriteString(summary)
			sb.WriteString("\n")
		}
		return count < limit
	})
	return sb.String(), nil
}

func httpClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 30 * time.Second}
}
