package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const (
	WebSearchHTTPTimeout = 10 * time.Second
	WebSearchRateLimit   = 5
	WebSearchRateWindow  = time.Minute
	maxFetchBytes        = 512 * 1024
)

type toolSessionContextKey struct{}

// WithToolSession tags ctx with the chat session so tools can rate limit per session.
func WithToolSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, toolSessionContextKey{}, sessionID)
}

func ToolSessionFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(toolSessionContextKey{}).(string)
	return sessionID, ok && sessionID != ""
}

type toolRateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key unless the window is already full.
func (l *toolRateLimiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	idx := 0
	for idx < len(queue) && !queue[idx].After(cutoff) {
		idx++
	}
	queue = queue[idx:]
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	l.hits[key] = append(queue, now)
	return true
}

type searcher interface {
	InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error)
}

type webSearchTool struct {
	google     searcher
	duck       searcher
	httpClient *http.Client
	limiter    *toolRateLimiter
}

type webSearchParams struct {
	Query string `json:"query"`
}

// NewWebSearchTool returns the web_search tool, or nil when no provider is available.
func NewWebSearchTool(ctx context.Context) tool.InvokableTool {
	googleTool := newGoogleSearch(ctx)
	duckTool := newDuckDuckGoSearch(ctx)
	if googleTool == nil && duckTool == nil {
		log.Printf("[agent] web search disabled: no search providers available")
		return nil
	}
	ws := &webSearchTool{
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newToolRateLimiter(WebSearchRateLimit, WebSearchRateWindow),
	}
	if googleTool != nil {
		ws.google = googleTool
	}
	if duckTool != nil {
		ws.duck = duckTool
	}
	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for facts about the user's business tools and integrations. " +
			"Accepts a natural language query or a URL to fetch.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	if sessionID, ok := ToolSessionFromContext(ctx); ok && w.limiter != nil {
		if !w.limiter.Allow(sessionID) {
			return "", errors.New("web search rate limit exceeded, retry in a minute")
		}
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		log.Printf("[agent] url fetch failed: %v", err)
	}

	payload, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	providers := []struct {
		name string
		s    searcher
	}{{"google", w.google}, {"duckduckgo", w.duck}}
	for _, p := range providers {
		if p.s == nil {
			continue
		}
		result, err := p.s.InvokableRun(ctx, string(payload))
		if err == nil {
			return result, nil
		}
		log.Printf("[agent] %s search failed: %v", p.name, err)
	}
	return "", errors.New("no search provider succeeded")
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "CoralBricks-WebSearch/1.0")

	client := w.httpClient
	if client == nil {
		client = &http.Client{Timeout: WebSearchHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func newDuckDuckGoSearch(ctx context.Context) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo search",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    WebSearchHTTPTimeout,
	})
	if err != nil {
		log.Printf("[agent] duckduckgo search disabled: %v", err)
		return nil
	}
	return duckTool
}

func newGoogleSearch(ctx context.Context) tool.InvokableTool {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	engineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if apiKey == "" || engineID == "" {
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google search",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("[agent] google search disabled: %v", err)
		return nil
	}
	return googleTool
}
