package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/streamie/streamie/internal/metrics"
	"github.com/streamie/streamie/internal/retry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.themoviedb.org/3"
	DefaultLanguage  = "en-US"
	DefaultRateLimit = 40
	DefaultRateBurst = 10
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20

	// MinSearchLength is the shortest query that reaches the catalog.
	MinSearchLength = 3
)

// Notification strings shown to the user when a call gives up.
const (
	MessageDiscover        = "Error loading content"
	MessageSearch          = "Error searching"
	MessageGenres          = "Error loading genres"
	MessageLanguages       = "Error loading languages"
	MessageRecommendations = "Error fetching recommendations"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Language   string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	Retry      retry.Policy
	HTTPClient *http.Client
	Cache      ResponseCache
	CacheTTL   time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	cache      ResponseCache
	cacheTTL   time.Duration
	group      singleflight.Group
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		language:   opts.Language,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		policy:     opts.Retry,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
	}
}

func (c *Client) Discover(ctx context.Context, kind Kind, p DiscoverParams) (Page[Item], error) {
	if !kind.Valid() {
		return Page[Item]{}, fmt.Errorf("discover: invalid kind %q", kind)
	}
	var raw rawPage
	if err := c.get(ctx, "discover", "/discover/"+string(kind), p.query(kind), MessageDiscover, &raw); err != nil {
		return Page[Item]{}, err
	}
	return raw.toPage(kind), nil
}

// Search runs a multi search. Person results are dropped, and queries shorter
// than MinSearchLength return an empty page without calling the catalog.
func (c *Client) Search(ctx context.Context, query string, page int) (Page[Item], error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return Page[Item]{Page: 1, Results: []Item{}}, nil
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")

	var raw rawPage
	if err := c.get(ctx, "search", "/search/multi", params, MessageSearch, &raw); err != nil {
		return Page[Item]{}, err
	}
	// Multi search always tags media_type, so no fallback kind.
	return raw.toPage(""), nil
}

func (c *Client) Genres(ctx context.Context, kind Kind) ([]Genre, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("genres: invalid kind %q", kind)
	}
	return cached(ctx, c, "genres:"+string(kind), func(ctx context.Context) ([]Genre, error) {
		var raw rawGenres
		if err := c.get(ctx, "genres", "/genre/"+string(kind)+"/list", nil, MessageGenres, &raw); err != nil {
			return nil, err
		}
		if raw.Genres == nil {
			raw.Genres = []Genre{}
		}
		return raw.Genres, nil
	})
}

// Languages returns the catalog's languages sorted by English name. Entries
// without an English name are dropped.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	return cached(ctx, c, "languages", func(ctx context.Context) ([]Language, error) {
		var raw []rawLanguage
		if err := c.get(ctx, "languages", "/configuration/languages", nil, MessageLanguages, &raw); err != nil {
			return nil, err
		}
		out := make([]Language, 0, len(raw))
		for _, l := range raw {
			if strings.TrimSpace(l.EnglishName) == "" || l.Code == "" {
				continue
			}
			out = append(out, Language{Code: l.Code, EnglishName: l.EnglishName, Name: l.Name})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].EnglishName < out[j].EnglishName })
		return out, nil
	})
}

func (c *Client) Recommendations(ctx context.Context, kind Kind, id int, page int) (Page[Item], error) {
	if !kind.Valid() {
		return Page[Item]{}, fmt.Errorf("recommendations: invalid kind %q", kind)
	}
	if id <= 0 {
		return Page[Item]{}, fmt.Errorf("recommendations: invalid id %d", id)
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	var raw rawPage
	path := "/" + string(kind) + "/" + strconv.Itoa(id) + "/recommendations"
	if err := c.get(ctx, "recommendations", path, params, MessageRecommendations, &raw); err != nil {
		return Page[Item]{}, err
	}
	return raw.toPage(kind), nil
}

// cached serves key from the response cache, collapsing concurrent misses
// into one fetch. The shared fetch is detached from the first caller's
// cancellation so a client hanging up does not fail the others.
func cached[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.cache != nil {
		if blob, err := c.cache.Get(ctx, key); err == nil {
			var v T
			if err := json.Unmarshal(blob, &v); err == nil {
				metrics.CatalogCacheTotal.WithLabelValues("hit").Inc()
				return v, nil
			}
			slog.Warn("catalog: dropping undecodable cache entry", "key", key)
		} else if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("catalog: cache read failed", "key", key, "error", err)
		}
	}
	metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if blob, err := json.Marshal(v); err == nil {
				if err := c.cache.Set(ctx, key, blob, c.cacheTTL); err != nil {
					slog.Warn("catalog: cache write failed", "key", key, "error", err)
				}
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// get performs one logical catalog call through the retry policy. Client
// errors other than 429 are not retried.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, message string, out any) error {
	start := time.Now()
	defer func() {
		metrics.CatalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	policy := c.policy.WithMessage(message)
	hook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.CatalogRetriesTotal.WithLabelValues(endpoint).Inc()
		if hook != nil {
			hook(attempt, delay, err)
		}
	}

	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.fetch(ctx, endpoint, path, params, out)
	})
	switch {
	case err == nil:
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
		return nil
	case errors.As(err, new(*retry.Exhausted)):
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, "exhausted").Inc()
	default:
		metrics.CatalogRequestsTotal.WithLabelValues(endpoint, "error").Inc()
	}
	return fmt.Errorf("%s: %w", endpoint, err)
}

func (c *Client) fetch(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		if !statusErr.Retryable() {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
