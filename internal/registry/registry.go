// Package registry looks up business registry records (ABN-style
// identifiers) for the external-lookup fields of the intent map.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/cache"
	"github.com/ppiankov/siteintent/internal/logging"
	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/util"
	"github.com/ppiankov/siteintent/internal/worker"
)

// ErrNotFound means the registry has no matching entity
var ErrNotFound = errors.New("registry entity not found")

// DefaultTimeout bounds one lookup
const DefaultTimeout = 10 * time.Second

// DefaultSource is the provenance tag of registry-sourced values
const DefaultSource = "abr"

// Query identifies the business to look up
type Query struct {
	BusinessName string `json:"business_name"`
	TradingName  string `json:"trading_name,omitempty"`
	State        string `json:"state,omitempty"`
}

// Entity is a registry record
type Entity struct {
	ID         string `json:"id"`
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type,omitempty"`
	Status     string `json:"status,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Lookup resolves a query to an entity or ErrNotFound. Implementations do
// not retry.
type Lookup interface {
	Lookup(ctx context.Context, q Query) (*Entity, error)
}

// Config configures HTTPLookup
type Config struct {
	Endpoint   string
	APIKey     string
	Source     string
	Timeout    time.Duration
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// HTTPLookup queries a JSON registry endpoint with
// GET {endpoint}?name=..&trading_name=..&state=..
type HTTPLookup struct {
	endpoint string
	apiKey   string
	source   string
	timeout  time.Duration
	client   *http.Client
	limiter  *worker.Limiter
	logger   *zap.Logger
}

// NewHTTPLookup creates an HTTP registry client; limiter may be nil
func NewHTTPLookup(cfg Config, limiter *worker.Limiter, logger *zap.Logger) (*HTTPLookup, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("registry endpoint is required")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid registry endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	return &HTTPLookup{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		source:   cfg.Source,
		timeout:  cfg.Timeout,
		client:   util.NewHTTPClient(cfg.Timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		limiter:  limiter,
		logger:   logging.OrNop(logger),
	}, nil
}

// Lookup performs one request
func (l *HTTPLookup) Lookup(ctx context.Context, q Query) (*Entity, error) {
	if strings.TrimSpace(q.BusinessName) == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, l.endpoint); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	u, _ := url.Parse(l.endpoint)
	params := u.Query()
	params.Set("name", q.BusinessName)
	if q.TradingName != "" {
		params.Set("trading_name", q.TradingName)
	}
	if q.State != "" {
		params.Set("state", q.State)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		metrics.ObserveLookup("error")
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveLookup("error")
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.ObserveLookup("not_found")
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		metrics.ObserveLookup("error")
		return nil, fmt.Errorf("registry error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entity *Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		metrics.ObserveLookup("error")
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	if entity == nil || entity.ID == "" {
		metrics.ObserveLookup("not_found")
		return nil, ErrNotFound
	}
	if entity.Source == "" {
		entity.Source = l.source
	}

	metrics.ObserveLookup("found")
	l.logger.Debug("registry hit", zap.String("name", q.BusinessName), zap.String("entity", entity.EntityName))
	return entity, nil
}

// Cached memoises another Lookup, including negative results
type Cached struct {
	next  Lookup
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next; a nil cache returns next unchanged
func NewCached(next Lookup, c cache.Cache, ttl time.Duration) Lookup {
	if c == nil {
		return next
	}
	return &Cached{next: next, cache: c, ttl: ttl}
}

// Lookup serves from cache or delegates. Errors other than ErrNotFound are
// not cached.
func (c *Cached) Lookup(ctx context.Context, q Query) (*Entity, error) {
	key := cache.Key("registry", q.BusinessName, q.TradingName, q.State)

	if data, ok := c.cache.Get(key); ok {
		var entity *Entity
		if err := json.Unmarshal(data, &entity); err == nil {
			metrics.ObserveLookup("cache_hit")
			if entity == nil {
				return nil, ErrNotFound
			}
			return entity, nil
		}
	}

	entity, err := c.next.Lookup(ctx, q)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	data, _ := json.Marshal(entity)
	_ = c.cache.Set(key, data, c.ttl)

	if entity == nil {
		return nil, ErrNotFound
	}
	return entity, nil
}
