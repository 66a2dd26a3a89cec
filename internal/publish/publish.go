// Package publish hands a gated, policy-clean payload to the CMS.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/util"
	"github.com/ppiankov/siteintent/internal/worker"
)

// DefaultTimeout bounds one push
const DefaultTimeout = 15 * time.Second

// Payload is the flat key/value document sent to the CMS. Values are
// strings, or nil for explicitly nullable keys.
type Payload map[string]any

// Sendable counts non-null keys
func (p Payload) Sendable() int {
	n := 0
	for _, v := range p {
		if v != nil {
			n++
		}
	}
	return n
}

// Schema is the part of the intent map payload building reads
type Schema interface {
	AllowSet() []string
	Nullable(key string) bool
}

// BuildPayload keeps allow-listed keys with values and emits nullable
// allow-listed keys without one as null
func BuildPayload(fields model.Fields, schema Schema) Payload {
	out := make(Payload)
	for _, key := range schema.AllowSet() {
		if fields.Has(key) {
			out[key] = fields[key]
		} else if schema.Nullable(key) {
			out[key] = nil
		}
	}
	return out
}

// Pusher delivers a payload. Its result never changes gate decisions.
type Pusher interface {
	Push(ctx context.Context, requestID string, payload Payload) error
}

// FilePusher writes each payload to {dir}/{requestID}.json
type FilePusher struct {
	dir string
}

// NewFilePusher creates a file pusher
func NewFilePusher(dir string) *FilePusher {
	return &FilePusher{dir: dir}
}

// Push writes the payload as indented JSON
func (p *FilePusher) Push(_ context.Context, requestID string, payload Payload) error {
	if requestID == "" || strings.ContainsAny(requestID, `/\`) {
		return fmt.Errorf("invalid request id %q", requestID)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create publish dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, requestID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// HTTPConfig configures HTTPPusher
type HTTPConfig struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// HTTPPusher POSTs the payload as JSON to a CMS endpoint
type HTTPPusher struct {
	endpoint string
	token    string
	timeout  time.Duration
	client   *http.Client
	limiter  *worker.Limiter
}

// NewHTTPPusher creates an HTTP pusher; limiter may be nil
func NewHTTPPusher(cfg HTTPConfig, limiter *worker.Limiter) (*HTTPPusher, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("publish endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPPusher{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		timeout:  cfg.Timeout,
		client:   util.NewHTTPClient(cfg.Timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		limiter:  limiter,
	}, nil
}

// Push sends one request; any non-2xx status is an error
func (p *HTTPPusher) Push(ctx context.Context, requestID string, payload Payload) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.endpoint); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("publish error (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
