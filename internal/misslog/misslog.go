// Package misslog records unresolved fields and policy drops for offline
// rule tuning. Appends are best effort: callers log and ignore errors.
package misslog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ppiankov/siteintent/internal/logging"
)

// Entry kinds
const (
	KindMiss = "miss"
	KindDrop = "drop"
)

// DefaultRedisKey is the list RedisSink pushes to
const DefaultRedisKey = "siteintent:misslog"

// Entry is one unresolved or dropped field
type Entry struct {
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Snippet    string    `json:"snippet,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives entries
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Nop discards entries
type Nop struct{}

// Append does nothing
func (Nop) Append(context.Context, Entry) error { return nil }

// FileSink appends JSON lines to a file
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink writing to path, creating parent directories
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create misslog dir: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Append writes one line
func (s *FileSink) Append(_ context.Context, e Entry) error {
	line, err := json.Marshal(stamp(e))
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open misslog: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write misslog: %w", err)
	}
	return f.Close()
}

// RedisSink pushes entries onto a capped Redis list
type RedisSink struct {
	client *redis.Client
	key    string
	max    int64
}

// NewRedisSink creates a sink; max <= 0 leaves the list uncapped
func NewRedisSink(client *redis.Client, key string, max int64) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key, max: max}
}

// NewRedisSinkFromURL parses a redis:// URL and pings the server
func NewRedisSinkFromURL(ctx context.Context, rawURL, key string, max int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisSink(client, key, max), nil
}

// Append RPUSHes the entry and trims the list to the newest max entries
func (s *RedisSink) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(stamp(e))
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, data)
	if s.max > 0 {
		pipe.LTrim(ctx, s.key, -s.max, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Close releases the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// Logged wraps a sink so failures are logged at Warn and swallowed
type Logged struct {
	sink   Sink
	logger *zap.Logger
}

// NewLogged wraps sink; a nil sink becomes Nop
func NewLogged(sink Sink, logger *zap.Logger) *Logged {
	if sink == nil {
		sink = Nop{}
	}
	return &Logged{sink: sink, logger: logging.OrNop(logger)}
}

// Append never returns an error
func (l *Logged) Append(ctx context.Context, e Entry) error {
	if err := l.sink.Append(ctx, e); err != nil {
		l.logger.Warn("misslog append failed", zap.String("key", e.Key), zap.Error(err))
	}
	return nil
}

func stamp(e Entry) Entry {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}
