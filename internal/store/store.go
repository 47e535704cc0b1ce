// Package store persists the captured Message Set in a key-value store shared
// by the page agent and the popup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultKey is the namespaced key holding the Message Set.
const DefaultKey = "queryflow_messages"

// SourceSuffix is appended to the Message Set key to store its Source record.
const SourceSuffix = ":source"

var (
	// ErrUnavailable reports that the backing store cannot be reached or is disabled.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is a key-value store whose values are ordered string lists. Set
// replaces the whole value atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, values []string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Source describes the page a Message Set was captured from.
type Source struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	CapturedAt time.Time `json:"captured_at"`
	Count      int       `json:"count"`
}

// SaveSource stores src beside the Message Set under key+SourceSuffix.
func SaveSource(ctx context.Context, s Store, key string, src Source) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode source: %w", err)
	}
	return s.Set(ctx, key+SourceSuffix, []string{string(data)})
}

// LoadSource returns the Source stored beside the Message Set, if any.
func LoadSource(ctx context.Context, s Store, key string) (*Source, bool, error) {
	values, ok, err := s.Get(ctx, key+SourceSuffix)
	if err != nil || !ok || len(values) == 0 {
		return nil, false, err
	}
	var src Source
	if err := json.Unmarshal([]byte(values[0]), &src); err != nil {
		return nil, false, fmt.Errorf("failed to decode source: %w", err)
	}
	return &src, true, nil
}

func encodeValues(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func decodeValues(data []byte) ([]string, error) {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Options selects and configures a backend.
type Options struct {
	Backend string // file, redis or memory
	Path    string
	Redis   RedisOptions
}

// Open returns the backend named by opts.Backend. The file backend is the default.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		fs, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "redis":
		rs := NewRedisStore(opts.Redis)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, err
		}
		return rs, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s (available: file, redis, memory)", opts.Backend)
	}
}
