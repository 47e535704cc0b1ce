package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileStore keeps all keys in one JSON document on disk. Writes go to a
// temporary file that is renamed over the original, so readers in other
// processes never observe a partial Message Set. Writers in other processes
// are serialized by an advisory lock on path+".lock".
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty store path", ErrUnavailable)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: error creating store directory: %v", ErrUnavailable, err)
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, false, err
	}
	raw, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	values, err := decodeValues(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return values, true, nil
}

func (f *FileStore) Set(ctx context.Context, key string, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	data, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	doc[key] = data
	return f.write(doc)
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := f.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return f.write(doc)
}

func (f *FileStore) Close() error {
	return f.lock.Close()
}

// lockFile takes the cross-process write lock for one read-modify-write.
func (f *FileStore) lockFile(ctx context.Context) (func(), error) {
	locked, err := f.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to lock store file: %v", ErrUnavailable, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: store file is locked", ErrUnavailable)
	}
	return func() { f.lock.Unlock() }, nil
}

func (f *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".queryflow-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
