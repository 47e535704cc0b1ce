package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SetGetReplace(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "messages.json"))
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, DefaultKey, []string{"Hello", "Hello world", "Hello"}))
	got, ok, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Hello", "Hello world", "Hello"}, got)

	// full replace, never merge
	require.NoError(t, s.Set(ctx, DefaultKey, []string{"Goodbye"}))
	got, _, err = s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"Goodbye"}, got)

	require.NoError(t, s.Set(ctx, DefaultKey, nil))
	got, ok, err = s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestFileStore_KeysAreIndependent(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "messages.json"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []string{"1"}))
	require.NoError(t, s.Set(ctx, "b", []string{"2"}))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	got, ok, _ := s.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, []string{"2"}, got)
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	writer, err := NewFileStore(path)
	require.NoError(t, err)
	reader, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, writer.Set(ctx, DefaultKey, []string{"from agent"}))
	got, ok, err := reader.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"from agent"}, got)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, _, err = s.Get(context.Background(), DefaultKey)
	assert.Error(t, err)
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "messages.json"))
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, DefaultKey, []string{"a", "b", "c"}))
		}()
	}
	wg.Wait()

	got, _, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	values := []string{"x", "y"}
	require.NoError(t, s.Set(ctx, DefaultKey, values))
	values[0] = "mutated"

	got, ok, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, got)

	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Set(ctx, DefaultKey, nil), ErrUnavailable)
}

func TestSource_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := LoadSource(ctx, s, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	captured := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	require.NoError(t, SaveSource(ctx, s, DefaultKey, Source{URL: "https://chat.example.com/c/1", Title: "Chat", CapturedAt: captured, Count: 3}))

	src, ok, err := LoadSource(ctx, s, DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://chat.example.com/c/1", src.URL)
	assert.Equal(t, 3, src.Count)
	assert.True(t, captured.Equal(src.CapturedAt))

	_, ok, _ = s.Get(ctx, DefaultKey)
	assert.False(t, ok, "source must not touch the Message Set key")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Options{Path: filepath.Join(t.TempDir(), "m.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}

func TestFileStore_WritersInOtherProcessesDoNotLoseUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	agent, err := NewFileStore(path)
	require.NoError(t, err)
	cli, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i, s := range []*FileStore{agent, cli} {
		wg.Add(1)
		go func(key string, s *FileStore) {
			defer wg.Done()
			for n := 0; n < 25; n++ {
				assert.NoError(t, s.Set(ctx, key, []string{key}))
			}
		}([]string{"messages", "source"}[i], s)
	}
	wg.Wait()

	for _, key := range []string{"messages", "source"} {
		got, ok, err := agent.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, []string{key}, got)
	}
	assert.FileExists(t, path+".lock")
}

func TestFileStore_LockHeldElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	holder, err := NewFileStore(path)
	require.NoError(t, err)
	s, err := NewFileStore(path)
	require.NoError(t, err)

	unlock, err := holder.lockFile(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Delete(ctx, DefaultKey), ErrUnavailable)

	unlock()
	assert.NoError(t, s.Delete(context.Background(), DefaultKey))
	require.NoError(t, holder.Close())
	require.NoError(t, s.Close())
}
