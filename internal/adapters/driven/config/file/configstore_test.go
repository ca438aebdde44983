package file

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*ConfigStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestNewConfigStore_Success(t *testing.T) {
	store, dir := newStore(t)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	store, err := NewConfigStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ragctx", "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestOpenConfigFile_CustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "ragctx.toml")

	store, err := OpenConfigFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("search.max_tokens", 900))

	reopened, err := OpenConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, reopened.Path())
	assert.Equal(t, 900, reopened.GetInt("search.max_tokens"))
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[[[ not toml"), 0600))

	_, err := NewConfigStore(dir)
	assert.Error(t, err)
}

func TestConfigStore_Get_NotFound(t *testing.T) {
	store, _ := newStore(t)

	val, ok := store.Get("embedding.provider")
	assert.False(t, ok)
	assert.Nil(t, val)
	assert.Empty(t, store.GetString("embedding.provider"))
	assert.Zero(t, store.GetInt("chunking.size"))
	assert.Zero(t, store.GetFloat("search.min_similarity"))
	assert.Zero(t, store.GetDuration("search.timeout"))
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Set("embedding.provider", "ollama"))
	require.NoError(t, store.Set("chunking.size", 256))
	require.NoError(t, store.Set("search.min_similarity", 0.65))
	require.NoError(t, store.Set("search.timeout", 3*time.Second))

	assert.Equal(t, "ollama", store.GetString("embedding.provider"))
	assert.Equal(t, 256, store.GetInt("chunking.size"))
	assert.InDelta(t, 0.65, store.GetFloat("search.min_similarity"), 1e-9)
	assert.Equal(t, 3*time.Second, store.GetDuration("search.timeout"))
	assert.Equal(t, "3s", store.GetString("search.timeout"))
}

func TestConfigStore_WrongTypes(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Set("a", 42))
	require.NoError(t, store.Set("b", "not a number"))
	require.NoError(t, store.Set("c", "forever"))

	assert.Empty(t, store.GetString("a"))
	assert.Zero(t, store.GetInt("b"))
	assert.Zero(t, store.GetFloat("b"))
	assert.Zero(t, store.GetDuration("c"))
	assert.InDelta(t, 42.0, store.GetFloat("a"), 1e-9)
}

func TestConfigStore_Persistence(t *testing.T) {
	store, dir := newStore(t)

	require.NoError(t, store.Set("embedding.provider", "openai"))
	require.NoError(t, store.Set("embedding.model", "text-embedding-3-small"))
	require.NoError(t, store.Set("chunking.size", 300))
	require.NoError(t, store.Set("search.min_similarity", 0.4))
	require.NoError(t, store.Set("search.timeout", 1500*time.Millisecond))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "openai", reloaded.GetString("embedding.provider"))
	assert.Equal(t, "text-embedding-3-small", reloaded.GetString("embedding.model"))
	assert.Equal(t, 300, reloaded.GetInt("chunking.size"))
	assert.InDelta(t, 0.4, reloaded.GetFloat("search.min_similarity"), 1e-9)
	assert.Equal(t, 1500*time.Millisecond, reloaded.GetDuration("search.timeout"))
}

func TestConfigStore_WritesTables(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Set("embedding.provider", "local"))
	require.NoError(t, store.Set("storage.backend", "sqlite"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[embedding]")
	assert.Contains(t, string(data), "[storage]")
}

func TestConfigStore_LoadNestedFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[embedding]
provider = "ollama"
base_url = "http://localhost:11434"

[chunking]
size = 128
overlap = 16
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", store.GetString("embedding.provider"))
	assert.Equal(t, "http://localhost:11434", store.GetString("embedding.base_url"))
	assert.Equal(t, 128, store.GetInt("chunking.size"))
	assert.Equal(t, 16, store.GetInt("chunking.overlap"))
}

func TestConfigStore_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), nil, 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	store, _ := newStore(t)
	require.NoError(t, store.Set("embedding.api_key", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_Load_ReadFileError(t *testing.T) {
	store, _ := newStore(t)
	store.filePath = t.TempDir()

	assert.Error(t, store.Load())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, _ := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("indexer.concurrency", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("indexer.concurrency")
		}()
	}
	wg.Wait()

	_, ok := store.Get("indexer.concurrency")
	assert.True(t, ok)
}

func TestNestMap(t *testing.T) {
	nested := nestMap(map[string]any{
		"a.b":   1,
		"a.c.d": "x",
		"top":   true,
	})

	assert.Equal(t, map[string]any{
		"a":   map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"top": true,
	}, nested)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c.d": "x", "top": true}, flattenMap(nested, ""))
}
