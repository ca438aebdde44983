package cli

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

func TestMaskAPIKey(t *testing.T) {
	for input, want := range map[string]string{
		"":                                   "****",
		"abc123":                             "****",
		"12345678":                           "****",
		"sk-1234567890abcdef":                "sk-1...cdef",
		"postgres://u:secret@db:5432/ragctx": "post...gctx",
	} {
		assert.Equal(t, want, maskAPIKey(input), "input %q", input)
	}
}

func TestParseChoice(t *testing.T) {
	// Five options, default 2.
	for input, want := range map[string]int{
		"":    2,
		"   ": 2,
		"abc": 2,
		"0":   2,
		"-1":  2,
		"6":   2,
		"1":   1,
		"3":   3,
		"5":   5,
	} {
		assert.Equal(t, want, parseChoice(input, 5, 2), "input %q", input)
	}
}

func TestDescribeSettings(t *testing.T) {
	settings := domain.DefaultAppSettings()
	settings.Embedding = domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "text-embedding-3-small",
	}
	settings.Storage = domain.StorageSettings{
		Backend: domain.StoragePostgres,
		DSN:     "postgres://user:pw@localhost/ragctx",
	}

	sections := describeSettings(&settings)

	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.name
	}
	assert.Equal(t, []string{"Embedding", "Chunking", "Search", "Indexer", "Storage"}, names)
	assert.Contains(t, sections[0].fields, settingField{"API Key", "(not set)"})
	assert.Contains(t, sections[0].fields, settingField{"Status", "not configured"})
	assert.Contains(t, sections[4].fields, settingField{"DSN", "post...gctx"})
}

func TestReadLine(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("  first  \nsecond"))

	assert.Equal(t, "first", readLine(reader))
	assert.Equal(t, "second", readLine(reader))
	assert.Equal(t, "", readLine(reader))
}

func TestSettingsCmd_HasSubcommands(t *testing.T) {
	commands := settingsCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "show")
	assert.Contains(t, commandNames, "embedding")
	assert.Contains(t, commandNames, "chunking")
	assert.Contains(t, commandNames, "storage")
}

func TestSettingsCmd_ShowsDefaults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "[Embedding]")
	assert.Contains(t, out, "[Chunking]")
	assert.Contains(t, out, "[Search]")
	assert.Contains(t, out, "[Indexer]")
	assert.Regexp(t, `Backend:\s+sqlite`, out)
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsCmd_ServiceNotConfigured(t *testing.T) {
	_, err := execute(t, "settings", "show")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings service not configured")
}

func TestSettingsChunkingCmd_Saves(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings", "chunking", "--size", "256", "--overlap", "32")

	require.NoError(t, err)
	assert.Contains(t, out, "size 256, overlap 32")

	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkConfig{Size: 256, Overlap: 32}, settings.Chunking)
}

func TestSettingsChunkingCmd_RejectsOverlapNotBelowSize(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "settings", "chunking", "--size", "100", "--overlap", "100")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set chunking")
}

func TestSettingsStorageCmd(t *testing.T) {
	t.Setenv("RAGCTX_POSTGRES_URL", "")

	t.Run("memory backend", func(t *testing.T) {
		cleanup := setupTestServices()
		defer cleanup()

		out, err := execute(t, "settings", "storage", "--backend", "MEMORY")

		require.NoError(t, err)
		assert.Contains(t, out, "Storage backend set to memory")
		settings, err := settingsService.Get()
		require.NoError(t, err)
		assert.Equal(t, domain.StorageMemory, settings.Storage.Backend)
	})

	t.Run("postgres without DSN", func(t *testing.T) {
		cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "settings", "storage", "--backend", "postgres")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection string")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cleanup := setupTestServices()
		defer cleanup()

		_, err := execute(t, "settings", "storage", "--backend", "redis")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid storage backend")
	})
}

func TestSettingsEmbeddingCmd_SelectsLocal(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("3\n\n"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "settings", "embedding")

	require.NoError(t, err)
	assert.Contains(t, out, "Validating configuration... OK")
	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderLocal, settings.Embedding.Provider)
	assert.Equal(t, "hashing-v1", settings.Embedding.Model)
}
