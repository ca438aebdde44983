package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCmd_Use(t *testing.T) {
	assert.Equal(t, "context [query]", contextCmd.Use)
}

func TestContextCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "context")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestContextCmd_ServiceNotConfigured(t *testing.T) {
	_, err := execute(t, "context", "vacation")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "context service not configured")
}

func TestContextCmd_PrintsAttributedSections(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	seedDocument(t, "Q3 Report", revenueText)

	out, err := execute(t, "context", revenueText)

	require.NoError(t, err)
	assert.Contains(t, out, `[From document "Q3 Report"]`)
	assert.Contains(t, out, revenueText)
}

func TestContextCmd_NoContext(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "context", "nothing indexed yet")

	require.NoError(t, err)
	assert.Contains(t, out, "No relevant context found.")
}

func TestContextCmd_JSONStaysWithinBudget(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	seedDocument(t, "Q3 Report", revenueText)

	out, err := execute(t, "context", "--json", "--max-tokens", "500", revenueText)
	require.NoError(t, err)

	var got contextJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got.Context, "Q3 Report")
	assert.Positive(t, got.TokenCount)
	assert.LessOrEqual(t, got.TokenCount, 500)
	assert.Equal(t, 500, got.Result.MaxTokens)
	require.Len(t, got.Result.Items, 1)
}

func TestContextCmd_TinyBudgetReturnsNothing(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	seedDocument(t, "Q3 Report", revenueText)

	out, err := execute(t, "context", "--max-tokens", "3", revenueText)

	require.NoError(t, err)
	assert.Contains(t, out, "No relevant context found.")
}
