package cryptofolio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCompletionsEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://example.com/v1/chat/completions", "https://example.com/v1/chat/completions"},
		{"example.com", "https://example.com/v1/chat/completions"},
		{"https://example.com/", "https://example.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		got, err := buildCompletionsEndpoint(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := buildCompletionsEndpoint("ftp://example.com")
	require.True(t, IsErrorCode(err, ErrCodeValidation))
}

func TestIsGeminiRequest(t *testing.T) {
	require.True(t, isGeminiRequest("", "gemini-2.0-flash"))
	require.True(t, isGeminiRequest("https://generativelanguage.googleapis.com/v1beta", "whatever"))
	require.False(t, isGeminiRequest("https://api.openai.com/v1/chat/completions", "gpt-4o"))
}

func TestCleanupModelJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here is the result:\n{\"a\":1}\nHope this helps!", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cleanupModelJSON(tc.in))
	}
}

func TestNormalizeInsightsRequest(t *testing.T) {
	normalized, err := normalizeInsightsRequest(InsightsRequest{
		APIKey: " key ",
		Model:  " gpt-4o ",
	})
	require.NoError(t, err)
	require.Equal(t, "key", normalized.APIKey)
	require.Equal(t, "gpt-4o", normalized.Model)
	require.Equal(t, "balanced", normalized.RiskProfile)
	require.Equal(t, "medium", normalized.Horizon)

	_, err = normalizeInsightsRequest(InsightsRequest{Model: "gpt-4o"})
	require.True(t, IsErrorCode(err, ErrCodeValidation))

	_, err = normalizeInsightsRequest(InsightsRequest{APIKey: "key"})
	require.True(t, IsErrorCode(err, ErrCodeValidation))

	_, err = normalizeInsightsRequest(InsightsRequest{APIKey: "key", Model: "m", RiskProfile: "yolo"})
	require.True(t, IsErrorCode(err, ErrCodeValidation))

	_, err = normalizeInsightsRequest(InsightsRequest{APIKey: "key", Model: "m", Horizon: "forever"})
	require.True(t, IsErrorCode(err, ErrCodeValidation))
}

func TestAnalyzePortfolio(t *testing.T) {
	src := newFakeSource(t)
	src.setQuote("bitcoin", 100)
	core := setupTestCore(t, src)
	_, err := core.AddHolding("btc", NewAmount(1))
	require.NoError(t, err)

	orig := aiChatCompletion
	defer func() { aiChatCompletion = orig }()

	var capturedPrompt string
	aiChatCompletion = func(_ context.Context, req aiChatRequest) (aiChatResult, error) {
		capturedPrompt = req.UserPrompt
		return aiChatResult{
			Model: "test-model",
			Content: "```json\n" + `{
				"summary": "Single-asset portfolio.",
				"risk_level": "high",
				"key_findings": ["All value is in one asset.", "  "],
				"suggestions": [{"ticker": "btc", "action": "Reduce", "rationale": "Concentration."}],
				"disclaimer": "Not advice."
			}` + "\n```",
		}, nil
	}

	result, err := core.AnalyzePortfolio(context.Background(), InsightsRequest{
		APIKey: "key",
		Model:  "test-model",
	})
	require.NoError(t, err)
	require.Contains(t, capturedPrompt, "BTC")
	require.Equal(t, "test-model", result.Model)
	require.Equal(t, "high", result.RiskLevel)
	require.Equal(t, []string{"All value is in one asset."}, result.KeyFindings)
	require.Len(t, result.Suggestions, 1)
	require.Equal(t, "BTC", result.Suggestions[0].Ticker)
	require.Equal(t, "reduce", result.Suggestions[0].Action)
	require.NotZero(t, result.ID)

	history, err := core.GetInsightsHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "Single-asset portfolio.", history[0].Summary)
}

func TestAnalyzePortfolioRejectsEmptyPortfolio(t *testing.T) {
	src := newFakeSource(t)
	core := setupTestCore(t, src)

	_, err := core.AnalyzePortfolio(context.Background(), InsightsRequest{APIKey: "key", Model: "m"})
	require.True(t, IsErrorCode(err, ErrCodeValidation))
}

func TestAnalyzePortfolioInvalidModelJSON(t *testing.T) {
	src := newFakeSource(t)
	src.setQuote("bitcoin", 100)
	core := setupTestCore(t, src)
	_, err := core.AddHolding("btc", NewAmount(1))
	require.NoError(t, err)

	orig := aiChatCompletion
	defer func() { aiChatCompletion = orig }()
	aiChatCompletion = func(context.Context, aiChatRequest) (aiChatResult, error) {
		return aiChatResult{Model: "m", Content: "I cannot answer in JSON, sorry."}, nil
	}

	_, err = core.AnalyzePortfolio(context.Background(), InsightsRequest{APIKey: "key", Model: "m"})
	require.True(t, IsErrorCode(err, ErrCodeInternal))
}
