package cryptofolio

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultAIBaseURL      = "https://api.openai.com/v1"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	aiRequestTimeout      = 5 * time.Minute
	maxAIResponseBodySize = 2 << 20
	aiMaxOutputTokens     = 8192
)

const insightsSystemPrompt = `You are a portfolio analysis assistant for a cryptocurrency tracker.
You receive a snapshot of the user's holdings: ticker, quantity, current value and allocation percentage.
Respond with a single JSON object and nothing else. No Markdown, no prose outside the JSON.
Required fields:
- summary: string
- risk_level: string (one of low/medium/high)
- key_findings: string[]
- suggestions: [{ticker, action, rationale}]
- disclaimer: string
Rules:
- action must be one of increase/reduce/hold.
- Never promise returns; always include a risk disclaimer.
- Flag concentration above 50% of portfolio value in a single asset.`

// InsightsRequest defines inputs for an AI portfolio analysis.
type InsightsRequest struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	RiskProfile string `json:"risk_profile"`
	Horizon     string `json:"horizon"`
	Notes       string `json:"notes"`
}

// InsightSuggestion is one actionable item from the model.
type InsightSuggestion struct {
	Ticker    string `json:"ticker,omitempty"`
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
}

// InsightsResult is the structured analysis returned to clients and kept
// in history.
type InsightsResult struct {
	ID          int64               `json:"id,omitempty"`
	GeneratedAt string              `json:"generated_at"`
	Model       string              `json:"model"`
	RiskProfile string              `json:"risk_profile,omitempty"`
	Horizon     string              `json:"horizon,omitempty"`
	Summary     string              `json:"summary"`
	RiskLevel   string              `json:"risk_level"`
	KeyFindings []string            `json:"key_findings"`
	Suggestions []InsightSuggestion `json:"suggestions"`
	Disclaimer  string              `json:"disclaimer"`
}

type insightsPromptInput struct {
	RiskProfile string             `json:"risk_profile"`
	Horizon     string             `json:"horizon"`
	Notes       string             `json:"notes,omitempty"`
	Total       Amount             `json:"total"`
	Holdings    []insightsRowInput `json:"holdings"`
	Allocation  []AllocationEntry  `json:"allocation"`
}

type insightsRowInput struct {
	Ticker string `json:"ticker"`
	Amount Amount `json:"amount"`
	Value  Amount `json:"value"`
}

type insightsModelResponse struct {
	Summary     string              `json:"summary"`
	RiskLevel   string              `json:"risk_level"`
	KeyFindings []string            `json:"key_findings"`
	Suggestions []InsightSuggestion `json:"suggestions"`
	Disclaimer  string              `json:"disclaimer"`
}

type aiChatRequest struct {
	EndpointURL  string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
	Logger       *slog.Logger
}

type aiChatResult struct {
	Model   string
	Content string
}

var aiChatCompletion = requestAIChatCompletion

// AnalyzePortfolio sends the current portfolio snapshot to an
// OpenAI-compatible or Gemini model and returns the structured analysis.
// The result is saved to history best-effort.
func (c *Core) AnalyzePortfolio(ctx context.Context, req InsightsRequest) (*InsightsResult, error) {
	normalized, err := normalizeInsightsRequest(req)
	if err != nil {
		return nil, err
	}

	summary := c.Summary(ctx)
	if len(summary.Rows) == 0 {
		return nil, NewError(ErrCodeValidation, "no holdings to analyze")
	}
	userPrompt, err := buildInsightsUserPrompt(summary, normalized)
	if err != nil {
		return nil, err
	}

	endpoint, err := buildCompletionsEndpoint(normalized.BaseURL)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, aiRequestTimeout)
	defer cancel()

	chatResult, err := aiChatCompletion(reqCtx, aiChatRequest{
		EndpointURL:  endpoint,
		APIKey:       normalized.APIKey,
		Model:        normalized.Model,
		SystemPrompt: insightsSystemPrompt,
		UserPrompt:   userPrompt,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, WrapError(ErrCodeSourceUnavailable, "model request failed", err)
	}

	parsed, err := parseInsightsResponse(chatResult.Content)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(chatResult.Model)
	if model == "" {
		model = normalized.Model
	}
	riskLevel := strings.TrimSpace(parsed.RiskLevel)
	if riskLevel == "" {
		riskLevel = "unknown"
	}
	disclaimer := strings.TrimSpace(parsed.Disclaimer)
	if disclaimer == "" {
		disclaimer = "This analysis is informational only and not investment advice."
	}

	result := &InsightsResult{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Model:       model,
		RiskProfile: normalized.RiskProfile,
		Horizon:     normalized.Horizon,
		Summary:     strings.TrimSpace(parsed.Summary),
		RiskLevel:   riskLevel,
		KeyFindings: normalizeFindings(parsed.KeyFindings),
		Suggestions: normalizeSuggestions(parsed.Suggestions),
		Disclaimer:  disclaimer,
	}

	if id, err := c.saveInsights(result); err != nil {
		c.logger.Warn("failed to save portfolio insights", "err", err)
	} else {
		result.ID = id
	}
	return result, nil
}

func (c *Core) saveInsights(result *InsightsResult) (int64, error) {
	if c.db == nil {
		return 0, NewError(ErrCodeDatabase, "insights history is disabled")
	}
	content, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("marshal insights: %w", err)
	}
	res, err := c.db.Exec(
		"INSERT INTO portfolio_insights (model, risk_profile, horizon, content) VALUES (?, ?, ?, ?)",
		result.Model, result.RiskProfile, result.Horizon, string(content),
	)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "insert portfolio insights", err)
	}
	return res.LastInsertId()
}

// GetInsightsHistory returns up to limit recent analyses, newest first.
func (c *Core) GetInsightsHistory(limit int) ([]InsightsResult, error) {
	if c.db == nil {
		return []InsightsResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.Query(
		"SELECT id, content, created_at FROM portfolio_insights ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query portfolio insights", err)
	}
	defer rows.Close()

	results := []InsightsResult{}
	for rows.Next() {
		var (
			id        int64
			content   string
			createdAt sql.NullString
		)
		if err := rows.Scan(&id, &content, &createdAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan portfolio insights", err)
		}
		var result InsightsResult
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			c.logger.Warn("skipping unreadable insights row", "id", id, "err", err)
			continue
		}
		result.ID = id
		if createdAt.Valid && result.GeneratedAt == "" {
			result.GeneratedAt = createdAt.String
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func normalizeInsightsRequest(req InsightsRequest) (InsightsRequest, error) {
	normalized := req
	normalized.APIKey = strings.TrimSpace(req.APIKey)
	if normalized.APIKey == "" {
		return InsightsRequest{}, NewError(ErrCodeValidation, "api_key is required")
	}
	normalized.Model = strings.TrimSpace(req.Model)
	if normalized.Model == "" {
		return InsightsRequest{}, NewError(ErrCodeValidation, "model is required")
	}

	riskProfile, err := normalizeEnum(strings.TrimSpace(req.RiskProfile), "balanced", map[string]struct{}{
		"conservative": {},
		"balanced":     {},
		"aggressive":   {},
	})
	if err != nil {
		return InsightsRequest{}, NewError(ErrCodeValidation, fmt.Sprintf("invalid risk_profile: %s", req.RiskProfile))
	}
	normalized.RiskProfile = riskProfile

	horizon, err := normalizeEnum(strings.TrimSpace(req.Horizon), "medium", map[string]struct{}{
		"short":  {},
		"medium": {},
		"long":   {},
	})
	if err != nil {
		return InsightsRequest{}, NewError(ErrCodeValidation, fmt.Sprintf("invalid horizon: %s", req.Horizon))
	}
	normalized.Horizon = horizon
	normalized.Notes = strings.TrimSpace(req.Notes)
	return normalized, nil
}

func normalizeEnum(raw, fallback string, allowed map[string]struct{}) (string, error) {
	if raw == "" {
		return fallback, nil
	}
	normalized := strings.ToLower(raw)
	if _, ok := allowed[normalized]; !ok {
		return "", fmt.Errorf("unsupported value: %s", raw)
	}
	return normalized, nil
}

func buildInsightsUserPrompt(summary PortfolioSummary, req InsightsRequest) (string, error) {
	input := insightsPromptInput{
		RiskProfile: req.RiskProfile,
		Horizon:     req.Horizon,
		Notes:       req.Notes,
		Total:       summary.Total,
		Holdings:    make([]insightsRowInput, 0, len(summary.Rows)),
		Allocation:  summary.Allocation,
	}
	for _, row := range summary.Rows {
		input.Holdings = append(input.Holdings, insightsRowInput{
			Ticker: row.Ticker,
			Amount: row.Amount,
			Value:  row.Value,
		})
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal insights prompt input: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Analyze this portfolio snapshot and respond per the required JSON schema:\n")
	sb.Write(payload)
	return sb.String(), nil
}

// buildCompletionsEndpoint normalizes a user-supplied base URL into a
// chat-completions endpoint. Bare hosts get https and the /v1 path.
func buildCompletionsEndpoint(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultAIBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	lower := strings.ToLower(trimmed)

	endpoint := ""
	switch {
	case strings.HasSuffix(lower, "/chat/completions"):
		endpoint = trimmed
	case strings.HasSuffix(lower, "/v1"):
		endpoint = trimmed + "/chat/completions"
	default:
		endpoint = trimmed + "/v1/chat/completions"
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", NewError(ErrCodeValidation, fmt.Sprintf("invalid base_url: %s", baseURL))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewError(ErrCodeValidation, fmt.Sprintf("invalid base_url scheme: %s", parsed.Scheme))
	}
	if parsed.Host == "" {
		return "", NewError(ErrCodeValidation, "invalid base_url host")
	}
	return endpoint, nil
}

func isGeminiRequest(endpointURL, model string) bool {
	modelLower := strings.ToLower(strings.TrimSpace(model))
	if strings.HasPrefix(modelLower, "gemini") {
		return true
	}
	endpointLower := strings.ToLower(strings.TrimSpace(endpointURL))
	return strings.Contains(endpointLower, "generativelanguage.googleapis.com")
}

func requestAIChatCompletion(ctx context.Context, req aiChatRequest) (aiChatResult, error) {
	if isGeminiRequest(req.EndpointURL, req.Model) {
		return requestAIByGemini(ctx, req)
	}

	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt},
		},
		"temperature": 0.2,
		"stream":      false,
		"max_tokens":  aiMaxOutputTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return aiChatResult{}, fmt.Errorf("marshal model request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return aiChatResult{}, fmt.Errorf("build model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	client := &http.Client{Timeout: aiRequestTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return aiChatResult{}, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAIResponseBodySize))
	if err != nil {
		return aiChatResult{}, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := parseAIErrorMessage(respBody)
		if message == "" {
			message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return aiChatResult{}, fmt.Errorf("model upstream error: %s", message)
	}

	var decoded struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return aiChatResult{}, fmt.Errorf("decode model response: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return aiChatResult{}, fmt.Errorf("model response content is empty")
	}
	return aiChatResult{Model: decoded.Model, Content: decoded.Choices[0].Message.Content}, nil
}

func requestAIByGemini(ctx context.Context, req aiChatRequest) (aiChatResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(req.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return aiChatResult{}, fmt.Errorf("create gemini client failed: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		},
		Temperature:      genai.Ptr(float32(0.2)),
		MaxOutputTokens:  aiMaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	response, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), config)
	if err != nil {
		return aiChatResult{}, fmt.Errorf("gemini generate content failed: %w", err)
	}
	content := strings.TrimSpace(response.Text())
	if content == "" {
		return aiChatResult{}, fmt.Errorf("model response content is empty")
	}
	model := strings.TrimSpace(response.ModelVersion)
	if model == "" {
		model = req.Model
	}
	return aiChatResult{Model: model, Content: content}, nil
}

func parseAIErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if strings.TrimSpace(payload.Error.Message) != "" {
		return strings.TrimSpace(payload.Error.Message)
	}
	return strings.TrimSpace(payload.Message)
}

func parseInsightsResponse(content string) (*insightsModelResponse, error) {
	cleaned := cleanupModelJSON(content)
	var parsed insightsModelResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, WrapError(ErrCodeInternal, "model returned invalid JSON", err)
	}
	return &parsed, nil
}

// cleanupModelJSON strips Markdown fences and any prose surrounding the
// outermost JSON object. Models do this even when told not to.
func cleanupModelJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			trimmed = strings.Join(lines, "\n")
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return strings.TrimSpace(trimmed)
}

func normalizeFindings(findings []string) []string {
	result := make([]string, 0, len(findings))
	for _, item := range findings {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func normalizeSuggestions(items []InsightSuggestion) []InsightSuggestion {
	result := make([]InsightSuggestion, 0, len(items))
	for _, item := range items {
		action := strings.TrimSpace(strings.ToLower(item.Action))
		if action == "" {
			action = "hold"
		}
		result = append(result, InsightSuggestion{
			Ticker:    strings.ToUpper(strings.TrimSpace(item.Ticker)),
			Action:    action,
			Rationale: strings.TrimSpace(item.Rationale),
		})
	}
	return result
}
