// Package analysis implements the Analyzer activity: transcript analysis,
// call summaries, and post-call quality checks. The Gemini-backed analyzer is
// used when an API key is configured; otherwise a keyword heuristic keeps the
// pipeline functional.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"

	"google.golang.org/genai"
)

// New picks the analyzer implementation from configuration.
func New(ctx context.Context, cfg config.AnalysisConfig, log *logger.Logger) (activity.Analyzer, error) {
	if !cfg.IsAnalysisEnabled() {
		log.Info("transcript analysis using heuristic analyzer, no API key configured")
		return NewHeuristicAnalyzer(), nil
	}
	return NewGeminiAnalyzer(ctx, cfg.GetGeminiAPIKey(), cfg.GetAnalysisModel(), log)
}

// GeminiAnalyzer runs analysis through the Gemini API with JSON responses.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	log    *logger.Logger

	// fallback answers when the model returns something unparseable after
	// the gateway's retries are spent upstream.
	fallback *HeuristicAnalyzer
}

// NewGeminiAnalyzer creates an analyzer bound to one model.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, log *logger.Logger) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create genai client", err)
	}
	return &GeminiAnalyzer{
		client:   client,
		model:    model,
		log:      log,
		fallback: NewHeuristicAnalyzer(),
	}, nil
}

func (a *GeminiAnalyzer) AnalyzeTranscript(ctx context.Context, req activity.AnalysisRequest) (activity.AnalysisResult, error) {
	prompt := buildAnalysisPrompt(req)

	var result activity.AnalysisResult
	if err := a.generateJSON(ctx, prompt, &result); err != nil {
		return activity.AnalysisResult{}, err
	}

	clampQualification(&result.Qualification)
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 10 {
		result.Score = 10
	}
	return result, nil
}

func (a *GeminiAnalyzer) GenerateSummary(ctx context.Context, req activity.SummaryRequest) (activity.SummaryResult, error) {
	prompt := buildSummaryPrompt(req)

	var result activity.SummaryResult
	if err := a.generateJSON(ctx, prompt, &result); err != nil {
		return activity.SummaryResult{}, err
	}
	if result.Summary == "" {
		return a.fallback.GenerateSummary(ctx, req)
	}
	return result, nil
}

func (a *GeminiAnalyzer) QualityCheck(ctx context.Context, req activity.QualityCheckRequest) (activity.QualityCheckResult, error) {
	prompt := buildQualityPrompt(req)

	var result activity.QualityCheckResult
	if err := a.generateJSON(ctx, prompt, &result); err != nil {
		return activity.QualityCheckResult{}, err
	}
	return result, nil
}

// generateJSON sends one prompt and decodes the JSON response body. Transport
// and decode failures are both reported as unavailable so the gateway retries.
func (a *GeminiAnalyzer) generateJSON(ctx context.Context, prompt string, out any) error {
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "gemini request failed", err).WithOp("analysis.generate")
	}

	text := resp.Text()
	if text == "" {
		return apperr.New(apperr.KindUnavailable, "gemini returned empty response").WithOp("analysis.generate")
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "gemini returned unparseable JSON", err).WithOp("analysis.generate")
	}
	return nil
}

// extractJSON strips markdown fences the model sometimes wraps around JSON.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

func clampQualification(q *domain.Qualification) {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 10 {
			return 10
		}
		return v
	}
	q.Pain = clamp(q.Pain)
	q.Authority = clamp(q.Authority)
	q.Need = clamp(q.Need)
	q.Timeline = clamp(q.Timeline)
	q.Budget = clamp(q.Budget)
	q.Fit = clamp(q.Fit)
	if q.Overall < 0 {
		q.Overall = 0
	}
	if q.Overall > 10 {
		q.Overall = 10
	}
}

func buildAnalysisPrompt(req activity.AnalysisRequest) string {
	var sb strings.Builder
	sb.WriteString("You are scoring a live sales call. Analyze the recent transcript window and update the lead qualification.\n")
	sb.WriteString("Score each dimension 1-10, 0 if not assessable from this window. Only include dimensions you can assess.\n\n")
	fmt.Fprintf(&sb, "Current lead score: %.1f\n", req.CurrentScore)
	fmt.Fprintf(&sb, "Current qualification: %+v\n\n", req.CurrentQualification)
	sb.WriteString("Recent transcript:\n")
	for _, t := range req.Window {
		fmt.Fprintf(&sb, "[%s] %s\n", t.Speaker, t.Text)
	}
	sb.WriteString(`
Respond with JSON only:
{"qualification":{"pain":0,"authority":0,"need":0,"timeline":0,"budget":0,"fit":0,"overall":0},"score":0,"sentiment":"positive|neutral|negative","urgentActions":[]}
urgentActions lists actions needing immediate human attention (cancellation threat, legal mention, escalation demand). Usually empty.`)
	return sb.String()
}

func buildSummaryPrompt(req activity.SummaryRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize this %s sales call in 2-4 sentences for a CRM record.\n\n", req.Outcome)
	fmt.Fprintf(&sb, "Final lead score: %.1f\n", req.Score)
	sb.WriteString("Transcript:\n")
	for _, t := range req.Transcripts {
		fmt.Fprintf(&sb, "[%s] %s\n", t.Speaker, t.Text)
	}
	if len(req.FunctionCalls) > 0 {
		sb.WriteString("\nActions taken during the call:\n")
		for _, fc := range req.FunctionCalls {
			fmt.Fprintf(&sb, "- %s\n", fc.Name)
		}
	}
	sb.WriteString("\nRespond with JSON only: {\"summary\":\"...\",\"highlights\":[\"...\"]}")
	return sb.String()
}

func buildQualityPrompt(req activity.QualityCheckRequest) string {
	var sb strings.Builder
	sb.WriteString("Assess the quality of this completed sales call and decide whether a follow-up is warranted.\n\n")
	fmt.Fprintf(&sb, "Lead score: %.1f\n", req.Score)
	fmt.Fprintf(&sb, "Qualification: %+v\n", req.Qualification)
	fmt.Fprintf(&sb, "Summary: %s\n", req.Summary)
	sb.WriteString(`
Respond with JSON only:
{"qualityScore":0,"scoreAdjustment":0,"followUpNeeded":false,"followUpDelay":0,"notes":""}
qualityScore is 0-10. scoreAdjustment nudges the lead score by at most +/-1. followUpDelay is in nanoseconds.`)
	return sb.String()
}

var _ activity.Analyzer = (*GeminiAnalyzer)(nil)
