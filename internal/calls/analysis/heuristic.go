package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
)

// Keyword groups mapped to qualification dimensions. Deliberately crude; this
// analyzer exists so the pipeline works without an API key, not to compete
// with the model.
var dimensionKeywords = map[string][]string{
	"pain":      {"problem", "issue", "broken", "leaking", "urgent", "emergency", "frustrat"},
	"authority": {"i decide", "my decision", "i'm the owner", "i own", "my house", "my company"},
	"need":      {"need", "looking for", "want to", "interested in", "quote", "estimate"},
	"timeline":  {"today", "tomorrow", "this week", "asap", "soon", "next month"},
	"budget":    {"budget", "afford", "price", "cost", "how much", "pay"},
	"fit":       {"service area", "you guys do", "do you offer", "perfect", "exactly"},
}

var urgentKeywords = []string{"cancel", "lawyer", "legal", "complaint", "manager", "refund"}

// HeuristicAnalyzer is the keyword-based fallback Analyzer.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer creates the fallback analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

func (a *HeuristicAnalyzer) AnalyzeTranscript(_ context.Context, req activity.AnalysisRequest) (activity.AnalysisResult, error) {
	var text strings.Builder
	for _, t := range req.Window {
		if strings.EqualFold(t.Speaker, "customer") || strings.EqualFold(t.Speaker, "caller") {
			text.WriteString(strings.ToLower(t.Text))
			text.WriteString(" ")
		}
	}
	spoken := text.String()

	q := domain.Qualification{}
	hits := 0
	assess := func(target *int, keywords []string) {
		for _, kw := range keywords {
			if strings.Contains(spoken, kw) {
				*target = 7
				hits++
				return
			}
		}
	}
	assess(&q.Pain, dimensionKeywords["pain"])
	assess(&q.Authority, dimensionKeywords["authority"])
	assess(&q.Need, dimensionKeywords["need"])
	assess(&q.Timeline, dimensionKeywords["timeline"])
	assess(&q.Budget, dimensionKeywords["budget"])
	assess(&q.Fit, dimensionKeywords["fit"])

	result := activity.AnalysisResult{
		Qualification: q,
		Score:         req.CurrentScore,
		Sentiment:     sentimentLabel(req.Window),
	}
	if hits > 0 {
		q.Overall = float64(q.Pain+q.Authority+q.Need+q.Timeline+q.Budget+q.Fit) / 6
		result.Qualification = q
		score := req.CurrentScore + float64(hits)
		if score > 10 {
			score = 10
		}
		result.Score = score
	}

	for _, t := range req.Window {
		lower := strings.ToLower(t.Text)
		for _, kw := range urgentKeywords {
			if strings.Contains(lower, kw) {
				result.UrgentActions = append(result.UrgentActions, "review mention of "+kw)
				break
			}
		}
	}
	return result, nil
}

func (a *HeuristicAnalyzer) GenerateSummary(_ context.Context, req activity.SummaryRequest) (activity.SummaryResult, error) {
	summary := fmt.Sprintf("Call with %s ended %s after %d exchanges; lead score %.1f.",
		req.Call.Phone, req.Outcome, len(req.Transcripts), req.Score)

	var highlights []string
	for _, fc := range req.FunctionCalls {
		highlights = append(highlights, "action: "+fc.Name)
	}
	return activity.SummaryResult{Summary: summary, Highlights: highlights}, nil
}

func (a *HeuristicAnalyzer) QualityCheck(_ context.Context, req activity.QualityCheckRequest) (activity.QualityCheckResult, error) {
	result := activity.QualityCheckResult{
		QualityScore: 5,
		Notes:        "heuristic assessment",
	}
	if req.Qualification.Assessed() {
		result.QualityScore = 7
	}
	if req.Score >= 6 {
		result.FollowUpNeeded = true
		result.FollowUpDelay = 24 * time.Hour
	}
	return result, nil
}

func sentimentLabel(window []domain.TranscriptEvent) string {
	var total float64
	var n int
	for _, t := range window {
		for _, e := range t.Emotions {
			switch strings.ToLower(e) {
			case "happy", "excited", "interested", "curious":
				total++
				n++
			case "frustrated", "angry", "annoyed", "confused":
				total--
				n++
			default:
				n++
			}
		}
	}
	switch {
	case n == 0:
		return "neutral"
	case total/float64(n) > 0.25:
		return "positive"
	case total/float64(n) < -0.25:
		return "negative"
	default:
		return "neutral"
	}
}

var _ activity.Analyzer = (*HeuristicAnalyzer)(nil)
