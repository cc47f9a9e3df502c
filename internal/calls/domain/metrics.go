package domain

import (
	"strings"
	"time"
)

// CallMetrics is derived on demand from the event logs plus status. It is
// never stored independently.
type CallMetrics struct {
	DurationSeconds      float64 `json:"durationSeconds"`
	TranscriptLength     int     `json:"transcriptLength"`
	AvgResponseLatencyMs float64 `json:"avgResponseLatencyMs"`
	SentimentScore       float64 `json:"sentimentScore"`
	EngagementScore      float64 `json:"engagementScore"`
	FunctionCallCount    int     `json:"functionCallCount"`
	TransferCount        int     `json:"transferCount"`
	ErrorCount           int     `json:"errorCount"`
}

// Emotion polarity used by the sentiment heuristic. Providers send free-form
// emotion tags on transcript events; unlisted tags are neutral.
var emotionPolarity = map[string]float64{
	"happy":      1,
	"excited":    1,
	"interested": 0.5,
	"curious":    0.5,
	"neutral":    0,
	"confused":   -0.5,
	"frustrated": -1,
	"angry":      -1,
	"annoyed":    -0.75,
}

// ComputeMetrics derives metrics from the call's accumulated logs. It is a
// pure function: same inputs, same output, no I/O.
func ComputeMetrics(call CallContext, status CallStatus, transcripts []TranscriptEvent, functionCalls []FunctionCallEvent, transferCount int, asOf time.Time) CallMetrics {
	m := CallMetrics{
		FunctionCallCount: len(functionCalls),
		TransferCount:     transferCount,
		ErrorCount:        status.ErrorCount,
	}

	if asOf.After(call.StartedAt) {
		m.DurationSeconds = asOf.Sub(call.StartedAt).Seconds()
	}

	for _, t := range transcripts {
		m.TranscriptLength += len(t.Text)
	}

	m.AvgResponseLatencyMs = avgResponseLatencyMs(transcripts)
	m.SentimentScore = sentimentScore(transcripts)
	m.EngagementScore = engagementScore(m.DurationSeconds, transcripts, functionCalls)

	return m
}

// avgResponseLatencyMs averages the gap between consecutive utterances from
// different speakers.
func avgResponseLatencyMs(transcripts []TranscriptEvent) float64 {
	var total float64
	var count int

	for i := 1; i < len(transcripts); i++ {
		prev, cur := transcripts[i-1], transcripts[i]
		if strings.EqualFold(prev.Speaker, cur.Speaker) {
			continue
		}
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap <= 0 {
			continue
		}
		total += float64(gap.Milliseconds())
		count++
	}

	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// sentimentScore maps emotion tags to [-1, 1] weighted by transcript confidence.
func sentimentScore(transcripts []TranscriptEvent) float64 {
	var total, weight float64

	for _, t := range transcripts {
		if len(t.Emotions) == 0 {
			continue
		}
		confidence := t.Confidence
		if confidence <= 0 {
			confidence = 1
		}
		for _, emotion := range t.Emotions {
			polarity, ok := emotionPolarity[strings.ToLower(emotion)]
			if !ok {
				continue
			}
			total += polarity * confidence
			weight += confidence
		}
	}

	if weight == 0 {
		return 0
	}
	return total / weight
}

// engagementScore blends talk density and tool usage into [0, 100].
func engagementScore(durationSeconds float64, transcripts []TranscriptEvent, functionCalls []FunctionCallEvent) float64 {
	if len(transcripts) == 0 && len(functionCalls) == 0 {
		return 0
	}

	minutes := durationSeconds / 60
	if minutes < 1 {
		minutes = 1
	}

	// Roughly: 6 utterances/minute is a lively conversation, each function
	// call signals strong intent.
	density := float64(len(transcripts)) / minutes / 6 * 70
	intent := float64(len(functionCalls)) * 10

	score := density + intent
	if score > 100 {
		score = 100
	}
	return score
}
