package session

import (
	"context"
	"math"
	"strings"
	"text/template"

	"github.com/pavelanni/focusroom/internal/model"
)

// Message IDs shared with the locale files.
const (
	MsgNoLesson        = "notice.no_lesson"
	MsgLoadFailed      = "notice.load_failed"
	MsgEvalUnavailable = "notice.eval_unavailable"
	MsgCloseFailed     = "notice.close_failed"
	MsgDegenerate      = "notice.degenerate"
	MsgCorrect         = "eval.correct"
	MsgRejected        = "eval.rejected"
	MsgFallback        = "eval.fallback"
	MsgDone            = "eval.done"
	MsgRetry           = "hint.retry"
	MsgSummaryPrefix   = "summary."
)

// TextFunc renders a message by ID. The i18n bundle provides the real one.
type TextFunc func(ctx context.Context, id string, data map[string]any) string

var defaultMessages = map[string]string{
	MsgNoLesson:          "Today's lesson is not available. Let's go straight to the exercises.",
	MsgLoadFailed:        "Today's content could not be loaded.",
	MsgEvalUnavailable:   "Automatic checking is unavailable right now, so your answer was accepted.",
	MsgCloseFailed:       "The day summary was prepared locally.",
	MsgDegenerate:        "This exercise could not be displayed. Mark it done to continue.",
	MsgCorrect:           "Correct!",
	MsgRejected:          "Not quite.{{if .Answer}} The correct answer: {{.Answer}}{{end}}",
	MsgFallback:          "Answer accepted.",
	MsgDone:              "Marked as done.",
	MsgRetry:             "Not quite, try again.",
	"summary.excellent":  "Excellent work today! Average score: {{.Avg}}.",
	"summary.good":       "Good job! Average score: {{.Avg}}.",
	"summary.keep_going": "Nice try! Keep practising tomorrow.",
}

// DefaultText renders the built-in English messages.
func DefaultText(_ context.Context, id string, data map[string]any) string {
	src, ok := defaultMessages[id]
	if !ok {
		return id
	}
	if !strings.Contains(src, "{{") {
		return src
	}
	tmpl, err := template.New(id).Parse(src)
	if err != nil {
		return src
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return src
	}
	return b.String()
}

// Summarize computes the day summary from the raw counts. The message is
// left empty.
func Summarize(req CloseRequest) model.DaySummary {
	s := model.DaySummary{
		DayIndex:       req.DayIndex,
		ItemsCompleted: req.ItemsCompleted,
		ItemsTotal:     req.ItemsTotal,
		ScoreSum:       req.ScoreSum,
	}
	if req.ItemsCompleted > 0 {
		s.AvgScore = req.ScoreSum / req.ItemsCompleted
	}
	if req.ItemsTotal > 0 {
		s.CompletionRate = int(math.Round(float64(req.ItemsCompleted) / float64(req.ItemsTotal) * 100))
	}
	return s
}

// Tier buckets an average score for the summary message.
func Tier(avg int) string {
	switch {
	case avg >= 80:
		return "excellent"
	case avg >= 60:
		return "good"
	default:
		return "keep_going"
	}
}

// SummaryMessage renders the summary text for s.
func SummaryMessage(ctx context.Context, text TextFunc, s model.DaySummary) string {
	return text(ctx, MsgSummaryPrefix+Tier(s.AvgScore), map[string]any{
		"Avg":       s.AvgScore,
		"Completed": s.ItemsCompleted,
		"Total":     s.ItemsTotal,
		"Rate":      s.CompletionRate,
	})
}
