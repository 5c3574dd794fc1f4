package model

import (
	"context"
	"time"
)

// Phase is one discrete state of the day-session state machine.
type Phase string

const (
	PhaseLoading  Phase = "loading"
	PhaseIntro    Phase = "intro"
	PhaseTeach    Phase = "teach"
	PhaseTask     Phase = "task"
	PhaseEvaluate Phase = "evaluate"
	PhaseRetry    Phase = "retry"
	PhaseSummary  Phase = "summary"
	PhaseEnd      Phase = "end"
)

// AcceptsInput reports whether learner answers are accepted in the phase.
func (p Phase) AcceptsInput() bool {
	return p == PhaseTask || p == PhaseRetry
}

// Kind is the exercise-type tag of a task item.
type Kind string

const (
	KindQuiz        Kind = "quiz"
	KindTranslation Kind = "translation"
	KindWriting     Kind = "writing"
	KindRoleplay    Kind = "roleplay"
	KindCards       Kind = "cards"
	KindChecklist   Kind = "checklist"
	KindLesson      Kind = "lesson"
	KindBriefing    Kind = "briefing"
	KindFeedback    Kind = "feedback"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{
	KindQuiz, KindTranslation, KindWriting, KindRoleplay, KindCards,
	KindChecklist, KindLesson, KindBriefing, KindFeedback,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ReadOnly reports whether the kind is displayed without requiring learner input.
func (k Kind) ReadOnly() bool {
	return k == KindLesson || k == KindBriefing || k == KindFeedback
}

// StepType classifies a script step.
type StepType string

const (
	StepIntro      StepType = "intro"
	StepTeach      StepType = "teach"
	StepTransition StepType = "transition"
)

// ScriptStep is one unit of narrated teaching content.
type ScriptStep struct {
	ID       string   `json:"id"`
	Type     StepType `json:"type"`
	Text     string   `json:"text"`
	Position int      `json:"position"`
}

// TaskStatus is the completion state of a task item.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// EntryType classifies a step log entry.
type EntryType string

const (
	EntryNarration  EntryType = "narration"
	EntryLessonNote EntryType = "lesson-note"
	EntryTaskPrompt EntryType = "task-prompt"
	EntryUserAnswer EntryType = "user-answer"
	EntryEvaluation EntryType = "evaluation"
	EntryHint       EntryType = "hint"
	EntrySummary    EntryType = "summary"
)

// DomainParams describe what a day is about. They are passed through to the
// content generator untouched.
type DomainParams struct {
	Domain         string `json:"domain" yaml:"domain"`
	TargetLanguage string `json:"target_language,omitempty" yaml:"target_language,omitempty"`
	Track          string `json:"track,omitempty" yaml:"track,omitempty"`
	Level          string `json:"level,omitempty" yaml:"level,omitempty"`
	Category       string `json:"category,omitempty" yaml:"category,omitempty"`
	MinutesPerDay  int    `json:"minutes_per_day,omitempty" yaml:"minutes_per_day,omitempty"`
	DayTitle       string `json:"day_title,omitempty" yaml:"day_title,omitempty"`
}

// EngineConfig holds runtime session parameters set via CLI flags.
type EngineConfig struct {
	MaxAttempts         int           // sent to the evaluator, which owns the retry decision
	NeutralScore        int           // score given when the evaluator is unavailable
	DefaultCorrectScore int           // score for a correct verdict without a score
	TransitionDelay     time.Duration // pause between the transition announcement and the first task
	NarrationMaxChars   int
	CacheTTL            time.Duration
	Muted               bool
	Lang                string
	BasePath            string // URL prefix for sub-path deployments (e.g. "/hu")
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:         3,
		NeutralScore:        70,
		DefaultCorrectScore: 80,
		TransitionDelay:     1500 * time.Millisecond,
		NarrationMaxChars:   2000,
		CacheTTL:            time.Hour,
		Lang:                "hu",
	}
}

// PhaseChange records a single phase transition.
type PhaseChange struct {
	From Phase     `json:"from" yaml:"from"`
	To   Phase     `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
}

// DaySummary is the result of closing a day.
type DaySummary struct {
	DayIndex       int    `json:"day_index" yaml:"day_index"`
	ItemsCompleted int    `json:"items_completed" yaml:"items_completed"`
	ItemsTotal     int    `json:"items_total" yaml:"items_total"`
	ScoreSum       int    `json:"score_sum" yaml:"score_sum"`
	AvgScore       int    `json:"avg_score" yaml:"avg_score"`
	CompletionRate int    `json:"completion_rate" yaml:"completion_rate"`
	Message        string `json:"message" yaml:"message"`
	Local          bool   `json:"local,omitempty" yaml:"local,omitempty"`
}

// SessionRecord is the archived form of a finished (or reset) session.
type SessionRecord struct {
	ID             string     `json:"id" yaml:"id"`
	RoomID         string     `json:"room_id" yaml:"room_id"`
	DayIndex       int        `json:"day_index" yaml:"day_index"`
	Phase          Phase      `json:"phase" yaml:"phase"`
	ScoreSum       int        `json:"score_sum" yaml:"score_sum"`
	ItemsCompleted int        `json:"items_completed" yaml:"items_completed"`
	ItemsTotal     int        `json:"items_total" yaml:"items_total"`
	SummaryMessage string     `json:"summary_message,omitempty" yaml:"summary_message,omitempty"`
	StartedAt      time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
