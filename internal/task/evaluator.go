package task

import (
	"context"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
)

// Evaluator is the sole authority on answer correctness.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (EvalResult, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, req EvalRequest) (EvalResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, req EvalRequest) (EvalResult, error) {
	return f(ctx, req)
}

// EvalContext carries the kind-specific material the evaluator needs.
type EvalContext struct {
	Source     string                 `json:"source,omitempty"`
	Sources    []string               `json:"sources,omitempty"`
	TargetLang string                 `json:"target_lang,omitempty"`
	Questions  []content.QuizQuestion `json:"questions,omitempty"`
	Prompt     string                 `json:"prompt,omitempty"`
	Scenario   string                 `json:"scenario,omitempty"`
	Steps      []string               `json:"steps,omitempty"`
	Cards      []content.Card         `json:"cards,omitempty"`
}

// EvalRequest is sent to the evaluator for every submission.
type EvalRequest struct {
	Kind        model.Kind  `json:"kind"`
	ItemID      string      `json:"item_id"`
	Answer      Answer      `json:"answer"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"max_attempts"`
	Context     EvalContext `json:"context"`
}

// EvalResult is the evaluator's verdict. CanRetry decides whether a wrong
// answer gets another attempt.
type EvalResult struct {
	Correct       bool   `json:"correct"`
	CanRetry      bool   `json:"can_retry"`
	Score         *int   `json:"score,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
}

func evalContext(c *content.Item) EvalContext {
	var ec EvalContext
	if c == nil {
		return ec
	}
	switch d := c.Content.Data.(type) {
	case *content.TranslationPayload:
		for _, s := range d.Sentences {
			ec.Sources = append(ec.Sources, s.Source)
		}
		if len(d.Sentences) > 0 {
			ec.Source = d.Sentences[0].Source
			ec.TargetLang = d.Sentences[0].TargetLang
		}
	case *content.QuizPayload:
		ec.Questions = d.Questions
	case *content.WritingPayload:
		ec.Prompt = d.Prompt
	case *content.RoleplayPayload:
		ec.Scenario = d.Scenario
		ec.Prompt = d.StarterPrompt
	case *content.ChecklistPayload:
		ec.Steps = d.Steps
		ec.Prompt = d.ProofPrompt
	case *content.CardsPayload:
		ec.Cards = d.Cards
	}
	return ec
}
