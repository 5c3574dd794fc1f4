// Package task manages the exercises of a day and applies evaluator verdicts
// to them.
package task

import (
	"errors"
	"strings"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
)

var (
	ErrNoActiveItem = errors.New("task: no active item")
	ErrCompleted    = errors.New("task: item already completed")
)

// Answer is a learner submission. Which fields matter depends on the kind.
type Answer struct {
	Text     string   `json:"text,omitempty"`
	Choices  []int    `json:"choices,omitempty"`
	Items    []string `json:"items,omitempty"`
	Messages []string `json:"messages,omitempty"`
	Proof    string   `json:"proof,omitempty"`
}

// String renders the answer for the transcript.
func (a Answer) String() string {
	var parts []string
	if s := strings.TrimSpace(a.Text); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, a.Items...)
	parts = append(parts, a.Messages...)
	if s := strings.TrimSpace(a.Proof); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 && len(a.Choices) > 0 {
		letters := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			if c >= 0 && c < 26 {
				letters[i] = string(rune('A' + c))
			} else {
				letters[i] = "?"
			}
		}
		return strings.Join(letters, ", ")
	}
	return strings.Join(parts, "\n")
}

// State derives the interaction state checked by the completion gate.
func (a Answer) State(kind model.Kind) content.InteractionState {
	st := content.InteractionState{Text: a.Text, ProofText: a.Proof}
	st.Chars = content.CharCount(a.Text)
	for _, m := range a.Messages {
		st.Chars += content.CharCount(m)
	}
	if kind == model.KindQuiz {
		st.Items = len(a.Choices)
	} else {
		for _, s := range a.Items {
			if strings.TrimSpace(s) != "" {
				st.Items++
			}
		}
	}
	if kind == model.KindTranslation && st.Chars == 0 {
		for _, s := range a.Items {
			st.Chars += content.CharCount(s)
		}
	}
	st.Messages = len(a.Messages)
	if st.Messages == 0 && strings.TrimSpace(a.Text) != "" {
		st.Messages = 1
	}
	return st
}

// Item is one exercise of the day together with its progress.
type Item struct {
	ID       string           `json:"id"`
	Content  *content.Item    `json:"content"`
	Status   model.TaskStatus `json:"status"`
	Attempts int              `json:"attempts"`
	Score    *int             `json:"score,omitempty"`
	Feedback string           `json:"feedback,omitempty"`
}

// NewItem wraps normalized content as a pending exercise.
func NewItem(id string, c *content.Item) *Item {
	return &Item{ID: id, Content: c, Status: model.TaskPending}
}

func (it *Item) Kind() model.Kind {
	if it.Content == nil {
		return model.KindWriting
	}
	return it.Content.Kind
}

func (it *Item) Title() string {
	if it.Content == nil {
		return it.ID
	}
	return it.Content.Title
}

func (it *Item) Completed() bool { return it.Status == model.TaskCompleted }

// Degenerate reports whether the item has nothing to render and can only be
// marked done by hand.
func (it *Item) Degenerate() bool { return !it.Content.Renderable() }
