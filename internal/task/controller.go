package task

import (
	"context"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
)

// Verdict is what a submission did to the active item.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted" // correct; completed with a score
	VerdictRetry    Verdict = "retry"    // wrong; another attempt allowed
	VerdictRejected Verdict = "rejected" // wrong; no attempts left, completed with 0
	VerdictFallback Verdict = "fallback" // evaluator unavailable; completed with the neutral score
	VerdictManual   Verdict = "manual"   // degenerate item marked done, no score
	VerdictIgnored  Verdict = "ignored"  // stale or duplicate; nothing changed
)

// Outcome reports the effect of a resolved submission.
type Outcome struct {
	Verdict       Verdict `json:"verdict"`
	ItemID        string  `json:"item_id"`
	Attempt       int     `json:"attempt"`
	Score         *int    `json:"score,omitempty"`
	Feedback      string  `json:"feedback,omitempty"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
}

// Completed reports whether the outcome completed the item.
func (o Outcome) Completed() bool {
	switch o.Verdict {
	case VerdictAccepted, VerdictRejected, VerdictFallback, VerdictManual:
		return true
	}
	return false
}

// Config holds the scoring parameters of a controller.
type Config struct {
	MaxAttempts         int
	NeutralScore        int
	DefaultCorrectScore int
}

// Controller tracks the items of a day and the active one. It is not safe
// for concurrent use; the session serializes access.
type Controller struct {
	items    []*Item
	active   int
	scoreSum int
	cfg      Config
}

// NewController returns a controller over items with none active.
func NewController(items []*Item, cfg Config) *Controller {
	return &Controller{items: items, active: -1, cfg: cfg}
}

// Items returns copies of all items in order.
func (c *Controller) Items() []Item {
	out := make([]Item, len(c.items))
	for i, it := range c.items {
		out[i] = *it
	}
	return out
}

func (c *Controller) Total() int { return len(c.items) }

func (c *Controller) Completed() int {
	n := 0
	for _, it := range c.items {
		if it.Completed() {
			n++
		}
	}
	return n
}

func (c *Controller) ScoreSum() int { return c.scoreSum }

// Current returns a copy of the active item.
func (c *Controller) Current() (Item, bool) {
	if c.active < 0 {
		return Item{}, false
	}
	return *c.items[c.active], true
}

// HasPending reports whether an unattempted item remains.
func (c *Controller) HasPending() bool {
	return c.nextPending() >= 0
}

// Activate makes the next pending item active on its first attempt.
func (c *Controller) Activate() (Item, bool) {
	i := c.nextPending()
	if i < 0 {
		c.active = -1
		return Item{}, false
	}
	c.active = i
	it := c.items[i]
	if it.Attempts < 1 {
		it.Attempts = 1
	}
	return *it, true
}

// Deactivate clears the active item.
func (c *Controller) Deactivate() { c.active = -1 }

func (c *Controller) nextPending() int {
	for i, it := range c.items {
		if !it.Completed() {
			return i
		}
	}
	return -1
}

// Check runs the completion gate of the active item against answer.
func (c *Controller) Check(answer Answer) (content.Gate, error) {
	it, err := c.activeItem()
	if err != nil {
		return content.Gate{}, err
	}
	if it.Content == nil || it.Content.Validation == nil {
		return content.Gate{OK: true}, nil
	}
	return content.CheckValidationState(it.Kind(), *it.Content.Validation, answer.State(it.Kind())), nil
}

// BuildRequest prepares the evaluator request for answer on the active item.
func (c *Controller) BuildRequest(answer Answer) (EvalRequest, error) {
	it, err := c.activeItem()
	if err != nil {
		return EvalRequest{}, err
	}
	return EvalRequest{
		Kind:        it.Kind(),
		ItemID:      it.ID,
		Answer:      answer,
		Attempt:     it.Attempts,
		MaxAttempts: c.cfg.MaxAttempts,
		Context:     evalContext(it.Content),
	}, nil
}

// Resolve applies an evaluator result to the item the request was built
// for. A result for a completed item or an earlier attempt changes nothing.
// An evaluator error accepts the answer with the neutral score.
func (c *Controller) Resolve(itemID string, attempt int, res EvalResult, evalErr error) Outcome {
	it := c.find(itemID)
	if it == nil || it.Completed() || attempt != it.Attempts {
		return Outcome{Verdict: VerdictIgnored, ItemID: itemID, Attempt: attempt}
	}
	out := Outcome{ItemID: it.ID, Attempt: it.Attempts, Feedback: res.Feedback, CorrectAnswer: res.CorrectAnswer}
	switch {
	case evalErr != nil:
		out.Verdict = VerdictFallback
		out.Feedback = ""
		out.CorrectAnswer = ""
		out.Score = c.complete(it, c.cfg.NeutralScore)
	case res.Correct:
		score := c.cfg.DefaultCorrectScore
		if res.Score != nil {
			score = min(max(*res.Score, 0), 100)
		}
		out.Verdict = VerdictAccepted
		out.Score = c.complete(it, score)
	case res.CanRetry:
		it.Attempts++
		it.Feedback = res.Feedback
		out.Verdict = VerdictRetry
		out.Attempt = it.Attempts
	default:
		out.Verdict = VerdictRejected
		out.Score = c.complete(it, 0)
	}
	if out.Feedback != "" {
		it.Feedback = out.Feedback
	}
	return out
}

// SubmitAnswer evaluates answer on the active item and applies the result.
func (c *Controller) SubmitAnswer(ctx context.Context, ev Evaluator, answer Answer) (Outcome, error) {
	req, err := c.BuildRequest(answer)
	if err != nil {
		return Outcome{}, err
	}
	res, evalErr := ev.Evaluate(ctx, req)
	return c.Resolve(req.ItemID, req.Attempt, res, evalErr), nil
}

// MarkDone completes the active item without a score.
func (c *Controller) MarkDone() (Outcome, error) {
	it, err := c.activeItem()
	if err != nil {
		return Outcome{}, err
	}
	it.Status = model.TaskCompleted
	return Outcome{Verdict: VerdictManual, ItemID: it.ID, Attempt: it.Attempts}, nil
}

func (c *Controller) complete(it *Item, score int) *int {
	it.Status = model.TaskCompleted
	it.Score = &score
	c.scoreSum += score
	s := score
	return &s
}

func (c *Controller) activeItem() (*Item, error) {
	if c.active < 0 {
		return nil, ErrNoActiveItem
	}
	it := c.items[c.active]
	if it.Completed() {
		return nil, ErrCompleted
	}
	return it, nil
}

func (c *Controller) find(id string) *Item {
	for _, it := range c.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}
