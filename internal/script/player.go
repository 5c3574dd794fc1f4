// Package script sequences the narrated teaching steps of a day.
package script

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/focusroom/internal/model"
)

// DefaultMaxChars is the longest text sent for synthesis.
const DefaultMaxChars = 2000

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Clip is the most recently synthesized narration.
type Clip struct {
	StepID string
	Text   string
	Audio  []byte
	At     time.Time
}

// Player holds the ordered steps of a script and a cursor into them.
// Narration is best-effort: a failed synthesis never affects the cursor.
type Player struct {
	mu        sync.Mutex
	steps     []model.ScriptStep
	cursor    int
	announced bool
	muted     bool
	playing   bool
	gen       uint64
	cancel    context.CancelFunc
	clip      *Clip

	synth    Synthesizer
	maxChars int
}

// NewPlayer returns a player over steps ordered by position. A nil synth
// disables narration.
func NewPlayer(steps []model.ScriptStep, synth Synthesizer, maxChars int) *Player {
	s := make([]model.ScriptStep, len(steps))
	copy(s, steps)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Position < s[j].Position })
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Player{steps: s, synth: synth, maxChars: maxChars}
}

// Len returns the number of steps.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// Steps returns a copy of the steps.
func (p *Player) Steps() []model.ScriptStep {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ScriptStep, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *Player) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Current returns the step under the cursor.
func (p *Player) Current() (model.ScriptStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor < 0 || p.cursor >= len(p.steps) {
		return model.ScriptStep{}, false
	}
	return p.steps[p.cursor], true
}

// Advance moves the cursor to index. Out of range indexes are ignored.
func (p *Player) Advance(index int) (model.ScriptStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.steps) {
		return model.ScriptStep{}, false
	}
	p.cursor = index
	return p.steps[index], true
}

// HasMore reports whether a non-transition step follows the cursor.
func (p *Player) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextTeach() >= 0
}

// NextTeach moves the cursor to the next non-transition step.
func (p *Player) NextTeach() (model.ScriptStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.nextTeach()
	if i < 0 {
		return model.ScriptStep{}, false
	}
	p.cursor = i
	return p.steps[i], true
}

func (p *Player) nextTeach() int {
	for i := p.cursor + 1; i < len(p.steps); i++ {
		if p.steps[i].Type != model.StepTransition {
			return i
		}
	}
	return -1
}

// TakeTransition returns the first transition step, wherever it sits. It
// yields the step only once per player.
func (p *Player) TakeTransition() (model.ScriptStep, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.announced {
		return model.ScriptStep{}, false
	}
	for _, s := range p.steps {
		if s.Type == model.StepTransition {
			p.announced = true
			return s, true
		}
	}
	return model.ScriptStep{}, false
}

// SetMuted toggles narration. Muting stops any clip in flight.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	if muted {
		p.Stop()
	}
}

func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// IsPlaying reports whether a narration request is in flight.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Clip returns the last synthesized narration.
func (p *Player) Clip() (Clip, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip == nil {
		return Clip{}, false
	}
	return *p.clip, true
}

// Narrate synthesizes step's text, replacing any narration in flight. Muted
// players and players without a synthesizer do nothing.
func (p *Player) Narrate(ctx context.Context, step model.ScriptStep) error {
	p.mu.Lock()
	if p.muted || p.synth == nil {
		p.mu.Unlock()
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.playing = true
	text := Truncate(step.Text, p.maxChars)
	p.mu.Unlock()

	audio, err := p.synth.Synthesize(ctx, text)

	p.mu.Lock()
	defer p.mu.Unlock()
	cancel()
	if gen != p.gen {
		// Superseded or stopped.
		return err
	}
	p.playing = false
	p.cancel = nil
	if err != nil {
		return err
	}
	p.clip = &Clip{StepID: step.ID, Text: text, Audio: audio, At: time.Now()}
	return nil
}

// Stop aborts the narration in flight.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.playing = false
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
