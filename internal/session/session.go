// Package session drives one learner through a day: it owns the phase state
// machine, seeds the script player and the task controller from normalized
// content, and records everything in the step log.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/focusroom/internal/cache"
	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/script"
	"github.com/pavelanni/focusroom/internal/steplog"
	"github.com/pavelanni/focusroom/internal/task"
)

var (
	ErrBusy     = errors.New("session: another transition is in progress")
	ErrPhase    = errors.New("session: command not allowed in this phase")
	ErrStale    = errors.New("session: result arrived after the session moved on")
	ErrClosed   = errors.New("session: closed")
	ErrNotFound = errors.New("session: not found")
)

var errNoEvaluator = errors.New("session: no evaluator")

// Deps are the collaborators of a session. Only Loader is required for a
// useful session; every other dependency degrades gracefully when nil.
type Deps struct {
	Loader    Loader
	Closer    Closer
	Evaluator task.Evaluator
	Synth     script.Synthesizer
	Cache     cache.Cache
	Archiver  Archiver
	Text      TextFunc
	Logger    *slog.Logger
	Now       func() time.Time
}

// Controller is one day session. All methods are safe for concurrent use;
// at most one transition is in flight at a time.
type Controller struct {
	id       string
	roomID   string
	dayIndex int
	params   model.DomainParams
	cfg      model.EngineConfig
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time
	text     TextFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	phase     model.Phase
	history   []model.PhaseChange
	loading   bool
	epoch     uint64
	closed    bool
	lessonMD  string
	player    *script.Player
	tasks     *task.Controller
	log       *steplog.Log
	outcome   *task.Outcome
	notice    string
	summary   *model.DaySummary
	startedAt time.Time
	endedAt   *time.Time

	dispatchMu sync.Mutex
	observers  []observer
	nextObs    int
	pending    []Event
	seq        uint64
}

// New returns a session in the loading phase. Call Start to load the day.
func New(id, roomID string, dayIndex int, params model.DomainParams, cfg model.EngineConfig, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Text == nil {
		deps.Text = DefaultText
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:        id,
		roomID:    roomID,
		dayIndex:  dayIndex,
		params:    params,
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		now:       deps.Now,
		text:      deps.Text,
		ctx:       ctx,
		cancel:    cancel,
		phase:     model.PhaseLoading,
		log:       steplog.NewWithClock(deps.Now),
		player:    script.NewPlayer(nil, nil, cfg.NarrationMaxChars),
		tasks:     task.NewController(nil, taskConfig(cfg)),
		startedAt: deps.Now(),
	}
	c.player.SetMuted(cfg.Muted)
	return c
}

func taskConfig(cfg model.EngineConfig) task.Config {
	return task.Config{
		MaxAttempts:         cfg.MaxAttempts,
		NeutralScore:        cfg.NeutralScore,
		DefaultCorrectScore: cfg.DefaultCorrectScore,
	}
}

func (c *Controller) ID() string { return c.id }

// Log returns the step log. It is append-only; readers may use it freely.
func (c *Controller) Log() *steplog.Log { return c.log }

func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Phases returns the recorded phase sequence, starting with loading.
func (c *Controller) Phases() []model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.Phase{model.PhaseLoading}
	for _, h := range c.history {
		out = append(out, h.To)
	}
	return out
}

// Clip returns the last narration audio.
func (c *Controller) Clip() (script.Clip, bool) {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	return p.Clip()
}

// SetMuted toggles narration for the rest of the session.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.cfg.Muted = muted
	p := c.player
	c.mu.Unlock()
	p.SetMuted(muted)
}

// Start loads the day and moves out of loading. Load failures are not
// returned: the session degrades to task-only or straight to summary.
func (c *Controller) Start(ctx context.Context) error {
	defer c.flush()
	c.mu.Lock()
	if c.phase != model.PhaseLoading || len(c.history) > 0 {
		c.mu.Unlock()
		return ErrPhase
	}
	epoch, err := c.begin()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	d, loadErr := c.loadDay(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStale
	}
	if loadErr != nil {
		c.logger.Warn("day content unavailable", "session", c.id, "room", c.roomID, "day", c.dayIndex, "error", loadErr)
		c.setNotice(ctx, MsgLoadFailed)
		d = day{}
	}
	c.lessonMD = d.LessonMarkdown
	c.player = script.NewPlayer(d.Script, c.deps.Synth, c.cfg.NarrationMaxChars)
	c.player.SetMuted(c.cfg.Muted)
	c.tasks = task.NewController(d.taskItems(), taskConfig(c.cfg))
	c.logger.Info("day loaded", "session", c.id, "room", c.roomID, "day", c.dayIndex,
		"tasks", len(d.Tasks), "steps", len(d.Script))

	first := firstTeaching(d.Script)
	switch {
	case first < 0 && len(d.Tasks) == 0:
		c.mu.Unlock()
		return c.finishDay(ctx, epoch)
	case first < 0:
		c.setNotice(ctx, MsgNoLesson)
		c.appendLog(model.EntryLessonNote, c.text(ctx, MsgNoLesson, nil), steplog.Meta{})
		c.mu.Unlock()
		return c.beginTasks(ctx, epoch)
	}
	step, _ := c.player.Advance(first)
	c.setPhase(model.PhaseIntro)
	c.appendLog(model.EntryNarration, step.Text, steplog.Meta{})
	c.narrate(step, epoch)
	c.loading = false
	c.mu.Unlock()
	return nil
}

// firstTeaching returns the index of the first non-transition step, or -1.
func firstTeaching(steps []model.ScriptStep) int {
	for i, s := range steps {
		if s.Type != model.StepTransition {
			return i
		}
	}
	return -1
}

// Advance performs the single forward command of the non-input phases.
func (c *Controller) Advance(ctx context.Context) error {
	defer c.flush()
	c.mu.Lock()
	epoch, err := c.begin()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	switch c.phase {
	case model.PhaseIntro:
		if c.lessonMD != "" {
			c.appendLog(model.EntryLessonNote, c.lessonMD, steplog.Meta{})
		}
		c.setPhase(model.PhaseTeach)
		if step, ok := c.player.NextTeach(); ok {
			c.appendLog(model.EntryNarration, step.Text, steplog.Meta{})
			c.narrate(step, epoch)
		}
	case model.PhaseTeach:
		if step, ok := c.player.NextTeach(); ok {
			c.appendLog(model.EntryNarration, step.Text, steplog.Meta{})
			c.narrate(step, epoch)
			break
		}
		c.mu.Unlock()
		return c.beginTasks(ctx, epoch)
	case model.PhaseEvaluate:
		if c.tasks.HasPending() {
			c.activateNext()
			break
		}
		c.mu.Unlock()
		return c.finishDay(ctx, epoch)
	case model.PhaseSummary:
		c.mu.Unlock()
		return c.endDay(ctx, epoch)
	default:
		phase := c.phase
		c.loading = false
		c.mu.Unlock()
		return fmt.Errorf("%w: advance in %s", ErrPhase, phase)
	}
	c.loading = false
	c.mu.Unlock()
	return nil
}

// Submit checks answer against the active item's interaction rules and
// sends it to the evaluator. Submitting in retry implies the retry command.
func (c *Controller) Submit(ctx context.Context, answer task.Answer) (task.Outcome, error) {
	defer c.flush()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return task.Outcome{}, ErrClosed
	}
	if c.loading {
		c.mu.Unlock()
		return task.Outcome{}, ErrBusy
	}
	if !c.phase.AcceptsInput() {
		phase := c.phase
		c.mu.Unlock()
		return task.Outcome{}, fmt.Errorf("%w: submit in %s", ErrPhase, phase)
	}
	gate, err := c.tasks.Check(answer)
	if err != nil {
		c.mu.Unlock()
		return task.Outcome{}, err
	}
	if !gate.OK {
		c.mu.Unlock()
		return task.Outcome{}, &content.GateError{Gate: gate}
	}
	if c.phase == model.PhaseRetry {
		c.setPhase(model.PhaseTask)
	}
	req, err := c.tasks.BuildRequest(answer)
	if err != nil {
		c.mu.Unlock()
		return task.Outcome{}, err
	}
	epoch, _ := c.begin()
	c.appendLog(model.EntryUserAnswer, answer.String(), steplog.Meta{ItemID: req.ItemID, Kind: req.Kind, Attempt: req.Attempt})
	ev := c.deps.Evaluator
	c.mu.Unlock()
	c.flush()

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	var res task.EvalResult
	evalErr := errNoEvaluator
	if ev != nil {
		res, evalErr = ev.Evaluate(ctx, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if c.epoch != epoch || c.phase != model.PhaseTask {
		return task.Outcome{}, ErrStale
	}
	if evalErr != nil {
		c.logger.Warn("evaluation failed, accepting answer", "session", c.id, "item", req.ItemID, "error", evalErr)
	}
	out := c.tasks.Resolve(req.ItemID, req.Attempt, res, evalErr)
	meta := steplog.Meta{ItemID: req.ItemID, Kind: req.Kind, Attempt: out.Attempt, Score: out.Score}

	switch out.Verdict {
	case task.VerdictIgnored:
		return out, ErrStale
	case task.VerdictRetry:
		meta.Correct = boolp(false)
		hint := out.Feedback
		if hint == "" {
			hint = c.text(ctx, MsgRetry, nil)
		}
		c.appendLog(model.EntryHint, hint, meta)
		c.setPhase(model.PhaseRetry)
	case task.VerdictAccepted:
		meta.Correct = boolp(true)
		c.appendLog(model.EntryEvaluation, firstNonEmpty(out.Feedback, c.text(ctx, MsgCorrect, nil)), meta)
		c.setPhase(model.PhaseEvaluate)
	case task.VerdictFallback:
		meta.Correct = boolp(true)
		c.setNotice(ctx, MsgEvalUnavailable)
		c.appendLog(model.EntryEvaluation, c.text(ctx, MsgFallback, nil), meta)
		c.setPhase(model.PhaseEvaluate)
	case task.VerdictRejected:
		meta.Correct = boolp(false)
		msg := c.text(ctx, MsgRejected, map[string]any{"Answer": out.CorrectAnswer})
		if out.Feedback != "" {
			msg = out.Feedback + "\n\n" + msg
		}
		c.appendLog(model.EntryEvaluation, msg, meta)
		c.setPhase(model.PhaseEvaluate)
	}
	if out.Completed() {
		c.tasks.Deactivate()
	}
	c.outcome = &out
	c.emit(Event{Type: EventOutcome, Outcome: &out})
	return out, nil
}

// Retry returns from retry to the same item.
func (c *Controller) Retry(ctx context.Context) error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.loading {
		return ErrBusy
	}
	if c.phase != model.PhaseRetry {
		return fmt.Errorf("%w: retry in %s", ErrPhase, c.phase)
	}
	it, _ := c.tasks.Current()
	c.appendLog(model.EntryTaskPrompt, taskPrompt(it), steplog.Meta{ItemID: it.ID, Kind: it.Kind(), Attempt: it.Attempts})
	c.setPhase(model.PhaseTask)
	return nil
}

// Done completes a degenerate item without a score.
func (c *Controller) Done(ctx context.Context) (task.Outcome, error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return task.Outcome{}, ErrClosed
	}
	if c.loading {
		return task.Outcome{}, ErrBusy
	}
	it, ok := c.tasks.Current()
	if !c.phase.AcceptsInput() || !ok || !it.Degenerate() {
		return task.Outcome{}, fmt.Errorf("%w: done is only available for items without content", ErrPhase)
	}
	out, err := c.tasks.MarkDone()
	if err != nil {
		return task.Outcome{}, err
	}
	c.appendLog(model.EntryEvaluation, c.text(ctx, MsgDone, nil), steplog.Meta{ItemID: it.ID, Kind: it.Kind(), Attempt: it.Attempts})
	c.tasks.Deactivate()
	c.setPhase(model.PhaseEvaluate)
	c.outcome = &out
	c.emit(Event{Type: EventOutcome, Outcome: &out})
	return out, nil
}

// Close tears the session down. In-flight requests are cancelled and their
// results discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.loading = false
	p := c.player
	c.mu.Unlock()
	c.cancel()
	p.Stop()
	c.logger.Debug("session closed", "session", c.id)
}

// beginTasks announces the transition step once, waits, then shows the first
// task. Without tasks it goes straight to summary. Called with c.loading set
// and c.mu released.
func (c *Controller) beginTasks(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if !c.tasks.HasPending() {
		c.mu.Unlock()
		return c.finishDay(ctx, epoch)
	}
	if step, ok := c.player.TakeTransition(); ok {
		c.appendLog(model.EntryNarration, step.Text, steplog.Meta{})
		c.narrate(step, epoch)
		delay := c.cfg.TransitionDelay
		c.mu.Unlock()
		c.flush()
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				c.mu.Lock()
				c.loading = false
				c.mu.Unlock()
				return ErrStale
			}
		}
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return ErrStale
		}
	}
	c.activateNext()
	c.loading = false
	c.mu.Unlock()
	return nil
}

// finishDay closes the day with the backend and enters summary. Called with
// c.loading set and c.mu released.
func (c *Controller) finishDay(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	req := CloseRequest{
		RoomID:         c.roomID,
		DayIndex:       c.dayIndex,
		ItemsCompleted: c.tasks.Completed(),
		ItemsTotal:     c.tasks.Total(),
		ScoreSum:       c.tasks.ScoreSum(),
	}
	closer := c.deps.Closer
	c.mu.Unlock()

	var (
		sum model.DaySummary
		err = errors.New("session: no day closer")
	)
	if closer != nil {
		sum, err = closer.CloseDay(ctx, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrStale
	}
	c.loading = false
	if err != nil {
		if closer != nil {
			c.logger.Warn("close day failed, using local summary", "session", c.id, "error", err)
			c.setNotice(ctx, MsgCloseFailed)
		}
		sum = Summarize(req)
		sum.Local = true
	}
	if sum.Message == "" {
		sum.Message = SummaryMessage(ctx, c.text, sum)
	}
	c.summary = &sum
	avg := sum.AvgScore
	c.appendLog(model.EntrySummary, sum.Message, steplog.Meta{Score: &avg})
	c.setPhase(model.PhaseSummary)
	return nil
}

// endDay archives the session and enters end. Archive failures are logged.
func (c *Controller) endDay(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	at := c.now()
	exp := c.exportLocked(model.PhaseEnd, &at)
	exp.Phases = append(exp.Phases, model.PhaseChange{From: c.phase, To: model.PhaseEnd, At: at})
	archiver := c.deps.Archiver
	c.mu.Unlock()

	if archiver != nil {
		if err := archiver.ArchiveSession(ctx, exp); err != nil {
			c.logger.Error("archive session", "session", c.id, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrStale
	}
	c.loading = false
	c.endedAt = &at
	c.setPhase(model.PhaseEnd)
	c.logger.Info("day finished", "session", c.id, "room", c.roomID, "day", c.dayIndex, "score", c.tasks.ScoreSum())
	return nil
}

// Export returns the session in archive form.
func (c *Controller) Export() model.SessionExport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exportLocked(c.phase, c.endedAt)
}

func (c *Controller) exportLocked(phase model.Phase, endedAt *time.Time) model.SessionExport {
	rec := model.SessionRecord{
		ID:             c.id,
		RoomID:         c.roomID,
		DayIndex:       c.dayIndex,
		Phase:          phase,
		ScoreSum:       c.tasks.ScoreSum(),
		ItemsCompleted: c.tasks.Completed(),
		ItemsTotal:     c.tasks.Total(),
		StartedAt:      c.startedAt,
		EndedAt:        endedAt,
	}
	if c.summary != nil {
		rec.SummaryMessage = c.summary.Message
	}
	phases := make([]model.PhaseChange, len(c.history))
	copy(phases, c.history)
	return model.SessionExport{Session: rec, Phases: phases, Transcript: c.log.Transcript()}
}

// begin claims the transition slot. Callers hold c.mu.
func (c *Controller) begin() (uint64, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if c.loading {
		return 0, ErrBusy
	}
	c.loading = true
	return c.epoch, nil
}

// opContext derives the context of a transition from the caller's values.
// Only closing the session cancels it.
func (c *Controller) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// activateNext shows the next pending item. Callers hold c.mu.
func (c *Controller) activateNext() {
	it, ok := c.tasks.Activate()
	if !ok {
		return
	}
	c.outcome = nil
	c.appendLog(model.EntryTaskPrompt, taskPrompt(it), steplog.Meta{ItemID: it.ID, Kind: it.Kind(), Attempt: it.Attempts})
	if it.Degenerate() {
		c.setNotice(c.ctx, MsgDegenerate)
	}
	c.setPhase(model.PhaseTask)
}

func (c *Controller) setPhase(to model.Phase) {
	if c.phase == to {
		return
	}
	pc := model.PhaseChange{From: c.phase, To: to, At: c.now()}
	c.phase = to
	c.history = append(c.history, pc)
	c.logger.Debug("phase change", "session", c.id, "from", pc.From, "to", pc.To)
	c.emit(Event{Type: EventPhase, Phase: &pc})
}

func (c *Controller) appendLog(typ model.EntryType, text string, meta steplog.Meta) {
	e := c.log.Append(typ, text, meta)
	c.emit(Event{Type: EventLog, Entry: &e})
}

func (c *Controller) setNotice(ctx context.Context, id string) {
	c.notice = c.text(ctx, id, nil)
	c.emit(Event{Type: EventNotice, Notice: c.notice})
}

// narrate requests audio for step in the background. Failures are logged
// and never affect the phase. Callers hold c.mu.
func (c *Controller) narrate(step model.ScriptStep, epoch uint64) {
	p := c.player
	go func() {
		err := p.Narrate(c.ctx, step)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		c.emit(Event{Type: EventNarrationFailed, Notice: step.ID})
		c.mu.Unlock()
		c.logger.Warn("narration failed", "session", c.id, "step", step.ID, "error", err)
		c.flush()
	}()
}

func taskPrompt(it task.Item) string {
	if it.Content == nil {
		return it.Title()
	}
	return it.Content.Title + "\n\n" + it.Content.Instructions
}

func boolp(b bool) *bool { return &b }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
