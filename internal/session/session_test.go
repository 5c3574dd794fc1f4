package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/focusroom/internal/cache"
	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/task"
)

type fakeLoader struct {
	mu    sync.Mutex
	day   DayContent
	err   error
	calls int
	block bool
}

func (f *fakeLoader) StartDay(ctx context.Context, _ DayRequest) (DayContent, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return DayContent{}, ctx.Err()
	}
	return f.day, f.err
}

type fakeCloser struct {
	mu  sync.Mutex
	err error
	got []CloseRequest
}

func (f *fakeCloser) CloseDay(ctx context.Context, req CloseRequest) (model.DaySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if err := ctx.Err(); err != nil {
		return model.DaySummary{}, err
	}
	if f.err != nil {
		return model.DaySummary{}, f.err
	}
	s := Summarize(req)
	s.Message = "closed remotely"
	return s, nil
}

// seqEval answers with results in order. With release set it waits for a
// value on the channel or for cancellation before answering.
type seqEval struct {
	mu      sync.Mutex
	results []task.EvalResult
	errs    []error
	n       int
	release chan struct{}
	started chan struct{}
}

func (e *seqEval) Evaluate(ctx context.Context, _ task.EvalRequest) (task.EvalResult, error) {
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return task.EvalResult{}, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.n
	e.n++
	var err error
	if i < len(e.errs) {
		err = e.errs[i]
	}
	if i < len(e.results) {
		return e.results[i], err
	}
	return task.EvalResult{Correct: true}, err
}

type fakeArchiver struct {
	mu  sync.Mutex
	got []model.SessionExport
}

func (f *fakeArchiver) ArchiveSession(_ context.Context, s model.SessionExport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, s)
	return nil
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, string) ([]byte, error) {
	return nil, errors.New("tts unavailable")
}

func intp(n int) *int { return &n }

func testConfig() model.EngineConfig {
	cfg := model.DefaultEngineConfig()
	cfg.TransitionDelay = 0
	cfg.Muted = true
	return cfg
}

func translationTasks(n int) []RawTask {
	out := make([]RawTask, n)
	for i := range out {
		out[i] = RawTask{ID: fmt.Sprintf("t%d", i+1), Payload: content.Fallback(model.KindTranslation).Map()}
	}
	return out
}

func lessonScript() []model.ScriptStep {
	return []model.ScriptStep{
		{ID: "s0", Type: model.StepIntro, Text: "Welcome to day one.", Position: 0},
		{ID: "s1", Type: model.StepTeach, Text: "Greetings depend on the time of day.", Position: 1},
		{ID: "s2", Type: model.StepTransition, Text: "Now let's practise.", Position: 2},
	}
}

var answer = task.Answer{Text: "Jó reggelt, hogy vagy?"}

// canonical matches loading, intro, teach, task, (retry, task)*, evaluate,
// task, ..., summary, end and every subsequence of it that a run can produce.
var canonical = regexp.MustCompile(`^loading( intro)?( teach)?( task( retry task)* evaluate)*( task( retry task)*( retry)?)?( summary( end)?)?$`)

func phaseString(c *Controller) string {
	ps := c.Phases()
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = string(p)
	}
	return strings.Join(s, " ")
}

func newSession(t *testing.T, deps Deps) *Controller {
	t.Helper()
	c := New("s1", "room-1", 1, model.DomainParams{Domain: "language", TargetLanguage: "hu"}, testConfig(), deps)
	t.Cleanup(c.Close)
	return c
}

func TestFullDayWithExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	closer := &fakeCloser{}
	archiver := &fakeArchiver{}
	ev := &seqEval{results: []task.EvalResult{
		{Correct: true, Score: intp(100)},
		{Correct: true, Score: intp(90)},
		{Correct: false, CanRetry: true, Feedback: "Check the word order."},
		{Correct: false, CanRetry: true},
		{Correct: false, CanRetry: false, CorrectAnswer: "Jó reggelt!"},
	}}
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: translationTasks(3), Script: lessonScript(), LessonMarkdown: "# Greetings"}},
		Closer:    closer,
		Evaluator: ev,
		Archiver:  archiver,
	})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, model.PhaseIntro, c.Phase())
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseTeach, c.Phase())
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseTask, c.Phase())

	for i := 0; i < 2; i++ {
		out, err := c.Submit(ctx, answer)
		require.NoError(t, err)
		assert.Equal(t, task.VerdictAccepted, out.Verdict)
		assert.Equal(t, model.PhaseEvaluate, c.Phase())
		require.NoError(t, c.Advance(ctx))
		assert.Equal(t, model.PhaseTask, c.Phase())
	}

	out, err := c.Submit(ctx, answer)
	require.NoError(t, err)
	assert.Equal(t, task.VerdictRetry, out.Verdict)
	assert.Equal(t, model.PhaseRetry, c.Phase())
	require.NoError(t, c.Retry(ctx))
	assert.Equal(t, model.PhaseTask, c.Phase())

	out, err = c.Submit(ctx, answer)
	require.NoError(t, err)
	assert.Equal(t, task.VerdictRetry, out.Verdict)

	// Submitting straight from retry implies the retry command.
	out, err = c.Submit(ctx, answer)
	require.NoError(t, err)
	assert.Equal(t, task.VerdictRejected, out.Verdict)
	assert.Equal(t, 0, *out.Score)
	assert.Equal(t, model.PhaseEvaluate, c.Phase())

	v := c.Snapshot()
	assert.Nil(t, v.Item)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, 0, *v.Outcome.Score)
	assert.Equal(t, 3, v.Outcome.Attempt)

	require.NoError(t, c.Advance(ctx))
	v = c.Snapshot()
	assert.Equal(t, model.PhaseSummary, v.Phase)
	assert.Equal(t, 190, v.ScoreSum)
	assert.Equal(t, 3, v.ItemsCompleted)
	assert.Equal(t, 3, v.ItemsTotal)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "closed remotely", v.Summary.Message)
	require.Len(t, closer.got, 1)
	assert.Equal(t, CloseRequest{RoomID: "room-1", DayIndex: 1, ItemsCompleted: 3, ItemsTotal: 3, ScoreSum: 190}, closer.got[0])

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseEnd, c.Phase())
	assert.Regexp(t, canonical, phaseString(c))

	require.Len(t, archiver.got, 1)
	exp := archiver.got[0]
	assert.Equal(t, model.PhaseEnd, exp.Session.Phase)
	assert.Equal(t, model.PhaseEnd, exp.Phases[len(exp.Phases)-1].To)
	assert.Equal(t, 190, exp.Session.ScoreSum)

	counts := c.Log().Counts()
	assert.Equal(t, 5, counts[model.EntryUserAnswer])
	assert.Equal(t, 2, counts[model.EntryHint])
	assert.Equal(t, 3, counts[model.EntryEvaluation])
	assert.Equal(t, 1, counts[model.EntrySummary])
	assert.Equal(t, 1, counts[model.EntryLessonNote])

	assert.ErrorIs(t, c.Advance(ctx), ErrPhase)
}

func TestEmptyDayGoesStraightToSummary(t *testing.T) {
	closer := &fakeCloser{}
	c := newSession(t, Deps{Loader: &fakeLoader{}, Closer: closer})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []model.Phase{model.PhaseLoading, model.PhaseSummary}, c.Phases())
	require.Len(t, closer.got, 1)
	assert.Equal(t, 0, closer.got[0].ItemsTotal)
}

func TestEvaluatorFailureAcceptsWithNeutralScore(t *testing.T) {
	ev := &seqEval{errs: []error{errors.New("evaluator timeout")}}
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: translationTasks(1)}},
		Evaluator: ev,
	})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.Equal(t, model.PhaseTask, c.Phase())

	out, err := c.Submit(ctx, answer)
	require.NoError(t, err)
	assert.Equal(t, task.VerdictFallback, out.Verdict)
	assert.Equal(t, 70, *out.Score)

	v := c.Snapshot()
	assert.Equal(t, model.PhaseEvaluate, v.Phase)
	assert.Equal(t, 1, v.ItemsCompleted)
	assert.Equal(t, 70, v.ScoreSum)
	assert.NotEmpty(t, v.Notice)
}

func TestMissingLessonSkipsToTasks(t *testing.T) {
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(2)}}})
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []model.Phase{model.PhaseLoading, model.PhaseTask}, c.Phases())
	entries := c.Log().Entries()
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, model.EntryLessonNote, entries[0].Type)
	assert.Equal(t, model.EntryTaskPrompt, entries[1].Type)
}

func TestLoadFailureDegradesToSummary(t *testing.T) {
	c := newSession(t, Deps{Loader: &fakeLoader{err: errors.New("generator down")}})
	require.NoError(t, c.Start(context.Background()))

	v := c.Snapshot()
	assert.Equal(t, model.PhaseSummary, v.Phase)
	require.NotNil(t, v.Summary)
	assert.True(t, v.Summary.Local)
	assert.Equal(t, DefaultText(context.Background(), MsgLoadFailed, nil), v.Notice)
}

func TestCloseFailureUsesLocalSummary(t *testing.T) {
	ctx := context.Background()
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: translationTasks(2)}},
		Closer:    &fakeCloser{err: errors.New("backend down")},
		Evaluator: &seqEval{results: []task.EvalResult{{Correct: true, Score: intp(85)}, {Correct: true, Score: intp(75)}}},
	})
	require.NoError(t, c.Start(ctx))
	for i := 0; i < 2; i++ {
		_, err := c.Submit(ctx, answer)
		require.NoError(t, err)
		require.NoError(t, c.Advance(ctx))
	}

	v := c.Snapshot()
	assert.Equal(t, model.PhaseSummary, v.Phase)
	require.NotNil(t, v.Summary)
	assert.True(t, v.Summary.Local)
	assert.Equal(t, 80, v.Summary.AvgScore)
	assert.Equal(t, 100, v.Summary.CompletionRate)
	assert.Equal(t, "Excellent work today! Average score: 80.", v.Summary.Message)
}

func TestTransitionAnnouncedOnceBeforeFirstTask(t *testing.T) {
	ctx := context.Background()
	script := []model.ScriptStep{
		{ID: "s0", Type: model.StepIntro, Text: "Hello", Position: 0},
		{ID: "s1", Type: model.StepTransition, Text: "Time to practise", Position: 1},
		{ID: "s2", Type: model.StepTeach, Text: "Numbers one to ten", Position: 2},
	}
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(2), Script: script}}})

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, "s2", c.Snapshot().Step.ID)
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseTask, c.Phase())

	n := 0
	var transitionAt, promptAt int
	for i, e := range c.Log().Entries() {
		if e.Content == "Time to practise" {
			n++
			transitionAt = i
		}
		if e.Type == model.EntryTaskPrompt && promptAt == 0 {
			promptAt = i
		}
	}
	assert.Equal(t, 1, n)
	assert.Less(t, transitionAt, promptAt)
}

func TestScriptWithoutTasksEndsInSummary(t *testing.T) {
	ctx := context.Background()
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Script: lessonScript()}}})
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseSummary, c.Phase())
	assert.Regexp(t, canonical, phaseString(c))

	for _, e := range c.Log().Entries() {
		assert.NotEqual(t, "Now let's practise.", e.Content)
	}
}

func TestGateRejectsBeforeEvaluation(t *testing.T) {
	ev := &seqEval{}
	raw := content.Fallback(model.KindWriting).Map()
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: []RawTask{{ID: "w1", Payload: raw}}}},
		Evaluator: ev,
	})
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	_, err := c.Submit(ctx, task.Answer{Text: "short"})
	var gerr *content.GateError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, content.RuleMinChars, gerr.Gate.Rule)
	assert.Equal(t, 0, ev.n)
	assert.Equal(t, 0, c.Log().Counts()[model.EntryUserAnswer])
	assert.Equal(t, model.PhaseTask, c.Phase())
}

func TestCommandsRejectedOutsideTheirPhase(t *testing.T) {
	ctx := context.Background()
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(1), Script: lessonScript()}}})

	_, err := c.Submit(ctx, answer)
	assert.ErrorIs(t, err, ErrPhase)

	require.NoError(t, c.Start(ctx))
	assert.ErrorIs(t, c.Start(ctx), ErrPhase)

	_, err = c.Submit(ctx, answer)
	assert.ErrorIs(t, err, ErrPhase)
	assert.ErrorIs(t, c.Retry(ctx), ErrPhase)
	_, err = c.Done(ctx)
	assert.ErrorIs(t, err, ErrPhase)
}

func TestBusyWhileEvaluating(t *testing.T) {
	ctx := context.Background()
	ev := &seqEval{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(2)}}, Evaluator: ev})
	require.NoError(t, c.Start(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, answer)
		done <- err
	}()
	<-ev.started

	assert.True(t, c.Snapshot().Loading)
	_, err := c.Submit(ctx, answer)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Advance(ctx), ErrBusy)

	close(ev.release)
	require.NoError(t, <-done)
	assert.Equal(t, model.PhaseEvaluate, c.Phase())
	assert.Equal(t, 1, c.Snapshot().ItemsCompleted)
}

func TestCloseDiscardsInFlightEvaluation(t *testing.T) {
	ctx := context.Background()
	ev := &seqEval{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(1)}}, Evaluator: ev})
	require.NoError(t, c.Start(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(ctx, answer)
		done <- err
	}()
	<-ev.started
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("submit not cancelled")
	}
	v := c.Snapshot()
	assert.Equal(t, 0, v.ItemsCompleted)
	assert.Equal(t, model.PhaseTask, v.Phase)

	assert.ErrorIs(t, c.Advance(ctx), ErrClosed)
}

func TestCallerCancellationDoesNotAbortEvaluation(t *testing.T) {
	ev := &seqEval{
		results: []task.EvalResult{{Correct: false, CanRetry: true, Feedback: "Mind the greeting."}},
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(1)}}, Evaluator: ev})
	require.NoError(t, c.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		out task.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Submit(ctx, answer)
		done <- result{out, err}
	}()
	<-ev.started
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(ev.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return")
	}
	require.NoError(t, res.err)
	assert.Equal(t, task.VerdictRetry, res.out.Verdict)
	v := c.Snapshot()
	assert.Equal(t, model.PhaseRetry, v.Phase)
	assert.Equal(t, 0, v.ScoreSum)
	assert.Equal(t, 0, v.ItemsCompleted)
}

func TestCancelledAdvanceStillClosesDay(t *testing.T) {
	closer := &fakeCloser{}
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: translationTasks(1)}},
		Closer:    closer,
		Evaluator: &seqEval{results: []task.EvalResult{{Correct: true}}},
	})
	require.NoError(t, c.Start(context.Background()))
	_, err := c.Submit(context.Background(), answer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Advance(ctx))

	v := c.Snapshot()
	assert.Equal(t, model.PhaseSummary, v.Phase)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "closed remotely", v.Summary.Message)
	assert.False(t, v.Summary.Local)
}

func TestCompletedItemInactiveDuringEvaluate(t *testing.T) {
	ctx := context.Background()
	c := newSession(t, Deps{
		Loader:    &fakeLoader{day: DayContent{Tasks: translationTasks(2)}},
		Evaluator: &seqEval{results: []task.EvalResult{{Correct: true, Score: intp(85)}}},
	})
	require.NoError(t, c.Start(ctx))
	require.NotNil(t, c.Snapshot().Item)

	_, err := c.Submit(ctx, answer)
	require.NoError(t, err)
	v := c.Snapshot()
	assert.Equal(t, model.PhaseEvaluate, v.Phase)
	assert.Nil(t, v.Item)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, "t1", v.Outcome.ItemID)
	assert.Equal(t, 85, *v.Outcome.Score)

	require.NoError(t, c.Advance(ctx))
	v = c.Snapshot()
	require.NotNil(t, v.Item)
	assert.Equal(t, "t2", v.Item.ID)
	assert.Nil(t, v.Outcome)
}

func TestCloseCancelsLoading(t *testing.T) {
	loader := &fakeLoader{block: true}
	c := newSession(t, Deps{Loader: loader})

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.calls == 1
	}, time.Second, 5*time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("start not cancelled")
	}
	assert.Equal(t, model.PhaseLoading, c.Phase())
}

func TestContentCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	loader := &fakeLoader{day: DayContent{Tasks: translationTasks(2), Script: lessonScript()}}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	for i := 0; i < 2; i++ {
		c := newSession(t, Deps{Loader: loader, Cache: store, Now: clock})
		require.NoError(t, c.Start(ctx))
		assert.Equal(t, model.PhaseIntro, c.Phase())
		assert.Equal(t, 2, c.Snapshot().ItemsTotal)
	}
	assert.Equal(t, 1, loader.calls)

	now = now.Add(2 * time.Hour)
	c := newSession(t, Deps{Loader: loader, Cache: store, Now: clock})
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 2, loader.calls)
}

func TestObserversReceiveEventsInOrder(t *testing.T) {
	ctx := context.Background()
	c := newSession(t, Deps{Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(1), Script: lessonScript()}}})

	var events []Event
	unsubscribe := c.Subscribe(func(e Event) { events = append(events, e) })
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Advance(ctx))

	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
	var phases []model.Phase
	for _, e := range events {
		if e.Type == EventPhase {
			phases = append(phases, e.Phase.To)
		}
	}
	assert.Equal(t, []model.Phase{model.PhaseIntro, model.PhaseTeach}, phases)

	unsubscribe()
	n := len(events)
	require.NoError(t, c.Advance(ctx))
	assert.Len(t, events, n)
}

func TestNarrationFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Muted = false
	c := New("s1", "room-1", 1, model.DomainParams{}, cfg, Deps{
		Loader: &fakeLoader{day: DayContent{Tasks: translationTasks(1), Script: lessonScript()}},
		Synth:  failingSynth{},
	})
	defer c.Close()

	var mu sync.Mutex
	failed := 0
	c.Subscribe(func(e Event) {
		if e.Type == EventNarrationFailed {
			mu.Lock()
			failed++
			mu.Unlock()
		}
	})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, model.PhaseIntro, c.Phase())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failed == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseTeach, c.Phase())
}

func TestManager(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	m := NewManager(testConfig(), Deps{Loader: &fakeLoader{}})
	m.Observe(func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	c := m.Create("room-1", 2, model.DomainParams{})
	got, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, c.Start(context.Background()))
	mu.Lock()
	assert.Positive(t, seen)
	mu.Unlock()

	require.NoError(t, m.Reset(c.ID()))
	_, err = m.Get(c.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Reset(c.ID()), ErrNotFound)
	assert.ErrorIs(t, c.Advance(context.Background()), ErrClosed)

	m.Create("room-2", 1, model.DomainParams{})
	m.Shutdown()
	assert.Equal(t, 0, m.Len())
}

func TestManagerForgetsEndedSessions(t *testing.T) {
	ctx := context.Background()
	archiver := &fakeArchiver{}
	m := NewManager(testConfig(), Deps{Loader: &fakeLoader{}, Archiver: archiver})

	c := m.Create("room-1", 1, model.DomainParams{})
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, model.PhaseSummary, c.Phase())
	assert.Equal(t, 1, m.Len())

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, model.PhaseEnd, c.Phase())
	assert.Equal(t, 0, m.Len())
	_, err := m.Get(c.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, archiver.got, 1)
	assert.Equal(t, model.PhaseEnd, c.Snapshot().Phase)
}

func TestSummarize(t *testing.T) {
	s := Summarize(CloseRequest{ItemsCompleted: 3, ItemsTotal: 4, ScoreSum: 190})
	assert.Equal(t, 63, s.AvgScore)
	assert.Equal(t, 75, s.CompletionRate)
	assert.Equal(t, "good", Tier(s.AvgScore))

	s = Summarize(CloseRequest{ItemsCompleted: 2, ItemsTotal: 3})
	assert.Equal(t, 67, s.CompletionRate)
	assert.Equal(t, "keep_going", Tier(s.AvgScore))

	assert.Equal(t, model.DaySummary{}, Summarize(CloseRequest{}))
}
