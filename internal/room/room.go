// Package room produces the content of a day and closes it: it generates the
// lesson and the practice exercises, turns the lesson into narration steps
// and records day completions.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/llm/prompts"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/session"
)

const (
	DomainLanguage = "language"

	defaultLevel   = "beginner"
	defaultMinutes = 20
	minItemMinutes = 3
)

// Generator produces raw lesson and exercise content.
type Generator interface {
	GenerateLesson(ctx context.Context, d prompts.DayData) (map[string]any, error)
	GenerateItem(ctx context.Context, d prompts.ItemData) (map[string]any, error)
}

// CompletionRecorder persists closed days.
type CompletionRecorder interface {
	RecordDayCompletion(ctx context.Context, roomID string, sum model.DaySummary, at time.Time) error
}

type slot struct {
	kind  model.Kind
	label string // message ID of the title
}

// The first slot of a day is always its lesson.
var (
	languageDay = []slot{
		{model.KindLesson, "task.lesson"},
		{model.KindQuiz, "task.quiz"},
		{model.KindTranslation, "task.translation"},
		{model.KindWriting, "task.writing"},
	}
	smartDay = []slot{
		{model.KindLesson, "task.lesson"},
		{model.KindQuiz, "task.quiz"},
		{model.KindWriting, "task.writing"},
	}
)

// Service implements session.Loader and session.Closer.
type Service struct {
	gen    Generator
	rec    CompletionRecorder
	logger *slog.Logger
	now    func() time.Time
}

// New returns a service. rec may be nil.
func New(gen Generator, rec CompletionRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, rec: rec, logger: logger, now: time.Now}
}

func slotsFor(domain string) []slot {
	if domain == DomainLanguage {
		return languageDay
	}
	return smartDay
}

func (s *Service) dayData(ctx context.Context, req session.DayRequest, slots int) prompts.DayData {
	p := req.Params
	d := prompts.DayData{
		DayTitle:       p.DayTitle,
		Domain:         p.Domain,
		TargetLanguage: p.TargetLanguage,
		Track:          p.Track,
		Level:          p.Level,
		Minutes:        p.MinutesPerDay,
	}
	if d.Domain == "" {
		d.Domain = DomainLanguage
	}
	if d.Level == "" {
		d.Level = defaultLevel
	}
	if d.DayTitle == "" {
		d.DayTitle = i18n.Td(ctx, "DayN", map[string]any{"Day": req.DayIndex})
	}
	if d.Minutes <= 0 {
		d.Minutes = defaultMinutes
	}
	d.Minutes = max(minItemMinutes, d.Minutes/slots)
	return d
}

// StartDay generates the lesson, then the practice exercises in parallel.
// Generation failures never fail the day: a missing lesson becomes a short
// placeholder and a missing exercise its kind's fallback.
func (s *Service) StartDay(ctx context.Context, req session.DayRequest) (session.DayContent, error) {
	start := s.now()
	domain := req.Params.Domain
	if domain == "" {
		domain = DomainLanguage
	}
	slots := slotsFor(domain)
	day := s.dayData(ctx, req, len(slots))

	lesson, err := s.gen.GenerateLesson(ctx, day)
	if err != nil {
		if ctx.Err() != nil {
			return session.DayContent{}, ctx.Err()
		}
		s.logger.Warn("lesson generation failed", "room", req.RoomID, "day", req.DayIndex, "error", err)
		lesson = nil
	}
	lessonMD := LessonMarkdown(ctx, lesson)
	if lessonMD == "" {
		lessonMD = fmt.Sprintf("# %s\n\n%s", day.DayTitle, i18n.T(ctx, "lesson.placeholder"))
	}

	practice := slots[1:]
	tasks := make([]session.RawTask, len(practice))
	g, gctx := errgroup.WithContext(ctx)
	for i, sl := range practice {
		g.Go(func() error {
			id := taskID(req.RoomID, req.DayIndex, sl.kind, i+1)
			raw, err := s.gen.GenerateItem(gctx, prompts.ItemData{
				DayData: day,
				Kind:    sl.kind,
				Label:   i18n.T(ctx, sl.label),
				Lesson:  lessonMD,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("task generation failed, using fallback", "room", req.RoomID, "kind", sl.kind, "error", err)
				raw = content.Fallback(sl.kind).Map()
			}
			tasks[i] = session.RawTask{ID: id, Payload: raw}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return session.DayContent{}, err
	}

	steps := Script(ctx, lesson, day.DayTitle)
	s.logger.Info("day generated", "room", req.RoomID, "day", req.DayIndex, "domain", domain,
		"tasks", len(tasks), "steps", len(steps), "elapsed", s.now().Sub(start))
	return session.DayContent{Tasks: tasks, Script: steps, LessonMarkdown: lessonMD}, nil
}

// CloseDay summarizes the day and records it. A recording failure is
// returned so the session falls back to its local summary.
func (s *Service) CloseDay(ctx context.Context, req session.CloseRequest) (model.DaySummary, error) {
	sum := session.Summarize(req)
	sum.Message = session.SummaryMessage(ctx, i18n.Td, sum)
	if s.rec != nil {
		if err := s.rec.RecordDayCompletion(ctx, req.RoomID, sum, s.now()); err != nil {
			return model.DaySummary{}, fmt.Errorf("close day: %w", err)
		}
	}
	return sum, nil
}

func taskID(roomID string, day int, kind model.Kind, idx int) string {
	short := roomID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("room-%s-d%d-%s-%d", short, day, kind, idx)
}
