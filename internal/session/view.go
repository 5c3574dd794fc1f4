package session

import (
	"time"

	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/task"
)

// View is a read-only snapshot of a session for rendering.
type View struct {
	ID             string              `json:"id"`
	RoomID         string              `json:"room_id"`
	DayIndex       int                 `json:"day_index"`
	Phase          model.Phase         `json:"phase"`
	Loading        bool                `json:"loading"`
	Step           *model.ScriptStep   `json:"step,omitempty"`
	HasMoreSteps   bool                `json:"has_more_steps"`
	Item           *task.Item          `json:"item,omitempty"`
	Outcome        *task.Outcome       `json:"outcome,omitempty"`
	ItemsCompleted int                 `json:"items_completed"`
	ItemsTotal     int                 `json:"items_total"`
	ScoreSum       int                 `json:"score_sum"`
	Summary        *model.DaySummary   `json:"summary,omitempty"`
	Notice         string              `json:"notice,omitempty"`
	Playing        bool                `json:"playing"`
	Muted          bool                `json:"muted"`
	History        []model.PhaseChange `json:"history"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        *time.Time          `json:"ended_at,omitempty"`
}

// Snapshot returns the current state of the session.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		ID:             c.id,
		RoomID:         c.roomID,
		DayIndex:       c.dayIndex,
		Phase:          c.phase,
		Loading:        c.loading,
		ItemsCompleted: c.tasks.Completed(),
		ItemsTotal:     c.tasks.Total(),
		ScoreSum:       c.tasks.ScoreSum(),
		Notice:         c.notice,
		Playing:        c.player.IsPlaying(),
		Muted:          c.player.Muted(),
		StartedAt:      c.startedAt,
		EndedAt:        c.endedAt,
	}
	switch c.phase {
	case model.PhaseIntro, model.PhaseTeach:
		if s, ok := c.player.Current(); ok {
			v.Step = &s
		}
		v.HasMoreSteps = c.player.HasMore()
	case model.PhaseTask, model.PhaseRetry:
		if it, ok := c.tasks.Current(); ok {
			v.Item = &it
		}
	}
	if c.outcome != nil {
		o := *c.outcome
		v.Outcome = &o
	}
	if c.summary != nil {
		s := *c.summary
		v.Summary = &s
	}
	v.History = make([]model.PhaseChange, len(c.history))
	copy(v.History, c.history)
	return v
}
