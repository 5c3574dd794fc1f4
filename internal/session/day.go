package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/focusroom/internal/cache"
	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/task"
)

// DayRequest identifies the day to start.
type DayRequest struct {
	RoomID   string             `json:"room_id"`
	DayIndex int                `json:"day_index"`
	Params   model.DomainParams `json:"params"`
}

// RawTask is a generated task before normalization.
type RawTask struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

// DayContent is everything a day needs, as produced by the generator.
type DayContent struct {
	Tasks          []RawTask          `json:"tasks"`
	Script         []model.ScriptStep `json:"script"`
	LessonMarkdown string             `json:"lesson_markdown"`
}

// CloseRequest carries the day's results to the bookkeeping backend.
type CloseRequest struct {
	RoomID         string `json:"room_id"`
	DayIndex       int    `json:"day_index"`
	ItemsCompleted int    `json:"items_completed"`
	ItemsTotal     int    `json:"items_total"`
	ScoreSum       int    `json:"score_sum"`
}

// Loader produces the content of a day. It may be slow and may fail.
type Loader interface {
	StartDay(ctx context.Context, req DayRequest) (DayContent, error)
}

// Closer finalizes a day. A failure is answered with a local summary.
type Closer interface {
	CloseDay(ctx context.Context, req CloseRequest) (model.DaySummary, error)
}

// Archiver stores a finished session.
type Archiver interface {
	ArchiveSession(ctx context.Context, s model.SessionExport) error
}

// day is normalized day content, also the cached form.
type day struct {
	Tasks          []dayTask          `json:"tasks"`
	Script         []model.ScriptStep `json:"script"`
	LessonMarkdown string             `json:"lesson_markdown"`
}

type dayTask struct {
	ID   string        `json:"id"`
	Item *content.Item `json:"item"`
}

func (d day) taskItems() []*task.Item {
	out := make([]*task.Item, len(d.Tasks))
	for i, t := range d.Tasks {
		out[i] = task.NewItem(t.ID, t.Item)
	}
	return out
}

func normalizeDay(dc DayContent) day {
	d := day{LessonMarkdown: strings.TrimSpace(dc.LessonMarkdown)}
	for i, t := range dc.Tasks {
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		d.Tasks = append(d.Tasks, dayTask{ID: id, Item: content.Normalize(t.Payload)})
	}
	for _, s := range dc.Script {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		d.Script = append(d.Script, s)
	}
	sort.SliceStable(d.Script, func(i, j int) bool { return d.Script[i].Position < d.Script[j].Position })
	return d
}

// loadDay returns the normalized day, from the cache when a fresh copy
// exists.
func (c *Controller) loadDay(ctx context.Context) (day, error) {
	key := cache.Key(c.roomID, c.dayIndex, c.params)
	if c.deps.Cache != nil {
		e, ok, err := c.deps.Cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("content cache lookup failed", "session", c.id, "error", err)
		case ok && cache.Fresh(e, c.now(), c.cfg.CacheTTL):
			var d day
			if err := json.Unmarshal(e.Value, &d); err == nil {
				c.logger.Debug("content cache hit", "session", c.id, "key", key)
				return d, nil
			}
		}
	}

	if c.deps.Loader == nil {
		return day{}, fmt.Errorf("session: no content loader")
	}
	dc, err := c.deps.Loader.StartDay(ctx, DayRequest{RoomID: c.roomID, DayIndex: c.dayIndex, Params: c.params})
	if err != nil {
		return day{}, fmt.Errorf("start day: %w", err)
	}
	d := normalizeDay(dc)

	if c.deps.Cache != nil {
		data, err := json.Marshal(d)
		if err == nil {
			err = c.deps.Cache.Put(ctx, key, data, c.now())
		}
		if err != nil {
			c.logger.Warn("content cache write failed", "session", c.id, "error", err)
		}
	}
	return d, nil
}
