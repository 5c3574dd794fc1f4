// Package views holds the HTML components of the server.
package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/model"
)

//go:generate templ generate

// Transcript is the data of the transcript page.
type Transcript struct {
	SessionID      string
	DayIndex       int
	Phase          model.Phase
	ScoreSum       int
	ItemsCompleted int
	Entries        []model.TranscriptEntry
}

const pageStyle = `body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;line-height:1.5}
.entry{margin:.75rem 0;padding:.5rem .75rem;border-left:3px solid #ccc}
.entry[data-type=user-answer]{border-color:#2b6cb0}.entry[data-type=evaluation]{border-color:#2f855a}
.entry[data-type=hint]{border-color:#c05621}.entry[data-type=summary]{border-color:#6b46c1}
.meta{color:#666;font-size:.85em}pre{white-space:pre-wrap;margin:0;font-family:inherit}`

func pageTitle(ctx context.Context) string {
	return i18n.T(ctx, "AppTitle") + " | " + i18n.T(ctx, "Transcript")
}

func dayHeading(ctx context.Context, t Transcript) string {
	return i18n.Td(ctx, "DayN", map[string]any{"Day": t.DayIndex})
}

func statusLine(ctx context.Context, t Transcript) string {
	return fmt.Sprintf("%s: %s | %s: %d | %s",
		i18n.T(ctx, "Phase"), t.Phase,
		i18n.T(ctx, "Score"), t.ScoreSum,
		i18n.Tp(ctx, "ItemsCompleted", t.ItemsCompleted))
}

func entryMeta(e model.TranscriptEntry) string {
	parts := []string{e.At.Format("15:04:05"), string(e.Type)}
	if e.ItemID != "" {
		parts = append(parts, e.ItemID)
	}
	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("#%d", e.Attempt))
	}
	if e.Score != nil {
		parts = append(parts, fmt.Sprintf("%d", *e.Score))
	}
	return strings.Join(parts, " · ")
}
