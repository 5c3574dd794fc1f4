package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/model"
)

func TestTranscriptPage(t *testing.T) {
	if err := i18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	score := 80
	page := Transcript{
		SessionID:      "s1",
		DayIndex:       3,
		Phase:          model.PhaseSummary,
		ScoreSum:       80,
		ItemsCompleted: 1,
		Entries: []model.TranscriptEntry{
			{Type: model.EntryUserAnswer, Content: `<script>alert("x")</script>`, ItemID: "t1", Attempt: 1,
				At: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
			{Type: model.EntryEvaluation, Content: "Correct!", ItemID: "t1", Attempt: 1, Score: &score,
				At: time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)},
		},
	}

	var buf bytes.Buffer
	if err := TranscriptPage(page).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	body := buf.String()
	for _, want := range []string{
		"<title>Focus Room | Transcript</title>",
		"<h1>Day 3</h1>",
		`data-type="user-answer"`,
		`data-type="evaluation"`,
		"&lt;script&gt;",
		"09:30:05 · evaluation · t1 · #1 · 80",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("entry content was not escaped")
	}
}
