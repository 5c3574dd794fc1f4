package steplog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/focusroom/internal/model"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	l := NewWithClock(fixedClock())
	l.Append(model.EntryNarration, "Hello", Meta{})
	l.Append(model.EntryTaskPrompt, "Translate", Meta{ItemID: "t1", Attempt: 1})
	ok, score := true, 90
	l.Append(model.EntryEvaluation, "Well done", Meta{ItemID: "t1", Correct: &ok, Score: &score})

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, model.EntryNarration, entries[0].Type)
	assert.Equal(t, model.EntryEvaluation, entries[2].Type)
	assert.True(t, entries[0].At.Before(entries[1].At))
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, 3, l.Len())
}

func TestEntriesIsACopy(t *testing.T) {
	l := New()
	l.Append(model.EntryNarration, "a", Meta{})
	got := l.Entries()
	got[0].Content = "changed"
	assert.Equal(t, "a", l.Entries()[0].Content)
}

func TestCounts(t *testing.T) {
	l := New()
	l.Append(model.EntryUserAnswer, "x", Meta{})
	l.Append(model.EntryUserAnswer, "y", Meta{})
	l.Append(model.EntryHint, "h", Meta{})
	assert.Equal(t, map[model.EntryType]int{model.EntryUserAnswer: 2, model.EntryHint: 1}, l.Counts())
}

func TestConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(model.EntryNarration, "n", Meta{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
}

func TestTranscriptAndMarkdown(t *testing.T) {
	l := NewWithClock(fixedClock())
	l.Append(model.EntryUserAnswer, "Jó reggelt", Meta{ItemID: "t1", Attempt: 2})
	wrong := false
	l.Append(model.EntryEvaluation, "Not quite", Meta{ItemID: "t1", Correct: &wrong})

	tr := l.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, 2, tr[0].Attempt)
	assert.Equal(t, "t1", tr[1].ItemID)

	md := l.Markdown()
	assert.Contains(t, md, "> Jó reggelt")
	assert.Contains(t, md, "**✗** Not quite")
}
