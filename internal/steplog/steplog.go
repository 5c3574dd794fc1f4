// Package steplog keeps the append-only transcript of a day session.
package steplog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/focusroom/internal/model"
)

// Meta carries the optional evaluation details of an entry.
type Meta struct {
	ItemID  string     `json:"item_id,omitempty"`
	Kind    model.Kind `json:"kind,omitempty"`
	Correct *bool      `json:"correct,omitempty"`
	Score   *int       `json:"score,omitempty"`
	Attempt int        `json:"attempt,omitempty"`
}

// Entry is one transcript record.
type Entry struct {
	ID      string          `json:"id"`
	Type    model.EntryType `json:"type"`
	Content string          `json:"content"`
	Meta    Meta            `json:"meta"`
	At      time.Time       `json:"at"`
}

// Log is an append-only, concurrency-safe list of entries.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock returns an empty log stamping entries with now.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// Append records an entry and returns it with its ID and timestamp set.
func (l *Log) Append(typ model.EntryType, content string, meta Meta) Entry {
	e := Entry{
		ID:      uuid.NewString(),
		Type:    typ,
		Content: content,
		Meta:    meta,
		At:      l.now(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Counts returns the number of entries per type.
func (l *Log) Counts() map[model.EntryType]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[model.EntryType]int)
	for _, e := range l.entries {
		out[e.Type]++
	}
	return out
}

// Transcript converts the log to its export form.
func (l *Log) Transcript() []model.TranscriptEntry {
	entries := l.Entries()
	out := make([]model.TranscriptEntry, len(entries))
	for i, e := range entries {
		out[i] = model.TranscriptEntry{
			Type:    e.Type,
			Content: e.Content,
			ItemID:  e.Meta.ItemID,
			Correct: e.Meta.Correct,
			Score:   e.Meta.Score,
			Attempt: e.Meta.Attempt,
			At:      e.At,
		}
	}
	return out
}

// Markdown renders the log as a readable transcript.
func (l *Log) Markdown() string {
	return Markdown(l.Transcript())
}

// Markdown renders exported entries the way Log.Markdown does.
func Markdown(entries []model.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Type {
		case model.EntryUserAnswer:
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(e.Content, "\n", "\n> "))
		case model.EntryEvaluation:
			mark := "✗"
			if e.Correct != nil && *e.Correct {
				mark = "✓"
			}
			if e.Score != nil {
				fmt.Fprintf(&b, "**%s %d** %s\n\n", mark, *e.Score, e.Content)
			} else {
				fmt.Fprintf(&b, "**%s** %s\n\n", mark, e.Content)
			}
		case model.EntryHint:
			fmt.Fprintf(&b, "_%s_\n\n", e.Content)
		case model.EntrySummary:
			fmt.Fprintf(&b, "---\n\n%s\n", e.Content)
		default:
			fmt.Fprintf(&b, "%s\n\n", e.Content)
		}
	}
	return b.String()
}
