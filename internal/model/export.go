package model

import "time"

// ArchiveExport is the top-level structure for session archive export.
type ArchiveExport struct {
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	RoomID     string          `json:"room_id,omitempty" yaml:"room_id,omitempty"`
	Sessions   []SessionExport `json:"sessions" yaml:"sessions"`
}

// SessionExport holds one archived session for export.
type SessionExport struct {
	Session    SessionRecord     `json:"session" yaml:"session"`
	Phases     []PhaseChange     `json:"phases" yaml:"phases"`
	Transcript []TranscriptEntry `json:"transcript" yaml:"transcript"`
}

// TranscriptEntry is a single step log entry in an exported transcript.
type TranscriptEntry struct {
	Type    EntryType `json:"type" yaml:"type"`
	Content string    `json:"content" yaml:"content"`
	ItemID  string    `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	Correct *bool     `json:"correct,omitempty" yaml:"correct,omitempty"`
	Score   *int      `json:"score,omitempty" yaml:"score,omitempty"`
	Attempt int       `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	At      time.Time `json:"at" yaml:"at"`
}
