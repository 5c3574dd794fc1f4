package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/focusroom/internal/model"
)

// ExportAllSessions builds the export of every archived session, optionally
// limited to one room.
func (s *Store) ExportAllSessions(roomID string) (model.ArchiveExport, error) {
	out := model.ArchiveExport{ExportedAt: time.Now().UTC(), RoomID: roomID}

	sessions, err := s.ListSessions(roomID)
	if err != nil {
		return out, fmt.Errorf("list sessions: %w", err)
	}

	for _, rec := range sessions {
		exp, err := s.GetSessionArchive(rec.ID)
		if err != nil {
			return out, fmt.Errorf("get session %s: %w", rec.ID, err)
		}
		if exp.Phases == nil {
			exp.Phases = []model.PhaseChange{}
		}
		if exp.Transcript == nil {
			exp.Transcript = []model.TranscriptEntry{}
		}
		out.Sessions = append(out.Sessions, *exp)
	}
	if out.Sessions == nil {
		out.Sessions = []model.SessionExport{}
	}
	return out, nil
}
