package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/focusroom/internal/cache"
	"github.com/pavelanni/focusroom/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		stored_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		day_index INTEGER NOT NULL,
		phase TEXT NOT NULL,
		score_sum INTEGER NOT NULL DEFAULT 0,
		items_completed INTEGER NOT NULL DEFAULT 0,
		items_total INTEGER NOT NULL DEFAULT 0,
		summary_message TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_room ON sessions(room_id, day_index);

	CREATE TABLE IF NOT EXISTS phase_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		from_phase TEXT NOT NULL,
		to_phase TEXT NOT NULL,
		at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		item_id TEXT NOT NULL DEFAULT '',
		correct INTEGER,
		score INTEGER,
		attempt INTEGER NOT NULL DEFAULT 0,
		at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS day_completions (
		room_id TEXT NOT NULL,
		day_index INTEGER NOT NULL,
		items_completed INTEGER NOT NULL DEFAULT 0,
		items_total INTEGER NOT NULL DEFAULT 0,
		score_sum INTEGER NOT NULL DEFAULT 0,
		avg_score INTEGER NOT NULL DEFAULT 0,
		completion_rate INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		completed_at DATETIME NOT NULL,
		PRIMARY KEY (room_id, day_index)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get implements cache.Cache.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var e cache.Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM content_cache WHERE key = ?`, key,
	).Scan(&e.Value, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("get cached content: %w", err)
	}
	return e, true, nil
}

// Put implements cache.Cache.
func (s *Store) Put(ctx context.Context, key string, value []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_cache (key, value, stored_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		key, value, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put cached content: %w", err)
	}
	return nil
}

// PurgeCache deletes cache entries stored before cutoff.
func (s *Store) PurgeCache(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_cache WHERE stored_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ArchiveSession stores a session with its phase history and transcript.
// Archiving the same session again replaces the previous archive.
func (s *Store) ArchiveSession(ctx context.Context, exp model.SessionExport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rec := exp.Session
	var endedAt any
	if rec.EndedAt != nil {
		endedAt = rec.EndedAt.UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, room_id, day_index, phase, score_sum, items_completed, items_total, summary_message, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, score_sum = excluded.score_sum,
		   items_completed = excluded.items_completed, items_total = excluded.items_total,
		   summary_message = excluded.summary_message, ended_at = excluded.ended_at`,
		rec.ID, rec.RoomID, rec.DayIndex, rec.Phase, rec.ScoreSum, rec.ItemsCompleted, rec.ItemsTotal,
		rec.SummaryMessage, rec.StartedAt.UTC(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM phase_changes WHERE session_id = ?`, rec.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM log_entries WHERE session_id = ?`, rec.ID); err != nil {
		return err
	}
	for _, pc := range exp.Phases {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO phase_changes (session_id, from_phase, to_phase, at) VALUES (?, ?, ?, ?)`,
			rec.ID, pc.From, pc.To, pc.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert phase change: %w", err)
		}
	}
	for i, e := range exp.Transcript {
		var correct, score any
		if e.Correct != nil {
			correct = *e.Correct
		}
		if e.Score != nil {
			score = *e.Score
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO log_entries (session_id, seq, type, content, item_id, correct, score, attempt, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, e.Type, e.Content, e.ItemID, correct, score, e.Attempt, e.At.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
	}
	return tx.Commit()
}

// ListSessions returns archived sessions, newest first. An empty roomID
// lists every room.
func (s *Store) ListSessions(roomID string) ([]model.SessionRecord, error) {
	query := `SELECT id, room_id, day_index, phase, score_sum, items_completed, items_total, summary_message, started_at, ended_at
		FROM sessions WHERE 1=1`
	var args []any
	if roomID != "" {
		query += ` AND room_id = ?`
		args = append(args, roomID)
	}
	query += ` ORDER BY started_at DESC, id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.SessionRecord
	for rows.Next() {
		var r model.SessionRecord
		if err := rows.Scan(&r.ID, &r.RoomID, &r.DayIndex, &r.Phase, &r.ScoreSum, &r.ItemsCompleted,
			&r.ItemsTotal, &r.SummaryMessage, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, r)
	}
	return sessions, rows.Err()
}

// GetSession returns an archived session record by ID.
func (s *Store) GetSession(id string) (model.SessionRecord, error) {
	var r model.SessionRecord
	err := s.db.QueryRow(
		`SELECT id, room_id, day_index, phase, score_sum, items_completed, items_total, summary_message, started_at, ended_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&r.ID, &r.RoomID, &r.DayIndex, &r.Phase, &r.ScoreSum, &r.ItemsCompleted,
		&r.ItemsTotal, &r.SummaryMessage, &r.StartedAt, &r.EndedAt)
	return r, err
}

// GetPhaseChanges returns the recorded phase history of a session.
func (s *Store) GetPhaseChanges(sessionID string) ([]model.PhaseChange, error) {
	rows, err := s.db.Query(
		`SELECT from_phase, to_phase, at FROM phase_changes WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var phases []model.PhaseChange
	for rows.Next() {
		var pc model.PhaseChange
		if err := rows.Scan(&pc.From, &pc.To, &pc.At); err != nil {
			return nil, err
		}
		phases = append(phases, pc)
	}
	return phases, rows.Err()
}

// GetTranscript returns the archived step log of a session in order.
func (s *Store) GetTranscript(sessionID string) ([]model.TranscriptEntry, error) {
	rows, err := s.db.Query(
		`SELECT type, content, item_id, correct, score, attempt, at FROM log_entries WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.TranscriptEntry
	for rows.Next() {
		var (
			e       model.TranscriptEntry
			correct sql.NullBool
			score   sql.NullInt64
		)
		if err := rows.Scan(&e.Type, &e.Content, &e.ItemID, &correct, &score, &e.Attempt, &e.At); err != nil {
			return nil, err
		}
		if correct.Valid {
			b := correct.Bool
			e.Correct = &b
		}
		if score.Valid {
			n := int(score.Int64)
			e.Score = &n
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSessionArchive builds the full archive of one session.
func (s *Store) GetSessionArchive(id string) (*model.SessionExport, error) {
	rec, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	phases, err := s.GetPhaseChanges(id)
	if err != nil {
		return nil, err
	}
	transcript, err := s.GetTranscript(id)
	if err != nil {
		return nil, err
	}
	return &model.SessionExport{Session: rec, Phases: phases, Transcript: transcript}, nil
}

// RecordDayCompletion inserts or updates the completion of a room's day.
func (s *Store) RecordDayCompletion(ctx context.Context, roomID string, sum model.DaySummary, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO day_completions (room_id, day_index, items_completed, items_total, score_sum, avg_score, completion_rate, message, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(room_id, day_index) DO UPDATE SET items_completed = excluded.items_completed,
		   items_total = excluded.items_total, score_sum = excluded.score_sum, avg_score = excluded.avg_score,
		   completion_rate = excluded.completion_rate, message = excluded.message, completed_at = excluded.completed_at`,
		roomID, sum.DayIndex, sum.ItemsCompleted, sum.ItemsTotal, sum.ScoreSum, sum.AvgScore,
		sum.CompletionRate, sum.Message, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record day completion: %w", err)
	}
	return nil
}

// GetDayCompletion returns the completion of a room's day, or nil if the
// day was never closed.
func (s *Store) GetDayCompletion(roomID string, dayIndex int) (*model.DaySummary, error) {
	var d model.DaySummary
	err := s.db.QueryRow(
		`SELECT day_index, items_completed, items_total, score_sum, avg_score, completion_rate, message
		 FROM day_completions WHERE room_id = ? AND day_index = ?`, roomID, dayIndex,
	).Scan(&d.DayIndex, &d.ItemsCompleted, &d.ItemsTotal, &d.ScoreSum, &d.AvgScore, &d.CompletionRate, &d.Message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDayCompletions returns the closed days of a room in day order.
func (s *Store) ListDayCompletions(roomID string) ([]model.DaySummary, error) {
	rows, err := s.db.Query(
		`SELECT day_index, items_completed, items_total, score_sum, avg_score, completion_rate, message
		 FROM day_completions WHERE room_id = ? ORDER BY day_index`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var days []model.DaySummary
	for rows.Next() {
		var d model.DaySummary
		if err := rows.Scan(&d.DayIndex, &d.ItemsCompleted, &d.ItemsTotal, &d.ScoreSum, &d.AvgScore, &d.CompletionRate, &d.Message); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// SessionCount returns the number of archived sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}
