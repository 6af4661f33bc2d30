// Package history keeps a SQLite log of finished synthesis requests.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	_ "modernc.org/sqlite"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// Store records requests in a SQLite database. It implements tts.Recorder.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger.WithPrefix("history")}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS requests (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    text_chars INTEGER NOT NULL,
    chunks INTEGER NOT NULL,
    speaker_id INTEGER NOT NULL,
    speed REAL NOT NULL,
    sample_rate INTEGER NOT NULL,
    samples INTEGER NOT NULL,
    path TEXT,
    code TEXT,
    message TEXT,
    started_at INTEGER NOT NULL,
    elapsed_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_started ON requests(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores rec, replacing any earlier row with the same ID.
func (s *Store) Record(ctx context.Context, rec tts.Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO requests(
    id, mode, text_chars, chunks, speaker_id, speed, sample_rate, samples,
    path, code, message, started_at, elapsed_ns)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Mode, rec.TextChars, rec.Chunks, rec.SpeakerID, rec.Speed, rec.SampleRate, rec.Samples,
		rec.Path, string(rec.Code), rec.Message, rec.StartedAt.UnixNano(), int64(rec.Elapsed))
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Query filters List.
type Query struct {
	Limit      int
	Mode       string
	FailedOnly bool
	Since      time.Time
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]tts.Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, q.Mode)
	}
	if q.FailedOnly {
		where = append(where, "code <> ''")
	}
	if !q.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, mode, text_chars, chunks, speaker_id, speed, sample_rate, samples,
    path, code, message, started_at, elapsed_ns FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []tts.Record
	for rows.Next() {
		var (
			rec             tts.Record
			path, code, msg sql.NullString
			started, elapse int64
		)
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.TextChars, &rec.Chunks, &rec.SpeakerID, &rec.Speed,
			&rec.SampleRate, &rec.Samples, &path, &code, &msg, &started, &elapse); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		rec.Path = path.String
		rec.Code = tts.ErrorCode(code.String)
		rec.Message = msg.String
		rec.StartedAt = time.Unix(0, started)
		rec.Elapsed = time.Duration(elapse)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates the whole history.
type Summary struct {
	Requests int
	Failed   int
	Audio    time.Duration
}

// Summarize totals every stored request.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var (
		sum   Summary
		audio sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN code <> '' THEN 1 ELSE 0 END), 0),
       SUM(CASE WHEN sample_rate > 0 THEN CAST(samples AS REAL) / sample_rate ELSE 0 END)
FROM requests`).Scan(&sum.Requests, &sum.Failed, &audio)
	if err != nil {
		return sum, fmt.Errorf("summarize requests: %w", err)
	}
	sum.Audio = time.Duration(audio.Float64 * float64(time.Second))
	return sum, nil
}

// Prune deletes records started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune requests: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("pruned history", "rows", n, "before", cutoff)
	}
	return n, nil
}
