package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"horse.fit/newsdesk/internal/news"
)

// Fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteBackend stores generations in a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) and migrates the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on&_busy_timeout=5000"
	} else {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) CreateGeneration(ctx context.Context, id string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, state, created_at) VALUES (?, ?, ?)`,
		id, string(StateStaging), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) PutStories(ctx context.Context, generationID string, stories []news.Story) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put stories: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var state string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM generations WHERE id = ?`, generationID).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
		}
		return fmt.Errorf("load generation state: %w", err)
	}
	if GenerationState(state) != StateStaging {
		return fmt.Errorf("generation %s is %s, not staging", generationID, state)
	}

	storyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stories (generation_id, id, seq, headline, summary, categories, interests, degraded, category_fallback, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare story insert: %w", err)
	}
	defer storyStmt.Close()

	evidenceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evidence (generation_id, story_id, position, key, url, title, body, language, source_domain, published_at, fetched_at, query, interests, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare evidence insert: %w", err)
	}
	defer evidenceStmt.Close()

	for _, story := range stories {
		categories, err := json.Marshal(story.Categories)
		if err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		interests, err := marshalStrings(story.Interests)
		if err != nil {
			return err
		}
		if _, err := storyStmt.ExecContext(ctx,
			generationID, story.ID, story.Seq, story.Headline, story.Summary,
			string(categories), interests, story.Degraded, story.CategoryFallback,
			encodeVector(story.Embedding),
		); err != nil {
			return fmt.Errorf("insert story %s: %w", story.ID, err)
		}

		for position, evidence := range story.Evidence {
			query, err := json.Marshal(evidence.Query)
			if err != nil {
				return fmt.Errorf("encode evidence query: %w", err)
			}
			evidenceInterests, err := marshalStrings(evidence.Interests)
			if err != nil {
				return err
			}
			if _, err := evidenceStmt.ExecContext(ctx,
				generationID, story.ID, position, evidence.Key, evidence.URL, evidence.Title, evidence.Text,
				evidence.Language, evidence.SourceDomain, formatTime(evidence.PublishedAt), formatTime(evidence.FetchedAt),
				string(query), evidenceInterests, evidence.Order,
			); err != nil {
				return fmt.Errorf("insert evidence %s: %w", evidence.Key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put stories: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Activate(ctx context.Context, generationID string, at time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin activate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var state string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM generations WHERE id = ?`, generationID).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
		}
		return "", fmt.Errorf("load generation state: %w", err)
	}
	if GenerationState(state) != StateStaging {
		return "", fmt.Errorf("generation %s is %s, not staging", generationID, state)
	}

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT id FROM generations WHERE state = ?`, string(StateLive)).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("load live generation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE generations SET state = ? WHERE state = ?`, string(StateRetired), string(StateLive)); err != nil {
		return "", fmt.Errorf("retire live generation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE generations SET state = ?, activated_at = ? WHERE id = ?`,
		string(StateLive), formatTime(at), generationID,
	); err != nil {
		return "", fmt.Errorf("activate generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit activate: %w", err)
	}
	return previous, nil
}

func (s *SQLiteBackend) DropGeneration(ctx context.Context, generationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop generation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM evidence WHERE generation_id = ?`,
		`DELETE FROM stories WHERE generation_id = ?`,
		`DELETE FROM generations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, generationID); err != nil {
			return fmt.Errorf("drop generation %s: %w", generationID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Generations(ctx context.Context) ([]GenerationInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.state, g.created_at, g.activated_at, COUNT(s.id)
		FROM generations g
		LEFT JOIN stories s ON s.generation_id = g.id
		GROUP BY g.id, g.state, g.created_at, g.activated_at
		ORDER BY g.created_at, g.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var out []GenerationInfo
	for rows.Next() {
		var (
			info        GenerationInfo
			state       string
			createdAt   string
			activatedAt sql.NullString
		)
		if err := rows.Scan(&info.ID, &state, &createdAt, &activatedAt, &info.StoryCount); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		info.State = GenerationState(state)
		info.CreatedAt = parseTime(createdAt)
		if activatedAt.Valid {
			at := parseTime(activatedAt.String)
			info.ActivatedAt = &at
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) LiveGeneration(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM generations WHERE state = ?`, string(StateLive)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load live generation: %w", err)
	}
	return id, nil
}

func (s *SQLiteBackend) LoadStories(ctx context.Context, generationID string) ([]news.Story, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE id = ?`, generationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check generation: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, headline, summary, categories, interests, degraded, category_fallback, embedding
		FROM stories WHERE generation_id = ? ORDER BY seq
	`, generationID)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	var (
		stories []news.Story
		index   = make(map[string]int)
	)
	for rows.Next() {
		var (
			story      news.Story
			categories string
			interests  string
			embedding  []byte
		)
		if err := rows.Scan(&story.ID, &story.Seq, &story.Headline, &story.Summary, &categories, &interests,
			&story.Degraded, &story.CategoryFallback, &embedding); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan story: %w", err)
		}
		if err := json.Unmarshal([]byte(categories), &story.Categories); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode categories for %s: %w", story.ID, err)
		}
		_ = json.Unmarshal([]byte(interests), &story.Interests)
		story.Embedding = decodeVector(embedding)
		index[story.ID] = len(stories)
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	_ = rows.Close()

	evidenceRows, err := s.db.QueryContext(ctx, `
		SELECT story_id, key, url, title, body, language, source_domain, published_at, fetched_at, query, interests, ord
		FROM evidence WHERE generation_id = ? ORDER BY story_id, position
	`, generationID)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer evidenceRows.Close()

	for evidenceRows.Next() {
		var (
			storyID     string
			evidence    news.Evidence
			publishedAt string
			fetchedAt   string
			query       string
			interests   string
		)
		if err := evidenceRows.Scan(&storyID, &evidence.Key, &evidence.URL, &evidence.Title, &evidence.Text,
			&evidence.Language, &evidence.SourceDomain, &publishedAt, &fetchedAt, &query, &interests, &evidence.Order); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		evidence.PublishedAt = parseTime(publishedAt)
		evidence.FetchedAt = parseTime(fetchedAt)
		_ = json.Unmarshal([]byte(query), &evidence.Query)
		_ = json.Unmarshal([]byte(interests), &evidence.Interests)

		i, ok := index[storyID]
		if !ok {
			continue
		}
		stories[i].Evidence = append(stories[i].Evidence, evidence)
	}
	if err := evidenceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return stories, nil
}

func (s *SQLiteBackend) RecordRun(ctx context.Context, run news.Run) error {
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("encode run counters: %w", err)
	}
	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = formatTime(*run.FinishedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, status, generation_id, counters, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			generation_id = excluded.generation_id,
			counters = excluded.counters,
			error = excluded.error
	`, run.ID, formatTime(run.StartedAt), finishedAt, string(run.Status), run.GenerationID, string(counters), run.Error)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) ListRuns(ctx context.Context, limit int) ([]news.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, generation_id, counters, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []news.Run
	for rows.Next() {
		var (
			run        news.Run
			startedAt  string
			finishedAt sql.NullString
			status     string
			counters   string
		)
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &status, &run.GenerationID, &counters, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			at := parseTime(finishedAt.String)
			run.FinishedAt = &at
		}
		run.Status = news.RunStatus(status)
		_ = json.Unmarshal([]byte(counters), &run.Counters)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBackend) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(raw), nil
}

// encodeVector packs float32 values little-endian.
func encodeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vector))
	for i, value := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(value))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
