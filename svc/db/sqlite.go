package db

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"lingopaste/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultQueryTimeout = 5 * time.Second
)

// SQLite persists pastes and their translations. Translations are keyed by
// (paste_id, language) and only ever inserted or replaced.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	_, err = s.db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return errors.Wrap(err, "enable foreign keys")
	}
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		original_language TEXT NOT NULL,
		tone TEXT NOT NULL DEFAULT 'default',
		content TEXT NOT NULL,
		character_count INTEGER NOT NULL,
		creator_ip_hash TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_creator ON pastes(creator_ip_hash, created_at);
	CREATE TABLE IF NOT EXISTS translations (
		paste_id TEXT NOT NULL REFERENCES pastes(id) ON DELETE CASCADE,
		language TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (paste_id, language)
	);
	`
	_, err = s.db.Exec(query)
	return err
}
func (s *SQLite) Create(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, original_language, tone, content, character_count, creator_ip_hash, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.OriginalLanguage, string(p.Tone), p.Content, p.CharacterCount, p.CreatorIPHash, p.CreatedAt.UTC(),
	)
	s.recordError(err)
	return errors.Wrap(err, "db create")
}

// Get loads a paste and fills Languages with the original language
// followed by every translated language in sorted order.
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, original_language, tone, content, character_count, COALESCE(creator_ip_hash, ''), created_at
	FROM pastes WHERE id = ?
	`
	var p domain.Paste
	var tone string
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(
		&p.ID, &p.OriginalLanguage, &tone, &p.Content, &p.CharacterCount, &p.CreatorIPHash, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	p.Tone = domain.Tone(tone)
	langs, err := s.languages(queryCtx, id)
	if err != nil {
		return nil, err
	}
	p.Languages = append([]string{p.OriginalLanguage}, langs...)
	return &p, nil
}
func (s *SQLite) languages(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT language FROM translations WHERE paste_id = ? ORDER BY language`, id)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list languages")
	}
	defer rows.Close()
	var langs []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, errors.Wrap(err, "scan language")
		}
		langs = append(langs, l)
	}
	return langs, errors.Wrap(rows.Err(), "iterate languages")
}
func (s *SQLite) SaveTranslation(ctx context.Context, id, lang, text string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO translations (paste_id, language, content, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(paste_id, language) DO UPDATE SET content = excluded.content
	`
	_, err := s.db.ExecContext(queryCtx, q, id, lang, text, time.Now().UTC())
	s.recordError(err)
	return errors.Wrap(err, "save translation")
}

// GetTranslation reports ok=false when no row exists.
func (s *SQLite) GetTranslation(ctx context.Context, id, lang string) (string, bool, error) {
	if err := s.checkCircuit(); err != nil {
		return "", false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var text string
	err := s.db.QueryRowContext(queryCtx,
		`SELECT content FROM translations WHERE paste_id = ? AND language = ?`, id, lang,
	).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	s.recordError(err)
	if err != nil {
		return "", false, errors.Wrap(err, "get translation")
	}
	return text, true, nil
}
func (s *SQLite) Translations(ctx context.Context, id string) (map[string]string, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(queryCtx, `SELECT language, content FROM translations WHERE paste_id = ?`, id)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list translations")
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var lang, text string
		if err := rows.Scan(&lang, &text); err != nil {
			return nil, errors.Wrap(err, "scan translation")
		}
		out[lang] = text
	}
	return out, errors.Wrap(rows.Err(), "iterate translations")
}

// CountCreatedSince backs the daily quota when Redis is not configured.
func (s *SQLite) CountCreatedSince(ctx context.Context, ipHash string, since time.Time) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var n int
	err := s.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM pastes WHERE creator_ip_hash = ? AND created_at >= ?`, ipHash, since.UTC(),
	).Scan(&n)
	s.recordError(err)
	return n, errors.Wrap(err, "count pastes")
}
func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	q := `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}
func (s *SQLite) Close() error {
	return s.db.Close()
}

