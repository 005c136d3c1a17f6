package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// defaultPageSize is used when a ListFilter carries no limit.
const defaultPageSize = 20

// Schema is the SQL DDL for the vocabulary tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS words (
    id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    word           TEXT NOT NULL UNIQUE,
    phonetic       TEXT NOT NULL DEFAULT '',
    meanings       TEXT NOT NULL,
    part_of_speech TEXT NOT NULL DEFAULT '',
    phrase         TEXT NOT NULL DEFAULT '',
    phrase_meaning TEXT NOT NULL DEFAULT '',
    difficulty     TEXT NOT NULL DEFAULT '',
    error_count    INT NOT NULL DEFAULT 0,
    learned_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_words_difficulty ON words(difficulty);

CREATE TABLE IF NOT EXISTS keywords (
    id                    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    text                  TEXT NOT NULL UNIQUE,
    core_requirements     TEXT NOT NULL DEFAULT '',
    difficulty            TEXT NOT NULL DEFAULT '',
    supplements           TEXT NOT NULL DEFAULT '',
    vocabulary_scope      TEXT NOT NULL DEFAULT '',
    key_sentence_patterns TEXT NOT NULL DEFAULT '',
    trained_scopes        JSONB NOT NULL DEFAULT '[]',
    trained_scope_index   INT NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS vocabulary_test_results (
    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    keyword_id BIGINT NOT NULL REFERENCES keywords(id) ON DELETE CASCADE,
    verdict    TEXT NOT NULL,
    report     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_test_results_keyword ON vocabulary_test_results(keyword_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Trained scopes
// are serialised as JSONB on the keyword row.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// vocabulary tables and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("vocab: migrate: %w", err)
	}
	return nil
}

const entryColumns = `id, word, phonetic, meanings, part_of_speech, phrase,
       phrase_meaning, difficulty, error_count, learned_at, updated_at`

// ListWords implements [Store].
func (s *PostgresStore) ListWords(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(word ILIKE $%d OR meanings ILIKE $%d)", n, n))
	}
	if filter.Difficulty != "" {
		args = append(args, filter.Difficulty)
		conds = append(conds, fmt.Sprintf("difficulty = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM words"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("vocab: count words: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf("SELECT %s FROM words%s ORDER BY learned_at DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("vocab: list words: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// WordsByText implements [Store].
func (s *PostgresStore) WordsByText(ctx context.Context, words []string) ([]Entry, error) {
	if len(words) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM words WHERE word = ANY($1) ORDER BY word", entryColumns)
	rows, err := s.db.Query(ctx, query, words)
	if err != nil {
		return nil, fmt.Errorf("vocab: words by text: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UpsertWords implements [Store].
func (s *PostgresStore) UpsertWords(ctx context.Context, entries []Entry) error {
	const query = `
		INSERT INTO words (
			word, phonetic, meanings, part_of_speech, phrase, phrase_meaning, difficulty
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (word) DO UPDATE SET
			phonetic = EXCLUDED.phonetic,
			meanings = EXCLUDED.meanings,
			part_of_speech = EXCLUDED.part_of_speech,
			phrase = EXCLUDED.phrase,
			phrase_meaning = EXCLUDED.phrase_meaning,
			difficulty = EXCLUDED.difficulty,
			updated_at = now()
		RETURNING id, error_count, learned_at, updated_at`

	for i := range entries {
		e := &entries[i]
		if err := e.Validate(); err != nil {
			return err
		}
		err := s.db.QueryRow(ctx, query,
			e.Word, e.Phonetic, e.Meanings, e.PartOfSpeech, e.Phrase, e.PhraseMeaning, e.Difficulty,
		).Scan(&e.ID, &e.ErrorCount, &e.LearnedAt, &e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("vocab: upsert word %q: %w", e.Word, err)
		}
	}
	return nil
}

// BumpErrorCount implements [Store]. The clamp lives in the UPDATE itself, so
// concurrent bumps for the same word cannot overshoot.
func (s *PostgresStore) BumpErrorCount(ctx context.Context, word string) (int, error) {
	const query = `
		UPDATE words SET error_count = LEAST(error_count + 1, 1), updated_at = now()
		WHERE word = $1
		RETURNING error_count`

	var count int
	err := s.db.QueryRow(ctx, query, word).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("vocab: bump %q: %w", word, ErrNotFound)
		}
		return 0, fmt.Errorf("vocab: bump %q: %w", word, err)
	}
	return count, nil
}

// SaveKeyword implements [Store].
func (s *PostgresStore) SaveKeyword(ctx context.Context, kw *Keyword) error {
	if kw.Text == "" {
		return errors.New("vocab: keyword text must not be empty")
	}

	scopesJSON, err := json.Marshal(emptySlice(kw.TrainedScopes))
	if err != nil {
		return fmt.Errorf("vocab: marshal trained_scopes: %w", err)
	}

	const query = `
		INSERT INTO keywords (
			text, core_requirements, difficulty, supplements,
			vocabulary_scope, key_sentence_patterns, trained_scopes, trained_scope_index
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (text) DO UPDATE SET
			core_requirements = EXCLUDED.core_requirements,
			difficulty = EXCLUDED.difficulty,
			supplements = EXCLUDED.supplements,
			vocabulary_scope = EXCLUDED.vocabulary_scope,
			key_sentence_patterns = EXCLUDED.key_sentence_patterns,
			trained_scopes = EXCLUDED.trained_scopes,
			trained_scope_index = EXCLUDED.trained_scope_index,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		kw.Text, kw.CoreRequirements, kw.Difficulty, kw.Supplements,
		kw.VocabularyScope, kw.KeySentencePatterns, scopesJSON, kw.TrainedScopeIndex,
	).Scan(&kw.ID, &kw.CreatedAt, &kw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vocab: save keyword %q: %w", kw.Text, err)
	}
	return nil
}

// GetKeyword implements [Store].
func (s *PostgresStore) GetKeyword(ctx context.Context, text string) (*Keyword, error) {
	const query = `
		SELECT id, text, core_requirements, difficulty, supplements,
		       vocabulary_scope, key_sentence_patterns, trained_scopes,
		       trained_scope_index, created_at, updated_at
		FROM keywords
		WHERE text = $1`

	var kw Keyword
	var scopesJSON []byte
	err := s.db.QueryRow(ctx, query, text).Scan(
		&kw.ID, &kw.Text, &kw.CoreRequirements, &kw.Difficulty, &kw.Supplements,
		&kw.VocabularyScope, &kw.KeySentencePatterns, &scopesJSON,
		&kw.TrainedScopeIndex, &kw.CreatedAt, &kw.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vocab: keyword %q: %w", text, ErrNotFound)
		}
		return nil, fmt.Errorf("vocab: get keyword %q: %w", text, err)
	}

	if err := json.Unmarshal(scopesJSON, &kw.TrainedScopes); err != nil {
		return nil, fmt.Errorf("vocab: unmarshal trained_scopes: %w", err)
	}
	return &kw, nil
}

// AppendTrainedScope implements [Store].
func (s *PostgresStore) AppendTrainedScope(ctx context.Context, keywordID int64, scope string) error {
	const query = `
		UPDATE keywords
		SET trained_scopes = trained_scopes || to_jsonb($2::text), updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, keywordID, scope)
	if err != nil {
		return fmt.Errorf("vocab: append trained scope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vocab: keyword %d: %w", keywordID, ErrNotFound)
	}
	return nil
}

// SetTrainedScopeIndex implements [Store].
func (s *PostgresStore) SetTrainedScopeIndex(ctx context.Context, keywordID int64, index int) error {
	const query = `UPDATE keywords SET trained_scope_index = $2, updated_at = now() WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, keywordID, index)
	if err != nil {
		return fmt.Errorf("vocab: set trained scope index: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vocab: keyword %d: %w", keywordID, ErrNotFound)
	}
	return nil
}

// SaveTestResult implements [Store].
func (s *PostgresStore) SaveTestResult(ctx context.Context, res *TestResult) error {
	if res.KeywordID == 0 {
		return errors.New("vocab: test result keyword id must be set")
	}

	const query = `
		INSERT INTO vocabulary_test_results (keyword_id, verdict, report)
		VALUES ($1,$2,$3)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query, res.KeywordID, res.Verdict, res.Report).
		Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("vocab: save test result: %w", err)
	}
	return nil
}

// scanEntries drains rows into entries.
func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Word, &e.Phonetic, &e.Meanings, &e.PartOfSpeech, &e.Phrase,
			&e.PhraseMeaning, &e.Difficulty, &e.ErrorCount, &e.LearnedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("vocab: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vocab: rows: %w", err)
	}
	return entries, nil
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice. This
// ensures JSON marshalling produces "[]" instead of "null".
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
