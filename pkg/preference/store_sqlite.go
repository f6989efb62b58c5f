package preference

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linqiu/chefmate/pkg/embedding"
)

// ErrNotFound marks a legitimately absent preference record, as opposed
// to a persistence failure. Callers distinguish the two with errors.Is.
var ErrNotFound = errors.New("preference not found")

// Store is the persistence boundary for taste profiles.
type Store interface {
	Close() error
	Get(ctx context.Context, userID string) (Preference, error)
	Update(ctx context.Context, userID string, update Update) (Preference, error)
	Delete(ctx context.Context, userID string) error
	SearchSimilar(ctx context.Context, query string, k int) ([]Preference, error)
}

// SQLiteStore persists preferences plus their embedding vectors.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewSQLiteStore creates/opens the preference database at path.
func NewSQLiteStore(path string, embedder embedding.Embedder) (*SQLiteStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create preference db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single shared connection avoids SQLite writer lock contention
	// between concurrent per-user goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, embedder: embedder}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT PRIMARY KEY,
			profile_json TEXT NOT NULL,
			spice_level TEXT NOT NULL DEFAULT '',
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS preference_embeddings (
			user_id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			vector_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init preference schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

// Get returns the stored preference, ErrNotFound when absent, or a
// persistence error; the three outcomes are never conflated.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (Preference, error) {
	var profileJSON string
	var updatedMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_json, updated_at_ms FROM preferences WHERE user_id = ?`, userID,
	).Scan(&profileJSON, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Preference{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Preference{}, fmt.Errorf("read preference: %w", err)
	}

	var pref Preference
	if err := json.Unmarshal([]byte(profileJSON), &pref); err != nil {
		return Preference{}, fmt.Errorf("decode preference for %s: %w", userID, err)
	}
	pref.UserID = userID
	pref.UpdatedAt = time.UnixMilli(updatedMS)
	return pref, nil
}

// Update merges the partial fields into the stored record (creating it on
// first update) and persists profile plus embedding in one transaction.
// On failure nothing is committed, so no partially merged record can be
// observed afterward.
func (s *SQLiteStore) Update(ctx context.Context, userID string, update Update) (Preference, error) {
	if err := update.Validate(); err != nil {
		return Preference{}, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Preference{}, err
	}
	if errors.Is(err, ErrNotFound) {
		current = Preference{UserID: userID, SpiceLevel: SpiceMedium}
	}

	merged := current.Merge(update)
	merged.UserID = userID

	profileJSON, err := json.Marshal(merged)
	if err != nil {
		return Preference{}, fmt.Errorf("encode preference: %w", err)
	}
	vector := s.embedder.Embed(merged.Text())
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return Preference{}, fmt.Errorf("encode preference vector: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Preference{}, fmt.Errorf("begin preference update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowMS := merged.UpdatedAt.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO preferences(user_id, profile_json, spice_level, updated_at_ms)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			profile_json = excluded.profile_json,
			spice_level = excluded.spice_level,
			updated_at_ms = excluded.updated_at_ms`,
		userID, string(profileJSON), merged.SpiceLevel, nowMS,
	); err != nil {
		return Preference{}, fmt.Errorf("write preference: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO preference_embeddings(user_id, model, vector_json, updated_at_ms)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			model = excluded.model,
			vector_json = excluded.vector_json,
			updated_at_ms = excluded.updated_at_ms`,
		userID, s.embedder.ModelID(), string(vectorJSON), nowMS,
	); err != nil {
		return Preference{}, fmt.Errorf("write preference embedding: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Preference{}, fmt.Errorf("commit preference update: %w", err)
	}
	return merged, nil
}

// Delete removes the record entirely; absent is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preference delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM preference_embeddings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete preference embedding: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preference delete: %w", err)
	}
	return nil
}

// SearchSimilar returns up to k preferences whose descriptors are nearest
// to query by cosine similarity over stored vectors. Stale vectors (from
// a different embedder) are recomputed on the fly but not rewritten.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, query string, k int) ([]Preference, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}
	queryVec := s.embedder.Embed(query)

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.user_id, p.profile_json, p.updated_at_ms, e.model, e.vector_json
		 FROM preferences p
		 LEFT JOIN preference_embeddings e ON e.user_id = p.user_id`)
	if err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	defer rows.Close()

	type scored struct {
		pref  Preference
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var userID, profileJSON string
		var updatedMS int64
		var model, vectorJSON sql.NullString
		if err := rows.Scan(&userID, &profileJSON, &updatedMS, &model, &vectorJSON); err != nil {
			return nil, fmt.Errorf("scan preference row: %w", err)
		}
		var pref Preference
		if err := json.Unmarshal([]byte(profileJSON), &pref); err != nil {
			continue
		}
		pref.UserID = userID
		pref.UpdatedAt = time.UnixMilli(updatedMS)

		var vec []float32
		if vectorJSON.Valid && model.Valid && model.String == s.embedder.ModelID() {
			if err := json.Unmarshal([]byte(vectorJSON.String), &vec); err != nil {
				vec = nil
			}
		}
		if vec == nil {
			vec = s.embedder.Embed(pref.Text())
		}
		candidates = append(candidates, scored{pref: pref, score: embedding.Cosine(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].pref.UserID < candidates[j].pref.UserID
		}
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Preference, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.pref)
	}
	return out, nil
}
