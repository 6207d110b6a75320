package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Fact source values.
const (
	SourceTool = "tool" // saved by an agent through the remember tool
	SourceFile = "file" // indexed from a markdown file in the facts directory
)

// Fact is one remembered statement.
type Fact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Source    string    `json:"source"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score,omitempty"`
}

// Store is a SQLite-backed fact store with keyword recall.
type Store struct {
	db       *sql.DB
	factsDir string
	logger   zerolog.Logger
	watcher  *dirWatcher

	mu      sync.Mutex
	dirty   bool
	syncing bool
}

// Config holds store configuration.
type Config struct {
	// DBPath is the path of the SQLite database file.
	DBPath string
	// FactsDir, when set, is a directory of markdown files indexed as facts
	// and re-indexed on change.
	FactsDir string
	Logger   zerolog.Logger
}

// NewStore opens (or creates) the fact database and, when a facts directory
// is configured, starts watching it for changes.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:       db,
		factsDir: cfg.FactsDir,
		logger:   cfg.Logger,
		dirty:    cfg.FactsDir != "",
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.FactsDir != "" {
		watcher, err := newDirWatcher(cfg.Logger, s.MarkDirty)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create facts watcher: %w", err)
		}
		if err := watcher.Watch(cfg.FactsDir); err != nil {
			watcher.Stop()
			db.Close()
			return nil, fmt.Errorf("failed to watch facts directory: %w", err)
		}
		s.watcher = watcher
	}

	s.logger.Info().Str("db", cfg.DBPath).Msg("Memory store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_source ON facts(source);
		CREATE INDEX IF NOT EXISTS idx_facts_path ON facts(path);

		CREATE TABLE IF NOT EXISTS fact_files (
			path TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save persists a tool-originated fact and returns it.
func (s *Store) Save(ctx context.Context, content, category string) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, errors.New("fact content is required")
	}

	fact := Fact{
		ID:        gonanoid.Must(),
		Content:   content,
		Category:  category,
		Source:    SourceTool,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO facts (id, content, category, source, path, created_at) VALUES (?, ?, ?, ?, '', ?)",
		fact.ID, fact.Content, fact.Category, fact.Source, fact.CreatedAt.Unix(),
	)
	if err != nil {
		return Fact{}, fmt.Errorf("failed to save fact: %w", err)
	}

	s.logger.Debug().Str("fact_id", fact.ID).Str("category", category).Msg("Fact saved")
	return fact, nil
}

// Delete removes a fact by id. It reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM facts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete fact: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns the most recent facts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, category, source, path, created_at
		FROM facts
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Search recalls facts matching the query, ranked by how many query terms
// each fact contains and how often. Results are deterministic for a given
// store state.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return []Fact{}, nil
	}

	if s.isDirty() {
		if err := s.Sync(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Facts sync failed before search")
		}
	}

	conditions := make([]string, len(terms))
	args := make([]interface{}, len(terms))
	for i, term := range terms {
		conditions[i] = "instr(lower(content), ?) > 0"
		args[i] = term
	}
	q := fmt.Sprintf(`
		SELECT id, content, category, source, path, created_at
		FROM facts
		WHERE %s
	`, strings.Join(conditions, " OR "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}

	for i := range facts {
		facts[i].Score = scoreFact(facts[i].Content, terms)
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Score != facts[j].Score {
			return facts[i].Score > facts[j].Score
		}
		if !facts[i].CreatedAt.Equal(facts[j].CreatedAt) {
			return facts[i].CreatedAt.After(facts[j].CreatedAt)
		}
		return facts[i].ID < facts[j].ID
	})

	if len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

// queryTerms lowercases the query and keeps the distinct words long enough
// to be meaningful search terms.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()")
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// scoreFact weighs term coverage heaviest, with occurrence counts as a
// tiebreaker between facts that match the same terms.
func scoreFact(content string, terms []string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	occurrences := 0
	for _, term := range terms {
		n := strings.Count(lower, term)
		if n > 0 {
			matched++
			occurrences += n
		}
	}
	return float64(matched)/float64(len(terms)) + float64(occurrences)*0.01
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var f Fact
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.Content, &f.Category, &f.Source, &f.Path, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(createdAt, 0).UTC()
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// MarkDirty flags the file index for re-sync before the next search.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

func (s *Store) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Sync re-indexes the facts directory: changed markdown files are split into
// paragraph facts, unchanged files are skipped by content hash, and facts
// whose source file disappeared are pruned.
func (s *Store) Sync(ctx context.Context) error {
	if s.factsDir == "" {
		return nil
	}

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return errors.New("sync already in progress")
	}
	s.syncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.dirty = false
		s.mu.Unlock()
	}()

	var mdFiles []string
	err := filepath.WalkDir(s.factsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			relPath, _ := filepath.Rel(s.factsDir, path)
			mdFiles = append(mdFiles, relPath)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk facts directory: %w", err)
	}

	indexed := 0
	for _, relPath := range mdFiles {
		changed, err := s.indexFile(ctx, filepath.Join(s.factsDir, relPath), relPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", relPath).Msg("Failed to index facts file")
			continue
		}
		if changed {
			indexed++
		}
	}

	pruned, err := s.pruneDeletedFiles(ctx, mdFiles)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune deleted facts files")
	}

	s.logger.Debug().
		Int("files_indexed", indexed).
		Int("files_pruned", pruned).
		Msg("Facts sync completed")
	return nil
}

func (s *Store) indexFile(ctx context.Context, fullPath, relPath string) (bool, error) {
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return false, err
	}
	hash := sha256.Sum256(content)
	contentHash := hex.EncodeToString(hash[:])

	var existingHash string
	err = s.db.QueryRowContext(ctx, "SELECT content_hash FROM fact_files WHERE path = ?", relPath).Scan(&existingHash)
	if err == nil && existingHash == contentHash {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM facts WHERE source = ? AND path = ?", SourceFile, relPath); err != nil {
		return false, err
	}

	now := time.Now().Unix()
	for i, paragraph := range splitParagraphs(string(content)) {
		id := fmt.Sprintf("%s#%d", relPath, i)
		_, err := tx.Exec(
			"INSERT INTO facts (id, content, category, source, path, created_at) VALUES (?, ?, '', ?, ?, ?)",
			id, paragraph, SourceFile, relPath, now,
		)
		if err != nil {
			return false, err
		}
	}

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO fact_files (path, content_hash, indexed_at) VALUES (?, ?, ?)",
		relPath, contentHash, now,
	)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// splitParagraphs turns markdown into blank-line separated fact candidates.
func splitParagraphs(content string) []string {
	var paragraphs []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		paragraphs = append(paragraphs, block)
	}
	return paragraphs
}

func (s *Store) pruneDeletedFiles(ctx context.Context, existing []string) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM fact_files")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	existingSet := make(map[string]bool, len(existing))
	for _, f := range existing {
		existingSet[f] = true
	}

	var toDelete []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return 0, err
		}
		if !existingSet[path] {
			toDelete = append(toDelete, path)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, path := range toDelete {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM facts WHERE source = ? AND path = ?", SourceFile, path); err != nil {
			return len(toDelete), err
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM fact_files WHERE path = ?", path); err != nil {
			return len(toDelete), err
		}
	}
	return len(toDelete), nil
}

// Close stops the watcher and closes the database.
func (s *Store) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	return s.db.Close()
}
