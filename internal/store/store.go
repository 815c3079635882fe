package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"newsbundle/internal/clustering"
	"newsbundle/internal/core"
)

const dbFileName = "newsbundle.db"

// ErrRunNotFound is returned by GetRun for an unknown id
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted clustering run
type Run struct {
	ID              string              `json:"id"`
	CreatedAt       time.Time           `json:"created_at"`
	Source          string              `json:"source"` // Input file or other origin
	Params          clustering.Params   `json:"params"`
	ValidityScore   float64             `json:"validity_score"`
	NumClusters     int                 `json:"num_clusters"`
	NumNoise        int                 `json:"num_noise"`
	ArticleIDs      []string            `json:"article_ids"`
	Labels          []int               `json:"labels"`
	Probabilities   []float64           `json:"probabilities"`
	Topics          []core.TopicCluster `json:"topics"`
	NoiseArticleIDs []string            `json:"noise_article_ids"`
}

// NewRun builds a Run from a clustering result; articleIDs are parallel to the labels
func NewRun(source string, articleIDs []string, result *clustering.Result, topics []core.TopicCluster, noise []string) Run {
	return Run{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Source:          source,
		Params:          result.Params,
		ValidityScore:   result.ValidityScore,
		NumClusters:     result.NumClusters(),
		NumNoise:        result.NumNoise(),
		ArticleIDs:      articleIDs,
		Labels:          result.Labels,
		Probabilities:   result.Probabilities,
		Topics:          topics,
		NoiseArticleIDs: noise,
	}
}

// RunSummary is a Run without its per-article vectors, used for listings
type RunSummary struct {
	ID            string
	CreatedAt     time.Time
	Source        string
	Params        clustering.Params
	ValidityScore float64
	NumClusters   int
	NumNoise      int
	NumArticles   int
}

// Store persists clustering runs in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME,
		source TEXT,
		min_cluster_size INTEGER,
		min_samples INTEGER,
		selection_method TEXT,
		validity_score REAL,
		num_clusters INTEGER,
		num_noise INTEGER,
		num_articles INTEGER,
		article_ids TEXT,
		labels TEXT,
		probabilities TEXT,
		topics TEXT,
		noise_article_ids TEXT
	);`

	indexes := `CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);`

	for _, stmt := range []string{runsTable, indexes} {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to create table")
		}
	}
	return nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run, replacing any run with the same id
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}

	encoded := make([]string, 0, 5)
	for _, v := range []any{run.ArticleIDs, run.Labels, run.Probabilities, run.Topics, run.NoiseArticleIDs} {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "failed to encode run %s", run.ID)
		}
		encoded = append(encoded, string(b))
	}

	query := `
	INSERT OR REPLACE INTO runs
	(id, created_at, source, min_cluster_size, min_samples, selection_method, validity_score,
	 num_clusters, num_noise, num_articles, article_ids, labels, probabilities, topics, noise_article_ids)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.CreatedAt.UTC(),
		run.Source,
		run.Params.MinClusterSize,
		run.Params.MinSamples,
		string(run.Params.SelectionMethod),
		run.ValidityScore,
		run.NumClusters,
		run.NumNoise,
		len(run.Labels),
		encoded[0], encoded[1], encoded[2], encoded[3], encoded[4],
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save run %s", run.ID)
	}
	return nil
}

// GetRun loads a run by id
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
	SELECT id, created_at, source, min_cluster_size, min_samples, selection_method, validity_score,
	       num_clusters, num_noise, article_ids, labels, probabilities, topics, noise_article_ids
	FROM runs WHERE id = ?`

	var run Run
	var method string
	var articleIDs, labels, probs, topics, noise string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.CreatedAt,
		&run.Source,
		&run.Params.MinClusterSize,
		&run.Params.MinSamples,
		&method,
		&run.ValidityScore,
		&run.NumClusters,
		&run.NumNoise,
		&articleIDs, &labels, &probs, &topics, &noise,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan run")
	}
	run.Params.SelectionMethod = clustering.SelectionMethod(method)

	targets := []struct {
		raw string
		dst any
	}{
		{articleIDs, &run.ArticleIDs},
		{labels, &run.Labels},
		{probs, &run.Probabilities},
		{topics, &run.Topics},
		{noise, &run.NoiseArticleIDs},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.raw), t.dst); err != nil {
			return nil, errors.Wrapf(err, "failed to decode run %s", id)
		}
	}

	return &run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT id, created_at, source, min_cluster_size, min_samples, selection_method, validity_score,
	       num_clusters, num_noise, num_articles
	FROM runs ORDER BY created_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var method string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Params.MinClusterSize, &r.Params.MinSamples,
			&method, &r.ValidityScore, &r.NumClusters, &r.NumNoise, &r.NumArticles); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		r.Params.SelectionMethod = clustering.SelectionMethod(method)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run; deleting an unknown id is not an error
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return errors.Wrapf(err, "failed to delete run %s", id)
	}
	return nil
}
