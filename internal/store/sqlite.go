package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ajolex/job-application-agent/internal/model"
)

// SQLiteStore persists the job catalog, processed-record table, and match
// score cache. It is the only owner of this state; everything else receives
// it by injection.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	url          TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	organization TEXT NOT NULL,
	location     TEXT,
	description  TEXT,
	posted_date  TEXT,
	deadline     TEXT,
	salary       TEXT,
	job_type     TEXT,
	source       TEXT NOT NULL,
	fetched_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processed (
	url          TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	disposition  TEXT NOT NULL,
	processed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS match_scores (
	profile_version TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	overall         REAL NOT NULL,
	skills          REAL NOT NULL,
	experience      REAL NOT NULL,
	domain          REAL NOT NULL,
	qualifications  REAL NOT NULL,
	reasoning       TEXT,
	highlights      TEXT,
	concerns        TEXT,
	scored_at       TEXT NOT NULL,
	PRIMARY KEY (profile_version, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source);
CREATE INDEX IF NOT EXISTS idx_processed_disposition ON processed(disposition);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertJob inserts a posting into the catalog, or overwrites the mutable
// fields in place when the URL already exists (re-fetch is an update, never
// a duplicate row).
func (s *SQLiteStore) UpsertJob(p model.JobPosting) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (url, title, organization, location, description,
			posted_date, deadline, salary, job_type, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			organization = excluded.organization,
			location = excluded.location,
			description = excluded.description,
			posted_date = excluded.posted_date,
			deadline = excluded.deadline,
			salary = excluded.salary,
			job_type = excluded.job_type,
			fetched_at = excluded.fetched_at`,
		p.URL, p.Title, p.Organization, p.Location, p.Description,
		p.PostedDate, p.Deadline, p.Salary, p.JobType, p.Source,
		p.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", p.URL, err)
	}
	return nil
}

// Classify partitions a fetched batch into new / changed / unchanged against
// the processed-record table, preserving input order within each partition.
func (s *SQLiteStore) Classify(postings []model.JobPosting) (model.Classification, error) {
	var c model.Classification
	for _, p := range postings {
		rec, err := s.Processed(p.URL)
		if err != nil {
			return model.Classification{}, err
		}
		switch {
		case rec == nil:
			c.New = append(c.New, p)
		case rec.Fingerprint == model.Fingerprint(p):
			c.Skipped = append(c.Skipped, p)
		default:
			c.Changed = append(c.Changed, p)
		}
	}
	return c, nil
}

// Processed returns the stored record for a URL, or nil if the URL has never
// completed the pipeline.
func (s *SQLiteStore) Processed(url string) (*model.ProcessedRecord, error) {
	var rec model.ProcessedRecord
	var at string
	err := s.db.QueryRow(
		"SELECT url, fingerprint, disposition, processed_at FROM processed WHERE url = ?", url,
	).Scan(&rec.URL, &rec.Fingerprint, &rec.Disposition, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up processed record for %s: %w", url, err)
	}
	rec.ProcessedAt, _ = time.Parse(time.RFC3339, at)
	return &rec, nil
}

// MarkProcessed records the final disposition for a URL. Upsert by URL, so a
// changed posting overwrites its previous record.
func (s *SQLiteStore) MarkProcessed(url, fingerprint, disposition string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO processed (url, fingerprint, disposition, processed_at)
		VALUES (?, ?, ?, ?)`,
		url, fingerprint, disposition, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", url, err)
	}
	return nil
}

// CachedScore returns the stored score for a (profile version, fingerprint)
// pair, or nil if the pair has never been scored.
func (s *SQLiteStore) CachedScore(profileVersion, fingerprint string) (*model.MatchScore, error) {
	var score model.MatchScore
	var highlights, concerns string
	err := s.db.QueryRow(`
		SELECT overall, skills, experience, domain, qualifications, reasoning, highlights, concerns
		FROM match_scores WHERE profile_version = ? AND fingerprint = ?`,
		profileVersion, fingerprint,
	).Scan(&score.Overall, &score.Skills, &score.Experience, &score.Domain,
		&score.Qualifications, &score.Reasoning, &highlights, &concerns)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up cached score: %w", err)
	}

	if err := json.Unmarshal([]byte(highlights), &score.Highlights); err != nil {
		return nil, fmt.Errorf("decoding cached highlights: %w", err)
	}
	if err := json.Unmarshal([]byte(concerns), &score.Concerns); err != nil {
		return nil, fmt.Errorf("decoding cached concerns: %w", err)
	}

	return &score, nil
}

// SaveScore caches a score keyed by (profile version, fingerprint).
func (s *SQLiteStore) SaveScore(profileVersion, fingerprint string, score model.MatchScore) error {
	highlights, err := json.Marshal(score.Highlights)
	if err != nil {
		return fmt.Errorf("encoding highlights: %w", err)
	}
	concerns, err := json.Marshal(score.Concerns)
	if err != nil {
		return fmt.Errorf("encoding concerns: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO match_scores (profile_version, fingerprint,
			overall, skills, experience, domain, qualifications,
			reasoning, highlights, concerns, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profileVersion, fingerprint,
		score.Overall, score.Skills, score.Experience, score.Domain, score.Qualifications,
		score.Reasoning, string(highlights), string(concerns),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving score: %w", err)
	}
	return nil
}

// MatchedJob is an above-threshold posting joined with its stored score.
type MatchedJob struct {
	Posting     model.JobPosting
	Score       model.MatchScore
	ProcessedAt time.Time
}

// MatchedJobs returns matched postings with their scores, highest score
// first, for the review UI and stats.
func (s *SQLiteStore) MatchedJobs(minScore float64, limit int) ([]MatchedJob, error) {
	rows, err := s.db.Query(`
		SELECT j.url, j.title, j.organization, j.location, j.description,
		       j.posted_date, j.deadline, j.salary, j.job_type, j.source,
		       ms.overall, ms.skills, ms.experience, ms.domain, ms.qualifications,
		       ms.reasoning, ms.highlights, ms.concerns,
		       p.processed_at, MAX(ms.scored_at)
		FROM processed p
		JOIN jobs j ON j.url = p.url
		JOIN match_scores ms ON ms.fingerprint = p.fingerprint
		WHERE p.disposition = ? AND ms.overall >= ?
		GROUP BY p.url
		ORDER BY ms.overall DESC, p.processed_at DESC
		LIMIT ?`,
		model.DispositionMatched, minScore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying matched jobs: %w", err)
	}
	defer rows.Close()

	var matches []MatchedJob
	for rows.Next() {
		var m MatchedJob
		var highlights, concerns, processedAt, scoredAt string
		if err := rows.Scan(
			&m.Posting.URL, &m.Posting.Title, &m.Posting.Organization,
			&m.Posting.Location, &m.Posting.Description,
			&m.Posting.PostedDate, &m.Posting.Deadline, &m.Posting.Salary,
			&m.Posting.JobType, &m.Posting.Source,
			&m.Score.Overall, &m.Score.Skills, &m.Score.Experience,
			&m.Score.Domain, &m.Score.Qualifications,
			&m.Score.Reasoning, &highlights, &concerns,
			&processedAt, &scoredAt,
		); err != nil {
			return nil, fmt.Errorf("scanning matched job: %w", err)
		}
		json.Unmarshal([]byte(highlights), &m.Score.Highlights)
		json.Unmarshal([]byte(concerns), &m.Score.Concerns)
		m.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Stats summarizes catalog and processing state for the stats command.
type Stats struct {
	TotalJobs     int
	JobsBySource  map[string]int
	Processed     int
	Matched       int
	ByDisposition map[string]int
	CachedScores  int
	AvgScore      float64
}

// Stats computes summary counts over the store.
func (s *SQLiteStore) Stats() (*Stats, error) {
	st := &Stats{
		JobsBySource:  make(map[string]int),
		ByDisposition: make(map[string]int),
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&st.TotalJobs); err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}

	rows, err := s.db.Query("SELECT source, COUNT(*) FROM jobs GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("counting jobs by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		st.JobsBySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := s.db.Query("SELECT disposition, COUNT(*) FROM processed GROUP BY disposition")
	if err != nil {
		return nil, fmt.Errorf("counting dispositions: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var disposition string
		var n int
		if err := drows.Scan(&disposition, &n); err != nil {
			return nil, err
		}
		st.ByDisposition[disposition] = n
		st.Processed += n
	}
	if err := drows.Err(); err != nil {
		return nil, err
	}
	st.Matched = st.ByDisposition[model.DispositionMatched]

	if err := s.db.QueryRow("SELECT COUNT(*), COALESCE(AVG(overall), 0) FROM match_scores").
		Scan(&st.CachedScores, &st.AvgScore); err != nil {
		return nil, fmt.Errorf("counting cached scores: %w", err)
	}

	return st, nil
}

// Cleanup deletes catalog rows, processed records, and cached scores older
// than the given retention period.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	for _, q := range []string{
		"DELETE FROM match_scores WHERE scored_at < ?",
		"DELETE FROM processed WHERE processed_at < ?",
		"DELETE FROM jobs WHERE fetched_at < ?",
	} {
		if _, err := s.db.Exec(q, cutoff); err != nil {
			return fmt.Errorf("cleaning up records older than %v: %w", olderThan, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
