package model

import "time"

// Classification partitions a fetched batch against processing history,
// preserving input order within each partition.
type Classification struct {
	New     []JobPosting // never processed before
	Changed []JobPosting // processed before, content fingerprint differs
	Skipped []JobPosting // processed before, content unchanged
}

// ProcessedRecord is the stored disposition of a posting that completed the
// pipeline, successfully or by rejection.
type ProcessedRecord struct {
	URL         string
	Fingerprint string
	Disposition string
	ProcessedAt time.Time
}

// Store owns the job catalog, the processed-record table, and the match
// score cache. All writes are keyed upserts so concurrent workers writing
// different keys never conflict.
type Store interface {
	UpsertJob(p JobPosting) error
	Classify(postings []JobPosting) (Classification, error)
	MarkProcessed(url, fingerprint, disposition string) error
	Processed(url string) (*ProcessedRecord, error)

	CachedScore(profileVersion, fingerprint string) (*MatchScore, error)
	SaveScore(profileVersion, fingerprint string, score MatchScore) error
}
