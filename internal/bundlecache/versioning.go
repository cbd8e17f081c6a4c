// Package bundlecache serves pre-assembled per-series and per-library
// bundles of media metadata, versioned so a client can cheaply detect
// "nothing changed since I last asked." Grounded on
// internal/repository/job_repository.go's plain database/sql style for
// the versioning table, and on internal/scanner.go's WaitGroup +
// buffered-channel concurrency limiter for bounded parallel rebuilds.
package bundlecache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/streamvault/streamvault/internal/models"
)

// VersioningRepository persists the last-known version and content
// hash of each series' bundle so reconciliation can detect drift
// without recomputing every bundle on every request.
type VersioningRepository struct {
	db *sql.DB
}

func NewVersioningRepository(db *sql.DB) *VersioningRepository {
	return &VersioningRepository{db: db}
}

type SeriesVersion struct {
	LibraryID models.LibraryID
	SeriesID  models.SeriesID
	Version   int64
	Hash      uint64
}

func (r *VersioningRepository) Get(ctx context.Context, seriesID models.SeriesID) (*SeriesVersion, error) {
	var v SeriesVersion
	err := r.db.QueryRowContext(ctx,
		"SELECT library_id, series_id, version, hash FROM series_bundle_versioning WHERE series_id=$1", seriesID,
	).Scan(&v.LibraryID, &v.SeriesID, &v.Version, &v.Hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load series version: %w", err)
	}
	return &v, nil
}

func (r *VersioningRepository) Upsert(ctx context.Context, v SeriesVersion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO series_bundle_versioning (library_id, series_id, version, hash, finalized_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (series_id) DO UPDATE SET version=$3, hash=$4, finalized_at=now()`,
		v.LibraryID, v.SeriesID, v.Version, v.Hash,
	)
	if err != nil {
		return fmt.Errorf("upsert series version: %w", err)
	}
	return nil
}

func (r *VersioningRepository) CountForLibrary(ctx context.Context, libraryID models.LibraryID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM series_bundle_versioning WHERE library_id=$1", libraryID).Scan(&n)
	return n, err
}

// ManifestSignature returns the (series_count, Σ version) pair the
// spec calls the full-library bundle's signature (spec §4.3, Glossary
// "Signature"): the cheap summary a cache can compare against to know
// whether any series in the manifest moved without re-reading every
// row's hash.
func (r *VersioningRepository) ManifestSignature(ctx context.Context, libraryID models.LibraryID) (count int64, sumVersion int64, err error) {
	var sum sql.NullInt64
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(version), 0) FROM series_bundle_versioning WHERE library_id=$1", libraryID,
	).Scan(&count, &sum)
	if err != nil {
		return 0, 0, fmt.Errorf("manifest signature: %w", err)
	}
	return count, sum.Int64, nil
}

// HashBundle takes the first 8 bytes of sha256(serialized) as a
// big-endian uint64, the content-addressing key for one series bundle.
func HashBundle(serialized []byte) uint64 {
	sum := sha256.Sum256(serialized)
	return binary.BigEndian.Uint64(sum[:8])
}
