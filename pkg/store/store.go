// Package store caches finalized permutation distributions in SQLite so that
// a test does not have to be permuted again in a later session.
//
// Every distribution is stored as a zstd-compressed JSON snapshot under a
// caller-chosen cache key and a generated uuid.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"permclust/internal/monitoring"
	"permclust/pkg/distribution"
)

// ErrNotFound is returned when no snapshot matches an id or key.
var ErrNotFound = errors.New("snapshot not found")

// Store is a snapshot cache backed by one SQLite file.
type Store struct {
	db    *sql.DB
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	group singleflight.Group
}

// Record describes a stored snapshot without loading it.
type Record struct {
	ID           string
	Key          string
	Name         string
	Kind         string
	Samples      int
	NClusters    int
	Created      time.Time
	Size         int
	PayloadBytes int
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	s := &Store{db: db, enc: enc, dec: dec}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the codecs and the database.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func (s *Store) encode(d *distribution.Dist) ([]byte, int, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, 0, err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, 0, err
	}
	return s.enc.EncodeAll(raw, nil), len(raw), nil
}

func (s *Store) decode(payload []byte) (*distribution.Dist, error) {
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, err
	}
	var snap distribution.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return distribution.Restore(&snap)
}

// Save stores d under key, replacing an earlier snapshot with the same key,
// and returns the new snapshot id.
func (s *Store) Save(ctx context.Context, key string, d *distribution.Dist) (string, error) {
	payload, rawSize, err := s.encode(d)
	if err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", key, err)
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, cache_key, name, kind, samples, n_clusters, created_unix, payload, payload_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			name = excluded.name,
			kind = excluded.kind,
			samples = excluded.samples,
			n_clusters = excluded.n_clusters,
			created_unix = excluded.created_unix,
			payload = excluded.payload,
			payload_bytes = excluded.payload_bytes`,
		id, key, d.Params().Name, d.Kind().String(), d.Samples(), d.NClusters(),
		time.Now().UnixNano(), payload, rawSize,
	)
	if err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", key, err)
	}
	monitoring.Logf("saved snapshot %s (%s, %d bytes)", id, key, len(payload))
	return id, nil
}

// Load returns the distribution stored under id.
func (s *Store) Load(ctx context.Context, id string) (*distribution.Dist, error) {
	return s.loadWhere(ctx, "snapshot_id", id)
}

// Find returns the distribution stored under key.
func (s *Store) Find(ctx context.Context, key string) (*distribution.Dist, error) {
	return s.loadWhere(ctx, "cache_key", key)
}

func (s *Store) loadWhere(ctx context.Context, column, value string) (*distribution.Dist, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE `+column+` = ?`, value).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", value, err)
	}
	d, err := s.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", value, err)
	}
	return d, nil
}

// List returns all snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, cache_key, name, kind, samples, n_clusters, created_unix, length(payload), payload_bytes
		FROM snapshots ORDER BY created_unix DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.Key, &r.Name, &r.Kind, &r.Samples, &r.NClusters, &created, &r.Size, &r.PayloadBytes); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		r.Created = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the snapshot with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE snapshot_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete snapshot %s: %w", id, ErrNotFound)
	}
	return nil
}

// LoadOrCompute returns the distribution cached under key, or runs compute
// and caches its result. Concurrent calls for the same key share one
// computation.
func (s *Store) LoadOrCompute(ctx context.Context, key string, compute func(context.Context) (*distribution.Dist, error)) (*distribution.Dist, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		d, err := s.Find(ctx, key)
		if err == nil {
			monitoring.Logf("using cached distribution %s", key)
			return d, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		d, err = compute(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := s.Save(ctx, key, d); err != nil {
			return nil, err
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*distribution.Dist), nil
}
