package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

// DefaultCompressThreshold is the payload size above which results are
// stored zstd-compressed.
const DefaultCompressThreshold = 64 << 10

// ResultStore is the session-scoped store of script outputs, keyed
// "blockId:line" (or by an arbitrary storeAny key).
type ResultStore struct {
	db        *DB
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// NewResultStore creates a ResultStore. A threshold <= 0 uses
// DefaultCompressThreshold.
func NewResultStore(db *DB, threshold int) (*ResultStore, error) {
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &ResultStore{db: db, threshold: threshold, enc: enc, dec: dec}, nil
}

func (s *ResultStore) PutResult(r *domain.Result) error {
	if r.StoredAt.IsZero() {
		r.StoredAt = time.Now()
	}
	data := []byte(r.Value.Data)
	compressed := 0
	if len(data) > s.threshold {
		data = s.enc.EncodeAll(data, nil)
		compressed = 1
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO results (result_key, block_id, type, data, compressed, stored_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(result_key) DO UPDATE SET
		   block_id=excluded.block_id, type=excluded.type, data=excluded.data,
		   compressed=excluded.compressed, stored_at=excluded.stored_at`,
		r.Key, r.BlockID, r.Value.Type, data, compressed, r.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("put result %s: %w", r.Key, err)
	}
	return nil
}

// GetResult returns the stored result for key, or (nil, nil) if absent.
func (s *ResultStore) GetResult(key string) (*domain.Result, error) {
	row := s.db.conn.QueryRow(
		`SELECT result_key, block_id, type, data, compressed, stored_at FROM results WHERE result_key = ?`, key,
	)
	r, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", key, err)
	}
	return r, nil
}

func (s *ResultStore) ListResults(blockID string) ([]domain.Result, error) {
	rows, err := s.db.conn.Query(
		`SELECT result_key, block_id, type, data, compressed, stored_at FROM results WHERE block_id = ? ORDER BY result_key`, blockID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// ClearBlock drops every result stored for a block.
func (s *ResultStore) ClearBlock(blockID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM results WHERE block_id = ?`, blockID)
	return err
}

// ClearAll empties the store. Called once per process start, which is
// what makes the store session-scoped.
func (s *ResultStore) ClearAll() error {
	_, err := s.db.conn.Exec(`DELETE FROM results`)
	return err
}

func (s *ResultStore) scan(r rowScanner) (*domain.Result, error) {
	res := &domain.Result{}
	var (
		typ        string
		data       []byte
		compressed int
	)
	if err := r.Scan(&res.Key, &res.BlockID, &typ, &data, &compressed, &res.StoredAt); err != nil {
		return nil, err
	}
	if compressed == 1 {
		plain, err := s.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress result %s: %w", res.Key, err)
		}
		data = plain
	}
	res.Value = value.Obj{Type: value.Type(typ), Data: string(data)}
	return res, nil
}
