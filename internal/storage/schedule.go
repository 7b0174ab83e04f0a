package storage

import (
	"time"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

// ScheduleStore persists cron re-run schedules of code blocks.
type ScheduleStore struct {
	db *DB
}

func NewScheduleStore(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) CreateSchedule(sc *domain.Schedule) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	sc.CreatedAt = time.Now()
	_, err := s.db.conn.Exec(
		`INSERT INTO schedules (id, block_id, cron, enabled, last_run_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.BlockID, sc.Cron, boolToInt(sc.Enabled), sc.LastRunAt, sc.CreatedAt,
	)
	return err
}

func (s *ScheduleStore) ListEnabledSchedules() ([]domain.Schedule, error) {
	return s.list(`SELECT id, block_id, cron, enabled, last_run_at, created_at FROM schedules WHERE enabled = 1 ORDER BY created_at`)
}

func (s *ScheduleStore) ListSchedulesByBlock(blockID string) ([]domain.Schedule, error) {
	return s.list(`SELECT id, block_id, cron, enabled, last_run_at, created_at FROM schedules WHERE block_id = ? ORDER BY created_at`, blockID)
}

func (s *ScheduleStore) list(query string, args ...any) ([]domain.Schedule, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		var sc domain.Schedule
		var enabled int
		if err := rows.Scan(&sc.ID, &sc.BlockID, &sc.Cron, &enabled, &sc.LastRunAt, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.Enabled = enabled == 1
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) UpdateSchedule(sc *domain.Schedule) error {
	_, err := s.db.conn.Exec(
		`UPDATE schedules SET cron = ?, enabled = ?, last_run_at = ? WHERE id = ?`,
		sc.Cron, boolToInt(sc.Enabled), sc.LastRunAt, sc.ID,
	)
	return err
}

func (s *ScheduleStore) DeleteSchedule(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	return err
}

func (s *ScheduleStore) DeleteSchedulesByBlock(blockID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM schedules WHERE block_id = ?`, blockID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
