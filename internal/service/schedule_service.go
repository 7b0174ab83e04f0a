package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"canvasflow/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Schedule Service: cron re-runs of code blocks
// ─────────────────────────────────────────────────────────────

// Runner runs one code block.
type Runner interface {
	Run(ctx context.Context, blockID string) (*RunReport, error)
}

// ScheduleService keeps a cron scheduler in step with the enabled
// schedules in the store.
type ScheduleService struct {
	store    domain.ScheduleStore
	runner   Runner
	emitter  EventEmitter
	inFlight inFlight

	mu        sync.Mutex
	cronSched *cron.Cron
}

func NewScheduleService(store domain.ScheduleStore, runner Runner, emitter EventEmitter) *ScheduleService {
	return &ScheduleService{store: store, runner: runner, emitter: emitter}
}

// ── Schedule CRUD ──────────────────────────────────────────

// Schedule adds a cron schedule for a code block. The expression uses the
// standard five-field syntax (or a descriptor such as @hourly).
func (s *ScheduleService) Schedule(ctx context.Context, blockID, expr string) (*domain.Schedule, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	sc := &domain.Schedule{BlockID: blockID, Cron: expr, Enabled: true}
	if err := s.store.CreateSchedule(sc); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	s.Restart(ctx)
	return sc, nil
}

// Unschedule removes every schedule of a code block.
func (s *ScheduleService) Unschedule(ctx context.Context, blockID string) error {
	if err := s.store.DeleteSchedulesByBlock(blockID); err != nil {
		return err
	}
	s.Restart(ctx)
	return nil
}

func (s *ScheduleService) ListSchedules(blockID string) ([]domain.Schedule, error) {
	return s.store.ListSchedulesByBlock(blockID)
}

// ── Run ────────────────────────────────────────────────────

// RunScheduled runs one scheduled block unless a tick for the same block,
// from this schedule or another one, is still running.
func (s *ScheduleService) RunScheduled(ctx context.Context, sc domain.Schedule) error {
	if holder, ok := s.inFlight.claim(sc.BlockID, sc.ID); !ok {
		return fmt.Errorf("block %s is still running for schedule %s", sc.BlockID, holder)
	}
	defer s.inFlight.release(sc.BlockID)

	_, err := s.runner.Run(ctx, sc.BlockID)
	sc.LastRunAt = time.Now().Format(time.RFC3339)
	if uerr := s.store.UpdateSchedule(&sc); uerr != nil {
		log.Printf("[Cron] schedule %s: update: %v", sc.ID, uerr)
	}
	s.emitter.Emit(ctx, "schedule:completed", map[string]string{"blockId": sc.BlockID, "scheduleId": sc.ID})
	return err
}

// ── Scheduler lifecycle ────────────────────────────────────

// Restart tears the scheduler down and rebuilds it from the store.
func (s *ScheduleService) Restart(ctx context.Context) {
	s.Stop()

	schedules, err := s.store.ListEnabledSchedules()
	if err != nil {
		log.Printf("[Cron] failed to list schedules: %v", err)
		return
	}
	if len(schedules) == 0 {
		return
	}

	c := cron.New()
	added := 0
	for _, sc := range schedules {
		sc := sc
		_, err := c.AddFunc(sc.Cron, func() {
			log.Printf("[Cron] running block %s", sc.BlockID)
			if err := s.RunScheduled(ctx, sc); err != nil {
				log.Printf("[Cron] block %s failed: %v", sc.BlockID, err)
			}
		})
		if err != nil {
			log.Printf("[Cron] invalid expression %q for block %s: %v", sc.Cron, sc.BlockID, err)
			continue
		}
		added++
	}
	c.Start()

	s.mu.Lock()
	s.cronSched = c
	s.mu.Unlock()
	log.Printf("[Cron] scheduled %d block(s)", added)
}

// WaitRunning blocks until all running schedules finish or ctx is
// cancelled.
func (s *ScheduleService) WaitRunning(ctx context.Context) {
	s.inFlight.wait(ctx)
}

// Stop halts the scheduler. Runs already started are left to finish.
func (s *ScheduleService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

// ── Overlap policy ─────────────────────────────────────────

// inFlight tracks the blocks a scheduled tick is currently running,
// along with the schedule that claimed each one.
type inFlight struct {
	mu     sync.Mutex
	blocks map[string]string
	idle   chan struct{} // non-nil while blocks is non-empty; closed on drain
}

// claim marks blockID as running for scheduleID. When the block is
// already claimed it reports the holding schedule and false.
func (f *inFlight) claim(blockID, scheduleID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if holder, ok := f.blocks[blockID]; ok {
		return holder, false
	}
	if f.blocks == nil {
		f.blocks = make(map[string]string)
	}
	if len(f.blocks) == 0 {
		f.idle = make(chan struct{})
	}
	f.blocks[blockID] = scheduleID
	return "", true
}

func (f *inFlight) release(blockID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocks[blockID]; !ok {
		return
	}
	delete(f.blocks, blockID)
	if len(f.blocks) == 0 && f.idle != nil {
		close(f.idle)
		f.idle = nil
	}
}

// wait returns once no block is claimed or ctx is done.
func (f *inFlight) wait(ctx context.Context) {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()
	if idle == nil {
		return
	}
	select {
	case <-idle:
	case <-ctx.Done():
	}
}
