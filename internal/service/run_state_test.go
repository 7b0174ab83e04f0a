package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
)

func TestBegin_OnlyOneConcurrentCallerWins(t *testing.T) {
	runtime.GOMAXPROCS(max(runtime.GOMAXPROCS(0), 8))
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		s := &RunService{emitter: &MockEmitter{}, states: make(map[string]*RunState)}

		var (
			wins, busy atomic.Int32
			start      = make(chan struct{})
			wg         sync.WaitGroup
		)
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				status := domain.RunStatusRunning
				if g%2 == 1 {
					status = domain.RunStatusFormatting
				}
				err := s.begin(ctx, "b1", "", status)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrBusy):
					busy.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(g)
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), wins.Load(), "round %d", round)
		require.Equal(t, int32(15), busy.Load(), "round %d", round)
		assert.True(t, s.Status("b1").Status.Busy())
	}
}

func TestBegin_StatusIsVisibleBeforeReturn(t *testing.T) {
	s := &RunService{emitter: &MockEmitter{}, states: make(map[string]*RunState)}
	require.NoError(t, s.begin(context.Background(), "b1", "totals", domain.RunStatusFormatting))

	st := s.Status("b1")
	assert.Equal(t, domain.RunStatusFormatting, st.Status)
	assert.Equal(t, "totals", st.Title)
	assert.Equal(t, uint64(1), st.gen)
}

func TestInFlight_ClaimIsPerBlock(t *testing.T) {
	var f inFlight

	_, ok := f.claim("b1", "s1")
	require.True(t, ok)
	holder, ok := f.claim("b1", "s2")
	assert.False(t, ok)
	assert.Equal(t, "s1", holder)
	_, ok = f.claim("b2", "s2")
	require.True(t, ok)

	f.release("b1")
	_, ok = f.claim("b1", "s2")
	assert.True(t, ok)
	f.release("b1")
	f.release("b2")
	f.release("b2")
}

func TestInFlight_WaitReturnsOnDrain(t *testing.T) {
	var f inFlight
	f.wait(context.Background())

	_, ok := f.claim("b1", "s1")
	require.True(t, ok)
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.release("b1")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.wait(ctx)
	assert.NoError(t, ctx.Err())
}

func TestInFlight_WaitHonoursContext(t *testing.T) {
	var f inFlight
	_, ok := f.claim("b1", "s1")
	require.True(t, ok)
	defer f.release("b1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f.wait(ctx)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
