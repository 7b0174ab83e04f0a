package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/eventbus"
	"canvasflow/internal/events"
	"canvasflow/internal/graph"
	"canvasflow/internal/locator"
	"canvasflow/internal/materialize"
	"canvasflow/internal/protocol"
	"canvasflow/internal/value"
)

// ─────────────────────────────────────────────────────────────
// Run Service: coordinator side of code block execution
// ─────────────────────────────────────────────────────────────

// Languages reports what an executor can do with a language. The
// coordinator checks before spawning anything.
type Languages interface {
	CanRun(lang string) bool
	CanFormat(lang string) bool
}

// RunState is what the coordinator remembers about one code block.
type RunState struct {
	Status    domain.RunStatus `json:"status"`
	Title     string           `json:"title"`
	LastError *domain.Notice   `json:"lastError,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`

	gen uint64
}

// RunReport summarizes one run for the caller.
type RunReport struct {
	BlockID     string           `json:"blockId"`
	Title       string           `json:"title"`
	Status      domain.RunStatus `json:"status"`
	Outputs     []domain.Binding `json:"outputs"`
	Diagnostics []string         `json:"diagnostics,omitempty"`
	Notice      *domain.Notice   `json:"notice,omitempty"`
}

// RunService drives runs and formats of code blocks through transient
// executors. At most one run or format is in flight per block.
type RunService struct {
	canvas      *canvas.Canvas
	results     domain.ResultStore
	transport   protocol.Transport
	languages   Languages
	emitter     EventEmitter
	revertDelay time.Duration

	mu     sync.Mutex
	states map[string]*RunState
}

// NewRunService creates a RunService. A non-positive revertDelay keeps
// terminal statuses until the next transition.
func NewRunService(
	c *canvas.Canvas,
	results domain.ResultStore,
	transport protocol.Transport,
	languages Languages,
	emitter EventEmitter,
	revertDelay time.Duration,
) *RunService {
	return &RunService{
		canvas:      c,
		results:     results,
		transport:   transport,
		languages:   languages,
		emitter:     emitter,
		revertDelay: revertDelay,
		states:      make(map[string]*RunState),
	}
}

// Status returns a copy of the block's state. Unknown blocks are EMPTY.
func (s *RunService) Status(blockID string) RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[blockID]
	if !ok {
		return RunState{Status: domain.RunStatusEmpty}
	}
	return *st
}

// ── State machine ──────────────────────────────────────────

// begin moves the block into a busy status, failing with ErrBusy when a
// run or format is already in flight. The check and the status change
// happen under one lock hold.
func (s *RunService) begin(ctx context.Context, blockID, title string, status domain.RunStatus) error {
	s.mu.Lock()
	st, ok := s.states[blockID]
	if !ok {
		st = &RunState{Status: domain.RunStatusEmpty}
		s.states[blockID] = st
	}
	if st.Status.Busy() {
		s.mu.Unlock()
		return fmt.Errorf("%w: block %s is %s", domain.ErrBusy, blockID, st.Status)
	}
	st.Title = title
	st.LastError = nil
	gen := st.set(status, nil)
	s.mu.Unlock()
	s.announce(ctx, blockID, status, gen)
	return nil
}

func (s *RunService) transition(ctx context.Context, blockID string, status domain.RunStatus, notice *domain.Notice) {
	s.mu.Lock()
	gen := s.states[blockID].set(status, notice)
	s.mu.Unlock()
	s.announce(ctx, blockID, status, gen)
}

// set records a new status and returns its generation. Callers hold mu.
func (st *RunState) set(status domain.RunStatus, notice *domain.Notice) uint64 {
	st.gen++
	st.Status = status
	st.UpdatedAt = time.Now()
	if notice != nil {
		st.LastError = notice
	}
	return st.gen
}

func (s *RunService) announce(ctx context.Context, blockID string, status domain.RunStatus, gen uint64) {
	s.emitter.Emit(ctx, "run:status", map[string]string{"blockId": blockID, "status": string(status)})

	terminal := status == domain.RunStatusSuccess || status == domain.RunStatusError
	if terminal && s.revertDelay > 0 {
		time.AfterFunc(s.revertDelay, func() { s.revert(blockID, gen) })
	}
}

// revert returns a terminal status to EMPTY unless something newer has
// happened to the block since.
func (s *RunService) revert(blockID string, gen uint64) {
	s.mu.Lock()
	st := s.states[blockID]
	if st == nil || st.gen != gen {
		s.mu.Unlock()
		return
	}
	st.gen++
	st.Status = domain.RunStatusEmpty
	s.mu.Unlock()
	s.emitter.Emit(context.Background(), "run:status", map[string]string{"blockId": blockID, "status": string(domain.RunStatusEmpty)})
}

// ── Run ────────────────────────────────────────────────────

// Run executes a code block: it syncs the block's frames, resolves its
// bindings, hands the script to a fresh executor and writes the outputs
// back onto the canvas. The returned error is the failure the user sees;
// the report is filled in as far as the run got.
func (s *RunService) Run(ctx context.Context, blockID string) (*RunReport, error) {
	block, err := s.codeBlock(blockID)
	if err != nil {
		return nil, err
	}
	report := &RunReport{BlockID: blockID, Title: locator.Title(block.Content)}
	if err := s.begin(ctx, blockID, report.Title, domain.RunStatusRunning); err != nil {
		return nil, err
	}

	start := time.Now()
	eventbus.Publish(ctx, events.RunStarted{BlockID: blockID, Language: block.Language})

	outputs, err := s.run(ctx, block, report)
	report.Outputs = outputs
	if err != nil {
		s.fail(ctx, blockID, report, err)
	} else {
		report.Status = domain.RunStatusSuccess
		s.transition(ctx, blockID, domain.RunStatusSuccess, nil)
	}
	eventbus.Publish(ctx, events.RunFinished{
		BlockID:  blockID,
		Status:   report.Status,
		Outputs:  len(outputs),
		Err:      err,
		Duration: time.Since(start),
	})
	return report, err
}

func (s *RunService) run(ctx context.Context, block *domain.Block, report *RunReport) ([]domain.Binding, error) {
	if !s.languages.CanRun(block.Language) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, block.Language)
	}
	if _, err := graph.Reconcile(s.canvas, block.ID); err != nil {
		return nil, err
	}
	res, err := graph.Resolve(ctx, s.canvas, block.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range res.Diagnostics {
		log.Printf("[Run] %s: %v", block.ID, d)
		report.Diagnostics = append(report.Diagnostics, d.Error())
	}

	if err := s.results.ClearBlock(block.ID); err != nil {
		return nil, fmt.Errorf("clear results: %w", err)
	}
	inputs, err := s.fillChained(res.Inputs)
	if err != nil {
		return nil, err
	}

	resp, err := s.exchange(ctx, block, &protocol.Message{
		Type:      protocol.CommandRun,
		BlockID:   block.ID,
		Code:      &domain.Code{Language: block.Language, Code: block.Content},
		Inputs:    inputs,
		Libraries: res.Libraries,
		Outputs:   res.Outputs,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == protocol.StatusFailure {
		return nil, responseError(resp)
	}

	if err := s.persist(block.ID, resp); err != nil {
		return resp.Outputs, err
	}
	for _, err := range materialize.Materialize(ctx, s.canvas, block.ID, resp.Outputs) {
		log.Printf("[Run] %s: %v", block.ID, err)
		report.Diagnostics = append(report.Diagnostics, err.Error())
	}
	return resp.Outputs, nil
}

// fillChained copies each chained input's value out of the session store.
// A missing value is left nil and the executor reports it.
func (s *RunService) fillChained(inputs []domain.Binding) ([]domain.Binding, error) {
	out := make([]domain.Binding, len(inputs))
	copy(out, inputs)
	for i, in := range out {
		if !in.Chained() {
			continue
		}
		r, err := s.results.GetResult(domain.ResultKey(in.SourceID, in.SrcLine))
		if err != nil {
			return nil, err
		}
		out[i].Value = nil
		if r != nil {
			v := r.Value
			out[i].Value = &v
		}
	}
	return out, nil
}

func (s *RunService) persist(blockID string, resp *protocol.Message) error {
	for _, out := range resp.Outputs {
		if out.Value == nil {
			continue
		}
		if err := s.results.PutResult(&domain.Result{
			Key:     domain.ResultKey(out.SourceID, out.SrcLine),
			BlockID: blockID,
			Value:   *out.Value,
		}); err != nil {
			return err
		}
	}
	for key, v := range resp.Stored {
		if err := s.results.PutResult(&domain.Result{Key: key, BlockID: blockID, Value: v}); err != nil {
			return err
		}
	}
	return nil
}

// fail records the error under (blockId, 0), logs any stack and moves the
// block to ERROR.
func (s *RunService) fail(ctx context.Context, blockID string, report *RunReport, err error) {
	var ee *domain.ExecutionError
	if errors.As(err, &ee) && ee.Stack != "" {
		log.Printf("[Run] %s failed: %s\n%s", blockID, ee.Message, ee.Stack)
	} else {
		log.Printf("[Run] %s failed: %v", blockID, err)
	}
	notice := domain.Notification(err)
	if perr := s.results.PutResult(&domain.Result{
		Key:     domain.ResultKey(blockID, 0),
		BlockID: blockID,
		Value:   value.ErrorObj(notice.Message),
	}); perr != nil {
		log.Printf("[Run] %s: record error: %v", blockID, perr)
	}
	report.Status = domain.RunStatusError
	report.Notice = &notice
	s.transition(ctx, blockID, domain.RunStatusError, &notice)
}

// Inspect syncs a code block's frames and reports the bindings a run would
// use, without running anything.
func (s *RunService) Inspect(ctx context.Context, blockID string) ([]domain.Frame, *graph.Resolution, error) {
	if _, err := s.codeBlock(blockID); err != nil {
		return nil, nil, err
	}
	frames, err := graph.Reconcile(s.canvas, blockID)
	if err != nil {
		return nil, nil, err
	}
	res, err := graph.Resolve(ctx, s.canvas, blockID)
	if err != nil {
		return nil, nil, err
	}
	return frames, res, nil
}

// ── Format ─────────────────────────────────────────────────

// Format pretty-prints a code block in place and re-syncs its frames.
func (s *RunService) Format(ctx context.Context, blockID string) (*domain.Block, error) {
	block, err := s.codeBlock(blockID)
	if err != nil {
		return nil, err
	}
	if err := s.begin(ctx, blockID, locator.Title(block.Content), domain.RunStatusFormatting); err != nil {
		return nil, err
	}

	err = s.format(ctx, block)
	eventbus.Publish(ctx, events.FormatFinished{BlockID: blockID, Err: err})
	if err != nil {
		notice := domain.Notification(err)
		log.Printf("[Run] %s format failed: %v", blockID, err)
		s.transition(ctx, blockID, domain.RunStatusError, &notice)
		return nil, err
	}
	s.transition(ctx, blockID, domain.RunStatusSuccess, nil)
	return block, nil
}

func (s *RunService) format(ctx context.Context, block *domain.Block) error {
	if !s.languages.CanFormat(block.Language) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, block.Language)
	}
	resp, err := s.exchange(ctx, block, &protocol.Message{
		Type: protocol.CommandFormat,
		Code: &domain.Code{Language: block.Language, Code: block.Content},
	})
	if err != nil {
		return err
	}
	if resp.Status == protocol.StatusFailure {
		return responseError(resp)
	}
	if resp.Code != nil && resp.Code.Code != block.Content {
		block.Content = resp.Code.Code
		if err := s.canvas.UpdateBlock(block); err != nil {
			return err
		}
	}
	_, err = graph.Reconcile(s.canvas, block.ID)
	return err
}

// ── Executor exchange ──────────────────────────────────────

// exchange spawns an executor, waits for it to announce itself, sends req
// and serves its queries until the response to req arrives. The executor
// is discarded afterwards.
func (s *RunService) exchange(ctx context.Context, block *domain.Block, req *protocol.Message) (*protocol.Message, error) {
	conn, err := s.transport.Spawn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	eventbus.Publish(ctx, events.ExecutorSpawned{BlockID: block.ID, Command: string(req.Type)})

	if _, err := s.receive(ctx, conn, protocol.CommandInitiate, block); err != nil {
		return nil, err
	}
	if err := conn.Send(req); err != nil {
		return nil, s.lost(ctx, err)
	}
	return s.receive(ctx, conn, req.Type, block)
}

// receive reads until a message of type want arrives, answering QUERY
// requests and acknowledging everything else on the way. INITIATE is a
// request, every other awaited type is a response.
func (s *RunService) receive(ctx context.Context, conn *protocol.Conn, want protocol.CommandType, block *domain.Block) (*protocol.Message, error) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return nil, s.lost(ctx, err)
		}
		if msg.Debug != "" {
			log.Printf("[Run] msg %s debug: %s", msg.Type, msg.Debug)
		}
		if msg.Type == want && (want == protocol.CommandInitiate || msg.IsResponse()) {
			return msg, nil
		}
		if msg.IsResponse() {
			continue
		}
		switch msg.Type {
		case protocol.CommandQuery:
			if err := conn.Send(s.answerQuery(ctx, block, msg.NodeQuery)); err != nil {
				return nil, s.lost(ctx, err)
			}
		default:
			log.Printf("[Run] ignoring %s command from executor", msg.Type)
			if err := conn.Send(protocol.Ignored(msg.Type)); err != nil {
				return nil, s.lost(ctx, err)
			}
		}
	}
}

func (s *RunService) answerQuery(ctx context.Context, block *domain.Block, q *protocol.NodeQuery) *protocol.Message {
	records, err := s.canvas.Query(ctx, block.PageID, q.ID, q.Selector)
	if err != nil {
		return protocol.Failure(protocol.CommandQuery, &domain.ExecutionError{Name: "QueryFailed", Message: err.Error()})
	}
	nodes := make([]any, len(records))
	for i, r := range records {
		nodes[i] = r
	}
	return &protocol.Message{Type: protocol.CommandQuery, Status: protocol.StatusSuccess, Nodes: nodes}
}

// lost maps a dead connection onto the reason it died.
func (s *RunService) lost(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("executor exited unexpectedly")
	}
	return err
}

func responseError(resp *protocol.Message) error {
	if resp.Error != nil {
		return resp.Error
	}
	return &domain.ExecutionError{Name: "ExecutionError", Message: fmt.Sprintf("%s failed", resp.Type)}
}

func (s *RunService) codeBlock(blockID string) (*domain.Block, error) {
	block, err := s.canvas.Block(blockID)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("block %s not found", blockID)
	}
	if block.Type != domain.BlockTypeCode {
		return nil, fmt.Errorf("block %s is a %s block, not code", blockID, block.Type)
	}
	return block, nil
}
