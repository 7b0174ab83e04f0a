package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"canvasflow/internal/domain"
	"canvasflow/internal/executor"
	"canvasflow/internal/value"
)

// Worker is the executor side of the protocol. It announces itself with
// INITIATE, handles one RUN or FORMAT, and returns.
type Worker struct {
	exec *executor.Executor
}

func NewWorker(e *executor.Executor) *Worker {
	return &Worker{exec: e}
}

// Serve runs the worker loop on conn until one RUN or FORMAT has been
// answered or the coordinator goes away.
func (w *Worker) Serve(ctx context.Context, conn *Conn) error {
	if err := conn.Send(&Message{Type: CommandInitiate}); err != nil {
		return err
	}
	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}
		if msg.Debug != "" {
			log.Printf("[Executor] msg %s debug: %s", msg.Type, msg.Debug)
		}
		if msg.IsResponse() {
			continue
		}
		switch msg.Type {
		case CommandRun:
			return conn.Send(w.run(ctx, conn, msg))
		case CommandFormat:
			return conn.Send(w.format(msg))
		default:
			log.Printf("[Executor] ignoring %s command", msg.Type)
			if err := conn.Send(Ignored(msg.Type)); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) run(ctx context.Context, conn *Conn, msg *Message) *Message {
	if msg.Code == nil {
		return Failure(CommandRun, &domain.ExecutionError{Name: "NotFound", Message: "No code found"})
	}
	b := &remoteBridge{conn: conn, stored: make(map[string]value.Obj), deliver: make(map[int]bool)}
	for _, out := range msg.Outputs {
		b.deliver[out.SrcLine] = out.ShouldReturn
	}

	err := w.exec.Run(ctx, executor.Request{
		BlockID:   msg.BlockID,
		Code:      *msg.Code,
		Inputs:    msg.Inputs,
		Libraries: msg.Libraries,
		Outputs:   msg.Outputs,
	}, b)
	if err != nil {
		var ee *domain.ExecutionError
		if !errors.As(err, &ee) {
			ee = &domain.ExecutionError{Name: "Canceled", Message: err.Error()}
		}
		if ee.Stack != "" {
			log.Printf("[Executor] %s: %s\n%s", ee.Name, ee.Message, ee.Stack)
		}
		return Failure(CommandRun, ee)
	}
	return &Message{Type: CommandRun, Status: StatusSuccess, BlockID: msg.BlockID, Outputs: b.outputs, Stored: b.stored}
}

func (w *Worker) format(msg *Message) *Message {
	if msg.Code == nil {
		return Failure(CommandFormat, &domain.ExecutionError{Name: "NotFound", Message: "No code found"})
	}
	code, err := w.exec.Format(*msg.Code)
	if err != nil {
		var ee *domain.ExecutionError
		if !errors.As(err, &ee) {
			ee = &domain.ExecutionError{Name: "ExecutionError", Message: err.Error()}
		}
		return Failure(CommandFormat, ee)
	}
	return &Message{Type: CommandFormat, Status: StatusSuccess, Code: &code}
}

// remoteBridge collects stored values for the RUN response and forwards
// node queries to the coordinator.
type remoteBridge struct {
	conn    *Conn
	outputs []domain.Binding
	stored  map[string]value.Obj
	deliver map[int]bool
}

func (b *remoteBridge) QueryNodes(_ context.Context, selector, scopeID string) ([]any, error) {
	err := b.conn.Send(&Message{Type: CommandQuery, NodeQuery: &NodeQuery{Selector: selector, ID: scopeID}})
	if err != nil {
		return nil, err
	}
	for {
		msg, err := b.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("coordinator went away during query")
			}
			return nil, err
		}
		if msg.Type == CommandQuery && msg.IsResponse() {
			if msg.Status == StatusFailure && msg.Error != nil {
				return nil, msg.Error
			}
			if msg.Nodes == nil {
				return []any{}, nil
			}
			return msg.Nodes, nil
		}
		if !msg.IsResponse() {
			log.Printf("[Executor] ignoring %s command during query", msg.Type)
			if err := b.conn.Send(Ignored(msg.Type)); err != nil {
				return nil, err
			}
		}
	}
}

func (b *remoteBridge) StoreResult(blockID string, line int, v value.Obj) error {
	b.outputs = append(b.outputs, domain.Binding{
		SourceID:     blockID,
		SrcLine:      line,
		Value:        &v,
		ShouldReturn: b.deliver[line],
	})
	return nil
}

func (b *remoteBridge) StoreAny(key string, v value.Obj) error {
	b.stored[key] = v
	return nil
}
