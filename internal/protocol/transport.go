package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
)

// Transport starts a fresh executor and returns the coordinator's end of
// the connection to it. Closing the Conn discards the executor.
type Transport interface {
	Spawn(ctx context.Context) (*Conn, error)
}

// ProcessTransport runs each executor as a child process that speaks the
// protocol on its stdin and stdout.
type ProcessTransport struct {
	Binary string
	Args   []string
}

func (t *ProcessTransport) Spawn(ctx context.Context) (*Conn, error) {
	cmd := exec.CommandContext(ctx, t.Binary, t.Args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn executor: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn executor: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn executor: %w", err)
	}
	log.Printf("[Executor] spawned pid %d", cmd.Process.Pid)
	return NewConn(stdout, stdin, &process{cmd: cmd, stdin: stdin}), nil
}

type process struct {
	cmd   *exec.Cmd
	stdin io.Closer
}

func (p *process) Close() error {
	p.stdin.Close()
	if p.cmd.ProcessState == nil {
		p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// InProcessTransport serves each executor on a goroutine over a pipe.
type InProcessTransport struct {
	Worker *Worker
}

func (t *InProcessTransport) Spawn(ctx context.Context) (*Conn, error) {
	coord, exec := net.Pipe()
	ctx, cancel := context.WithCancel(ctx)
	peer := NewConn(exec, exec, exec)
	go func() {
		defer cancel()
		defer peer.Close()
		if err := t.Worker.Serve(ctx, peer); err != nil && !errors.Is(err, io.EOF) {
			log.Printf("[Executor] %v", err)
		}
	}()
	return NewConn(coord, coord, closerFunc(func() error {
		cancel()
		return coord.Close()
	})), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
