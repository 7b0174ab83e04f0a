package protocol_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
	"canvasflow/internal/executor"
	"canvasflow/internal/protocol"
	"canvasflow/internal/value"
)

func pipe(t *testing.T) (*protocol.Conn, *protocol.Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := protocol.NewConn(a, a, a)
	cb := protocol.NewConn(b, b, b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func spawn(t *testing.T) *protocol.Conn {
	t.Helper()
	e := executor.New(executor.Options{JavaScriptCDN: "https://cdn.jsdelivr.net/npm/", PythonCDN: "https://cdn.jsdelivr.net/npm/"})
	tr := &protocol.InProcessTransport{Worker: protocol.NewWorker(e)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	conn, err := tr.Spawn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.CommandInitiate, msg.Type)
	return conn
}

func TestConnRoundTrip(t *testing.T) {
	a, b := pipe(t)
	obj := value.Text("hi")
	sent := &protocol.Message{
		Type:    protocol.CommandRun,
		Status:  protocol.StatusSuccess,
		BlockID: "blk",
		Outputs: []domain.Binding{{SourceID: "blk", SrcLine: 2, Value: &obj, ShouldReturn: true}},
		Stored:  map[string]value.Obj{"k": value.Undefined()},
		Nodes:   []any{map[string]any{"id": "n1", "width": 12}},
	}
	go func() { assert.NoError(t, a.Send(sent)) }()

	got, err := b.Receive()
	require.NoError(t, err)
	want := *sent
	want.Nodes = []any{map[string]any{"id": "n1", "width": int64(12)}}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestReceiveRejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *protocol.Message
	}{
		{"missing type", &protocol.Message{}},
		{"bad status", &protocol.Message{Type: protocol.CommandRun, Status: "MAYBE"}},
		{"query without nodeQuery", &protocol.Message{Type: protocol.CommandQuery}},
		{"empty selector", &protocol.Message{Type: protocol.CommandQuery, NodeQuery: &protocol.NodeQuery{}}},
		{"bad obj type", &protocol.Message{Type: protocol.CommandRun, Stored: map[string]value.Obj{"k": {Type: "NOPE"}}}},
		{"code without language", &protocol.Message{Type: protocol.CommandRun, Code: &domain.Code{Code: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := pipe(t)
			go a.Send(tt.msg)
			_, err := b.Receive()
			assert.Error(t, err)
		})
	}
}

func TestKnownAndIgnored(t *testing.T) {
	assert.True(t, protocol.Known(protocol.CommandClear))
	assert.False(t, protocol.Known("PING"))

	ack := protocol.Ignored("PING")
	assert.Equal(t, protocol.StatusSuccess, ack.Status)
	assert.Equal(t, "ignored PING", ack.Debug)
	assert.True(t, ack.IsResponse())
}

func TestWorkerRun(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{
		Type:    protocol.CommandRun,
		BlockID: "blk",
		Code:    &domain.Code{Language: "javascript", Code: "const x = 5;\nconst y = x + 1;\ncanvas.storeAny(\"seen\", y);"},
		Outputs: []domain.Binding{{SourceID: "blk", SrcLine: 2, ShouldReturn: true}},
	}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusSuccess, resp.Status, "error: %+v", resp.Error)
	require.Len(t, resp.Outputs, 1)
	out := resp.Outputs[0]
	assert.Equal(t, "blk", out.SourceID)
	assert.Equal(t, 2, out.SrcLine)
	assert.True(t, out.ShouldReturn)
	v, err := value.Parse(*out.Value)
	require.NoError(t, err)
	assert.EqualValues(t, 6, v)
	assert.Contains(t, resp.Stored, "seen")
}

func TestWorkerRunFailure(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{
		Type:    protocol.CommandRun,
		BlockID: "blk",
		Code:    &domain.Code{Language: "javascript", Code: "const x = 5;\nthrow new TypeError(\"boom\");"},
	}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusFailure, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TypeError", resp.Error.Name)
	assert.Equal(t, "boom", resp.Error.Message)
}

func TestWorkerRunWithoutCode(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{Type: protocol.CommandRun, BlockID: "blk"}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusFailure, resp.Status)
	assert.Equal(t, "NotFound", resp.Error.Name)
}

func TestWorkerQueryRoundTrip(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{
		Type:    protocol.CommandRun,
		BlockID: "blk",
		Code:    &domain.Code{Language: "javascript", Code: "const nodes = await canvas.queryNodes(\"text,sticky\", \"grp\");\nconst n = nodes.length;"},
		Outputs: []domain.Binding{{SourceID: "blk", SrcLine: 2}},
	}))

	q, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.CommandQuery, q.Type)
	require.False(t, q.IsResponse())
	assert.Equal(t, &protocol.NodeQuery{Selector: "text,sticky", ID: "grp"}, q.NodeQuery)

	// A stray command while the executor waits is acknowledged, not fatal.
	require.NoError(t, conn.Send(&protocol.Message{Type: protocol.CommandClear}))
	ack, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "ignored CLEAR", ack.Debug)

	require.NoError(t, conn.Send(&protocol.Message{
		Type:   protocol.CommandQuery,
		Status: protocol.StatusSuccess,
		Nodes:  []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusSuccess, resp.Status, "error: %+v", resp.Error)
	require.Len(t, resp.Outputs, 1)
	assert.False(t, resp.Outputs[0].ShouldReturn)
	v, err := value.Parse(*resp.Outputs[0].Value)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestWorkerIgnoresUnknownCommands(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{Type: "PING"}))
	ack, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.CommandType("PING"), ack.Type)
	assert.Equal(t, protocol.StatusSuccess, ack.Status)
	assert.Equal(t, "ignored PING", ack.Debug)
}

func TestWorkerFormat(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{
		Type: protocol.CommandFormat,
		Code: &domain.Code{Language: "javascript", Code: "const x=1;const y   =  x+1"},
	}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.NotNil(t, resp.Code)
	assert.Equal(t, "javascript", resp.Code.Language)
	assert.Contains(t, resp.Code.Code, "const y = x + 1")
}

func TestWorkerFormatUnsupported(t *testing.T) {
	conn := spawn(t)
	require.NoError(t, conn.Send(&protocol.Message{
		Type: protocol.CommandFormat,
		Code: &domain.Code{Language: "ruby", Code: "x = 1"},
	}))

	resp, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFailure, resp.Status)
	assert.Equal(t, "UnsupportedLanguage", resp.Error.Name)
}
