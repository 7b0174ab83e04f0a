// Package protocol is the command/response exchange between the
// coordinator, which owns the canvas, and a transient executor, which runs
// one script. Messages are msgpack maps over a byte stream.
package protocol

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

type CommandType string

const (
	CommandInitiate CommandType = "INITIATE"
	CommandRun      CommandType = "RUN"
	CommandFormat   CommandType = "FORMAT"
	CommandQuery    CommandType = "QUERY"
	CommandCreate   CommandType = "CREATE"
	CommandClear    CommandType = "CLEAR"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// NodeQuery asks the coordinator for canvas objects.
type NodeQuery struct {
	Selector string `msgpack:"selector" validate:"required"`
	ID       string `msgpack:"id,omitempty"`
}

// Message is both request and response. A message with a Status is a
// response to the request of the same Type.
type Message struct {
	Type      CommandType            `msgpack:"type" validate:"required"`
	Status    Status                 `msgpack:"status,omitempty" validate:"omitempty,oneof=SUCCESS FAILURE"`
	BlockID   string                 `msgpack:"blockId,omitempty"`
	Code      *domain.Code           `msgpack:"code,omitempty"`
	Inputs    []domain.Binding       `msgpack:"inputs,omitempty" validate:"dive"`
	Libraries []domain.Code          `msgpack:"libraries,omitempty" validate:"dive"`
	Outputs   []domain.Binding       `msgpack:"outputs,omitempty" validate:"dive"`
	NodeQuery *NodeQuery             `msgpack:"nodeQuery,omitempty"`
	Nodes     []any                  `msgpack:"nodes,omitempty"`
	Stored    map[string]value.Obj   `msgpack:"stored,omitempty" validate:"dive"`
	Error     *domain.ExecutionError `msgpack:"error,omitempty"`
	Debug     string                 `msgpack:"debug,omitempty"`
}

// IsResponse reports whether m answers an earlier request.
func (m *Message) IsResponse() bool { return m.Status != "" }

// Known reports whether t is part of the command set.
func Known(t CommandType) bool {
	switch t {
	case CommandInitiate, CommandRun, CommandFormat, CommandQuery, CommandCreate, CommandClear:
		return true
	}
	return false
}

// Ignored is the no-op acknowledgement of a command the receiver does not
// handle.
func Ignored(t CommandType) *Message {
	return &Message{Type: t, Status: StatusSuccess, Debug: fmt.Sprintf("ignored %s", t)}
}

// Failure is a FAILURE response carrying err.
func Failure(t CommandType, err *domain.ExecutionError) *Message {
	return &Message{Type: t, Status: StatusFailure, Error: err}
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("msgpack"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}()

// Validate checks m's structure.
func (m *Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid %s message: %w", m.Type, err)
	}
	if m.Type == CommandQuery && !m.IsResponse() && m.NodeQuery == nil {
		return fmt.Errorf("invalid QUERY message: missing nodeQuery")
	}
	if m.NodeQuery != nil {
		if err := validate.Struct(m.NodeQuery); err != nil {
			return fmt.Errorf("invalid QUERY message: %w", err)
		}
	}
	return nil
}
