package domain

import (
	"strconv"

	"canvasflow/internal/value"
)

// Binding is one resolved dataflow edge. An input has DestLine > 0 and is
// spliced into the code before execution; an output has DestLine == 0 and
// is read back after execution. SrcLine 0 means the source is a whole
// canvas object rather than a line of another script.
type Binding struct {
	SourceID     string     `json:"sourceId" msgpack:"sourceId" validate:"required"`
	SrcLine      int        `json:"srcLineNum" msgpack:"srcLineNum" validate:"gte=0"`
	DestLine     int        `json:"destLineNum,omitempty" msgpack:"destLineNum,omitempty" validate:"gte=0"`
	Value        *value.Obj `json:"value,omitempty" msgpack:"value,omitempty"`
	ShouldReturn bool       `json:"shouldReturn,omitempty" msgpack:"shouldReturn,omitempty"`
}

// IsInput reports whether the binding feeds a line of the running script.
func (b Binding) IsInput() bool { return b.DestLine > 0 }

// Chained reports whether the binding's value is another script's output
// rather than a literal extracted from a canvas object.
func (b Binding) Chained() bool { return b.SrcLine > 0 }

// ResultKey is the session-store key for the output at (blockID, line).
func ResultKey(blockID string, line int) string {
	return blockID + ":" + strconv.Itoa(line)
}
