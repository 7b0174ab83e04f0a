package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

func TestPrepare_SplicesByLine(t *testing.T) {
	five := value.Text("5")
	s, err := Prepare(Request{
		BlockID: "b",
		Code:    domain.Code{Language: "javascript", Code: "// __x_0 is taken\n  let x;\nconst y = x"},
		Inputs:  []domain.Binding{{SourceID: "t", DestLine: 2, Value: &five}},
		Outputs: []domain.Binding{{SourceID: "b", SrcLine: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "// __x_0 is taken\n  let x = __x_1;\nconst y = x", s.Source)
	assert.Equal(t, []Alias{{Name: "__x_1", Value: "5"}}, s.Aliases)
	assert.Equal(t, []Output{{Line: 3, Name: "y"}}, s.Outputs)
}

func TestPrepare_Python(t *testing.T) {
	one, _ := value.JSON(1)
	s, err := Prepare(Request{
		Code:   domain.Code{Language: "python", Code: "a = None\nb = a"},
		Inputs: []domain.Binding{{SourceID: "t", DestLine: 1, Value: &one}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a = __a_0\nb = a", s.Source)
}

func TestPrepare_OutOfRange(t *testing.T) {
	_, err := Prepare(Request{
		Code:    domain.Code{Language: "python", Code: "a = 1"},
		Outputs: []domain.Binding{{SrcLine: 4}},
	})
	assert.ErrorIs(t, err, domain.ErrNoDeclarationFound)
}
