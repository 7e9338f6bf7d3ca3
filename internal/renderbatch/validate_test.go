package renderbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_WellFormedBatch(t *testing.T) {
	var b Batch
	div := b.AppendFrames(Element("div", 3), Attribute("class", "box"), Text("hi"))
	b.AddDiff(1, StepIn(0), PrependFrame(0, div), StepOut())

	require.NoError(t, b.Validate())
	assert.Equal(t, int32(0), div)
	assert.False(t, b.Empty())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
	}{
		{
			name: "frame reference out of range",
			batch: Batch{UpdatedComponents: []ComponentDiff{
				{ComponentID: 1, Edits: []Edit{PrependFrame(0, 4)}},
			}},
		},
		{
			name: "step out of root",
			batch: Batch{UpdatedComponents: []ComponentDiff{
				{ComponentID: 1, Edits: []Edit{StepOut()}},
			}},
		},
		{
			name: "unterminated permutation",
			batch: Batch{UpdatedComponents: []ComponentDiff{
				{ComponentID: 1, Edits: []Edit{PermutationEntry(0, 1)}},
			}},
		},
		{
			name: "permutation end without entries",
			batch: Batch{UpdatedComponents: []ComponentDiff{
				{ComponentID: 1, Edits: []Edit{PermutationEnd()}},
			}},
		},
		{
			name:  "unknown frame type",
			batch: Batch{ReferenceFrames: []Frame{{Type: 42}}},
		},
		{
			name:  "subtree overruns pool",
			batch: Batch{ReferenceFrames: []Frame{Element("div", 2)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidBatch)
		})
	}
}

func TestBoolAttribute(t *testing.T) {
	on := BoolAttribute("disabled", true)
	require.NotNil(t, on.Value)
	assert.Equal(t, "", *on.Value)

	off := BoolAttribute("disabled", false)
	assert.Nil(t, off.Value)
}

func TestTypeStrings(t *testing.T) {
	assert.Equal(t, "element", FrameElement.String())
	assert.Equal(t, "frame(99)", FrameType(99).String())
	assert.Equal(t, "permutationListEnd", EditPermutationListEnd.String())
	assert.False(t, EditType(0).Valid())
}
