package renderbatch

import "fmt"

// FrameType identifies a reference frame variant.
//
// Values match the numbering used by the upstream diff producer and appear
// verbatim on the wire.
type FrameType int32

const (
	FrameElement                   FrameType = 1
	FrameText                      FrameType = 2
	FrameAttribute                 FrameType = 3
	FrameComponent                 FrameType = 4
	FrameRegion                    FrameType = 5
	FrameElementReferenceCapture   FrameType = 6
	FrameComponentReferenceCapture FrameType = 7
	FrameMarkup                    FrameType = 8
	FrameComponentRenderMode       FrameType = 9
	FrameNamedEvent                FrameType = 10
)

// Valid reports whether t is a known frame type.
func (t FrameType) Valid() bool {
	return t >= FrameElement && t <= FrameNamedEvent
}

func (t FrameType) String() string {
	switch t {
	case FrameElement:
		return "element"
	case FrameText:
		return "text"
	case FrameAttribute:
		return "attribute"
	case FrameComponent:
		return "component"
	case FrameRegion:
		return "region"
	case FrameElementReferenceCapture:
		return "elementReferenceCapture"
	case FrameComponentReferenceCapture:
		return "componentReferenceCapture"
	case FrameMarkup:
		return "markup"
	case FrameComponentRenderMode:
		return "componentRenderMode"
	case FrameNamedEvent:
		return "namedEvent"
	default:
		return fmt.Sprintf("frame(%d)", int32(t))
	}
}

// EditType identifies an edit variant.
type EditType int32

const (
	EditPrependFrame         EditType = 1
	EditRemoveFrame          EditType = 2
	EditSetAttribute         EditType = 3
	EditRemoveAttribute      EditType = 4
	EditUpdateText           EditType = 5
	EditStepIn               EditType = 6
	EditStepOut              EditType = 7
	EditUpdateMarkup         EditType = 8
	EditPermutationListEntry EditType = 9
	EditPermutationListEnd   EditType = 10
)

// Valid reports whether t is a known edit type.
func (t EditType) Valid() bool {
	return t >= EditPrependFrame && t <= EditPermutationListEnd
}

func (t EditType) String() string {
	switch t {
	case EditPrependFrame:
		return "prependFrame"
	case EditRemoveFrame:
		return "removeFrame"
	case EditSetAttribute:
		return "setAttribute"
	case EditRemoveAttribute:
		return "removeAttribute"
	case EditUpdateText:
		return "updateText"
	case EditStepIn:
		return "stepIn"
	case EditStepOut:
		return "stepOut"
	case EditUpdateMarkup:
		return "updateMarkup"
	case EditPermutationListEntry:
		return "permutationListEntry"
	case EditPermutationListEnd:
		return "permutationListEnd"
	default:
		return fmt.Sprintf("edit(%d)", int32(t))
	}
}

// Frame is one entry in a batch's reference frame pool.
//
// Which fields are meaningful depends on Type:
//
//	Element:                 SubtreeLength, Name
//	Text:                    Content
//	Attribute:               Name, Value (nil means null), EventHandlerID
//	Component:               SubtreeLength, ComponentID
//	Region:                  SubtreeLength
//	ElementReferenceCapture: Content (the capture id)
//	Markup:                  Content
//
// SubtreeLength counts the frame itself plus all descendants, so a reader can
// skip a whole subtree in one step.
type Frame struct {
	Type           FrameType
	SubtreeLength  int32
	Name           string
	Content        string
	Value          *string
	EventHandlerID uint64
	ComponentID    int32
}

// Edit is one instruction in a component diff.
//
// ReferenceFrameIndex doubles as the move target for permutation entries.
// RemovedAttributeName is only meaningful for RemoveAttribute.
type Edit struct {
	Type                 EditType
	SiblingIndex         int32
	ReferenceFrameIndex  int32
	RemovedAttributeName string
}

// MoveToSiblingIndex returns the destination of a permutation entry.
func (e Edit) MoveToSiblingIndex() int32 { return e.ReferenceFrameIndex }

// ComponentDiff is the ordered edit list for one component.
type ComponentDiff struct {
	ComponentID int32
	Edits       []Edit
}

// Batch is the output of one render pass.
type Batch struct {
	UpdatedComponents       []ComponentDiff
	ReferenceFrames         []Frame
	DisposedComponentIDs    []int32
	DisposedEventHandlerIDs []uint64
}

// AppendFrames adds frames to the reference pool and returns the index of the
// first one.
func (b *Batch) AppendFrames(frames ...Frame) int32 {
	start := int32(len(b.ReferenceFrames))
	b.ReferenceFrames = append(b.ReferenceFrames, frames...)
	return start
}

// AddDiff appends a component diff.
func (b *Batch) AddDiff(componentID int32, edits ...Edit) {
	b.UpdatedComponents = append(b.UpdatedComponents, ComponentDiff{
		ComponentID: componentID,
		Edits:       edits,
	})
}

// Empty reports whether the batch carries no changes at all.
func (b *Batch) Empty() bool {
	return len(b.UpdatedComponents) == 0 &&
		len(b.DisposedComponentIDs) == 0 &&
		len(b.DisposedEventHandlerIDs) == 0
}
