package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/roach88/lightmode/internal/renderbatch"
)

// BatchView is a validated, random-access view over encoded batch bytes.
//
// Decode checks every offset, tag and string index up front, so the accessors
// below index straight into the buffer and never fail. Nothing is copied out
// until a caller asks for it.
type BatchView struct {
	data []byte

	componentsOffset         int
	framesOffset             int
	disposedComponentsOffset int
	disposedHandlersOffset   int
	locationsOffset          int
	stringTableOffset        int
	stringCount              int
}

// DiffView is the encoded edit list of one updated component.
type DiffView struct {
	view  *BatchView
	start int
}

// Decode validates data and returns a view over it. data must not be mutated
// while the view is in use.
func Decode(data []byte) (*BatchView, error) {
	if len(data) < trailerSize {
		return nil, violation(len(data), "buffer shorter than %d-byte trailer", trailerSize)
	}
	v := &BatchView{data: data}
	end := len(data) - trailerSize
	offsets := [6]int{}
	for i := range offsets {
		off := int(int32(binary.LittleEndian.Uint32(data[end+i*4:])))
		if off < 0 || off > end {
			return nil, violation(end+i*4, "trailer offset %d outside buffer", off)
		}
		offsets[i] = off
	}
	v.componentsOffset = offsets[0]
	v.framesOffset = offsets[1]
	v.disposedComponentsOffset = offsets[2]
	v.disposedHandlersOffset = offsets[3]
	v.locationsOffset = offsets[4]
	v.stringTableOffset = offsets[5]

	if err := v.validateStrings(end); err != nil {
		return nil, err
	}
	frameCount, err := v.validateFrames(end)
	if err != nil {
		return nil, err
	}
	if err := v.validateComponents(end, frameCount); err != nil {
		return nil, err
	}
	if _, err := v.countedSection(v.disposedComponentsOffset, 4, end, "disposed component ids"); err != nil {
		return nil, err
	}
	if _, err := v.countedSection(v.disposedHandlersOffset, 8, end, "disposed event handler ids"); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeBase64 decodes the base64 form carried in long-poll responses.
func DecodeBase64(s string) (*BatchView, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &ProtocolError{Offset: -1, Message: fmt.Sprintf("invalid base64: %v", err)}
	}
	return Decode(raw)
}

func (v *BatchView) i32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(v.data[off:]))
}

func (v *BatchView) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(v.data[off:])
}

// countedSection validates a count:i32 prefixed section of fixed-size items
// and returns the count.
func (v *BatchView) countedSection(off, itemSize, end int, what string) (int, error) {
	if off+4 > end {
		return 0, violation(off, "%s header truncated", what)
	}
	count := int(v.i32(off))
	if count < 0 {
		return 0, violation(off, "%s count %d is negative", what, count)
	}
	if off+4+count*itemSize > end {
		return 0, violation(off, "%s section of %d items truncated", what, count)
	}
	return count, nil
}

func (v *BatchView) validateStrings(end int) error {
	if v.stringTableOffset > v.locationsOffset {
		return violation(v.stringTableOffset, "string table starts after its locations")
	}
	span := end - v.locationsOffset
	if span%4 != 0 {
		return violation(v.locationsOffset, "string locations span %d bytes, not a multiple of 4", span)
	}
	v.stringCount = span / 4
	for i := 0; i < v.stringCount; i++ {
		loc := int(v.i32(v.locationsOffset + i*4))
		if loc < v.stringTableOffset || loc >= v.locationsOffset {
			return violation(v.locationsOffset+i*4, "string %d location %d outside string table", i, loc)
		}
		n, width := binary.Uvarint(v.data[loc:v.locationsOffset])
		if width <= 0 {
			return violation(loc, "string %d has a malformed length prefix", i)
		}
		if n > uint64(v.locationsOffset-loc-width) {
			return violation(loc, "string %d of %d bytes overruns string table", i, n)
		}
	}
	return nil
}

func (v *BatchView) checkString(off int) error {
	idx := int(v.i32(off))
	if idx < -1 || idx >= v.stringCount {
		return violation(off, "string index %d outside table of %d", idx, v.stringCount)
	}
	return nil
}

func (v *BatchView) validateFrames(end int) (int, error) {
	count, err := v.countedSection(v.framesOffset, frameSize, end, "reference frames")
	if err != nil {
		return 0, err
	}
	for n := 0; n < count; n++ {
		base := v.framesOffset + 4 + n*frameSize
		ft := renderbatch.FrameType(v.i32(base))
		if !ft.Valid() {
			return 0, violation(base, "unknown frame type %d", int32(ft))
		}
		p := base + 4
		switch ft {
		case renderbatch.FrameElement:
			if err := v.checkSubtree(p, n, count); err != nil {
				return 0, err
			}
			if err := v.checkString(p + 4); err != nil {
				return 0, err
			}
		case renderbatch.FrameComponent, renderbatch.FrameRegion:
			if err := v.checkSubtree(p, n, count); err != nil {
				return 0, err
			}
		case renderbatch.FrameAttribute:
			if err := v.checkString(p); err != nil {
				return 0, err
			}
			if err := v.checkString(p + 4); err != nil {
				return 0, err
			}
		case renderbatch.FrameText, renderbatch.FrameMarkup, renderbatch.FrameElementReferenceCapture:
			if err := v.checkString(p); err != nil {
				return 0, err
			}
		}
	}
	return count, nil
}

func (v *BatchView) checkSubtree(off, n, count int) error {
	length := int(v.i32(off))
	if length < 1 || n+length > count {
		return violation(off, "frame %d subtree length %d outside %d frames", n, length, count)
	}
	return nil
}

func (v *BatchView) validateComponents(end, frameCount int) error {
	count, err := v.countedSection(v.componentsOffset, 4, end, "updated components")
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		start := int(v.i32(v.componentsOffset + 4 + i*4))
		if start < 0 || start+8 > end {
			return violation(v.componentsOffset+4+i*4, "diff %d starts outside buffer", i)
		}
		edits := int(v.i32(start + 4))
		if edits < 0 || start+8+edits*editSize > end {
			return violation(start, "diff %d with %d edits truncated", i, edits)
		}
		for j := 0; j < edits; j++ {
			base := start + 8 + j*editSize
			et := renderbatch.EditType(v.i32(base))
			if !et.Valid() {
				return violation(base, "unknown edit type %d", int32(et))
			}
			switch et {
			case renderbatch.EditPrependFrame, renderbatch.EditSetAttribute,
				renderbatch.EditUpdateText, renderbatch.EditUpdateMarkup:
				ref := int(v.i32(base + 8))
				if ref < 0 || ref >= frameCount {
					return violation(base+8, "edit references frame %d of %d", ref, frameCount)
				}
			}
			if err := v.checkString(base + 12); err != nil {
				return err
			}
		}
	}
	return nil
}

// String returns string table entry idx. ok is false for the null index -1.
func (v *BatchView) String(idx int32) (s string, ok bool) {
	if idx < 0 {
		return "", false
	}
	loc := int(v.i32(v.locationsOffset + int(idx)*4))
	n, width := binary.Uvarint(v.data[loc:])
	start := loc + width
	return string(v.data[start : start+int(n)]), true
}

func (v *BatchView) stringAt(off int) string {
	s, _ := v.String(v.i32(off))
	return s
}

func (v *BatchView) optionalStringAt(off int) *string {
	s, ok := v.String(v.i32(off))
	if !ok {
		return nil
	}
	return &s
}

// StringCount returns the number of string table entries.
func (v *BatchView) StringCount() int { return v.stringCount }

// UpdatedComponentCount returns the number of component diffs.
func (v *BatchView) UpdatedComponentCount() int {
	return int(v.i32(v.componentsOffset))
}

// UpdatedComponent returns diff i without touching any other diff.
func (v *BatchView) UpdatedComponent(i int) DiffView {
	return DiffView{view: v, start: int(v.i32(v.componentsOffset + 4 + i*4))}
}

// ComponentID returns the id of the component the diff applies to.
func (d DiffView) ComponentID() int32 { return d.view.i32(d.start) }

// EditCount returns the number of edits in the diff.
func (d DiffView) EditCount() int { return int(d.view.i32(d.start + 4)) }

// Edit reads edit j of the diff.
func (d DiffView) Edit(j int) renderbatch.Edit {
	base := d.start + 8 + j*editSize
	return renderbatch.Edit{
		Type:                 renderbatch.EditType(d.view.i32(base)),
		SiblingIndex:         d.view.i32(base + 4),
		ReferenceFrameIndex:  d.view.i32(base + 8),
		RemovedAttributeName: d.view.stringAt(base + 12),
	}
}

// ReferenceFrameCount returns the size of the reference frame pool.
func (v *BatchView) ReferenceFrameCount() int {
	return int(v.i32(v.framesOffset))
}

// ReferenceFrame reads frame n directly at its fixed stride.
func (v *BatchView) ReferenceFrame(n int) renderbatch.Frame {
	base := v.framesOffset + 4 + n*frameSize
	ft := renderbatch.FrameType(v.i32(base))
	p := base + 4
	f := renderbatch.Frame{Type: ft}
	switch ft {
	case renderbatch.FrameElement:
		f.SubtreeLength = v.i32(p)
		f.Name = v.stringAt(p + 4)
	case renderbatch.FrameText, renderbatch.FrameMarkup, renderbatch.FrameElementReferenceCapture:
		f.Content = v.stringAt(p)
	case renderbatch.FrameAttribute:
		f.Name = v.stringAt(p)
		f.Value = v.optionalStringAt(p + 4)
		f.EventHandlerID = v.u64(p + 8)
	case renderbatch.FrameComponent:
		f.SubtreeLength = v.i32(p)
		f.ComponentID = v.i32(p + 4)
	case renderbatch.FrameRegion:
		f.SubtreeLength = v.i32(p)
	}
	return f
}

// DisposedComponentIDs returns the components disposed by this batch.
func (v *BatchView) DisposedComponentIDs() []int32 {
	count := int(v.i32(v.disposedComponentsOffset))
	ids := make([]int32, count)
	for i := range ids {
		ids[i] = v.i32(v.disposedComponentsOffset + 4 + i*4)
	}
	return ids
}

// DisposedEventHandlerIDs returns the event handlers disposed by this batch.
func (v *BatchView) DisposedEventHandlerIDs() []uint64 {
	count := int(v.i32(v.disposedHandlersOffset))
	ids := make([]uint64, count)
	for i := range ids {
		ids[i] = v.u64(v.disposedHandlersOffset + 4 + i*8)
	}
	return ids
}

// Materialize copies the whole view into a renderbatch.Batch.
func (v *BatchView) Materialize() *renderbatch.Batch {
	b := &renderbatch.Batch{}
	for i := 0; i < v.UpdatedComponentCount(); i++ {
		d := v.UpdatedComponent(i)
		diff := renderbatch.ComponentDiff{ComponentID: d.ComponentID()}
		for j := 0; j < d.EditCount(); j++ {
			diff.Edits = append(diff.Edits, d.Edit(j))
		}
		b.UpdatedComponents = append(b.UpdatedComponents, diff)
	}
	for n := 0; n < v.ReferenceFrameCount(); n++ {
		b.ReferenceFrames = append(b.ReferenceFrames, v.ReferenceFrame(n))
	}
	if ids := v.DisposedComponentIDs(); len(ids) > 0 {
		b.DisposedComponentIDs = ids
	}
	if ids := v.DisposedEventHandlerIDs(); len(ids) > 0 {
		b.DisposedEventHandlerIDs = ids
	}
	return b
}
