package wire

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/roach88/lightmode/internal/renderbatch"
)

const (
	editSize    = 16
	frameSize   = 20
	trailerSize = 24
)

// Encode serializes a batch into the binary wire format.
//
// The batch is validated first; an invalid batch is a bug in the producer and
// is returned as an error rather than encoded.
func Encode(b *renderbatch.Batch) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("encode: nil batch")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	e := &encoder{dedup: make(map[string]int32)}
	componentsOffset := e.writeDiffs(b.UpdatedComponents)
	framesOffset := e.writeFrames(b.ReferenceFrames)
	disposedComponentsOffset := e.writeInt32s(b.DisposedComponentIDs)
	disposedHandlersOffset := e.writeUint64s(b.DisposedEventHandlerIDs)
	stringTableOffset, locationsOffset := e.writeStringTable()

	e.int32(componentsOffset)
	e.int32(framesOffset)
	e.int32(disposedComponentsOffset)
	e.int32(disposedHandlersOffset)
	e.int32(locationsOffset)
	e.int32(stringTableOffset)
	return e.buf, nil
}

// EncodeBase64 encodes b and returns the standard base64 form used in
// long-poll responses.
func EncodeBase64(b *renderbatch.Batch) (string, error) {
	raw, err := Encode(b)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type encoder struct {
	buf     []byte
	strings []string
	dedup   map[string]int32
}

func (e *encoder) pos() int32 { return int32(len(e.buf)) }

func (e *encoder) int32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *encoder) uint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) pad(n int) {
	for ; n > 0; n-- {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) writeDiffs(diffs []renderbatch.ComponentDiff) int32 {
	starts := make([]int32, len(diffs))
	for i, d := range diffs {
		starts[i] = e.pos()
		e.int32(d.ComponentID)
		e.int32(int32(len(d.Edits)))
		for _, ed := range d.Edits {
			e.writeEdit(ed)
		}
	}

	table := e.pos()
	e.int32(int32(len(diffs)))
	for _, s := range starts {
		e.int32(s)
	}
	return table
}

func (e *encoder) writeEdit(ed renderbatch.Edit) {
	e.int32(int32(ed.Type))
	e.int32(ed.SiblingIndex)
	e.int32(ed.ReferenceFrameIndex)
	if ed.Type == renderbatch.EditRemoveAttribute {
		e.str(ed.RemovedAttributeName, true)
	} else {
		e.int32(-1)
	}
}

func (e *encoder) writeFrames(frames []renderbatch.Frame) int32 {
	start := e.pos()
	e.int32(int32(len(frames)))
	for _, f := range frames {
		e.writeFrame(f)
	}
	return start
}

func (e *encoder) writeFrame(f renderbatch.Frame) {
	e.int32(int32(f.Type))
	switch f.Type {
	case renderbatch.FrameElement:
		e.int32(f.SubtreeLength)
		e.str(f.Name, true)
		e.pad(8)
	case renderbatch.FrameText:
		e.str(f.Content, isBlank(f.Content))
		e.pad(12)
	case renderbatch.FrameAttribute:
		e.str(f.Name, true)
		if f.Value == nil {
			e.int32(-1)
		} else {
			e.str(*f.Value, *f.Value == "")
		}
		e.uint64(f.EventHandlerID)
	case renderbatch.FrameComponent:
		e.int32(f.SubtreeLength)
		e.int32(f.ComponentID)
		e.pad(8)
	case renderbatch.FrameRegion:
		e.int32(f.SubtreeLength)
		e.pad(12)
	case renderbatch.FrameElementReferenceCapture, renderbatch.FrameMarkup:
		e.str(f.Content, false)
		e.pad(12)
	default:
		// Reference captures, render modes and named events are client-invisible.
		e.pad(16)
	}
}

func (e *encoder) writeInt32s(values []int32) int32 {
	start := e.pos()
	e.int32(int32(len(values)))
	for _, v := range values {
		e.int32(v)
	}
	return start
}

func (e *encoder) writeUint64s(values []uint64) int32 {
	start := e.pos()
	e.int32(int32(len(values)))
	for _, v := range values {
		e.uint64(v)
	}
	return start
}

// str appends a string table index for s, reusing an earlier entry when
// dedupe is set and s has been seen with dedupe before.
func (e *encoder) str(s string, dedupe bool) {
	if dedupe {
		if idx, ok := e.dedup[s]; ok {
			e.int32(idx)
			return
		}
	}
	idx := int32(len(e.strings))
	e.strings = append(e.strings, s)
	if dedupe {
		e.dedup[s] = idx
	}
	e.int32(idx)
}

func (e *encoder) writeStringTable() (tableOffset, locationsOffset int32) {
	tableOffset = e.pos()
	locations := make([]int32, len(e.strings))
	for i, s := range e.strings {
		locations[i] = e.pos()
		e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
		e.buf = append(e.buf, s...)
	}
	locationsOffset = e.pos()
	for _, l := range locations {
		e.int32(l)
	}
	return tableOffset, locationsOffset
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
