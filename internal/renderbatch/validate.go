package renderbatch

import (
	"errors"
	"fmt"
)

// ErrInvalidBatch is wrapped by every error returned from Validate.
var ErrInvalidBatch = errors.New("invalid render batch")

// Validate checks the structural invariants of a batch:
//   - every frame and edit type is known
//   - frame references point inside the reference pool
//   - StepIn/StepOut are balanced and never step out past the diff root
//   - subtree lengths are positive and stay inside the pool
//   - permutation entries are terminated by PermutationEnd
func (b *Batch) Validate() error {
	n := int32(len(b.ReferenceFrames))
	for i, f := range b.ReferenceFrames {
		if !f.Type.Valid() {
			return fmt.Errorf("%w: frame %d has unknown type %d", ErrInvalidBatch, i, int32(f.Type))
		}
		switch f.Type {
		case FrameElement, FrameComponent, FrameRegion:
			if f.SubtreeLength < 1 || int32(i)+f.SubtreeLength > n {
				return fmt.Errorf("%w: frame %d subtree length %d out of range", ErrInvalidBatch, i, f.SubtreeLength)
			}
		}
	}

	for _, diff := range b.UpdatedComponents {
		depth := 0
		inPermutation := false
		for j, e := range diff.Edits {
			if !e.Type.Valid() {
				return fmt.Errorf("%w: component %d edit %d has unknown type %d",
					ErrInvalidBatch, diff.ComponentID, j, int32(e.Type))
			}
			if inPermutation && e.Type != EditPermutationListEntry && e.Type != EditPermutationListEnd {
				return fmt.Errorf("%w: component %d edit %d interrupts a permutation list",
					ErrInvalidBatch, diff.ComponentID, j)
			}
			switch e.Type {
			case EditPrependFrame, EditSetAttribute, EditUpdateText, EditUpdateMarkup:
				if e.ReferenceFrameIndex < 0 || e.ReferenceFrameIndex >= n {
					return fmt.Errorf("%w: component %d edit %d references frame %d of %d",
						ErrInvalidBatch, diff.ComponentID, j, e.ReferenceFrameIndex, n)
				}
			case EditStepIn:
				depth++
			case EditStepOut:
				if depth == 0 {
					return fmt.Errorf("%w: component %d edit %d steps out of the root",
						ErrInvalidBatch, diff.ComponentID, j)
				}
				depth--
			case EditPermutationListEntry:
				inPermutation = true
			case EditPermutationListEnd:
				if !inPermutation {
					return fmt.Errorf("%w: component %d edit %d ends an empty permutation list",
						ErrInvalidBatch, diff.ComponentID, j)
				}
				inPermutation = false
			}
		}
		if inPermutation {
			return fmt.Errorf("%w: component %d has an unterminated permutation list",
				ErrInvalidBatch, diff.ComponentID)
		}
	}
	return nil
}
