package renderbatch

func PrependFrame(siblingIndex, frameIndex int32) Edit {
	return Edit{Type: EditPrependFrame, SiblingIndex: siblingIndex, ReferenceFrameIndex: frameIndex}
}

func RemoveFrame(siblingIndex int32) Edit {
	return Edit{Type: EditRemoveFrame, SiblingIndex: siblingIndex}
}

func SetAttribute(siblingIndex, frameIndex int32) Edit {
	return Edit{Type: EditSetAttribute, SiblingIndex: siblingIndex, ReferenceFrameIndex: frameIndex}
}

func RemoveAttribute(siblingIndex int32, name string) Edit {
	return Edit{Type: EditRemoveAttribute, SiblingIndex: siblingIndex, RemovedAttributeName: name}
}

func UpdateText(siblingIndex, frameIndex int32) Edit {
	return Edit{Type: EditUpdateText, SiblingIndex: siblingIndex, ReferenceFrameIndex: frameIndex}
}

func UpdateMarkup(siblingIndex, frameIndex int32) Edit {
	return Edit{Type: EditUpdateMarkup, SiblingIndex: siblingIndex, ReferenceFrameIndex: frameIndex}
}

func StepIn(siblingIndex int32) Edit {
	return Edit{Type: EditStepIn, SiblingIndex: siblingIndex}
}

func StepOut() Edit {
	return Edit{Type: EditStepOut}
}

// PermutationEntry moves the child at from to position to. Entries are
// collected until PermutationEnd and applied together.
func PermutationEntry(from, to int32) Edit {
	return Edit{Type: EditPermutationListEntry, SiblingIndex: from, ReferenceFrameIndex: to}
}

func PermutationEnd() Edit {
	return Edit{Type: EditPermutationListEnd}
}
