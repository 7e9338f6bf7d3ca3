package renderbatch

// Element returns an element frame. subtreeLength includes the element itself.
func Element(name string, subtreeLength int32) Frame {
	return Frame{Type: FrameElement, Name: name, SubtreeLength: subtreeLength}
}

// Text returns a text frame.
func Text(content string) Frame {
	return Frame{Type: FrameText, Content: content}
}

// Attribute returns a string-valued attribute frame.
func Attribute(name, value string) Frame {
	return Frame{Type: FrameAttribute, Name: name, Value: &value}
}

// NullAttribute returns an attribute frame whose value is null.
func NullAttribute(name string) Frame {
	return Frame{Type: FrameAttribute, Name: name}
}

// BoolAttribute returns an attribute frame for a boolean value.
// true is carried as the empty string and false as null.
func BoolAttribute(name string, present bool) Frame {
	if present {
		return Attribute(name, "")
	}
	return NullAttribute(name)
}

// EventHandler returns an attribute frame that binds a server-side handler.
func EventHandler(name string, handlerID uint64) Frame {
	return Frame{Type: FrameAttribute, Name: name, EventHandlerID: handlerID}
}

// Component returns a child component frame.
func Component(componentID, subtreeLength int32) Frame {
	return Frame{Type: FrameComponent, ComponentID: componentID, SubtreeLength: subtreeLength}
}

// Region returns a region frame. Regions group children without a DOM node.
func Region(subtreeLength int32) Frame {
	return Frame{Type: FrameRegion, SubtreeLength: subtreeLength}
}

// Markup returns a raw markup frame.
func Markup(content string) Frame {
	return Frame{Type: FrameMarkup, Content: content}
}

// ElementReferenceCapture returns a frame that tags its parent element with captureID.
func ElementReferenceCapture(captureID string) Frame {
	return Frame{Type: FrameElementReferenceCapture, Content: captureID}
}

// ComponentReferenceCapture, ComponentRenderMode and NamedEvent frames carry
// nothing for the client; they exist so frame indices stay aligned.

func ComponentReferenceCapture() Frame { return Frame{Type: FrameComponentReferenceCapture} }

func ComponentRenderMode() Frame { return Frame{Type: FrameComponentRenderMode} }

func NamedEvent() Frame { return Frame{Type: FrameNamedEvent} }

// StringValue is a helper for building optional attribute values.
func StringValue(s string) *string { return &s }
