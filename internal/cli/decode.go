package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lightmode/internal/renderbatch"
	"github.com/roach88/lightmode/internal/wire"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Encoding string // "base64" | "hex" | "binary"
}

// DecodedBatch is the printable form of a render batch.
type DecodedBatch struct {
	Size                    int            `json:"size"`
	Strings                 int            `json:"strings"`
	UpdatedComponents       []DecodedDiff  `json:"updated_components"`
	ReferenceFrames         []DecodedFrame `json:"reference_frames"`
	DisposedComponentIDs    []int32        `json:"disposed_component_ids,omitempty"`
	DisposedEventHandlerIDs []uint64       `json:"disposed_event_handler_ids,omitempty"`
}

// DecodedDiff is one component's edits.
type DecodedDiff struct {
	ComponentID int32         `json:"component_id"`
	Edits       []DecodedEdit `json:"edits"`
}

// DecodedEdit is one edit with its type spelled out.
type DecodedEdit struct {
	Type                 string `json:"type"`
	SiblingIndex         int32  `json:"sibling_index"`
	ReferenceFrameIndex  int32  `json:"reference_frame_index,omitempty"`
	RemovedAttributeName string `json:"removed_attribute_name,omitempty"`
}

// DecodedFrame is one reference frame with only its meaningful fields set.
type DecodedFrame struct {
	Index          int     `json:"index"`
	Type           string  `json:"type"`
	SubtreeLength  int32   `json:"subtree_length,omitempty"`
	Name           string  `json:"name,omitempty"`
	Content        string  `json:"content,omitempty"`
	Value          *string `json:"value,omitempty"`
	EventHandlerID uint64  `json:"event_handler_id,omitempty"`
	ComponentID    int32   `json:"component_id,omitempty"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a serialized render batch",
		Long: `Validate and print a serialized render batch.

Reads the batch from the file, or from stdin when no file is given or the
file is "-". Batches copied from a long-poll response are base64; use
--encoding hex or binary for other dumps.

Examples:
  lightmode decode batch.b64
  echo "$BATCH" | lightmode decode --format json
  lightmode decode --encoding binary batch.bin`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runDecode(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Encoding, "encoding", "base64", "input encoding (base64|hex|binary)")

	return cmd
}

func runDecode(opts *DecodeOptions, path string, cmd *cobra.Command) error {
	var in []byte
	var err error
	if path == "-" {
		in, err = io.ReadAll(cmd.InOrStdin())
	} else {
		in, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch", err)
	}

	raw, err := decodeInput(in, opts.Encoding)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode input", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	view, err := wire.Decode(raw)
	if err != nil {
		if opts.Format == "json" {
			_ = out.Error("PROTOCOL_VIOLATION", err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "invalid render batch", err)
	}
	out.VerboseLog("decoded %d bytes, %d strings", len(raw), view.StringCount())

	decoded := describeBatch(view, len(raw))
	return out.Success(decoded, decoded.writeText)
}

func decodeInput(in []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "binary":
		return in, nil
	case "base64":
		return base64.StdEncoding.DecodeString(string(bytes.TrimSpace(in)))
	case "hex":
		return hex.DecodeString(string(bytes.Join(bytes.Fields(in), nil)))
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func describeBatch(v *wire.BatchView, size int) DecodedBatch {
	b := v.Materialize()
	d := DecodedBatch{
		Size:                    size,
		Strings:                 v.StringCount(),
		UpdatedComponents:       []DecodedDiff{},
		ReferenceFrames:         []DecodedFrame{},
		DisposedComponentIDs:    b.DisposedComponentIDs,
		DisposedEventHandlerIDs: b.DisposedEventHandlerIDs,
	}
	for _, diff := range b.UpdatedComponents {
		dd := DecodedDiff{ComponentID: diff.ComponentID, Edits: []DecodedEdit{}}
		for _, e := range diff.Edits {
			dd.Edits = append(dd.Edits, DecodedEdit{
				Type:                 e.Type.String(),
				SiblingIndex:         e.SiblingIndex,
				ReferenceFrameIndex:  e.ReferenceFrameIndex,
				RemovedAttributeName: e.RemovedAttributeName,
			})
		}
		d.UpdatedComponents = append(d.UpdatedComponents, dd)
	}
	for i, f := range b.ReferenceFrames {
		d.ReferenceFrames = append(d.ReferenceFrames, describeFrame(i, f))
	}
	return d
}

func describeFrame(i int, f renderbatch.Frame) DecodedFrame {
	return DecodedFrame{
		Index:          i,
		Type:           f.Type.String(),
		SubtreeLength:  f.SubtreeLength,
		Name:           f.Name,
		Content:        f.Content,
		Value:          f.Value,
		EventHandlerID: f.EventHandlerID,
		ComponentID:    f.ComponentID,
	}
}

func (d DecodedBatch) writeText(w io.Writer) error {
	fmt.Fprintf(w, "Batch: %d bytes, %d strings\n", d.Size, d.Strings)
	for _, diff := range d.UpdatedComponents {
		fmt.Fprintf(w, "\nComponent %d (%d edits)\n", diff.ComponentID, len(diff.Edits))
		for j, e := range diff.Edits {
			fmt.Fprintf(w, "  %3d %-21s sibling=%d", j, e.Type, e.SiblingIndex)
			switch e.Type {
			case renderbatch.EditRemoveAttribute.String():
				fmt.Fprintf(w, " name=%q", e.RemovedAttributeName)
			case renderbatch.EditPermutationListEntry.String():
				fmt.Fprintf(w, " to=%d", e.ReferenceFrameIndex)
			case renderbatch.EditPrependFrame.String(), renderbatch.EditSetAttribute.String(),
				renderbatch.EditUpdateText.String(), renderbatch.EditUpdateMarkup.String():
				fmt.Fprintf(w, " frame=%d", e.ReferenceFrameIndex)
			}
			fmt.Fprintln(w)
		}
	}
	if len(d.ReferenceFrames) > 0 {
		fmt.Fprintf(w, "\nReference frames (%d)\n", len(d.ReferenceFrames))
	}
	for _, f := range d.ReferenceFrames {
		fmt.Fprintf(w, "  %3d %-25s%s\n", f.Index, f.Type, frameDetail(f))
	}
	if len(d.DisposedComponentIDs) > 0 {
		fmt.Fprintf(w, "\nDisposed components: %v\n", d.DisposedComponentIDs)
	}
	if len(d.DisposedEventHandlerIDs) > 0 {
		fmt.Fprintf(w, "\nDisposed event handlers: %v\n", d.DisposedEventHandlerIDs)
	}
	return nil
}

func frameDetail(f DecodedFrame) string {
	switch f.Type {
	case renderbatch.FrameElement.String():
		return fmt.Sprintf("<%s> subtree=%d", f.Name, f.SubtreeLength)
	case renderbatch.FrameAttribute.String():
		switch {
		case f.EventHandlerID != 0:
			return fmt.Sprintf("%s -> handler %d", f.Name, f.EventHandlerID)
		case f.Value == nil:
			return fmt.Sprintf("%s (null)", f.Name)
		default:
			return fmt.Sprintf("%s=%q", f.Name, *f.Value)
		}
	case renderbatch.FrameComponent.String():
		return fmt.Sprintf("id=%d subtree=%d", f.ComponentID, f.SubtreeLength)
	case renderbatch.FrameRegion.String():
		return fmt.Sprintf("subtree=%d", f.SubtreeLength)
	case renderbatch.FrameText.String(), renderbatch.FrameMarkup.String(),
		renderbatch.FrameElementReferenceCapture.String():
		return fmt.Sprintf("%q", f.Content)
	default:
		return ""
	}
}
