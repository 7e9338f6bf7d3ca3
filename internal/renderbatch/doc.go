// Package renderbatch defines the render batch data model: the unit of UI
// change produced by one render pass on the server and shipped to the client.
//
// A Batch holds an ordered list of per-component diffs, a flat pool of
// reference frames that edits point into by index, and the ids of components
// and event handlers disposed during the pass.
//
// Batches are immutable once handed to the encoder. Constructors in this
// package build frames and edits with the fields each variant needs and leave
// the rest zero, so two batches built from the same calls compare equal.
package renderbatch
