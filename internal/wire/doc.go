// Package wire implements the binary render batch format exchanged between the
// server and the client.
//
// FORMAT
//
// All integers are little-endian. The encoder streams sections in this order
// and records where each one starts:
//
//  1. Updated components: per diff, componentId:i32 editCount:i32 followed by
//     16-byte edit records. A lookup table (count:i32 then count start
//     offsets) follows the diffs; the trailer points at the table.
//  2. Reference frames: count:i32 then 20-byte frame records (type:i32 plus a
//     16-byte payload, zero padded). Frame n lives at offset+4+n*20.
//  3. Disposed component ids: count:i32 then i32 values.
//  4. Disposed event handler ids: count:i32 then u64 values.
//  5. String table: each string as a LEB128 byte length plus UTF-8 bytes,
//     followed by an i32 location per string.
//
// The 24-byte trailer holds the five section offsets above (the string
// section is represented by its locations array) and finally the offset of
// the first string blob. A reader starts from the end of the buffer and never
// scans forward.
//
// Strings are referenced by index, -1 meaning null. Element and attribute
// names, empty or null attribute values and blank text are deduplicated.
// Markup, element reference capture ids and any other content are written
// once per use so large content never sits in the dedup map.
package wire
