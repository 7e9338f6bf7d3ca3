// Package circuit holds server-side UI sessions ("circuits") and the registry
// that maps circuit ids to them.
//
// A Circuit owns one renderer, a serialized executor, the queues of render
// batches and outbound calls waiting for the next response, and a Scope of
// resources released when the circuit goes away.
//
// SERIALIZATION
//
// Units of work for a circuit never run concurrently. Each unit takes a turn
// from the executor, which grants turns strictly in request order. A unit that
// waits on the client (InvokeClient) gives its turn back while it waits and
// rejoins the end of the line when the answer arrives, so the completion
// request that carries the answer can itself run.
//
// Thread-safety:
//   - Registry: safe from any goroutine
//   - Circuit operations (Dispatch, WaitForRender, Close): safe from any goroutine
//   - Session methods: only from inside a unit of work
package circuit
