// Package harness runs scripted client sessions against a renderer.
//
// A scenario starts a circuit through the real HTTP surface, drives it with
// the Go client, and checks the result. Each run gets its own registry and
// server, with sequential circuit ids so output is reproducible.
//
// # Scenario Format
//
//	name: counter_increments
//	description: "Clicking +1 twice shows Count: 2"
//	document: '<div id="app"></div>'   # optional, this is the default
//	location: http://localhost/        # optional
//	client_funcs:                      # canned results for outbound calls
//	  lightmode.prompt: Ada
//	steps:
//	  - click: button                  # element id, or tag name
//	    index: 0                       # nth match, default 0
//	  - change: input
//	    value: hello
//	  - navigate: http://localhost/next
//	  - invoke: Reset
//	    args: []
//	assertions:
//	  - type: html_contains
//	    value: "<p>Count: 2</p>"
//	  - type: text_equals
//	    selector: output
//	    value: "Hello, Ada"
//	  - type: trace_count
//	    path: /_endInvokeJSFromDotNet
//	    count: 1
//	  - type: trace_order
//	    paths: [/_start, /_invokeMethodAsync]
//
// # Assertion Types
//
//   - html_contains / html_not_contains: substring of the rendered roots
//   - text_equals: text content of the selected element
//   - trace_contains: an exchange on path happened
//   - trace_count: exactly count exchanges on path
//   - trace_order: first exchanges on paths appear in this order
//   - outbound_call: the server called the client function identifier
//
// Wait-for-render polls depend on timing, so assertions should not count
// them.
package harness
