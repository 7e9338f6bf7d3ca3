package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/roach88/lightmode/internal/client"
	"github.com/roach88/lightmode/internal/protocol"
)

func sampleResult(t *testing.T) (*Result, *html.Node) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(
		`<div id="app"><p>Count: 1</p><button>+1</button><button id="ask">Ask</button><output>Hi <b>Ada</b></output></div>`))
	require.NoError(t, err)

	r := NewResult()
	r.HTML = `<div id="app"><p>Count: 1</p></div>`
	r.Trace = []client.Exchange{
		{Seq: 1, Path: protocol.PathStart, Batches: 1},
		{Seq: 2, Path: protocol.PathAfterRender},
		{Seq: 3, Path: protocol.PathInvokeMethod, OutboundCalls: []string{"lightmode.prompt"}},
		{Seq: 4, Path: protocol.PathEndInvoke, Batches: 1},
		{Seq: 5, Path: protocol.PathAfterRender},
	}
	return r, doc
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	r, doc := sampleResult(t)
	errs := EvaluateAssertions(r, doc, []Assertion{
		{Type: AssertHTMLContains, Value: "Count: 1"},
		{Type: AssertHTMLNotContains, Value: "Count: 2"},
		{Type: AssertTextEquals, Selector: "p", Value: "Count: 1"},
		{Type: AssertTextEquals, Selector: "button", Index: 1, Value: "Ask"},
		{Type: AssertTextEquals, Selector: "ask", Value: "Ask"},
		{Type: AssertTextEquals, Selector: "output", Value: "Hi Ada"},
		{Type: AssertTraceContains, Path: protocol.PathEndInvoke},
		{Type: AssertTraceCount, Path: protocol.PathAfterRender, Count: 2},
		{Type: AssertTraceCount, Path: protocol.PathWaitForRender, Count: 0},
		{Type: AssertTraceOrder, Paths: []string{protocol.PathStart, protocol.PathInvokeMethod, protocol.PathEndInvoke}},
		{Type: AssertOutboundCall, Identifier: "lightmode.prompt"},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"html missing", Assertion{Type: AssertHTMLContains, Value: "Count: 9"}, `HTML containing "Count: 9"`},
		{"html present", Assertion{Type: AssertHTMLNotContains, Value: "Count: 1"}, `HTML without "Count: 1"`},
		{"text differs", Assertion{Type: AssertTextEquals, Selector: "p", Value: "Count: 2"}, `"Count: 1"`},
		{"no element", Assertion{Type: AssertTextEquals, Selector: "table", Value: "x"}, "matched 0 elements"},
		{"index past end", Assertion{Type: AssertTextEquals, Selector: "button", Index: 2, Value: "x"}, "want index 2"},
		{"path absent", Assertion{Type: AssertTraceContains, Path: protocol.PathLocation}, "not found in trace"},
		{"count differs", Assertion{Type: AssertTraceCount, Path: protocol.PathAfterRender, Count: 1}, "Actual: 2"},
		{"order reversed", Assertion{Type: AssertTraceOrder, Paths: []string{protocol.PathEndInvoke, protocol.PathInvokeMethod}}, "out of order"},
		{"order missing", Assertion{Type: AssertTraceOrder, Paths: []string{protocol.PathStart, protocol.PathLocation}}, "not found"},
		{"no call", Assertion{Type: AssertOutboundCall, Identifier: "other.fn"}, "never called"},
		{"unknown type", Assertion{Type: "bogus"}, `unknown assertion type "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, doc := sampleResult(t)
			errs := EvaluateAssertions(r, doc, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.True(t, strings.HasPrefix(errs[0], "assertions[0]: "), errs[0])
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	r, _ := sampleResult(t)
	err := &AssertionError{Type: AssertTraceCount, Expected: "3", Actual: "2", Trace: r.Trace}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[3] /_invokeMethodAsync batches=0 calls=[lightmode.prompt]")
	assert.Contains(t, msg, "[4] /_endInvokeJSFromDotNet batches=1")
}
