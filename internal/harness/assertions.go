package harness

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/roach88/lightmode/internal/client"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []client.Exchange
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ex := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s batches=%d", ex.Seq, ex.Path, ex.Batches)
			if len(ex.OutboundCalls) > 0 {
				fmt.Fprintf(&buf, " calls=%v", ex.OutboundCalls)
			}
			fmt.Fprintln(&buf)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, doc *html.Node, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, doc, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, doc *html.Node, a Assertion) error {
	switch a.Type {
	case AssertHTMLContains:
		if !strings.Contains(result.HTML, a.Value) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("HTML containing %q", a.Value), Actual: result.HTML}
		}
	case AssertHTMLNotContains:
		if strings.Contains(result.HTML, a.Value) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("HTML without %q", a.Value), Actual: result.HTML}
		}
	case AssertTextEquals:
		return assertTextEquals(doc, a)
	case AssertTraceContains:
		if countPath(result.Trace, a.Path) == 0 {
			return &AssertionError{Type: a.Type, Expected: "exchange on " + a.Path, Actual: "not found in trace", Trace: result.Trace}
		}
	case AssertTraceCount:
		if n := countPath(result.Trace, a.Path); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d exchanges on %s", a.Count, a.Path),
				Actual:   fmt.Sprintf("%d", n),
				Trace:    result.Trace,
			}
		}
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a.Paths)
	case AssertOutboundCall:
		for _, ex := range result.Trace {
			if slices.Contains(ex.OutboundCalls, a.Identifier) {
				return nil
			}
		}
		return &AssertionError{Type: a.Type, Expected: "outbound call " + a.Identifier, Actual: "never called", Trace: result.Trace}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertTextEquals(doc *html.Node, a Assertion) error {
	el, err := selectElement(doc, a.Selector, a.Index)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("element %s[%d]", a.Selector, a.Index), Actual: err.Error()}
	}
	if got := textOf(el); got != a.Value {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s[%d] text %q", a.Selector, a.Index, a.Value),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

func countPath(trace []client.Exchange, path string) int {
	n := 0
	for _, ex := range trace {
		if ex.Path == path {
			n++
		}
	}
	return n
}

// assertTraceOrder checks that the first exchange on each path appears in
// the given order. Intervening exchanges are allowed.
func assertTraceOrder(trace []client.Exchange, paths []string) error {
	first := make(map[string]int)
	for i, ex := range trace {
		if _, seen := first[ex.Path]; !seen {
			first[ex.Path] = i
		}
	}
	prev := -1
	for _, p := range paths {
		pos, ok := first[p]
		if !ok {
			return &AssertionError{Type: AssertTraceOrder, Expected: fmt.Sprintf("order %v", paths), Actual: p + " not found", Trace: trace}
		}
		if pos < prev {
			return &AssertionError{Type: AssertTraceOrder, Expected: fmt.Sprintf("order %v", paths), Actual: p + " out of order", Trace: trace}
		}
		prev = pos
	}
	return nil
}
