package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/client"
	"github.com/roach88/lightmode/internal/host"
	"github.com/roach88/lightmode/internal/testutil"
	"github.com/roach88/lightmode/internal/transport"
)

// DefaultStepTimeout bounds each step.
const DefaultStepTimeout = 10 * time.Second

// Harness runs scenarios against one renderer factory.
type Harness struct {
	factory     circuit.RendererFactory
	logger      *slog.Logger
	stepTimeout time.Duration
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger used by the server and client. By default
// logs are discarded.
func WithLogger(l *slog.Logger) Option { return func(h *Harness) { h.logger = l } }

// WithStepTimeout bounds each step.
func WithStepTimeout(d time.Duration) Option { return func(h *Harness) { h.stepTimeout = d } }

// New creates a harness for factory.
func New(factory circuit.RendererFactory, opts ...Option) *Harness {
	h := &Harness{
		factory:     factory,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario on a fresh registry and server.
//
// Execution flow:
//  1. Start an in-process server with sequential circuit ids
//  2. Parse the scenario document and start the client on it
//  3. Run each step, stopping at the first failure
//  4. Evaluate assertions against the trace and final document
//
// A step failure is reported in the result. The returned error is reserved
// for failures to set the run up at all.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg := circuit.NewRegistry(h.factory,
		circuit.WithIDGenerator(testutil.NewSequentialIDs("")),
		circuit.WithLogger(h.logger))
	server := httptest.NewServer(transport.NewHandler(host.New(reg, host.WithLogger(h.logger)),
		transport.WithLogger(h.logger)))
	defer func() {
		server.Close()
		reg.Close(context.Background())
	}()

	doc, err := html.Parse(strings.NewReader(scenario.Document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	result := NewResult()
	opts := []client.Option{
		client.WithHTTPClient(server.Client()),
		client.WithLogger(h.logger),
		client.WithObserver(func(ex client.Exchange) { result.Trace = append(result.Trace, ex) }),
	}
	for id, value := range scenario.ClientFuncs {
		opts = append(opts, client.WithFunc(id, cannedFunc(value)))
	}
	c := client.New(server.URL, opts...)

	stepCtx, cancel := context.WithTimeout(ctx, h.stepTimeout)
	err = c.Start(stepCtx, doc, scenario.Location)
	cancel()
	if err != nil {
		result.AddError(fmt.Sprintf("start: %v", err))
		return result, nil
	}
	result.CircuitID = c.CircuitID()

	for i, step := range scenario.Steps {
		stepCtx, cancel := context.WithTimeout(ctx, h.stepTimeout)
		err := h.runStep(stepCtx, c, doc, step)
		cancel()
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Kind(), err))
			break
		}
	}

	result.HTML, err = c.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	if !result.Pass {
		return result, nil
	}

	for _, msg := range EvaluateAssertions(result, doc, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, c *client.Client, doc *html.Node, step Step) error {
	switch step.Kind() {
	case "click":
		target, err := selectElement(doc, step.Click, step.Index)
		if err != nil {
			return err
		}
		res, err := c.Click(ctx, target)
		if err != nil {
			return err
		}
		if res.Handled == 0 {
			return fmt.Errorf("no handler for click on %s[%d]", step.Click, step.Index)
		}
		return nil
	case "change":
		target, err := selectElement(doc, step.Change, step.Index)
		if err != nil {
			return err
		}
		_, err = c.Change(ctx, target, step.Value)
		return err
	case "navigate":
		return c.NavigateTo(ctx, step.Navigate, true)
	case "invoke":
		return c.InvokeMethod(ctx, step.Invoke, step.Args...)
	default:
		return fmt.Errorf("empty step")
	}
}

// cannedFunc answers an outbound call with a fixed value.
func cannedFunc(value any) client.ClientFunc {
	return func(context.Context, json.RawMessage) (any, error) {
		return value, nil
	}
}

// selectElement returns the index-th element whose id or tag is selector.
func selectElement(doc *html.Node, selector string, index int) (*html.Node, error) {
	matches := findAll(doc, selector)
	if index >= len(matches) {
		return nil, fmt.Errorf("selector %q matched %d elements, want index %d", selector, len(matches), index)
	}
	return matches[index], nil
}

func findAll(n *html.Node, selector string) []*html.Node {
	var out []*html.Node
	if n.Type == html.ElementNode && (n.Data == selector || idOf(n) == selector) {
		out = append(out, n)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		out = append(out, findAll(ch, selector)...)
	}
	return out
}

func idOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return b.String()
}
