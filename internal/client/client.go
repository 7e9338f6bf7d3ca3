// Package client drives a reconciled document from Go over the long-poll
// HTTP surface, the way the browser script does.
//
// One mutex guards the document and the request loop. Every exchange runs to
// completion before the next starts: batches are applied in the order they
// arrive, outbound calls are answered, after-render is acknowledged, and
// wait-for-render is polled while the server still reports pending work.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/roach88/lightmode/internal/protocol"
	"github.com/roach88/lightmode/internal/reconcile"
	"github.com/roach88/lightmode/internal/wire"
)

var (
	// ErrNotStarted is returned by operations that need a circuit.
	ErrNotStarted = errors.New("client not started")

	// ErrNoContainer is returned when a root component's selector matches
	// nothing in the document.
	ErrNoContainer = errors.New("no container for root component")
)

// ClientFunc answers an outbound call. args is the JSON argument array.
// The returned value is marshalled as the call result.
type ClientFunc func(ctx context.Context, args json.RawMessage) (any, error)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 for an unknown circuit.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// Exchange summarizes one request and the response to it.
type Exchange struct {
	Seq             int      `json:"seq"`
	Path            string   `json:"path"`
	Batches         int      `json:"batches"`
	OutboundCalls   []string `json:"outbound_calls,omitempty"`
	RenderCompleted bool     `json:"render_completed"`
}

// Client is one browser-like session against a server.
type Client struct {
	mu        sync.Mutex
	base      string
	http      *http.Client
	logger    *slog.Logger
	funcs     map[string]ClientFunc
	observe   func(Exchange)
	seq       int
	rec       *reconcile.Reconciler
	doc       *html.Node
	circuitID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithFunc registers fn under identifier for outbound calls.
func WithFunc(identifier string, fn ClientFunc) Option {
	return func(c *Client) { c.funcs[identifier] = fn }
}

// WithObserver calls fn after every successful exchange, in order.
func WithObserver(fn func(Exchange)) Option { return func(c *Client) { c.observe = fn } }

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   http.DefaultClient,
		logger: slog.Default(),
		funcs:  make(map[string]ClientFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	c.rec = reconcile.New(
		reconcile.WithLogger(c.logger),
		reconcile.WithEventSink(reconcile.EventSinkFunc(c.dispatchLocked)),
	)
	return c
}

// CircuitID returns the id assigned by Start, or "".
func (c *Client) CircuitID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circuitID
}

// Start opens a circuit, attaches its root components to doc and applies
// the initial render.
func (c *Client) Start(ctx context.Context, doc *html.Node, location string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuitID != "" {
		return fmt.Errorf("client already started on circuit %s", c.circuitID)
	}

	var resp protocol.StartResponse
	if err := c.post(ctx, protocol.PathStart, protocol.StartArgs{Location: location, UserAgent: "lightmode-client"}, &resp); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	for _, root := range resp.RootComponents {
		container := resolve(doc, root.Selector)
		if container == nil {
			return fmt.Errorf("%w: component %d selector %q", ErrNoContainer, root.ComponentID, root.Selector)
		}
		if err := c.rec.AttachRoot(container, root.ComponentID, root.AppendMode); err != nil {
			return fmt.Errorf("attach component %d: %w", root.ComponentID, err)
		}
	}
	c.doc = doc
	c.circuitID = resp.RequestID
	c.logger.Info("circuit started", "circuit_id", c.circuitID, "roots", len(resp.RootComponents))
	return c.process(ctx, &resp.Response)
}

// Fire delivers a native event at target through the event delegator.
func (c *Client) Fire(ctx context.Context, target *html.Node, eventName string, args any) (reconcile.DispatchResult, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return reconcile.DispatchResult{}, fmt.Errorf("marshal event args: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuitID == "" {
		return reconcile.DispatchResult{}, ErrNotStarted
	}
	return c.rec.Delegator().Dispatch(ctx, reconcile.NativeEvent{Name: eventName, Target: target, Args: raw})
}

// Click fires a click at target.
func (c *Client) Click(ctx context.Context, target *html.Node) (reconcile.DispatchResult, error) {
	return c.Fire(ctx, target, "click", map[string]any{"button": 0, "detail": 1})
}

// Change sets the form value of target as a user edit would, then fires change.
func (c *Client) Change(ctx context.Context, target *html.Node, value string) (reconcile.DispatchResult, error) {
	c.mu.Lock()
	c.rec.SetValue(target, value)
	c.mu.Unlock()
	return c.Fire(ctx, target, "change", map[string]any{"value": value})
}

// DispatchEvent posts an event for a known handler, bypassing the delegator.
func (c *Client) DispatchEvent(ctx context.Context, d protocol.EventDescriptor, args json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatchLocked(ctx, d, args)
}

// dispatchLocked is the delegator's sink. The caller holds c.mu.
func (c *Client) dispatchLocked(ctx context.Context, d protocol.EventDescriptor, args json.RawMessage) error {
	if c.circuitID == "" {
		return ErrNotStarted
	}
	descriptor, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal event descriptor: %w", err)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return c.invoke(ctx, protocol.DispatchEventMethod, json.RawMessage(descriptor), args)
}

// InvokeMethod calls a non-event server method.
func (c *Client) InvokeMethod(ctx context.Context, method string, args ...any) error {
	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal argument %d: %w", i, err)
		}
		raw = append(raw, b)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuitID == "" {
		return ErrNotStarted
	}
	return c.invoke(ctx, method, raw...)
}

func (c *Client) invoke(ctx context.Context, method string, args ...json.RawMessage) error {
	var resp protocol.Response
	err := c.post(ctx, protocol.PathInvokeMethod, protocol.InvokeMethodArgs{
		RequestID:        c.circuitID,
		MethodIdentifier: method,
		Arguments:        args,
	}, &resp)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", method, err)
	}
	return c.process(ctx, &resp)
}

// NavigateTo reports a client-side navigation.
func (c *Client) NavigateTo(ctx context.Context, location string, intercepted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuitID == "" {
		return ErrNotStarted
	}
	var resp protocol.Response
	err := c.post(ctx, protocol.PathLocation, protocol.LocationChangedArgs{
		RequestID:   c.circuitID,
		Location:    location,
		Intercepted: intercepted,
	}, &resp)
	if err != nil {
		return fmt.Errorf("location changed: %w", err)
	}
	return c.process(ctx, &resp)
}

// Query resolves selector the way root components are resolved.
func (c *Client) Query(selector string) *html.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil
	}
	return resolve(c.doc, selector)
}

// Value returns the current form value of n.
func (c *Client) Value(n *html.Node) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Value(n)
}

// HTML renders the attached roots.
func (c *Client) HTML() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.RenderString()
}

// process runs the response loop until the server reports no pending work.
func (c *Client) process(ctx context.Context, first *protocol.Response) error {
	pending := []*protocol.Response{first}
	for len(pending) > 0 {
		resp := pending[0]
		pending = pending[1:]

		for i, s := range resp.SerializedRenderBatches {
			v, err := wire.DecodeBase64(s)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			if err := c.rec.ApplyBatch(v); err != nil {
				return fmt.Errorf("apply batch %d: %w", i, err)
			}
		}

		for _, call := range resp.OutboundCalls {
			next, err := c.answer(ctx, call)
			if err != nil {
				return err
			}
			pending = append(pending, next)
		}

		switch {
		case len(resp.SerializedRenderBatches) > 0:
			next := &protocol.Response{}
			if err := c.post(ctx, protocol.PathAfterRender, protocol.AfterRenderArgs{RequestID: c.circuitID}, next); err != nil {
				return fmt.Errorf("after render: %w", err)
			}
			pending = append(pending, next)
		case !resp.RenderCompleted && len(resp.OutboundCalls) == 0:
			next := &protocol.Response{}
			if err := c.post(ctx, protocol.PathWaitForRender, protocol.WaitForRenderArgs{RequestID: c.circuitID}, next); err != nil {
				return fmt.Errorf("wait for render: %w", err)
			}
			pending = append(pending, next)
		}
	}
	return nil
}

// answer runs an outbound call and posts its completion.
func (c *Client) answer(ctx context.Context, call protocol.OutboundCall) (*protocol.Response, error) {
	args := protocol.EndInvokeArgs{RequestID: c.circuitID, AsyncHandle: &call.TaskID}
	var result any
	fn, ok := c.funcs[call.Identifier]
	if !ok {
		result = fmt.Sprintf("no client function %q", call.Identifier)
		c.logger.Warn("unknown outbound call", "identifier", call.Identifier, "task_id", call.TaskID)
	} else if v, err := fn(ctx, call.ArgsJSON); err != nil {
		result = err.Error()
	} else {
		args.Success = true
		result = v
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result of %s: %w", call.Identifier, err)
	}
	args.Result = raw

	var resp protocol.Response
	if err := c.post(ctx, protocol.PathEndInvoke, args, &resp); err != nil {
		return nil, fmt.Errorf("end invoke %d: %w", call.TaskID, err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Status: resp.StatusCode}
		var eb protocol.ErrorBody
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); json.Unmarshal(data, &eb) == nil {
			se.Code, se.Message = eb.Code, eb.Message
		}
		return se
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.record(path, out)
	return nil
}

func (c *Client) record(path string, out any) {
	if c.observe == nil {
		return
	}
	var r *protocol.Response
	switch v := out.(type) {
	case *protocol.Response:
		r = v
	case *protocol.StartResponse:
		r = &v.Response
	default:
		return
	}
	c.seq++
	ex := Exchange{
		Seq:             c.seq,
		Path:            path,
		Batches:         len(r.SerializedRenderBatches),
		RenderCompleted: r.RenderCompleted,
	}
	for _, call := range r.OutboundCalls {
		ex.OutboundCalls = append(ex.OutboundCalls, call.Identifier)
	}
	c.observe(ex)
}

// resolve finds the element with id selector, else the first element with
// that tag name.
func resolve(doc *html.Node, selector string) *html.Node {
	var byTag *html.Node
	var walk func(n *html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Namespace == "" && a.Key == "id" && a.Val == selector {
					return n
				}
			}
			if byTag == nil && n.Data == selector {
				byTag = n
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if found := walk(ch); found != nil {
				return found
			}
		}
		return nil
	}
	if n := walk(doc); n != nil {
		return n
	}
	return byTag
}
