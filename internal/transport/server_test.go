package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/demo"
	"github.com/roach88/lightmode/internal/host"
	"github.com/roach88/lightmode/internal/protocol"
	"github.com/roach88/lightmode/internal/testutil"
)

func newServer(t *testing.T, factory circuit.RendererFactory, opts ...Option) *httptest.Server {
	t.Helper()
	reg := circuit.NewRegistry(factory, circuit.WithIDGenerator(testutil.NewSequentialIDs("")))
	t.Cleanup(func() { reg.Close(context.Background()) })
	ts := httptest.NewServer(NewHandler(host.New(reg), opts...))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := ts.Client().Post(ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStart_OK(t *testing.T) {
	ts := newServer(t, demo.NewCounter)

	resp := post(t, ts, protocol.PathStart, protocol.StartArgs{Location: "http://localhost/"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decodeBody[protocol.StartResponse](t, resp)
	assert.Equal(t, "circuit-1", body.RequestID)
	assert.Len(t, body.SerializedRenderBatches, 1)
	assert.Equal(t, "app", body.RootComponents[0].Selector)
}

func TestEventRoundTrip(t *testing.T) {
	ts := newServer(t, demo.NewCounter)
	started := decodeBody[protocol.StartResponse](t, post(t, ts, protocol.PathStart, protocol.StartArgs{}))

	desc := fmt.Sprintf(`{"eventHandlerId":%d,"eventName":"click"}`, demo.IncrementHandlerID)
	body := fmt.Sprintf(`{"requestId":%q,"methodIdentifier":"DispatchEventAsync","arguments":[%s,{}]}`,
		started.RequestID, desc)
	resp := post(t, ts, protocol.PathInvokeMethod, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decodeBody[protocol.Response](t, resp)
	batches := got.SerializedRenderBatches
	for !got.RenderCompleted {
		got = decodeBody[protocol.Response](t, post(t, ts, protocol.PathWaitForRender,
			protocol.WaitForRenderArgs{RequestID: started.RequestID}))
		batches = append(batches, got.SerializedRenderBatches...)
	}
	assert.Len(t, batches, 1)
}

func TestErrors(t *testing.T) {
	ts := newServer(t, demo.NewCounter)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown circuit", protocol.PathLocation, protocol.LocationChangedArgs{RequestID: "nope"}, http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", protocol.PathAfterRender, `{"requestId":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing request id", protocol.PathWaitForRender, `{}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown route", "/_nothing", `{}`, http.StatusNotFound, "NO_ROUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[protocol.ErrorBody](t, resp).Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newServer(t, demo.NewCounter)

	resp, err := ts.Client().Get(ts.URL + protocol.PathStart)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type failingRenderer struct{ circuit.Renderer }

func (failingRenderer) Start(context.Context, circuit.Session, string) error {
	return fmt.Errorf("%w: cannot render", circuit.ErrRendererFatal)
}

func (failingRenderer) Close() error { return nil }

func TestFatalRendererIs500(t *testing.T) {
	ts := newServer(t, func(sc circuit.SessionContext) (circuit.Renderer, error) {
		r, err := demo.NewCounter(sc)
		return failingRenderer{Renderer: r}, err
	})

	resp := post(t, ts, protocol.PathStart, protocol.StartArgs{})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "FAULTED", decodeBody[protocol.ErrorBody](t, resp).Code)
}

func TestRateLimit(t *testing.T) {
	ts := newServer(t, demo.NewCounter, WithRateLimiter(NewRateLimiter(0.001, 2)))

	for i := 0; i < 2; i++ {
		resp := post(t, ts, protocol.PathAfterRender, protocol.AfterRenderArgs{RequestID: "x"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "request %d within burst", i)
	}
	resp := post(t, ts, protocol.PathAfterRender, protocol.AfterRenderArgs{RequestID: "x"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}
