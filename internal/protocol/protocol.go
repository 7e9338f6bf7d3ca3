// Package protocol defines the JSON request and response bodies of the
// long-poll HTTP surface, shared by the server host and the Go client.
//
// Field names follow the browser client. encoding/json matches keys
// case-insensitively, so "RequestId" and "requestId" both decode.
package protocol

import "encoding/json"

// Route paths.
const (
	PathStart         = "/_start"
	PathInvokeMethod  = "/_invokeMethodAsync"
	PathLocation      = "/_locationChanged"
	PathAfterRender   = "/_onAfterRender"
	PathEndInvoke     = "/_endInvokeJSFromDotNet"
	PathWaitForRender = "/_waitForRender"
)

// DispatchEventMethod is the method identifier the client uses to deliver
// browser events.
const DispatchEventMethod = "DispatchEventAsync"

// ResultKind tells the client what the server expects back from an outbound call.
type ResultKind int

const (
	ResultDefault ResultKind = iota
	ResultObjectReference
	ResultStreamReference
	ResultVoid
)

// OutboundCall is a server-to-client function call carried in a response.
type OutboundCall struct {
	TaskID           int64           `json:"taskId"`
	Identifier       string          `json:"identifier"`
	ArgsJSON         json.RawMessage `json:"argsJson"`
	ResultKind       ResultKind      `json:"resultKind"`
	TargetInstanceID int64           `json:"targetInstanceId"`
}

// Response is returned by every circuit operation.
type Response struct {
	SerializedRenderBatches []string       `json:"serializedRenderBatches"`
	OutboundCalls           []OutboundCall `json:"outboundCalls"`
	RenderCompleted         bool           `json:"renderCompleted"`
	NeedsAfterRender        bool           `json:"needsAfterRender"`
}

// RootComponent maps a server component id onto a client container.
// Selector is an element id, or a tag name when no element has that id.
type RootComponent struct {
	ComponentID int32  `json:"componentId"`
	Selector    string `json:"selector"`
	AppendMode  bool   `json:"appendMode,omitempty"`
}

// StartArgs opens a new circuit.
type StartArgs struct {
	Location  string `json:"location"`
	UserAgent string `json:"userAgent,omitempty"`
}

// StartResponse carries the new circuit id and its first response.
type StartResponse struct {
	RequestID      string          `json:"requestId"`
	RootComponents []RootComponent `json:"rootComponents"`
	Response
}

// InvokeMethodArgs invokes a server method. Events use DispatchEventMethod
// with two arguments: an EventDescriptor and the event args.
type InvokeMethodArgs struct {
	RequestID        string            `json:"requestId"`
	AssemblyName     *string           `json:"assemblyName"`
	MethodIdentifier string            `json:"methodIdentifier"`
	ObjectReference  int64             `json:"objectReference"`
	Arguments        []json.RawMessage `json:"arguments"`
}

// LocationChangedArgs reports client-side navigation.
type LocationChangedArgs struct {
	RequestID   string `json:"requestId"`
	Location    string `json:"location"`
	Intercepted bool   `json:"intercepted,omitempty"`
}

// AfterRenderArgs acknowledges that batches were applied.
type AfterRenderArgs struct {
	RequestID string `json:"requestId"`
}

// EndInvokeArgs completes an outbound call.
type EndInvokeArgs struct {
	RequestID   string          `json:"requestId"`
	AsyncHandle *int64          `json:"asyncHandle"`
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"result"`
}

// WaitForRenderArgs is the follow-up poll sent while renderCompleted is false.
type WaitForRenderArgs struct {
	RequestID string `json:"requestId"`
}

// EventDescriptor identifies the handler an event is routed to.
type EventDescriptor struct {
	EventHandlerID uint64          `json:"eventHandlerId"`
	EventName      string          `json:"eventName"`
	EventFieldInfo *EventFieldInfo `json:"eventFieldInfo,omitempty"`
}

// EventFieldInfo carries the new value of a bound form field.
// FieldValue is a string, or a bool for checkboxes.
type EventFieldInfo struct {
	ComponentID int32 `json:"componentId"`
	FieldValue  any   `json:"fieldValue"`
}

// ErrorBody is written for non-2xx responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
