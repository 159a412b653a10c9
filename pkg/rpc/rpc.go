// Package rpc implements the wire framing shared by every service
// endpoint: a single JSON-encoded call per POST body, answered by a
// single JSON-encoded reply. Service errors travel in-band as faults
// so clients can always parse a rejection; only transport-level
// problems (unreadable body, oversized frame) surface as Go errors.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// WireContentType is the media type of request and reply frames.
const WireContentType = "application/x-rgw-call"

// maxFrameSize bounds a single call frame; anything larger is refused
// before decoding.
const maxFrameSize = 64 << 20

// Fault codes carried in-band to clients.
const (
	CodeGeneric         = 1
	CodeUnknownMethod   = 2
	CodeUnauthorized    = 3
	CodeVersionMismatch = 4
	CodeInvalidParams   = 5
)

// Request is one decoded call frame.
type Request struct {
	Method string          `json:"method"`
	ID     int64           `json:"id"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one reply frame. Exactly one of Result and Error is set.
type Response struct {
	ID     int64  `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  *Fault `json:"error,omitempty"`
}

// Fault is a service-level error delivered in-band.
type Fault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}

// Faultf builds a fault with a formatted message.
func Faultf(code int, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Handler dispatches one method call of a service.
type Handler interface {
	Call(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Process reads one call frame of the declared length from r,
// dispatches it on the handler and returns the encoded reply frame.
// Handler errors that are Faults become in-band error replies; any
// other error aborts processing and is returned to the caller, which
// maps it to a transport-level failure.
func Process(ctx context.Context, h Handler, r io.Reader, contentLength int64) ([]byte, error) {
	if contentLength < 0 {
		return nil, fmt.Errorf("missing content length")
	}
	if contentLength > maxFrameSize {
		return nil, fmt.Errorf("call frame of %d bytes exceeds limit", contentLength)
	}

	var req Request
	if err := json.NewDecoder(io.LimitReader(r, contentLength)).Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding call frame: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("call frame without method")
	}

	resp := Response{ID: req.ID}
	result, err := h.Call(ctx, req.Method, req.Params)
	switch fault := err.(type) {
	case nil:
		resp.Result = result
	case *Fault:
		resp.Error = fault
	default:
		return nil, fmt.Errorf("dispatching %s: %w", req.Method, err)
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding reply frame: %w", err)
	}
	return encoded, nil
}

// MismatchHandler answers every method with an in-band fault naming
// the unsupported API version, so clients behind a version gap still
// receive a parseable reply.
type MismatchHandler struct {
	Requested string
}

// Call implements Handler.
func (h MismatchHandler) Call(context.Context, string, json.RawMessage) (any, error) {
	return nil, Faultf(CodeVersionMismatch,
		"API version 'v%s' is not supported by this server", h.Requested)
}
