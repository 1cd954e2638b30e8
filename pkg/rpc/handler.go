// Package rpc exposes the wallet over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fystack/walletd/pkg/auth"
	"github.com/fystack/walletd/pkg/chain"
	"github.com/fystack/walletd/pkg/event"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/wallet"
)

const jsonrpcVersion = "2.0"

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

type methodFunc func(ctx context.Context, params []json.RawMessage) (any, error)

type method struct {
	perm auth.Permission
	call methodFunc
}

// Handler dispatches JSON-RPC requests to the wallet methods. It is
// transport agnostic; see Router and NATSConsumer.
type Handler struct {
	shared  *wallet.Shared
	state   chain.State
	events  event.Publisher
	jwt     *auth.JWTManager
	methods map[string]method
}

type HandlerOption func(*Handler)

func WithState(st chain.State) HandlerOption {
	return func(h *Handler) { h.state = st }
}

func WithEvents(p event.Publisher) HandlerOption {
	return func(h *Handler) { h.events = p }
}

// WithAuth requires a token carrying the method's permission on every call.
func WithAuth(m *auth.JWTManager) HandlerOption {
	return func(h *Handler) { h.jwt = m }
}

func NewHandler(shared *wallet.Shared, opts ...HandlerOption) *Handler {
	h := &Handler{
		shared: shared,
		state:  chain.NewMemoryState(),
		events: event.NopPublisher{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.methods = h.walletMethods()
	return h
}

// HandleRaw processes a single request or a batch and returns the encoded
// response. It returns nil when nothing should be sent back, which is the
// case for notifications.
func (h *Handler) HandleRaw(ctx context.Context, token string, body []byte) []byte {
	claims, authErr := h.authenticate(token)

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return encode(errorResponse(nullID, errParse))
		}
		if len(batch) == 0 {
			return encode(errorResponse(nullID, errInvalidRequest))
		}
		responses := make([]*Response, 0, len(batch))
		for _, raw := range batch {
			if resp := h.handleOne(ctx, claims, authErr, raw); resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			return nil
		}
		return encode(responses)
	}

	resp := h.handleOne(ctx, claims, authErr, body)
	if resp == nil {
		return nil
	}
	return encode(resp)
}

func (h *Handler) authenticate(token string) (*auth.Claims, error) {
	if h.jwt == nil || token == "" {
		return nil, nil
	}
	claims, err := h.jwt.Validate(token)
	if err != nil {
		logger.Warn("Rejected RPC token", "error", err)
		return nil, err
	}
	return claims, nil
}

func (h *Handler) authorize(claims *auth.Claims, authErr error, perm auth.Permission) *Error {
	if h.jwt == nil {
		return nil
	}
	if claims == nil || authErr != nil {
		return errUnauthorized
	}
	if !claims.Has(perm) {
		return errForbidden
	}
	return nil
}

func (h *Handler) handleOne(ctx context.Context, claims *auth.Claims, authErr error, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if _, ok := err.(*json.SyntaxError); ok {
			return errorResponse(nullID, errParse)
		}
		return errorResponse(nullID, errInvalidRequest)
	}
	id := req.ID
	notification := len(id) == 0
	if notification {
		id = nullID
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		return errorResponse(id, errInvalidRequest)
	}

	start := time.Now()
	result, rpcErr := h.dispatch(ctx, claims, authErr, req)
	h.observe(req.Method, rpcErr, time.Since(start))

	if notification {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(id, rpcErr)
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to encode RPC result", err, "method", req.Method)
		return errorResponse(id, toError(err))
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: data}
}

func (h *Handler) dispatch(ctx context.Context, claims *auth.Claims, authErr error, req Request) (any, *Error) {
	m, ok := h.methods[req.Method]
	if !ok {
		return nil, newError(CodeMethodNotFound, "Method not found")
	}
	if err := h.authorize(claims, authErr, m.perm); err != nil {
		return nil, err
	}
	params, perr := positionalParams(req.Params)
	if perr != nil {
		return nil, perr
	}
	result, err := m.call(ctx, params)
	if err != nil {
		rpcErr := toError(err)
		if rpcErr.Code == CodeInternalError {
			logger.Error("RPC method failed", err, "method", req.Method)
		} else {
			logger.Debug("RPC method returned error", "method", req.Method, "error", err)
		}
		return nil, rpcErr
	}
	return result, nil
}

func (h *Handler) observe(methodName string, rpcErr *Error, elapsed time.Duration) {
	if _, ok := h.methods[methodName]; !ok {
		methodName = "unknown"
	}
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	rpcRequestsTotal.WithLabelValues(methodName, strconv.Itoa(code)).Inc()
	rpcRequestDuration.WithLabelValues(methodName).Observe(elapsed.Seconds())
}

func positionalParams(raw json.RawMessage) ([]json.RawMessage, *Error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("params must be a positional array")
	}
	return params, nil
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: err}
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode RPC response", err)
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return data
}

// BearerToken strips an optional "Bearer " prefix from an Authorization value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
