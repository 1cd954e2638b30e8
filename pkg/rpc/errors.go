package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/walletd/pkg/chain"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
)

// JSON-RPC 2.0 and application error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeKeyExists          = 1
	CodeKeyNotFound        = 2
	CodeUnsupportedSigType = 3
	CodeInvalidKey         = 4
	CodeResolutionFailed   = 5

	CodeUnauthorized = 401
	CodeForbidden    = 403
)

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func invalidParams(format string, args ...any) *Error {
	return newError(CodeInvalidParams, fmt.Sprintf(format, args...))
}

var (
	errParse          = newError(CodeParseError, "Parse error")
	errInvalidRequest = newError(CodeInvalidRequest, "Invalid request")
	errUnauthorized   = newError(CodeUnauthorized, "Unauthorized")
	errForbidden      = newError(CodeForbidden, "Forbidden")
)

// toError maps an error kind to the code and message clients see. Anything
// unrecognised is reported as an internal error so store details do not leak.
func toError(err error) *Error {
	var rpcErr *Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, keystore.ErrKeyExists):
		return newError(CodeKeyExists, "Key already exists")
	case errors.Is(err, keystore.ErrKeyInfoNotFound):
		return newError(CodeKeyNotFound, "Key not found")
	case errors.Is(err, crypto.ErrUnsupportedSigType):
		return newError(CodeUnsupportedSigType, "Unsupported signature type")
	case errors.Is(err, crypto.ErrInvalidKey):
		return newError(CodeInvalidKey, "Invalid key")
	case errors.Is(err, chain.ErrActorNotFound), errors.Is(err, chain.ErrNotKeyAddress):
		return newError(CodeResolutionFailed, "Address resolution failed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(CodeInternalError, "Request cancelled")
	}
	return newError(CodeInternalError, "Internal error")
}
