package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/fitgate/fitgate/internal/auth"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/session"
	"github.com/fitgate/fitgate/internal/vault"
)

// Version is the JSON-RPC protocol version spoken on the wire.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes.
const (
	// CodeAuthError covers missing, malformed, tampered and expired
	// session tokens. The connection stays open; the client may retry
	// with a fresh token.
	CodeAuthError = -32001

	// CodeCredentialNotFound means the tenant never linked the requested
	// provider; the client should run the authorization flow.
	CodeCredentialNotFound = -32002

	// CodeProviderError is an upstream transport failure; the provider's
	// message is passed through.
	CodeProviderError = -32003

	// CodeReauthRequired means the stored refresh token is dead and the
	// tenant must authorize again.
	CodeReauthRequired = -32004

	// CodeStorageError is a vault persistence failure.
	CodeStorageError = -32005
)

// Request is an incoming JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Response is an outgoing JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

func resultResponse(id, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: Version, Error: &Error{Code: code, Message: message}, ID: id}
}

// rpcErrorFor maps an error from the auth/vault/session/provider layers onto
// the wire taxonomy. Errors that are already *Error pass through unchanged;
// anything unrecognized becomes an internal error with a generic message so
// no internals leak to clients.
func rpcErrorFor(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return &Error{Code: CodeAuthError, Message: "session token expired"}
	case errors.Is(err, auth.ErrSignatureInvalid):
		return &Error{Code: CodeAuthError, Message: "session token signature invalid"}
	case errors.Is(err, auth.ErrTokenMalformed):
		return &Error{Code: CodeAuthError, Message: "session token malformed"}
	case errors.Is(err, vault.ErrCredentialNotFound):
		return &Error{Code: CodeCredentialNotFound, Message: "provider not linked, run the authorization flow first"}
	case errors.Is(err, vault.ErrUserNotFound):
		return &Error{Code: CodeAuthError, Message: "unknown tenant"}
	case errors.Is(err, vault.ErrDuplicateEmail):
		return &Error{Code: CodeInvalidParams, Message: "email already registered"}
	case errors.Is(err, session.ErrSessionInvalid), errors.Is(err, session.ErrRefreshFailed),
		errors.Is(err, provider.ErrRefreshRevoked):
		return &Error{Code: CodeReauthRequired, Message: "provider authorization expired, re-authorization required"}
	case errors.Is(err, session.ErrStateMismatch):
		return &Error{Code: CodeInvalidParams, Message: "authorization state mismatch"}
	case errors.Is(err, session.ErrNoPendingAuthorization):
		return &Error{Code: CodeInvalidParams, Message: "no pending authorization for this provider"}
	case errors.Is(err, session.ErrPersistFailed):
		return &Error{Code: CodeStorageError, Message: "storage failure"}
	case errors.Is(err, provider.ErrUnknownProvider):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) {
		return &Error{Code: CodeProviderError, Message: transportErr.Error()}
	}

	return &Error{Code: CodeInternalError, Message: "internal error"}
}

// storageError wraps an unclassified vault failure so it surfaces with the
// storage code instead of a generic internal error.
func storageError(err error) *Error {
	if rpcErr := rpcErrorFor(err); rpcErr.Code != CodeInternalError {
		return rpcErr
	}
	return &Error{Code: CodeStorageError, Message: "storage failure"}
}
