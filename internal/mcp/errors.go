package mcp

import (
	"fmt"
)

// ErrorKind classifies a gateway call failure. The proxy does not decide
// what is retryable; the classification is surfaced to the agent loop as
// text so the model can react in conversation.
type ErrorKind int

const (
	// KindAuthentication: the gateway rejected the machine credential (401).
	KindAuthentication ErrorKind = iota
	// KindAuthorization: credential accepted but lacks scope (403).
	KindAuthorization
	// KindNotFound: the HealthManager service was not found behind the
	// gateway (404).
	KindNotFound
	// KindServer: upstream 5xx.
	KindServer
	// KindHTTP: any other non-200 status.
	KindHTTP
	// KindProtocol: a JSON-RPC error member in an otherwise-200 response.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not-found"
	case KindServer:
		return "server"
	case KindHTTP:
		return "http"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// GatewayError is a classified failure from a gateway call.
type GatewayError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 for protocol errors
	Message string // body excerpt or JSON-RPC error message
}

func (e *GatewayError) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return "gateway authentication error: machine credential rejected"
	case KindAuthorization:
		return "gateway authorization error: insufficient scope"
	case KindNotFound:
		return "gateway connection error: HealthManager service not found"
	case KindServer:
		return fmt.Sprintf("gateway server error: upstream returned %d", e.Status)
	case KindProtocol:
		return fmt.Sprintf("gateway protocol error: %s", e.Message)
	default:
		return fmt.Sprintf("gateway HTTP error %d: %s", e.Status, e.Message)
	}
}

// classifyStatus maps a non-200 HTTP status to a GatewayError.
func classifyStatus(status int, body string) *GatewayError {
	switch {
	case status == 401:
		return &GatewayError{Kind: KindAuthentication, Status: status, Message: body}
	case status == 403:
		return &GatewayError{Kind: KindAuthorization, Status: status, Message: body}
	case status == 404:
		return &GatewayError{Kind: KindNotFound, Status: status, Message: body}
	case status >= 500:
		return &GatewayError{Kind: KindServer, Status: status, Message: body}
	default:
		return &GatewayError{Kind: KindHTTP, Status: status, Message: body}
	}
}
