// Package faults defines the error taxonomy shared by the gateways, the
// conversation store and the orchestrator. Callers match with errors.Is and
// surface the stable Kind string to users.
package faults

import "errors"

var (
	// ErrInvalidRequest marks caller errors. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownAgent marks an agent identifier outside the closed set.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrGatewayUnavailable marks an unreachable external runtime.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrGatewayTimeout marks a missed deadline on an external call.
	ErrGatewayTimeout = errors.New("gateway timeout")

	// ErrMalformedResponse marks an external response that cannot be
	// parsed as text.
	ErrMalformedResponse = errors.New("gateway malformed response")

	// ErrUnsupportedAudioFormat marks audio the transcriber cannot accept.
	ErrUnsupportedAudioFormat = errors.New("unsupported audio format")

	// ErrPersistence marks a failed durable write. The computed result is
	// still returned to the caller, flagged as unpersisted.
	ErrPersistence = errors.New("persistence failure")
)

const (
	KindInvalidRequest         = "invalid_request"
	KindUnknownAgent           = "unknown_agent"
	KindGatewayUnavailable     = "gateway_unavailable"
	KindGatewayTimeout         = "gateway_timeout"
	KindMalformedResponse      = "gateway_malformed_response"
	KindUnsupportedAudioFormat = "unsupported_audio_format"
	KindPersistence            = "persistence_error"
	KindInternal               = "internal"
)

// Kind maps an error chain to its stable taxonomy string.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrUnknownAgent):
		return KindUnknownAgent
	case errors.Is(err, ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.Is(err, ErrGatewayTimeout):
		return KindGatewayTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrUnsupportedAudioFormat):
		return KindUnsupportedAudioFormat
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}
