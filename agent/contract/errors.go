package contract

import (
	"errors"

	"github.com/tanpawarit/trendgeo/agent/protocol"
)

var (
	ErrTimeout          = errors.New("call timed out")
	ErrUnknownPeer      = errors.New("unknown peer address")
	ErrMalformedPayload = protocol.ErrMalformed
	ErrUpstream         = errors.New("upstream collaborator failed")
	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrPromptMissing    = errors.New("required prompt is missing")
	ErrValidation       = errors.New("validation failed")
	ErrQuotaExceeded    = errors.New("rate limit exceeded")
	ErrNotFound         = errors.New("key not found")
)
