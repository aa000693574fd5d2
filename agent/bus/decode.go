package bus

import (
	"bytes"
	"encoding/json"
	"fmt"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const maxReplyNesting = 4

// DecodeReply normalizes a raw reply body into a typed message. The body may
// be an envelope, a bare JSON object (tagged or shape-inferred), or a JSON
// string wrapping either.
func DecodeReply(raw []byte) (protocol.Message, error) {
	return decodeReply(raw, 0)
}

func decodeReply(raw []byte, depth int) (protocol.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty reply", contractx.ErrMalformedPayload)
	}
	if depth > maxReplyNesting {
		return nil, fmt.Errorf("%w: reply nested too deeply", contractx.ErrMalformedPayload)
	}

	switch raw[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrMalformedPayload, err)
		}
		return decodeReply([]byte(inner), depth+1)
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrMalformedPayload, err)
		}
		if isEnvelopeShape(obj) {
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, fmt.Errorf("%w: envelope: %v", contractx.ErrMalformedPayload, err)
			}
			return env.Open()
		}
		return protocol.FromObject(obj), nil
	default:
		return nil, fmt.Errorf("%w: reply is not an object", contractx.ErrMalformedPayload)
	}
}

func isEnvelopeShape(obj map[string]any) bool {
	_, hasPayload := obj["payload"]
	_, hasDigest := obj["schema_digest"]
	return hasPayload && hasDigest
}
