package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownKind = errors.New("unknown message kind")
)

// Encode serializes a message body as JSON without a type tag.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	if u, ok := msg.(Unknown); ok {
		return json.Marshal(u.Raw)
	}
	return json.Marshal(msg)
}

// EncodeTagged serializes a message as a bare JSON object carrying a "type"
// field, the form accepted by FromObject without shape inference.
func EncodeTagged(msg Message) ([]byte, error) {
	body, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	obj["type"] = string(msg.Kind())
	return json.Marshal(obj)
}

// Decode parses a JSON body of the given kind.
func Decode(kind Kind, data []byte) (Message, error) {
	switch kind {
	case KindChatMessage:
		return decodeAs[ChatMessage](data)
	case KindChatAcknowledgement:
		return decodeAs[ChatAcknowledgement](data)
	case KindGeolocationRequest:
		return decodeAs[GeolocationRequest](data)
	case KindGeolocationResponse:
		return decodeAs[GeolocationResponse](data)
	case KindErrorMessage:
		return decodeAs[ErrorMessage](data)
	case KindStructuredOutputPrompt:
		return decodeAs[StructuredOutputPrompt](data)
	case KindStructuredOutputResponse:
		return decodeAs[StructuredOutputResponse](data)
	case KindStoreExtractionRequest:
		return decodeAs[StoreExtractionRequest](data)
	case KindStoreExtractionResponse:
		return decodeAs[StoreExtractionResponse](data)
	case KindWebSearchRequest:
		return decodeAs[WebSearchRequest](data)
	case KindWebSearchResponse:
		return decodeAs[WebSearchResponse](data)
	case KindHealthCheck:
		return HealthCheck{}, nil
	case KindAgentHealth:
		return decodeAs[AgentHealth](data)
	case KindUnknown:
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Unknown{Raw: raw}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Kind(), err)
	}
	return msg, nil
}

// FromObject turns a loosely typed JSON object into a message. A "type" tag
// naming a known kind wins; otherwise the kind is inferred from the fields
// present. Objects that fit nothing come back as Unknown.
func FromObject(obj map[string]any) Message {
	if obj == nil {
		return Unknown{}
	}
	if tag, ok := obj["type"].(string); ok && isKnownKind(Kind(tag)) {
		body := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != "type" {
				body[k] = v
			}
		}
		if msg, err := decodeObject(Kind(tag), body); err == nil {
			return msg
		}
		return Unknown{Raw: obj}
	}

	kind, ok := inferKind(obj)
	if !ok {
		return Unknown{Raw: obj}
	}
	msg, err := decodeObject(kind, obj)
	if err != nil {
		return Unknown{Raw: obj}
	}
	return msg
}

func decodeObject(kind Kind, obj map[string]any) (Message, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Decode(kind, data)
}

func inferKind(obj map[string]any) (Kind, bool) {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := obj[k]; !ok {
				return false
			}
		}
		return true
	}

	switch {
	case has("latitude", "longitude"):
		if isFiniteNumber(obj["latitude"]) && isFiniteNumber(obj["longitude"]) {
			return KindGeolocationResponse, true
		}
		return "", false
	case has("error"):
		return KindErrorMessage, true
	case has("stores"):
		return KindStoreExtractionResponse, true
	case has("results"):
		if has("query") {
			return KindWebSearchResponse, true
		}
		return KindStoreExtractionRequest, true
	case has("output"):
		return KindStructuredOutputResponse, true
	case has("agent_name", "status"):
		return KindAgentHealth, true
	case has("acknowledged_msg_id"):
		return KindChatAcknowledgement, true
	case has("msg_id", "content"):
		return KindChatMessage, true
	case has("address"):
		return KindGeolocationRequest, true
	case has("prompt", "output_schema"):
		return KindStructuredOutputPrompt, true
	case has("query"):
		return KindWebSearchRequest, true
	}
	return "", false
}

func isKnownKind(kind Kind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func isFiniteNumber(v any) bool {
	f, ok := v.(float64)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}
