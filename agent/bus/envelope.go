package bus

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const EnvelopeVersion = 1

type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// Envelope is the unit of transport between agents.
type Envelope struct {
	Version        int              `json:"version"`
	Sender         protocol.Address `json:"sender"`
	Target         protocol.Address `json:"target"`
	Session        string           `json:"session"`
	SchemaDigest   string           `json:"schema_digest"`
	ProtocolDigest string           `json:"protocol_digest,omitempty"`
	Encoding       Encoding         `json:"encoding,omitempty"`
	Payload        string           `json:"payload"`
	Expires        *time.Time       `json:"expires,omitempty"`
}

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("%w: unsupported encoding %q", contractx.ErrValidation, s)
	}
}

// Seal encodes msg into a new envelope.
func Seal(sender, target protocol.Address, session string, msg protocol.Message, enc Encoding) (*Envelope, error) {
	body, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}
	if enc == "" {
		enc = EncodingJSON
	}
	switch enc {
	case EncodingJSON:
	case EncodingCBOR:
		body, err = jsonToCBOR(body)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", contractx.ErrValidation, enc)
	}

	return &Envelope{
		Version:      EnvelopeVersion,
		Sender:       sender,
		Target:       target,
		Session:      session,
		SchemaDigest: protocol.SchemaDigest(msg.Kind()),
		Encoding:     enc,
		Payload:      base64.StdEncoding.EncodeToString(body),
	}, nil
}

// Open decodes the payload into its typed message.
func (e *Envelope) Open() (protocol.Message, error) {
	kind, ok := protocol.KindForDigest(e.SchemaDigest)
	if !ok {
		return nil, fmt.Errorf("%w: schema digest %q", protocol.ErrUnknownKind, e.SchemaDigest)
	}
	body, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload base64: %v", contractx.ErrMalformedPayload, err)
	}
	switch e.Encoding {
	case "", EncodingJSON:
	case EncodingCBOR:
		body, err = cborToJSON(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrMalformedPayload, err)
		}
	default:
		return nil, fmt.Errorf("%w: encoding %q", contractx.ErrMalformedPayload, e.Encoding)
	}
	return protocol.Decode(kind, body)
}

func (e *Envelope) Expired(now time.Time) bool {
	return e.Expires != nil && now.After(*e.Expires)
}
