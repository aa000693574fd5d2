package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Address identifies an agent on the bus. It is only ever used for routing.
type Address string

func (a Address) String() string {
	return string(a)
}

// Kind names a message schema.
type Kind string

const (
	KindChatMessage              Kind = "ChatMessage"
	KindChatAcknowledgement      Kind = "ChatAcknowledgement"
	KindGeolocationRequest       Kind = "GeolocationRequest"
	KindGeolocationResponse      Kind = "GeolocationResponse"
	KindErrorMessage             Kind = "ErrorMessage"
	KindStructuredOutputPrompt   Kind = "StructuredOutputPrompt"
	KindStructuredOutputResponse Kind = "StructuredOutputResponse"
	KindStoreExtractionRequest   Kind = "StoreExtractionRequest"
	KindStoreExtractionResponse  Kind = "StoreExtractionResponse"
	KindWebSearchRequest         Kind = "WebSearchRequest"
	KindWebSearchResponse        Kind = "WebSearchResponse"
	KindHealthCheck              Kind = "HealthCheck"
	KindAgentHealth              Kind = "AgentHealth"
	KindUnknown                  Kind = "Unknown"
)

// Kinds lists every decodable schema. Unknown is not part of the wire set.
var Kinds = []Kind{
	KindChatMessage,
	KindChatAcknowledgement,
	KindGeolocationRequest,
	KindGeolocationResponse,
	KindErrorMessage,
	KindStructuredOutputPrompt,
	KindStructuredOutputResponse,
	KindStoreExtractionRequest,
	KindStoreExtractionResponse,
	KindWebSearchRequest,
	KindWebSearchResponse,
	KindHealthCheck,
	KindAgentHealth,
}

// Message is the closed set of payloads exchanged between agents.
type Message interface {
	Kind() Kind
	isMessage()
}

type ChatMessage struct {
	Timestamp time.Time `json:"timestamp"`
	MsgID     string    `json:"msg_id"`
	Content   []Content `json:"content"`
}

type ChatAcknowledgement struct {
	Timestamp         time.Time `json:"timestamp"`
	AcknowledgedMsgID string    `json:"acknowledged_msg_id"`
}

type GeolocationRequest struct {
	Address string `json:"address"`
}

type GeolocationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

type StructuredOutputPrompt struct {
	Prompt       string         `json:"prompt"`
	OutputSchema map[string]any `json:"output_schema"`
}

type StructuredOutputResponse struct {
	Output map[string]any `json:"output"`
}

// SearchResult is one hit returned by the web search collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type StoreExtractionRequest struct {
	Results []SearchResult `json:"results"`
}

type StoreExtractionResponse struct {
	Stores   []string `json:"stores"`
	Location string   `json:"location"`
}

type WebSearchRequest struct {
	Query string `json:"query"`
}

type WebSearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

type HealthCheck struct{}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type AgentHealth struct {
	AgentName string       `json:"agent_name"`
	Status    HealthStatus `json:"status"`
}

// Unknown carries a payload whose shape matched no schema.
type Unknown struct {
	Raw map[string]any `json:"raw,omitempty"`
}

func (ChatMessage) Kind() Kind              { return KindChatMessage }
func (ChatAcknowledgement) Kind() Kind      { return KindChatAcknowledgement }
func (GeolocationRequest) Kind() Kind       { return KindGeolocationRequest }
func (GeolocationResponse) Kind() Kind      { return KindGeolocationResponse }
func (ErrorMessage) Kind() Kind             { return KindErrorMessage }
func (StructuredOutputPrompt) Kind() Kind   { return KindStructuredOutputPrompt }
func (StructuredOutputResponse) Kind() Kind { return KindStructuredOutputResponse }
func (StoreExtractionRequest) Kind() Kind   { return KindStoreExtractionRequest }
func (StoreExtractionResponse) Kind() Kind  { return KindStoreExtractionResponse }
func (WebSearchRequest) Kind() Kind         { return KindWebSearchRequest }
func (WebSearchResponse) Kind() Kind        { return KindWebSearchResponse }
func (HealthCheck) Kind() Kind              { return KindHealthCheck }
func (AgentHealth) Kind() Kind              { return KindAgentHealth }
func (Unknown) Kind() Kind                  { return KindUnknown }

func (ChatMessage) isMessage()              {}
func (ChatAcknowledgement) isMessage()      {}
func (GeolocationRequest) isMessage()       {}
func (GeolocationResponse) isMessage()      {}
func (ErrorMessage) isMessage()             {}
func (StructuredOutputPrompt) isMessage()   {}
func (StructuredOutputResponse) isMessage() {}
func (StoreExtractionRequest) isMessage()   {}
func (StoreExtractionResponse) isMessage()  {}
func (WebSearchRequest) isMessage()         {}
func (WebSearchResponse) isMessage()        {}
func (HealthCheck) isMessage()              {}
func (AgentHealth) isMessage()              {}
func (Unknown) isMessage()                  {}

var errMissingCoordinate = errors.New("latitude and longitude must both be numbers")

// UnmarshalJSON rejects responses where either coordinate is absent or not
// numeric, so a zero value never masquerades as a real location.
func (r *GeolocationResponse) UnmarshalJSON(data []byte) error {
	var aux struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Latitude == nil || aux.Longitude == nil {
		return errMissingCoordinate
	}
	r.Latitude = *aux.Latitude
	r.Longitude = *aux.Longitude
	return nil
}

func (r StoreExtractionResponse) String() string {
	return fmt.Sprintf("stores=%v location=%q", r.Stores, r.Location)
}
