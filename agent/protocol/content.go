package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	contentTypeStartSession = "start-session"
	contentTypeText         = "text"
	contentTypeEndSession   = "end-session"
)

// Content is one item of a ChatMessage.
type Content interface {
	ContentType() string
	isContent()
}

type StartSession struct{}

type Text struct {
	Text string `json:"text"`
}

type EndSession struct{}

// UnknownContent preserves the type tag of items this agent does not handle.
type UnknownContent struct {
	Type string
	Raw  json.RawMessage
}

func (StartSession) ContentType() string     { return contentTypeStartSession }
func (Text) ContentType() string             { return contentTypeText }
func (EndSession) ContentType() string       { return contentTypeEndSession }
func (c UnknownContent) ContentType() string { return c.Type }

func (StartSession) isContent()   {}
func (Text) isContent()           {}
func (EndSession) isContent()     {}
func (UnknownContent) isContent() {}

// NewTextChat builds a chat message with a fresh id holding one text item,
// optionally followed by EndSession.
func NewTextChat(text string, endSession bool, now time.Time) ChatMessage {
	content := []Content{Text{Text: text}}
	if endSession {
		content = append(content, EndSession{})
	}
	return ChatMessage{
		Timestamp: now.UTC(),
		MsgID:     uuid.NewString(),
		Content:   content,
	}
}

func marshalContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case StartSession, EndSession:
		return json.Marshal(map[string]string{"type": v.ContentType()})
	case Text:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: contentTypeText, Text: v.Text})
	case UnknownContent:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
		return json.Marshal(map[string]string{"type": v.Type})
	default:
		return nil, fmt.Errorf("%w: content %T", ErrUnknownKind, c)
	}
}

func unmarshalContent(raw json.RawMessage) (Content, error) {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: content item: %v", ErrMalformed, err)
	}
	switch head.Type {
	case contentTypeStartSession:
		return StartSession{}, nil
	case contentTypeText:
		return Text{Text: head.Text}, nil
	case contentTypeEndSession:
		return EndSession{}, nil
	default:
		return UnknownContent{Type: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

type chatMessageWire struct {
	Timestamp time.Time         `json:"timestamp"`
	MsgID     string            `json:"msg_id"`
	Content   []json.RawMessage `json:"content"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	wire := chatMessageWire{
		Timestamp: m.Timestamp,
		MsgID:     m.MsgID,
		Content:   make([]json.RawMessage, 0, len(m.Content)),
	}
	for _, c := range m.Content {
		raw, err := marshalContent(c)
		if err != nil {
			return nil, err
		}
		wire.Content = append(wire.Content, raw)
	}
	return json.Marshal(wire)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var wire chatMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Timestamp = wire.Timestamp
	m.MsgID = wire.MsgID
	m.Content = make([]Content, 0, len(wire.Content))
	for _, raw := range wire.Content {
		c, err := unmarshalContent(raw)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, c)
	}
	return nil
}
