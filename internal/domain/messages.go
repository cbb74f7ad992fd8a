// Package domain defines the message protocol spoken between agents.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message kinds carried in a Frame.
const (
	KindRequestResponse = "request_response"
	KindQueryRequest    = "query_request"
	KindToolRequest     = "tool_request"
	KindToolResponse    = "tool_response"
	KindImageResponse   = "image_response"
	KindChatMessage     = "chat_message"
	KindChatAck         = "chat_acknowledgement"
)

// InitRAGPrefix marks a RequestResponse that carries a credential pair and
// triggers (re)initialization of the knowledge index. The full request is
// "init_rag,<token>,<domain>".
const InitRAGPrefix = "init_rag,"

// Frame is the bus-level envelope. Payload holds the JSON encoding of the
// message type named by Kind.
type Frame struct {
	Kind    string          `json:"kind"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// NewFrame wraps a message into a Frame, inferring Kind from the type.
func NewFrame(from, to string, msg interface{}) (Frame, error) {
	kind, err := KindOf(msg)
	if err != nil {
		return Frame{}, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Frame{Kind: kind, From: from, To: to, Payload: payload}, nil
}

// KindOf returns the wire kind for a message value.
func KindOf(msg interface{}) (string, error) {
	switch msg.(type) {
	case RequestResponse, *RequestResponse:
		return KindRequestResponse, nil
	case QueryRequest, *QueryRequest:
		return KindQueryRequest, nil
	case ToolRequest, *ToolRequest:
		return KindToolRequest, nil
	case ToolResponse, *ToolResponse:
		return KindToolResponse, nil
	case ImageResponse, *ImageResponse:
		return KindImageResponse, nil
	case ChatMessage, *ChatMessage:
		return KindChatMessage, nil
	case ChatAcknowledgement, *ChatAcknowledgement:
		return KindChatAck, nil
	default:
		return "", fmt.Errorf("unknown message type %T", msg)
	}
}

// Decode unmarshals the frame payload into the concrete message type.
func (f Frame) Decode() (interface{}, error) {
	switch f.Kind {
	case KindRequestResponse:
		var m RequestResponse
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindQueryRequest:
		var m QueryRequest
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindToolRequest:
		var m ToolRequest
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindToolResponse:
		var m ToolResponse
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindImageResponse:
		var m ImageResponse
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindChatMessage:
		var m ChatMessage
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	case KindChatAck:
		var m ChatAcknowledgement
		err := json.Unmarshal(f.Payload, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown frame kind %q", f.Kind)
	}
}

// RequestResponse is the core inter-agent message. An empty Response marks a
// forward request; a non-empty Response marks an answer flowing back.
// Attempts counts solution re-generations and is carried through every hop
// so the verification loop stays bounded.
type RequestResponse struct {
	Request  string `json:"request"`
	Response string `json:"response"`
	Attempts int    `json:"attempts,omitempty"`
}

// IsAnswer reports whether the message is answer-phase traffic.
func (m RequestResponse) IsAnswer() bool { return m.Response != "" }

// QueryRequest is the problem-path request: no prior answer exists to carry.
type QueryRequest struct {
	Query    string `json:"query"`
	Attempts int    `json:"attempts,omitempty"`
}

// ToolRequest carries an opaque parameter map to a tool agent.
type ToolRequest struct {
	Params map[string]interface{} `json:"params"`
}

// ToolResponse carries the tool result. An empty Result means the tool
// failed; callers fall back to text.
type ToolResponse struct {
	Result string `json:"result"`
}

// ImageResponse is the terminal artifact message for rendered charts.
type ImageResponse struct {
	Request     string `json:"request"`
	ImageData   string `json:"image_data"` // base64
	ImageType   string `json:"image_type"` // e.g. "png"
	ContentType string `json:"content_type"`
}

// Chat content part types.
const (
	ContentTypeText         = "text"
	ContentTypeStartSession = "start-session"
	ContentTypeEndSession   = "end-session"
)

// ChatContent is one tagged part of a chat message.
type ChatContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatMessage is the human-facing envelope. Every inbound ChatMessage must
// be acknowledged before any other processing.
type ChatMessage struct {
	Timestamp time.Time     `json:"timestamp"`
	MsgID     string        `json:"msg_id"`
	Content   []ChatContent `json:"content"`
}

// Text returns the first text part, or "".
func (m ChatMessage) Text() string {
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			return c.Text
		}
	}
	return ""
}

// NewTextChat builds a chat message with a single text part, optionally
// followed by an end-session marker.
func NewTextChat(text string, endSession bool) ChatMessage {
	content := []ChatContent{{Type: ContentTypeText, Text: text}}
	if endSession {
		content = append(content, ChatContent{Type: ContentTypeEndSession})
	}
	return ChatMessage{
		Timestamp: time.Now(),
		MsgID:     "msg_" + uuid.New().String()[:8],
		Content:   content,
	}
}

// ChatAcknowledgement confirms receipt of a chat message.
type ChatAcknowledgement struct {
	Timestamp         time.Time `json:"timestamp"`
	AcknowledgedMsgID string    `json:"acknowledged_msg_id"`
}
