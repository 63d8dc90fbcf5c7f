package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Message types exchanged with ASR workers
const (
	TypeChat   = "chat"
	TypeError  = "error"
	TypeListen = "listen"
	TypeFinish = "finish"
)

// Response is sent by a worker for every decoded frame
type Response struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // "chat", "error"
	Content   string `json:"content"`
}

// Control is sent by the coordinator to a worker as a text message
type Control struct {
	Type      string `json:"type"` // "listen", "finish"
	SessionID string `json:"session_id,omitempty"`
	Data      string `json:"data,omitempty"`
}

// NewChatResponse creates a recognition result for a session
func NewChatResponse(sessionID, content string) *Response {
	return &Response{
		SessionID: sessionID,
		Type:      TypeChat,
		Content:   content,
	}
}

// NewErrorResponse reports a non-fatal processing failure for a session
func NewErrorResponse(sessionID, message string) *Response {
	return &Response{
		SessionID: sessionID,
		Type:      TypeError,
		Content:   message,
	}
}

// Marshal encodes the response as JSON
func (r *Response) Marshal() ([]byte, error) {
	return sonic.Marshal(r)
}

// ParseResponse decodes a worker response. An empty session id is valid.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return &resp, nil
}

// NewFinishControl tells a worker that a session has ended
func NewFinishControl(sessionID string) *Control {
	return &Control{
		Type:      TypeFinish,
		SessionID: sessionID,
	}
}

// Marshal encodes the control message as JSON
func (c *Control) Marshal() ([]byte, error) {
	return sonic.Marshal(c)
}

// ParseControl decodes a control message
func ParseControl(data []byte) (*Control, error) {
	var ctrl Control
	if err := sonic.Unmarshal(data, &ctrl); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	if ctrl.Type == "" {
		return nil, fmt.Errorf("invalid control message: missing type")
	}
	return &ctrl, nil
}
