package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound frame types.
const (
	FrameAuth        = "auth"
	FrameMessage     = "message"
	FrameNotify      = "notification"
	FrameErrorReport = "error_report"
	FramePing        = "ping"
)

// Outbound frame types.
const (
	FrameAuthSuccess = "auth_success"
	FramePong        = "pong"
	FrameError       = "error"
	FrameConnected   = "connection_established"
)

// Frame is the envelope for every inbound websocket message. Type selects
// the variant; the remaining fields are validated per type before dispatch.
type Frame struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Channel      string          `json:"channel,omitempty"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp,omitempty"`

	// auth variant
	Token     string `json:"token,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// error_report variant
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Component string `json:"component,omitempty"`
}

// ParseFrame decodes and validates one inbound frame.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if err := f.validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (f Frame) validate() error {
	switch f.Type {
	case FramePing:
		return nil
	case FrameAuth:
		if f.Token == "" {
			return fmt.Errorf("auth frame requires token")
		}
	case FrameMessage, FrameNotify:
		if len(f.Data) == 0 {
			return fmt.Errorf("%s frame requires data", f.Type)
		}
	case FrameErrorReport:
		if f.ErrorType == "" || f.Message == "" {
			return fmt.Errorf("error_report frame requires error_type and message")
		}
	case "":
		return fmt.Errorf("frame missing type discriminator")
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// OutboundFrame is the envelope written back to clients. DeliveryID is
// assigned by the registry at broadcast time.
type OutboundFrame struct {
	Type       string      `json:"type"`
	DeliveryID string      `json:"delivery_id,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      interface{} `json:"error,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	Channel    string      `json:"channel,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewOutbound stamps an outbound frame with the current time.
func NewOutbound(frameType string) OutboundFrame {
	return OutboundFrame{Type: frameType, Timestamp: time.Now()}
}
