package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"tickstream/internal/model"
)

// Mode is the level of detail requested per subscription.
type Mode string

const (
	ModeLTP   Mode = "ltp"
	ModeQuote Mode = "quote"
	ModeFull  Mode = "full"
)

// Valid reports whether the mode is one the feed understands.
func (m Mode) Valid() bool {
	switch m {
	case ModeLTP, ModeQuote, ModeFull:
		return true
	}
	return false
}

// Action is the verb carried on an outbound frame.
type Action string

const (
	ActionPing        Action = "ping"
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionSetMode     Action = "setMode"
)

// OutboundFrame is the wire envelope for client → server messages.
type OutboundFrame struct {
	Action    Action  `json:"action"`
	Tokens    []int64 `json:"tokens,omitempty"`
	Mode      Mode    `json:"mode,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix milliseconds
}

// staggered reports whether the frame participates in the 100ms chunk
// stagger when draining the outbound queue.
func (f OutboundFrame) staggered() bool {
	switch f.Action {
	case ActionSubscribe, ActionUnsubscribe, ActionSetMode:
		return true
	}
	return false
}

// Inbound frame types.
const (
	FrameConnection           = "connection"
	FrameTicks                = "ticks"
	FrameOrderUpdate          = "order_update"
	FrameSubscriptionResponse = "subscription_response"
	FrameError                = "error"
	FramePong                 = "pong"
)

// Application error codes carried on "error" frames.
const (
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeSubscriptionLimitReached = "SUBSCRIPTION_LIMIT_EXCEEDED"
	CodeServiceNotReady          = "SERVICE_NOT_READY"
)

// InboundFrame is the wire envelope for server → client messages.
type InboundFrame struct {
	Type       string          `json:"type"`
	Action     string          `json:"action,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	Success    *bool           `json:"success,omitempty"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
	RetryAfter int             `json:"retryAfter,omitempty"` // seconds
}

// connectionData is the payload of a "connection" status frame.
type connectionData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// subscriptionData is the payload of a "subscription_response" frame.
type subscriptionData struct {
	Count int `json:"count"`
}

var errEmptyFrame = errors.New("empty frame")

// parseInbound decodes a raw frame into the envelope. A frame without a type
// is malformed.
func parseInbound(data []byte) (InboundFrame, error) {
	if len(data) == 0 {
		return InboundFrame{}, errEmptyFrame
	}
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return InboundFrame{}, errors.New("frame missing type")
	}
	return f, nil
}

// parseTicks decodes the data payload of a "ticks" frame.
func parseTicks(data json.RawMessage) ([]model.Tick, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ticks []model.Tick
	if err := json.Unmarshal(data, &ticks); err != nil {
		return nil, fmt.Errorf("decode ticks: %w", err)
	}
	return ticks, nil
}
