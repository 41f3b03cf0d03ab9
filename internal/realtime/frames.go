// ABOUTME: JSON frame shapes exchanged over realtime connections
// ABOUTME: Inbound frames are a union discriminated by which fields are present

package realtime

import (
	"encoding/json"
	"time"
)

// inboundFrame is the union of everything a client may send. The shape is
// discriminated by which fields are set: an explicit type marks control
// frames, a messageId plus statusType marks a receipt, and conversationId
// plus content marks a chat message.
type inboundFrame struct {
	Type string `json:"type,omitempty"`

	// Chat message fields
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
	SenderUsername string `json:"senderUsername,omitempty"`
	Content        string `json:"content,omitempty"`

	// Receipt fields
	MessageID  string `json:"messageId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	StatusType string `json:"statusType,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

const (
	frameHeartbeat = "heartbeat"

	receiptDelivered = "DELIVERED"
	receiptRead      = "READ"
)

func (f *inboundFrame) isHeartbeat() bool {
	return f.Type == frameHeartbeat
}

func (f *inboundFrame) isReceipt() bool {
	return f.MessageID != "" && f.StatusType != ""
}

func (f *inboundFrame) isChatMessage() bool {
	return f.ConversationID != ""
}

// ackFrame confirms that a chat message was accepted for processing.
type ackFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// errorFrame reports a rejected or malformed frame without closing the
// connection.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func marshalAck(messageID string) []byte {
	b, _ := json.Marshal(ackFrame{Type: "ack", MessageID: messageID})
	return b
}

func marshalError(message string) []byte {
	b, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	return b
}

// heartbeatFrame echoes a client heartbeat with the server clock.
type heartbeatFrame struct {
	Type       string    `json:"type"`
	ServerTime time.Time `json:"serverTime"`
}

func marshalHeartbeat(now time.Time) []byte {
	b, _ := json.Marshal(heartbeatFrame{Type: frameHeartbeat, ServerTime: now})
	return b
}
