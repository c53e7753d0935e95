package models

import "encoding/json"

type MessageType string

const (
	// Inbound frame kinds.
	MessageTypeNewMessage MessageType = "new_message"
	MessageTypeUserJoined MessageType = "user_joined"
	MessageTypeUserLeft   MessageType = "user_left"
	MessageTypeRoomJoined MessageType = "room_joined"
	MessageTypeError      MessageType = "error"

	// Outbound frame kinds.
	MessageTypeJoinRoom    MessageType = "join_room"
	MessageTypeLeaveRoom   MessageType = "leave_room"
	MessageTypeSendMessage MessageType = "send_message"
)

// InboundFrame is the envelope of every frame the server pushes. Data carries the
// message payload for new_message frames, either as an object or as a JSON string.
type InboundFrame struct {
	Type     MessageType     `json:"type"`
	RoomID   FlexInt64       `json:"room_id,omitempty"`
	UserUUID string          `json:"user_uuid,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Content  string          `json:"content,omitempty"`
}

type OutboundFrame struct {
	Type    MessageType `json:"type"`
	RoomID  int64       `json:"room_id"`
	Content string      `json:"content,omitempty"`
}

func JoinRoomFrame(roomID int64) OutboundFrame {
	return OutboundFrame{Type: MessageTypeJoinRoom, RoomID: roomID}
}

func LeaveRoomFrame(roomID int64) OutboundFrame {
	return OutboundFrame{Type: MessageTypeLeaveRoom, RoomID: roomID}
}

func SendMessageFrame(roomID int64, content string) OutboundFrame {
	return OutboundFrame{Type: MessageTypeSendMessage, RoomID: roomID, Content: content}
}

// MessagePayload is the wire shape of a chat message, shared by live frames and
// history responses.
type MessagePayload struct {
	MessageID    FlexInt64       `json:"message_id"`
	RoomID       FlexInt64       `json:"room_id"`
	UserUUID     string          `json:"user_uuid"`
	UserFullname string          `json:"user_fullname"`
	UserEmail    string          `json:"user_email"`
	Content      string          `json:"content"`
	CreatedAt    json.RawMessage `json:"created_at,omitempty"`
	Timestamp    json.RawMessage `json:"timestamp,omitempty"`
}
