package models

import "time"

// MaxContentLength bounds message bodies, counted in code points.
const MaxContentLength = 2000

// SentinelUserID is the backend's "no sender" identity.
const SentinelUserID = "00000000-0000-0000-0000-000000000000"

// Message is the canonical chat message held by the message store, independent of
// whether it came from a history fetch or a live push.
type Message struct {
	MessageID         int64     `json:"message_id"`
	RoomID            int64     `json:"room_id"`
	SenderID          string    `json:"user_uuid"`
	SenderDisplayName string    `json:"user_fullname"`
	SenderEmail       string    `json:"user_email,omitempty"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
	IsOwn             bool      `json:"is_own"`
}

// RoomSummary is the sidebar view of a room. LastMessage is tracked separately from
// the room's full history and may be set before history was ever fetched.
type RoomSummary struct {
	RoomID      int64    `json:"room_id"`
	Name        string   `json:"name"`
	MemberCount int      `json:"member_count"`
	IsDirect    bool     `json:"is_direct_chat,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
}

type User struct {
	ID       string `json:"user_uuid"`
	Email    string `json:"user_email"`
	FullName string `json:"user_fullname"`
	Role     string `json:"user_role"`
}

type Member struct {
	UserID   string `json:"user_uuid"`
	Email    string `json:"user_email"`
	FullName string `json:"user_fullname"`
}

type LoginRequest struct {
	Email    string `json:"user_email"`
	Password string `json:"user_password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
