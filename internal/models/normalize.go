package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrInvalidSender    = errors.New("message has no valid sender")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrContentTooLong   = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrMissingMessageID = errors.New("message has no server id")
)

// FlexInt64 decodes ids that the backend sends either as JSON numbers or as numeric strings.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*f = FlexInt64(n)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		*f = FlexInt64(n)
		return nil
	}
	// Exponent forms such as 1e3.
	n, err := num.Float64()
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", num, err)
	}
	if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
		return fmt.Errorf("invalid id %s: not an int64", num)
	}
	*f = FlexInt64(n)
	return nil
}

// DecodeMessageData unwraps the data field of a new_message frame. Some servers send
// the payload as an object, others as a string holding JSON.
func DecodeMessageData(raw json.RawMessage) (MessagePayload, error) {
	var payload MessagePayload
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return payload, errors.New("missing message data")
	}
	if raw[0] == '"' {
		var nested string
		if err := json.Unmarshal(raw, &nested); err != nil {
			return payload, fmt.Errorf("decode message data string: %w", err)
		}
		raw = []byte(nested)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode message data: %w", err)
	}
	return payload, nil
}

// NormalizeMessage turns a wire payload into a canonical Message. Envelope values fill
// in ids the payload omits; selfID decides IsOwn. It is the only place that knows
// about backend field-name drift for messages.
func NormalizeMessage(p MessagePayload, envelopeRoomID int64, envelopeSender, selfID string, now time.Time) (Message, error) {
	sender := strings.TrimSpace(p.UserUUID)
	if sender == "" {
		sender = strings.TrimSpace(envelopeSender)
	}
	sender = CanonicalUserID(sender)
	if sender == "" || sender == SentinelUserID {
		return Message{}, ErrInvalidSender
	}
	if strings.TrimSpace(p.Content) == "" {
		return Message{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(p.Content) > MaxContentLength {
		return Message{}, ErrContentTooLong
	}
	if p.MessageID <= 0 {
		return Message{}, ErrMissingMessageID
	}

	roomID := int64(p.RoomID)
	if roomID == 0 {
		roomID = envelopeRoomID
	}

	name := strings.TrimSpace(p.UserFullname)
	if name == "" {
		name = "Unknown User"
	}

	createdAt, ok := parseTimestamp(p.CreatedAt)
	if !ok {
		createdAt, ok = parseTimestamp(p.Timestamp)
	}
	if !ok {
		createdAt = now
	}

	return Message{
		MessageID:         int64(p.MessageID),
		RoomID:            roomID,
		SenderID:          sender,
		SenderDisplayName: name,
		SenderEmail:       p.UserEmail,
		Content:           p.Content,
		CreatedAt:         createdAt.UTC(),
		IsOwn:             selfID != "" && sender == CanonicalUserID(selfID),
	}, nil
}

// CanonicalUserID lowercases UUID-shaped ids so comparisons do not depend on casing.
// Non-UUID ids are returned trimmed and otherwise untouched.
func CanonicalUserID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// ValidateOutgoingContent trims content and enforces the non-empty and length rules
// for send_message frames.
func ValidateOutgoingContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n <= 0 {
		return time.Time{}, false
	}
	// Values past year 2286 in seconds are milliseconds.
	if n > 1e10 {
		return time.UnixMilli(int64(n)), true
	}
	return time.Unix(int64(n), 0), true
}

// BackendUser covers the field names different backend versions use for users.
type BackendUser struct {
	UUID         string `json:"uuid"`
	ID           string `json:"id"`
	UserUUID     string `json:"user_uuid"`
	EmailAddress string `json:"email_address"`
	Email        string `json:"email"`
	UserEmail    string `json:"user_email"`
	FullName     string `json:"full_name"`
	Name         string `json:"name"`
	Fullname     string `json:"fullname"`
	UserFullname string `json:"user_fullname"`
	Role         string `json:"role"`
	UserRole     string `json:"user_role"`
}

func NormalizeUser(b BackendUser) User {
	role := firstNonEmpty(b.Role, b.UserRole)
	if role == "" {
		role = "Member"
	}
	return User{
		ID:       CanonicalUserID(firstNonEmpty(b.UUID, b.ID, b.UserUUID)),
		Email:    firstNonEmpty(b.EmailAddress, b.Email, b.UserEmail),
		FullName: firstNonEmpty(b.FullName, b.Name, b.Fullname, b.UserFullname),
		Role:     role,
	}
}

func NormalizeMember(b BackendUser) Member {
	u := NormalizeUser(b)
	return Member{UserID: u.ID, Email: u.Email, FullName: u.FullName}
}

// BackendRoom is the room shape returned by the room listing endpoint.
type BackendRoom struct {
	RoomID       FlexInt64 `json:"room_id"`
	ID           FlexInt64 `json:"id"`
	RoomCode     string    `json:"room_code"`
	RoomName     *string   `json:"room_name"`
	Name         string    `json:"name"`
	IsDirectChat bool      `json:"room_is_direct_chat"`
	MemberCount  *int      `json:"member_count"`
	LastMessage  *struct {
		MessageID  FlexInt64       `json:"message_id"`
		Content    string          `json:"content"`
		SenderName string          `json:"sender_name"`
		SenderUUID string          `json:"sender_uuid"`
		CreatedAt  json.RawMessage `json:"created_at"`
	} `json:"last_message"`
}

// NormalizeRoom converts a backend room into a summary. The second return value is
// false when the backend did not report a member count.
func NormalizeRoom(b BackendRoom, selfID string) (RoomSummary, bool) {
	id := int64(b.RoomID)
	if id == 0 {
		id = int64(b.ID)
	}

	name := b.Name
	if b.RoomName != nil && strings.TrimSpace(*b.RoomName) != "" {
		name = *b.RoomName
	}
	if strings.TrimSpace(name) == "" {
		name = b.RoomCode
	}
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Room %d", id)
	}

	summary := RoomSummary{RoomID: id, Name: name, IsDirect: b.IsDirectChat}
	hasCount := b.MemberCount != nil
	if hasCount {
		summary.MemberCount = *b.MemberCount
	}

	if lm := b.LastMessage; lm != nil {
		msg, err := NormalizeMessage(MessagePayload{
			MessageID:    lm.MessageID,
			RoomID:       FlexInt64(id),
			UserUUID:     lm.SenderUUID,
			UserFullname: lm.SenderName,
			Content:      lm.Content,
			CreatedAt:    lm.CreatedAt,
		}, id, "", selfID, time.Time{})
		if err == nil {
			summary.LastMessage = &msg
		}
	}
	return summary, hasCount
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
