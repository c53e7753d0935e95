// Package handlers routes inbound realtime frames to the stores that own the data.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chat-client/internal/metrics"
	"chat-client/internal/models"
	"chat-client/pkg/logger"
)

const archiveBufferSize = 256

type MessageSink interface {
	Append(roomID int64, msg models.Message) bool
}

type SummarySink interface {
	UpdateLastMessage(roomID int64, msg models.Message)
}

type ErrorReporter interface {
	ReportServerError(content string)
}

type Archiver interface {
	SaveMessage(ctx context.Context, msg models.Message) error
}

// PresenceEvent is a membership notification for a room.
type PresenceEvent struct {
	Type   models.MessageType
	RoomID int64
	UserID string
}

// Router decodes inbound frames and fans valid messages out to the message store
// and the room summaries, whichever room is active.
type Router struct {
	messages  MessageSink
	summaries SummarySink
	errors    ErrorReporter
	selfID    func() string
	now       func() time.Time
	metrics   *metrics.Metrics

	presence  []func(PresenceEvent)
	archiveCh chan models.Message
}

func NewRouter(messages MessageSink, summaries SummarySink, errs ErrorReporter, selfID func() string) *Router {
	if selfID == nil {
		selfID = func() string { return "" }
	}
	return &Router{
		messages:  messages,
		summaries: summaries,
		errors:    errs,
		selfID:    selfID,
		now:       time.Now,
	}
}

func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	r.metrics = m
	return r
}

// OnPresence registers fn for user_joined, user_left and room_joined frames.
// Register before frames start flowing.
func (r *Router) OnPresence(fn func(PresenceEvent)) {
	r.presence = append(r.presence, fn)
}

// WithArchive copies every valid message to a until ctx is done. Writes happen on a
// separate goroutine so a slow database never stalls frame dispatch.
func (r *Router) WithArchive(ctx context.Context, a Archiver) *Router {
	r.archiveCh = make(chan models.Message, archiveBufferSize)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-r.archiveCh:
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if err := a.SaveMessage(writeCtx, msg); err != nil {
					logger.Warn("Failed to archive message %d: %v", msg.MessageID, err)
				}
				cancel()
			}
		}
	}()
	return r
}

// HandleFrame processes one raw frame. Malformed and unknown frames are logged and
// dropped.
func (r *Router) HandleFrame(data []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("Dropping malformed frame: %v", err)
		r.metrics.FrameDropped("malformed")
		return
	}
	r.metrics.FrameReceived(string(frame.Type))

	switch frame.Type {
	case models.MessageTypeNewMessage:
		r.handleNewMessage(frame)
	case models.MessageTypeUserJoined, models.MessageTypeUserLeft, models.MessageTypeRoomJoined:
		r.handlePresence(frame)
	case models.MessageTypeError:
		logger.Warn("Server error: %s", frame.Content)
		if r.errors != nil {
			r.errors.ReportServerError(frame.Content)
		}
	default:
		logger.Debug("Ignoring unrecognized frame type %q", frame.Type)
		r.metrics.FrameDropped("unknown_type")
	}
}

func (r *Router) handleNewMessage(frame models.InboundFrame) {
	payload, err := models.DecodeMessageData(frame.Data)
	if err != nil {
		logger.Warn("Dropping new_message frame: %v", err)
		r.metrics.FrameDropped("undecodable")
		return
	}

	msg, err := models.NormalizeMessage(payload, int64(frame.RoomID), frame.UserUUID, r.selfID(), r.now())
	if err != nil {
		logger.Warn("Dropping invalid message: %v", err)
		r.metrics.FrameDropped(dropReason(err))
		return
	}
	if msg.RoomID <= 0 {
		logger.Warn("Dropping message %d without a room", msg.MessageID)
		r.metrics.FrameDropped("missing_room")
		return
	}

	r.messages.Append(msg.RoomID, msg)
	r.summaries.UpdateLastMessage(msg.RoomID, msg)

	if r.archiveCh != nil {
		select {
		case r.archiveCh <- msg:
		default:
			logger.Warn("Archive queue full, message %d not archived", msg.MessageID)
		}
	}
}

func (r *Router) handlePresence(frame models.InboundFrame) {
	ev := PresenceEvent{Type: frame.Type, RoomID: int64(frame.RoomID), UserID: models.CanonicalUserID(frame.UserUUID)}
	logger.Debug("Presence %s room=%d user=%s", ev.Type, ev.RoomID, ev.UserID)
	for _, fn := range r.presence {
		fn(ev)
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidSender):
		return "invalid_sender"
	case errors.Is(err, models.ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, models.ErrContentTooLong):
		return "content_too_long"
	case errors.Is(err, models.ErrMissingMessageID):
		return "missing_id"
	default:
		return "invalid_payload"
	}
}
