// Package dispatch validates inbound events, routes them to the identity,
// message and relationship services, and runs the shared teardown path for
// disconnects, logouts and reaper expiries.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-core/blob"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/runtime"
	"chat-core/services"
)

// Frame is the inbound wire envelope: an event name plus its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Dispatcher struct {
	directory     services.IDirectory
	messages      services.IMessages
	relationships services.IRelationships
	registry      contract.IRegistry
	tracker       *runtime.ActivityTracker
	blobs         blob.IStore
	validate      *validator.Validate
	log           *slog.Logger
}

func NewDispatcher(directory services.IDirectory, messages services.IMessages,
	relationships services.IRelationships, registry contract.IRegistry,
	tracker *runtime.ActivityTracker, blobs blob.IStore, log *slog.Logger) *Dispatcher {
	validate := validator.New()
	// Participant ids become segments of ':' and '|' delimited storage
	// keys; an id carrying a separator could read or clear another
	// participant's data, so such ids never pass the boundary.
	_ = validate.RegisterValidation("participant_id", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), ":|")
	})
	return &Dispatcher{
		directory:     directory,
		messages:      messages,
		relationships: relationships,
		registry:      registry,
		tracker:       tracker,
		blobs:         blobs,
		validate:      validate,
		log:           log,
	}
}

// HandleConnect binds a new connection: the participant is resolved (or
// created, for the ephemeral namespace), the presence snapshot and message
// history are pushed to that connection only, and everyone else learns the
// participant is online.
func (d *Dispatcher) HandleConnect(ctx context.Context, sink contract.EventSink, raw json.RawMessage) error {
	var payload JoinPayload
	if err := d.decode(raw, &payload); err != nil {
		d.pushError(ctx, sink, err)
		return err
	}

	id := payload.ParticipantID
	var summary domain.ParticipantSummary
	if domain.IsEphemeralID(id) {
		session, err := d.directory.EnsureEphemeral(id, payload.Name)
		if err != nil {
			d.pushError(ctx, sink, err)
			return err
		}
		summary = domain.ParticipantSummary{
			ID: session.ID, DisplayName: session.DisplayName,
			Anonymous: true, Online: true,
		}
	} else {
		participant, err := d.directory.Resolve(id)
		if err != nil {
			d.pushError(ctx, sink, err)
			return err
		}
		if err := d.directory.SetAccountOnline(id, true); err != nil {
			d.pushError(ctx, sink, err)
			return err
		}
		summary = domain.ParticipantSummary{
			ID: id, DisplayName: participant.DisplayName(),
			Region: participant.Account.Region, Online: true,
		}
	}

	d.registry.Bind(id, sink)
	d.tracker.Touch(id)

	history, err := d.messages.History(id)
	if err != nil {
		d.log.Error("Loading history failed", "participant", id, "error", err)
		history = nil
	}

	// The snapshot and history go to the new connection only.
	_ = sink.Consume(ctx, event.UserListUpdate{Participants: d.directory.Snapshot(id)})
	_ = sink.Consume(ctx, event.LoadPreviousMessages{
		Messages: lo.Map(history, func(m domain.Message, _ int) event.MessageView {
			return event.ToMessageView(m)
		}),
	})

	d.registry.Publish(ctx, event.UserStatus{ParticipantSummary: summary})
	return nil
}

// HandleFrame routes one inbound event. Every failure is converted to a
// client-visible event on the calling connection; nothing here ever stops
// the dispatch loop or touches sibling connections.
func (d *Dispatcher) HandleFrame(ctx context.Context, sink contract.EventSink, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.pushError(ctx, sink, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}

	if frame.Event == "join" {
		_ = d.HandleConnect(ctx, sink, frame.Data)
		return
	}

	handler, ok := d.route(frame.Event)
	if !ok {
		d.pushError(ctx, sink, fmt.Errorf("%w: unknown event %q", errors.ErrValidation, frame.Event))
		return
	}

	if err := handler(ctx, sink, frame.Data); err != nil {
		d.respond(ctx, sink, frame.Event, err)
		return
	}
	d.respond(ctx, sink, frame.Event, nil)
}

type handlerFunc func(ctx context.Context, sink contract.EventSink, data json.RawMessage) error

func (d *Dispatcher) route(name string) (handlerFunc, bool) {
	routes := map[string]handlerFunc{
		"sendMessage":          d.onSendMessage,
		"updateMessageStatus":  d.onUpdateMessageStatus,
		"editMessage":          d.onEditMessage,
		"deleteMessage":        d.onDeleteMessage,
		"addReaction":          d.onAddReaction,
		"typing":               d.onTyping,
		"stopTyping":           d.onStopTyping,
		"clearChatHistory":     d.onClearChatHistory,
		"blockUser":            d.onBlockUser,
		"unblockUser":          d.onUnblockUser,
		"sendFriendRequest":    d.onSendFriendRequest,
		"acceptFriendRequest":  d.onAcceptFriendRequest,
		"declineFriendRequest": d.onDeclineFriendRequest,
		"unfriend":             d.onUnfriend,
		"reportUser":           d.onReportUser,
		"logout":               d.onLogout,
	}
	h, ok := routes[name]
	return h, ok
}

func (d *Dispatcher) onSendMessage(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p SendMessagePayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	if p.Content == "" && len(p.Audio) == 0 {
		return fmt.Errorf("%w: content or audio is required", errors.ErrValidation)
	}
	d.tracker.Touch(p.Sender)

	content := p.Content
	typ := domain.MessageType(p.Type)
	if len(p.Audio) > 0 {
		url, err := d.blobs.Put(p.Audio)
		if err != nil {
			return err
		}
		content = url
		typ = domain.MessageAudio
	}

	_, err := d.messages.Send(ctx, p.Sender, p.Receiver, content, typ)
	return err
}

func (d *Dispatcher) onUpdateMessageStatus(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p UpdateMessageStatusPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)

	if p.MessageID != "" {
		id, err := uuid.Parse(p.MessageID)
		if err != nil {
			return fmt.Errorf("%w: bad message id", errors.ErrValidation)
		}
		if p.Status == "read" {
			return d.messages.MarkRead(ctx, id, p.UserID)
		}
		return d.messages.MarkDelivered(ctx, id, p.UserID)
	}
	if p.SenderID == "" {
		return fmt.Errorf("%w: messageId or senderId is required", errors.ErrValidation)
	}
	return d.messages.MarkAllRead(ctx, p.UserID, p.SenderID)
}

func (d *Dispatcher) onEditMessage(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p EditMessagePayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.messages.Edit(ctx, uuid.MustParse(p.MessageID), p.Content, p.UserID)
}

func (d *Dispatcher) onDeleteMessage(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p DeleteMessagePayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.messages.Delete(ctx, uuid.MustParse(p.MessageID), p.UserID)
}

func (d *Dispatcher) onAddReaction(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p AddReactionPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.messages.React(ctx, uuid.MustParse(p.MessageID), p.Emoji, p.UserID)
}

// onTyping relays the indicator to the receiver's connections without
// persisting anything.
func (d *Dispatcher) onTyping(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p TypingPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.Sender)
	d.registry.Publish(ctx, event.Typing{SenderID: p.Sender, Username: p.Username, To: p.Receiver})
	return nil
}

func (d *Dispatcher) onStopTyping(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p TypingPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.Sender)
	d.registry.Publish(ctx, event.StopTyping{SenderID: p.Sender, To: p.Receiver})
	return nil
}

func (d *Dispatcher) onClearChatHistory(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p ClearChatHistoryPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.messages.ClearHistory(ctx, p.UserID, p.TargetID)
}

func (d *Dispatcher) onBlockUser(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p BlockPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.Block(ctx, p.UserID, p.TargetID)
}

func (d *Dispatcher) onUnblockUser(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p BlockPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.Unblock(ctx, p.UserID, p.TargetID)
}

func (d *Dispatcher) onSendFriendRequest(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p FriendPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.SendFriendRequest(ctx, p.UserID, p.FriendID)
}

func (d *Dispatcher) onAcceptFriendRequest(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p FriendPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.AcceptFriendRequest(ctx, p.UserID, p.FriendID)
}

func (d *Dispatcher) onDeclineFriendRequest(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p FriendPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.DeclineFriendRequest(ctx, p.UserID, p.FriendID)
}

func (d *Dispatcher) onUnfriend(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p FriendPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.Unfriend(ctx, p.UserID, p.FriendID)
}

func (d *Dispatcher) onReportUser(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p ReportPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.tracker.Touch(p.UserID)
	return d.relationships.Report(ctx, p.UserID, p.TargetID, p.Reason)
}

func (d *Dispatcher) onLogout(ctx context.Context, _ contract.EventSink, data json.RawMessage) error {
	var p LogoutPayload
	if err := d.decode(data, &p); err != nil {
		return err
	}
	d.Teardown(ctx, p.UserID)
	return nil
}

// Disconnect handles a transport-level close of one connection. Only when
// the participant's last connection drops does the full teardown run.
func (d *Dispatcher) Disconnect(ctx context.Context, sink contract.EventSink) {
	participantID, last := d.registry.Unbind(sink)
	if participantID == "" || !last {
		return
	}
	d.Teardown(ctx, participantID)
}

// Teardown is the shared disconnect path used by explicit logouts,
// transport closes and reaper expiries. It is idempotent: a second
// invocation for the same participant finds the activity latch already
// cleared and returns without touching state or broadcasting.
func (d *Dispatcher) Teardown(ctx context.Context, participantID string) {
	if !d.tracker.Forget(participantID) {
		return
	}

	// A reaper-driven expiry must not leave a live connection whose frames
	// still reach handlers, so unbound sinks are also closed.
	for _, sink := range d.registry.SinksFor(participantID) {
		d.registry.Unbind(sink)
		if closer, ok := sink.(io.Closer); ok {
			_ = closer.Close()
		}
	}

	var name string
	if domain.IsEphemeralID(participantID) {
		if participant, err := d.directory.Resolve(participantID); err == nil {
			name = participant.DisplayName()
		}
		if err := d.directory.DestroyEphemeral(participantID); err != nil {
			d.log.Error("Destroying session failed", "participant", participantID, "error", err)
		}
		if err := d.messages.PurgeParticipant(participantID); err != nil {
			d.log.Error("Purging anonymous messages failed", "participant", participantID, "error", err)
		}
	} else {
		if participant, err := d.directory.Resolve(participantID); err == nil {
			name = participant.DisplayName()
		}
		if err := d.directory.SetAccountOnline(participantID, false); err != nil {
			d.log.Error("Marking account offline failed", "participant", participantID, "error", err)
		}
	}

	d.registry.Publish(ctx, event.UserStatus{ParticipantSummary: domain.ParticipantSummary{
		ID:          participantID,
		DisplayName: name,
		Anonymous:   domain.IsEphemeralID(participantID),
		Online:      false,
	}})
}

func (d *Dispatcher) decode(data json.RawMessage, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if err := d.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

// respond acknowledges a command on the calling connection only.
func (d *Dispatcher) respond(ctx context.Context, sink contract.EventSink, eventName string, err error) {
	response := event.ActionResponse{Type: eventName, Success: err == nil}
	if err != nil {
		response.Msg = err.Error()
		d.log.Debug("Event failed", "event", eventName, "error", err)
	}
	if consumeErr := sink.Consume(ctx, response); consumeErr != nil {
		d.log.Debug("Dropping action response", "event", eventName, "error", consumeErr)
	}
}

func (d *Dispatcher) pushError(ctx context.Context, sink contract.EventSink, err error) {
	if consumeErr := sink.Consume(ctx, event.Error{Msg: err.Error()}); consumeErr != nil {
		d.log.Debug("Dropping error event", "error", consumeErr)
	}
}
