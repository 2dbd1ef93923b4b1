// Package event defines the outbound events pushed to live connections.
// Each event knows which participant ids it is addressed to; the presence
// registry resolves those ids into actual connections at publish time.
package event

import (
	"time"

	"chat-core/domain"
)

// Event is an outbound frame addressed to zero or more participants.
// An empty recipient list means every bound connection.
type Event interface {
	EventName() string
	Recipients() []string
}

// MessageView is the wire projection of a domain.Message.
type MessageView struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"senderId"`
	ReceiverID  string         `json:"receiverId"`
	Content     string         `json:"content"`
	Type        string         `json:"type"`
	IsAnonymous bool           `json:"isAnonymous"`
	Edited      bool           `json:"edited"`
	CreatedAt   time.Time      `json:"createdAt"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	Reactions   map[string]int `json:"reactions,omitempty"`
}

func ToMessageView(m domain.Message) MessageView {
	return MessageView{
		ID:          m.ID.String(),
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		Type:        string(m.Type),
		IsAnonymous: m.Anonymous,
		Edited:      m.Edited,
		CreatedAt:   m.CreatedAt,
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
		Reactions:   m.Reactions,
	}
}

type UserListUpdate struct {
	Participants []domain.ParticipantSummary `json:"participants"`
	To           []string                    `json:"-"`
}

func (e UserListUpdate) EventName() string    { return "userListUpdate" }
func (e UserListUpdate) Recipients() []string { return e.To }

// UserStatus announces one participant going online or offline. It is
// addressed to everyone currently connected.
type UserStatus struct {
	domain.ParticipantSummary
}

func (e UserStatus) EventName() string    { return "userStatus" }
func (e UserStatus) Recipients() []string { return nil }

type LoadPreviousMessages struct {
	Messages []MessageView `json:"messages"`
	To       []string      `json:"-"`
}

func (e LoadPreviousMessages) EventName() string    { return "loadPreviousMessages" }
func (e LoadPreviousMessages) Recipients() []string { return e.To }

type ReceiveMessage struct {
	MessageView
}

func (e ReceiveMessage) EventName() string    { return "receiveMessage" }
func (e ReceiveMessage) Recipients() []string { return []string{e.SenderID, e.ReceiverID} }

type MessageStatusUpdate struct {
	MessageView
}

func (e MessageStatusUpdate) EventName() string    { return "messageStatusUpdate" }
func (e MessageStatusUpdate) Recipients() []string { return []string{e.SenderID, e.ReceiverID} }

type MessageEdited struct {
	MessageView
}

func (e MessageEdited) EventName() string    { return "messageEdited" }
func (e MessageEdited) Recipients() []string { return []string{e.SenderID, e.ReceiverID} }

// MessageDeleted carries the id only; the record is already gone.
type MessageDeleted struct {
	ID string   `json:"id"`
	To []string `json:"-"`
}

func (e MessageDeleted) EventName() string    { return "messageDeleted" }
func (e MessageDeleted) Recipients() []string { return e.To }

type ReactionUpdate struct {
	MessageID string         `json:"messageId"`
	Reactions map[string]int `json:"reactions"`
	To        []string       `json:"-"`
}

func (e ReactionUpdate) EventName() string    { return "reactionUpdate" }
func (e ReactionUpdate) Recipients() []string { return e.To }

type FriendRequestReceived struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	To       string `json:"-"`
}

func (e FriendRequestReceived) EventName() string    { return "friendRequestReceived" }
func (e FriendRequestReceived) Recipients() []string { return []string{e.To} }

type FriendsUpdate struct {
	IDs []string `json:"ids"`
	To  string   `json:"-"`
}

func (e FriendsUpdate) EventName() string    { return "friendsUpdate" }
func (e FriendsUpdate) Recipients() []string { return []string{e.To} }

type FriendRequestsUpdate struct {
	IDs []string `json:"ids"`
	To  string   `json:"-"`
}

func (e FriendRequestsUpdate) EventName() string    { return "friendRequestsUpdate" }
func (e FriendRequestsUpdate) Recipients() []string { return []string{e.To} }

type BlockedUsersUpdate struct {
	IDs []string `json:"ids"`
	To  string   `json:"-"`
}

func (e BlockedUsersUpdate) EventName() string    { return "blockedUsersUpdate" }
func (e BlockedUsersUpdate) Recipients() []string { return []string{e.To} }

type FriendRemoved struct {
	OtherID string `json:"otherId"`
	To      string `json:"-"`
}

func (e FriendRemoved) EventName() string    { return "friendRemoved" }
func (e FriendRemoved) Recipients() []string { return []string{e.To} }

// ActionResponse acknowledges an inbound command back to its caller.
type ActionResponse struct {
	Type    string   `json:"type"`
	Success bool     `json:"success"`
	Msg     string   `json:"msg,omitempty"`
	To      []string `json:"-"`
}

func (e ActionResponse) EventName() string    { return "actionResponse" }
func (e ActionResponse) Recipients() []string { return e.To }

type Error struct {
	Msg string   `json:"msg"`
	To  []string `json:"-"`
}

func (e Error) EventName() string    { return "error" }
func (e Error) Recipients() []string { return e.To }

// Typing and StopTyping are pure relays, never persisted.
type Typing struct {
	SenderID string `json:"senderId"`
	Username string `json:"username,omitempty"`
	To       string `json:"-"`
}

func (e Typing) EventName() string    { return "typing" }
func (e Typing) Recipients() []string { return []string{e.To} }

type StopTyping struct {
	SenderID string `json:"senderId"`
	To       string `json:"-"`
}

func (e StopTyping) EventName() string    { return "stopTyping" }
func (e StopTyping) Recipients() []string { return []string{e.To} }
